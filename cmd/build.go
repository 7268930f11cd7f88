package cmd

import (
	"fmt"
	"io"
	"path/filepath"
	"sort"

	"github.com/spf13/cobra"

	"github.com/conneroisu/ssrkit/internal/bundler"
	"github.com/conneroisu/ssrkit/internal/islands"
	"github.com/conneroisu/ssrkit/internal/logging"
)

func (c *cli) newBuildCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "build",
		Aliases: []string{"b"},
		Short:   "Build the server, client and island bundles",
		Long: `Run one complete build of every enabled capability: compile the route
tables, generate the framework entries, bundle server.js and client.js, then
bundle each island.

Island failures are reported but do not fail the build; any other failure
does.

Examples:
  ssrkit build
  ssrkit build --config ./configs/prod.yml
  SSRKIT_LOG_LEVEL=debug ssrkit build   # also lists every compiled route`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := c.newApp(ctx)
			if err != nil {
				return err
			}
			if a.composed.Empty() {
				return nil
			}

			op := logging.StartOperation(a.logger, "build")
			res, err := a.driver.Run(ctx, a.composed.Plugin, a.cfg.BaseConfig())
			if err != nil {
				op.EndWithError(ctx, err)
				return err
			}
			op.End(ctx)

			var report *islands.Report
			if a.composed.Islands != nil {
				r := a.composed.Islands.Report()
				report = &r
			}
			printBuildSummary(cmd.OutOrStdout(), a.driver.WorkDir(), res, report)
			return nil
		},
	}
}

func printBuildSummary(w io.Writer, workDir string, res *bundler.Result, report *islands.Report) {
	for _, out := range res.Outputs {
		for _, file := range out.Files {
			fmt.Fprintf(w, "%s %s %s\n", styleOK.Render("✔"), styleNoun.Render(out.Name), relTo(workDir, file))
		}
	}

	if report != nil {
		for _, name := range report.Built {
			fmt.Fprintf(w, "%s %s %s\n", styleOK.Render("✔"), styleNoun.Render("island"), name)
		}
		failed := make([]string, 0, len(report.Failed))
		for name := range report.Failed {
			failed = append(failed, name)
		}
		sort.Strings(failed)
		for _, name := range failed {
			fmt.Fprintf(w, "%s %s %s: %v\n", styleFailed.Render("✘"), styleNoun.Render("island"), name, report.Failed[name])
		}
		for _, chunk := range report.Chunks {
			fmt.Fprintf(w, "%s %s (%.2f KB)\n", styleDim.Render("  chunk"), relTo(workDir, chunk.Path), float64(chunk.Bytes)/1024)
		}
	}

	fmt.Fprintln(w, styleSummary.Render(fmt.Sprintf("built in %s", res.Duration.Round(1e6))))
}

func relTo(base, path string) string {
	if rel, err := filepath.Rel(base, path); err == nil {
		return rel
	}
	return path
}

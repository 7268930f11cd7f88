package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/conneroisu/ssrkit/internal/hydration"
)

var errPageProblems = errors.New("page has hydration problems")

func (c *cli) newInspectCommand() *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "inspect <page.html>",
		Short: "Audit the islands and route data of a rendered page",
		Long: `Parse a rendered page and report every island placement with the strategy
it will hydrate with, where that strategy came from, and its props. Malformed
props, unknown strategies and a missing or malformed route data script are
reported as problems and make the command fail.

Use - to read the page from stdin.

Examples:
  ssrkit inspect dist/index.html
  curl -s localhost:5173/posts/7 | ssrkit inspect - --format json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := validateFormat(format); err != nil {
				return err
			}
			var in io.Reader = cmd.InOrStdin()
			if args[0] != "-" {
				f, err := os.Open(args[0])
				if err != nil {
					return err
				}
				defer f.Close()
				in = f
			}

			report, err := hydration.Inspect(in)
			if err != nil {
				return err
			}
			if format == FormatTable {
				writeInspectTable(cmd.OutOrStdout(), report)
			} else if err := writeStructured(cmd.OutOrStdout(), format, report); err != nil {
				return err
			}
			if !report.OK() {
				return errPageProblems
			}
			return nil
		},
	}
	cmd.Flags().AddFlagSet(outputFlags(&format))
	return cmd
}

func writeInspectTable(w io.Writer, report *hydration.Report) {
	if report.Data != nil {
		fmt.Fprintf(w, "%s %v\n", styleNoun.Render("route data"), report.Data["url"])
	}
	rows := make([][]string, 0, len(report.Placements))
	for _, p := range report.Placements {
		status := styleOK.Render("ok")
		if !p.OK() {
			status = styleFailed.Render(strings.Join(p.Problems, "; "))
		}
		rows = append(rows, []string{p.Name, p.Strategy, p.StrategySource, propKeys(p.Props), status})
	}
	fmt.Fprintln(w, renderTable([]string{"ISLAND", "STRATEGY", "FROM", "PROPS", "STATUS"}, rows))
	for _, problem := range report.Problems {
		fmt.Fprintf(w, "%s %s\n", styleFailed.Render("✘"), problem)
	}
}

func propKeys(props map[string]any) string {
	keys := make([]string, 0, len(props))
	for k := range props {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return strings.Join(keys, ", ")
}

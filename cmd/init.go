package cmd

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/conneroisu/ssrkit/internal/config"
	"github.com/conneroisu/ssrkit/internal/framework"
)

// scaffold files written by init --scaffold, relative to the project
// directory, for the svelte framework.
var scaffold = map[string]string{
	"src/App.svelte": `<script>
  export let component;
  export let props = {};
</script>

<svelte:component this={component} {...props} />
`,
	"src/routes/index.svelte": `<h1>Hello from ssrkit</h1>
<div data-island="Counter" data-client="visible" data-props='{"start":0}'></div>
`,
	"src/routes/posts/[id].svelte": `<script>
  export let id;
</script>

<h1>Post {id}</h1>
`,
	"frontend/components/islands/Counter.svelte": `<script>
  export let start = 0;
  let count = start;
</script>

<button on:click={() => count++}>{count}</button>
`,
}

func newInitCommand() *cobra.Command {
	var (
		force     bool
		withFiles bool
		fw        string
	)
	cmd := &cobra.Command{
		Use:     "init [dir]",
		Aliases: []string{"i"},
		Short:   "Write a starter .ssrkit.yml",
		Long: `Write a .ssrkit.yml enabling the islands, server and client capabilities
with their default directories. With --scaffold, also write a minimal svelte
app, two routes and one island.

Examples:
  ssrkit init
  ssrkit init my-app --scaffold
  ssrkit init --framework react`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := "."
			if len(args) == 1 {
				dir = args[0]
			}
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return fmt.Errorf("failed to create project directory: %w", err)
			}

			starter := config.Starter()
			if fw != "" {
				if reg := framework.NewRegistry(nil); !reg.Has(fw) {
					return fmt.Errorf("unknown framework %q (known: %s)", fw, strings.Join(reg.Tags(), ", "))
				}
				starter.Islands.Framework = fw
				starter.Server.Framework = fw
				starter.Client.Framework = fw
			}
			if err := config.Validate(starter); err != nil {
				return err
			}

			var buf bytes.Buffer
			enc := yaml.NewEncoder(&buf)
			enc.SetIndent(2)
			if err := enc.Encode(starter); err != nil {
				return err
			}
			if err := enc.Close(); err != nil {
				return err
			}

			target := filepath.Join(dir, config.DefaultFileName)
			if err := writeNew(target, buf.Bytes(), force); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", styleOK.Render("✔"), target)

			if withFiles {
				for rel, content := range scaffold {
					path := filepath.Join(dir, filepath.FromSlash(rel))
					if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
						return err
					}
					if err := writeNew(path, []byte(content), force); err != nil {
						return err
					}
					fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", styleOK.Render("✔"), path)
				}
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite existing files")
	cmd.Flags().BoolVar(&withFiles, "scaffold", false, "also write a minimal svelte project")
	cmd.Flags().StringVar(&fw, "framework", "", "framework tag for every capability (svelte, react, vue2, vue3, default)")
	return cmd
}

func writeNew(path string, content []byte, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%s already exists (use --force to overwrite)", path)
		}
	}
	return os.WriteFile(path, content, 0o644)
}

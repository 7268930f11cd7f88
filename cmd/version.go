package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/conneroisu/ssrkit/internal/version"
)

func newVersionCommand() *cobra.Command {
	var (
		format   string
		short    bool
		detailed bool
	)
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Long: `Display the ssrkit version, commit, Go version, platform and the esbuild
version the binary was built with.

Examples:
  ssrkit version
  ssrkit version --detailed
  ssrkit version --format json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			info := version.GetBuildInfo()
			out := cmd.OutOrStdout()
			switch format {
			case FormatJSON, FormatYAML:
				return writeStructured(out, format, info)
			case "text", FormatTable:
			default:
				return fmt.Errorf("unsupported format: %s (supported: text, json, yaml)", format)
			}

			switch {
			case short:
				fmt.Fprintln(out, info.Short())
			case detailed:
				fmt.Fprintln(out, info.Detailed())
			default:
				fmt.Fprintf(out, "ssrkit %s\n", info.Short())
				fmt.Fprintf(out, "Go: %s\nPlatform: %s\n", info.GoVersion, info.Platform)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "text", "output format (text, json, yaml)")
	cmd.Flags().BoolVar(&short, "short", false, "show the version only")
	cmd.Flags().BoolVar(&detailed, "detailed", false, "show every build detail")
	return cmd
}

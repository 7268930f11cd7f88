package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/pflag"
)

// Output formats.
const (
	FormatTable = "table"
	FormatJSON  = "json"
	FormatYAML  = "yaml"
)

var outputFormats = []string{FormatTable, FormatJSON, FormatYAML}

// outputFlags returns the --format flag shared by the reporting commands.
func outputFlags(format *string) *pflag.FlagSet {
	fs := pflag.NewFlagSet("output", pflag.ContinueOnError)
	fs.StringVarP(format, "format", "f", FormatTable, "output format ("+strings.Join(outputFormats, "|")+")")
	return fs
}

func validateFormat(format string) error {
	for _, f := range outputFormats {
		if format == f {
			return nil
		}
	}
	return fmt.Errorf("unsupported format %q (supported: %s)", format, strings.Join(outputFormats, ", "))
}

// parseParams turns repeated key=value flags into a params map.
func parseParams(pairs []string) (map[string]any, error) {
	params := make(map[string]any, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("param %q must be key=value", pair)
		}
		params[key] = value
	}
	return params, nil
}

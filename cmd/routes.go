package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/conneroisu/ssrkit/internal/routes"
	"github.com/conneroisu/ssrkit/internal/ssr"
)

var errNoRoutes = errors.New("neither the server nor the client capability is enabled")

// pipelineFor returns the server pipeline, or the client one when client is
// set or no server is configured.
func (a *app) pipelineFor(client bool) (*ssr.Pipeline, error) {
	switch {
	case client && a.composed.Client != nil:
		return a.composed.Client, nil
	case client:
		return nil, errors.New("the client capability is not enabled")
	case a.composed.Server != nil:
		return a.composed.Server, nil
	case a.composed.Client != nil:
		return a.composed.Client, nil
	}
	return nil, errNoRoutes
}

// compiledPipeline loads the configuration and runs build-start of one
// route-serving pipeline, without bundling.
func (c *cli) compiledPipeline(ctx context.Context, client bool) (*ssr.Pipeline, error) {
	a, err := c.newApp(ctx)
	if err != nil {
		return nil, err
	}
	p, err := a.pipelineFor(client)
	if err != nil {
		return nil, err
	}
	if err := p.BuildStart(ctx); err != nil {
		return nil, err
	}
	return p, nil
}

func (c *cli) newRoutesCommand() *cobra.Command {
	var (
		format string
		client bool
	)
	cmd := &cobra.Command{
		Use:     "routes",
		Aliases: []string{"r"},
		Short:   "Print the compiled route table",
		Long: `Compile the routes directory and print the route table in match order.
Exact routes are tried before dynamic ones; among dynamic routes the first in
table order wins.

Examples:
  ssrkit routes
  ssrkit routes --client
  ssrkit routes --format json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := validateFormat(format); err != nil {
				return err
			}
			p, err := c.compiledPipeline(cmd.Context(), client)
			if err != nil {
				return err
			}
			return writeRoutes(cmd.OutOrStdout(), format, p.Table())
		},
	}
	cmd.Flags().AddFlagSet(outputFlags(&format))
	cmd.Flags().BoolVar(&client, "client", false, "use the client route table")
	return cmd
}

func writeRoutes(w io.Writer, format string, table routes.Table) error {
	if format != FormatTable {
		if table == nil {
			table = routes.Table{}
		}
		return writeStructured(w, format, table)
	}
	rows := make([][]string, 0, len(table))
	for _, r := range table {
		kind := "exact"
		if !r.Exact {
			kind = "dynamic"
		}
		rows = append(rows, []string{"/" + r.Pattern, kind, strings.Join(r.Params(), ", "), r.Component})
	}
	fmt.Fprintln(w, renderTable([]string{"PATTERN", "KIND", "PARAMS", "COMPONENT"}, rows))
	fmt.Fprintln(w, styleDim.Render(fmt.Sprintf("%d routes", len(table))))
	return nil
}

func (c *cli) newResolveCommand() *cobra.Command {
	var (
		params []string
		client bool
	)
	cmd := &cobra.Command{
		Use:   "resolve <url>",
		Short: "Show which route a URL selects",
		Long: `Resolve a URL against the compiled route table and print the matched
route and the merged params: --param values first, then path params, then
the route's declared props for keys still unset.

Examples:
  ssrkit resolve /posts/7
  ssrkit resolve /posts/7 --param lang=en`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			extra, err := parseParams(params)
			if err != nil {
				return err
			}
			p, err := c.compiledPipeline(cmd.Context(), client)
			if err != nil {
				return err
			}
			m, err := p.Resolve(args[0], extra)
			if err != nil {
				return err
			}
			return writeStructured(cmd.OutOrStdout(), FormatJSON, map[string]any{
				"url":       args[0],
				"pattern":   "/" + m.Route.Pattern,
				"component": m.Component(),
				"file":      m.Route.File,
				"params":    m.Params,
			})
		},
	}
	cmd.Flags().StringArrayVarP(&params, "param", "p", nil, "extra param as key=value (repeatable)")
	cmd.Flags().BoolVar(&client, "client", false, "use the client route table")
	return cmd
}

package framework

import (
	"context"
	"fmt"
	"os"

	"github.com/evanw/esbuild/pkg/api"
)

type svelteAdapter struct {
	compiler Compiler
}

func (*svelteAdapter) Name() string      { return "svelte" }
func (*svelteAdapter) Extension() string { return ExtensionFor("svelte") }

func (*svelteAdapter) ServerEntry(app, routesID string) (string, error) {
	return renderEntry(serverEntryTemplate, entryData{App: app, Routes: routesID, CSS: "rendered.css.code"})
}

func (*svelteAdapter) ClientEntry(app, routesID string) (string, error) {
	return renderEntry(clientEntryTemplate, entryData{App: app, Routes: routesID})
}

func (*svelteAdapter) Island(componentFile string) (IslandCode, error) {
	imp, err := jsString(componentFile)
	if err != nil {
		return IslandCode{}, err
	}
	return IslandCode{
		Import: "import Component from " + imp + ";",
		Mount:  "new Component({ target: el, props: props, hydrate: true })",
	}, nil
}

func (*svelteAdapter) Loaders() map[string]api.Loader {
	return map[string]api.Loader{".svelte": api.LoaderJS}
}

// Plugins returns the esbuild plugin that compiles .svelte files through the
// configured compiler. Without a compiler the plugin reports an error on the
// first .svelte file it meets.
func (s *svelteAdapter) Plugins(target Target) []api.Plugin {
	compiler := s.compiler
	return []api.Plugin{{
		Name: "ssrkit-svelte-" + target.String(),
		Setup: func(build api.PluginBuild) {
			build.OnLoad(api.OnLoadOptions{Filter: `\.svelte$`}, func(args api.OnLoadArgs) (api.OnLoadResult, error) {
				if compiler == nil {
					return api.OnLoadResult{}, fmt.Errorf("no svelte compiler configured for %s", args.Path)
				}
				source, err := os.ReadFile(args.Path)
				if err != nil {
					return api.OnLoadResult{}, err
				}
				out, err := compiler.Compile(context.Background(), CompileRequest{
					Path:       args.Path,
					Source:     source,
					Target:     target,
					Hydratable: target == TargetBrowser,
				})
				if err != nil {
					return api.OnLoadResult{}, err
				}
				contents := string(out)
				return api.OnLoadResult{Contents: &contents, Loader: api.LoaderJS}, nil
			})
		},
	}}
}

//go:build property

package routes

import (
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// segmentGen yields lowercase path segments, some of them bracket params.
func segmentGen() gopter.Gen {
	return gen.OneGenOf(
		gen.OneConstOf("index", "about", "posts", "users", "docs", "new"),
		gen.OneConstOf("[id]", "[slug]", "[name]"),
	)
}

func relPathGen() gopter.Gen {
	return gen.SliceOfN(3, segmentGen()).Map(func(segs []string) string {
		depth := 1 + len(segs[0])%3
		return strings.Join(segs[:depth], "/") + ".svelte"
	})
}

func TestRouteTableProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.Rng.Seed(1234)
	parameters.MinSuccessfulTests = 200

	properties := gopter.NewProperties(parameters)

	properties.Property("table order equals enumeration order", prop.ForAll(
		func(rels []string) bool {
			files := make([]string, len(rels))
			for i, rel := range rels {
				files[i] = filepath.Join("/r", filepath.FromSlash(rel))
			}
			compiled, err := Compile("/r", files, ".svelte", Options{})
			if err != nil {
				return false
			}
			for i, r := range compiled.Table {
				if r.Component != rels[i] {
					return false
				}
			}
			return true
		},
		gen.SliceOf(relPathGen()),
	))

	properties.Property("compilation is reproducible", prop.ForAll(
		func(rels []string) bool {
			files := make([]string, len(rels))
			for i, rel := range rels {
				files[i] = filepath.Join("/r", filepath.FromSlash(rel))
			}
			a, errA := Compile("/r", files, ".svelte", Options{})
			b, errB := Compile("/r", files, ".svelte", Options{})
			return errA == nil && errB == nil && reflect.DeepEqual(a, b)
		},
		gen.SliceOf(relPathGen()),
	))

	properties.Property("exact iff no dynamic segment", prop.ForAll(
		func(rel string) bool {
			pattern := PatternFor(rel, ".svelte")
			compiled, err := Compile("/r", []string{"/r/" + rel}, ".svelte", Options{})
			if err != nil {
				return false
			}
			return compiled.Table[0].Exact == !strings.Contains(pattern, ":")
		},
		relPathGen(),
	))

	properties.Property("exact routes win regardless of position", prop.ForAll(
		func(literal string, before bool) bool {
			exact := Route{Pattern: "posts/" + literal, Exact: true, Component: "exact"}
			dynamic := Route{Pattern: "posts/:id", Component: "dynamic"}
			table := Table{exact, dynamic}
			if before {
				table = Table{dynamic, exact}
			}
			m, err := table.Resolve("/posts/"+literal, nil)
			return err == nil && m.Component() == "exact"
		},
		gen.Identifier(),
		gen.Bool(),
	))

	properties.Property("resolve is idempotent", prop.ForAll(
		func(id string) bool {
			table := Table{
				{Pattern: "", Exact: true, Component: "index"},
				{Pattern: "posts/:id", Component: "post", Props: map[string]any{"layout": "wide"}},
			}
			a, errA := table.Resolve("/posts/"+id, map[string]any{"q": id})
			b, errB := table.Resolve("/posts/"+id, map[string]any{"q": id})
			if errA != nil || errB != nil {
				return errA != nil && errB != nil
			}
			return reflect.DeepEqual(a, b) && a.Params["id"] == id
		},
		gen.Identifier(),
	))

	properties.TestingRun(t)
}

package framework

import (
	"github.com/evanw/esbuild/pkg/api"

	ssrerrors "github.com/conneroisu/ssrkit/internal/errors"
)

// reactAdapter can mount islands but has no server or client entry yet.
type reactAdapter struct{}

func (reactAdapter) Name() string      { return "react" }
func (reactAdapter) Extension() string { return ExtensionFor("react") }

func (reactAdapter) ServerEntry(string, string) (string, error) {
	return "", ssrerrors.ErrNotImplementedFor("react", "server")
}

func (reactAdapter) ClientEntry(string, string) (string, error) {
	return "", ssrerrors.ErrNotImplementedFor("react", "client")
}

func (reactAdapter) Island(componentFile string) (IslandCode, error) {
	imp, err := jsString(componentFile)
	if err != nil {
		return IslandCode{}, err
	}
	return IslandCode{
		Import: "import React from 'react';\nimport { hydrateRoot } from 'react-dom/client';\nimport Component from " + imp + ";",
		Mount:  "hydrateRoot(el, React.createElement(Component, props))",
	}, nil
}

func (reactAdapter) Plugins(Target) []api.Plugin { return nil }

func (reactAdapter) Loaders() map[string]api.Loader {
	return map[string]api.Loader{".jsx": api.LoaderJSX}
}

// vueAdapter covers vue2 and vue3 islands; entries are not implemented.
type vueAdapter struct {
	version string
}

func (v vueAdapter) Name() string      { return v.version }
func (v vueAdapter) Extension() string { return ExtensionFor(v.version) }

func (v vueAdapter) ServerEntry(string, string) (string, error) {
	return "", ssrerrors.ErrNotImplementedFor(v.version, "server")
}

func (v vueAdapter) ClientEntry(string, string) (string, error) {
	return "", ssrerrors.ErrNotImplementedFor(v.version, "client")
}

func (v vueAdapter) Island(componentFile string) (IslandCode, error) {
	imp, err := jsString(componentFile)
	if err != nil {
		return IslandCode{}, err
	}
	if v.version == "vue2" {
		return IslandCode{
			Import: "import Vue from 'vue';\nimport Component from " + imp + ";",
			Mount:  "new Vue({ render: h => h(Component, { props }) }).$mount(el)",
		}, nil
	}
	return IslandCode{
		Import: "import { createSSRApp } from 'vue';\nimport Component from " + imp + ";",
		Mount:  "createSSRApp(Component, props).mount(el)",
	}, nil
}

func (vueAdapter) Plugins(Target) []api.Plugin    { return nil }
func (vueAdapter) Loaders() map[string]api.Loader { return nil }

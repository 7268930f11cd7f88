package framework

import (
	"bytes"
	"encoding/json"
	"fmt"
	"text/template"

	"github.com/evanw/esbuild/pkg/api"
)

type entryData struct {
	App    string
	Routes string
	// CSS is the expression reading css text off the render result.
	CSS string
}

var serverEntryTemplate = template.Must(template.New("server").Funcs(template.FuncMap{"lit": jsString}).Parse(`import App from {{lit .App}};
import { getRouteComponent } from {{lit .Routes}};

export function render(props) {
  const { url, params, islands } = JSON.parse(props);

  const { component, componentProps } = getRouteComponent(url, params);

  const rendered = App.render({
    url,
    component,
    props: componentProps,
    islands
  });

  return JSON.stringify({
    html: rendered.html,
    css: {{.CSS}},
    head: rendered.head
  });
}
`))

var clientEntryTemplate = template.Must(template.New("client").Funcs(template.FuncMap{"lit": jsString}).Parse(`import App from {{lit .App}};
import { getRouteComponent } from {{lit .Routes}};

function hydrate() {
  const { url, params } = JSON.parse(document.getElementById('__SSRKIT_DATA__').textContent);

  const { component, componentProps } = getRouteComponent(url, params);

  new App({
    target: document.body,
    hydrate: true,
    props: {
      url,
      component,
      props: componentProps
    }
  });
}

hydrate();
`))

func renderEntry(tmpl *template.Template, data entryData) (string, error) {
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("generating %s entry: %w", tmpl.Name(), err)
	}
	return buf.String(), nil
}

func jsString(s string) (string, error) {
	b, err := json.Marshal(s)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// defaultAdapter is used for components that expose a render function on
// the server and a constructor on the client, without any compile step.
type defaultAdapter struct{}

func (defaultAdapter) Name() string      { return DefaultTag }
func (defaultAdapter) Extension() string { return ExtensionFor(DefaultTag) }

func (defaultAdapter) ServerEntry(app, routesID string) (string, error) {
	return renderEntry(serverEntryTemplate, entryData{App: app, Routes: routesID, CSS: "rendered.css"})
}

func (defaultAdapter) ClientEntry(app, routesID string) (string, error) {
	return renderEntry(clientEntryTemplate, entryData{App: app, Routes: routesID})
}

func (defaultAdapter) Island(componentFile string) (IslandCode, error) {
	imp, err := jsString(componentFile)
	if err != nil {
		return IslandCode{}, err
	}
	return IslandCode{
		Import: "import Component from " + imp + ";",
		Mount:  "typeof Component === 'function' ? Component(el, props) : console.error('invalid island component')",
	}, nil
}

func (defaultAdapter) Plugins(Target) []api.Plugin    { return nil }
func (defaultAdapter) Loaders() map[string]api.Loader { return nil }

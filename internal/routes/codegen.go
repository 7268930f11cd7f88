package routes

import (
	"bytes"
	"encoding/json"
	"fmt"
	"text/template"
)

var moduleTemplate = template.Must(template.New("routes").Funcs(template.FuncMap{
	"lit":  jsLiteral,
	"json": jsonLiteral,
}).Parse(`{{range $i, $r := .Routes}}import Component{{$i}} from {{lit (printf "%s%s" $.Prefix $r.Component)}};
{{end}}
export const routes = [
{{- range $i, $r := .Routes}}
  { path: {{lit $r.Pattern}}, component: Component{{$i}}, file: {{lit $r.Component}}{{if $r.Exact}}, exact: true{{end}}{{if $r.Props}}, props: JSON.parse({{json $r.Props}}){{end}} },
{{- end}}
];

export function getRouteComponent(url, params) {
  const cleanUrl = url.replace(/^\//, '');

  let route = routes.find(r => r.exact && r.path === cleanUrl);
  const pathParams = Object.create(null);

  if (!route) {
    const urlParts = cleanUrl.split('/');
    route = routes.find(r => {
      if (r.exact) return false;
      const routeParts = r.path.split('/');
      if (routeParts.length !== urlParts.length) return false;
      return routeParts.every((part, i) => part.startsWith(':') || part === urlParts[i]);
    });
    if (route) {
      route.path.split('/').forEach((part, i) => {
        if (part.startsWith(':')) pathParams[part.slice(1)] = urlParts[i];
      });
    }
  }

  if (!route && (cleanUrl === '' || cleanUrl === 'index')) {
    route = routes.find(r => r.path === '' || r.path === 'index');
  }

  if (!route) {
    const error = new Error('no route matches "' + url + '"');
    error.code = 'ERR_ROUTE_NOT_FOUND';
    error.url = url;
    throw error;
  }

  const componentProps = { ...(params || {}), ...pathParams };
  for (const [key, value] of Object.entries(route.props || {})) {
    if (!Object.prototype.hasOwnProperty.call(componentProps, key)) {
      Object.defineProperty(componentProps, key, { value, enumerable: true, writable: true, configurable: true });
    }
  }

  return {
    component: route.component,
    componentProps
  };
}

export const resolve = getRouteComponent;
`))

func generateModule(table Table, prefix string) (string, error) {
	var buf bytes.Buffer
	data := struct {
		Routes Table
		Prefix string
	}{table, prefix}

	if err := moduleTemplate.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("generating routes module: %w", err)
	}
	return buf.String(), nil
}

// jsLiteral renders v as a JavaScript literal. JSON is a subset of JS
// expression syntax, and json.Marshal escapes <, > and & so the output is
// safe to inline.
func jsLiteral(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// jsonLiteral renders v as a JavaScript string holding its JSON encoding.
// Parsed at runtime, keys such as __proto__ stay own properties.
func jsonLiteral(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return jsLiteral(string(b))
}

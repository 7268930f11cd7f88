package routes

import "strings"

// Resolve matches url against the table. First match wins, in this order:
//
//  1. exact routes whose pattern equals the url without its leading slash;
//  2. dynamic routes, in table order, with the same segment count and every
//     static segment equal;
//  3. for "" and "index", the route registered as "" or "index".
//
// On a miss it returns a *NotFoundError carrying url unchanged.
//
// Params are built from extra, then the path-extracted segments, then the
// route's declared props for keys still absent. Resolve does not modify
// extra or the table.
func (t Table) Resolve(url string, extra map[string]any) (*Match, error) {
	clean := strings.TrimPrefix(url, "/")

	for _, r := range t {
		if r.Exact && r.Pattern == clean {
			return newMatch(r, nil, extra), nil
		}
	}

	urlParts := strings.Split(clean, "/")
	for _, r := range t {
		if r.Exact {
			continue
		}
		if pathParams, ok := matchSegments(r.Segments(), urlParts); ok {
			return newMatch(r, pathParams, extra), nil
		}
	}

	if clean == "" || clean == "index" {
		for _, r := range t {
			if r.Pattern == "" || r.Pattern == "index" {
				return newMatch(r, nil, extra), nil
			}
		}
	}

	return nil, &NotFoundError{URL: url}
}

func matchSegments(pattern, url []string) (map[string]string, bool) {
	if len(pattern) != len(url) {
		return nil, false
	}

	params := make(map[string]string)
	for i, part := range pattern {
		if isDynamic(part) {
			params[part[1:]] = url[i]
			continue
		}
		if part != url[i] {
			return nil, false
		}
	}
	return params, true
}

func newMatch(r Route, pathParams map[string]string, extra map[string]any) *Match {
	params := make(map[string]any, len(extra)+len(pathParams)+len(r.Props))
	for k, v := range extra {
		params[k] = v
	}
	for k, v := range pathParams {
		params[k] = v
	}
	for k, v := range r.Props {
		if _, exists := params[k]; !exists {
			params[k] = v
		}
	}
	return &Match{Route: r, Params: params}
}

// Package routes compiles a directory of page components into an ordered
// route table and resolves request URLs against it.
//
// The directory tree mirrors the URL structure: index.<ext> maps to the root
// of its directory and [name].<ext> becomes the dynamic segment :name. The
// table keeps the file enumeration order, and matching is first-match in
// table order after exact routes, so that order is part of the contract for
// overlapping patterns.
//
// Compile also emits the ES module the host bundler loads as the routes
// virtual module. The generated getRouteComponent implements the same
// algorithm as Table.Resolve so that server render, client hydrate and Go
// callers all agree on which route a URL selects.
package routes

import (
	"fmt"
	"strings"

	ssrerrors "github.com/conneroisu/ssrkit/internal/errors"
)

// Route is one compiled entry of the route table.
type Route struct {
	// Pattern uses :name for dynamic segments and never has a leading or
	// trailing slash. The routes-root index compiles to "".
	Pattern string `json:"path" yaml:"path"`
	// Exact is true iff Pattern has no dynamic segment.
	Exact bool `json:"exact" yaml:"exact"`
	// Component is the import path of the page component, relative to the
	// routes directory and always slash separated.
	Component string `json:"component" yaml:"component"`
	// File is the source file the route was compiled from.
	File string `json:"file" yaml:"file"`
	// Props are statically declared props. They only fill keys the
	// request params do not define.
	Props map[string]any `json:"props,omitempty" yaml:"props,omitempty"`
}

// Segments splits the pattern on "/".
func (r Route) Segments() []string {
	return strings.Split(r.Pattern, "/")
}

// Params lists the names of the dynamic segments, in order.
func (r Route) Params() []string {
	var names []string
	for _, seg := range r.Segments() {
		if isDynamic(seg) {
			names = append(names, seg[1:])
		}
	}
	return names
}

// Table is an ordered route table. It is built once per build-start and never
// mutated afterwards.
type Table []Route

// Patterns returns the route patterns in table order.
func (t Table) Patterns() []string {
	patterns := make([]string, len(t))
	for i, r := range t {
		patterns[i] = r.Pattern
	}
	return patterns
}

// Match is the result of a successful resolve.
type Match struct {
	Route  Route
	Params map[string]any
}

// Component returns the matched component handle.
func (m *Match) Component() string {
	return m.Route.Component
}

// NotFoundError is returned when no route matches a URL. URL is the URL as
// the caller supplied it, before normalization.
type NotFoundError struct {
	URL string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("no route matches %q", e.URL)
}

// Is makes every NotFoundError match ErrNotFound.
func (e *NotFoundError) Is(target error) bool {
	_, ok := target.(*NotFoundError)
	return ok
}

// Unwrap exposes the shared route-not-found error so callers that only know
// the errors package can still classify the failure.
func (e *NotFoundError) Unwrap() error {
	return ssrerrors.ErrRouteNotFound
}

// ErrNotFound matches any NotFoundError via errors.Is.
var ErrNotFound = &NotFoundError{}

func isDynamic(segment string) bool {
	return strings.HasPrefix(segment, ":")
}

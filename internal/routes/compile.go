package routes

import (
	"fmt"
	"io/fs"
	"path/filepath"
	"regexp"
	"strings"
)

// Walker enumerates the files under dir that end in ext, depth first.
type Walker func(dir, ext string) ([]string, error)

// Walk is the default Walker. Entries within a directory are visited in
// lexical order, so repeated walks of an unchanged tree return the same
// list. Errors from the filesystem are returned as is.
func Walk(dir, ext string) ([]string, error) {
	var files []string

	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if strings.HasSuffix(path, ext) {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return files, nil
}

// Options tune compilation.
type Options struct {
	// ImportPrefix is prepended to each component path in the generated
	// imports. Defaults to "/routes/", which the server and client
	// pipelines alias to the routes directory.
	ImportPrefix string
	// Props declares static props per route pattern.
	Props map[string]map[string]any
}

// Compiled is the output of one compilation.
type Compiled struct {
	Table  Table
	Source string
}

var bracketParam = regexp.MustCompile(`\[([^\]]+)\]`)

// Compile turns a file list into a route table and the generated routes
// module. It performs no I/O; files must live under dir.
func Compile(dir string, files []string, ext string, opts Options) (*Compiled, error) {
	table := make(Table, 0, len(files))

	for _, file := range files {
		rel, err := filepath.Rel(dir, file)
		if err != nil {
			return nil, fmt.Errorf("route %s: %w", file, err)
		}
		rel = filepath.ToSlash(rel)
		if strings.HasPrefix(rel, "../") {
			return nil, fmt.Errorf("route %s is outside %s", file, dir)
		}

		pattern := PatternFor(rel, ext)
		route := Route{
			Pattern:   pattern,
			Exact:     !hasDynamicSegment(pattern),
			Component: rel,
			File:      file,
		}
		if props, ok := declaredProps(opts.Props, pattern); ok {
			route.Props = props
		}
		table = append(table, route)
	}

	source, err := generateModule(table, opts.importPrefix())
	if err != nil {
		return nil, err
	}

	return &Compiled{Table: table, Source: source}, nil
}

// declaredProps looks props up by pattern. Config loaders such as viper
// lowercase map keys, so a case-insensitive match is accepted when no key
// matches exactly.
func declaredProps(props map[string]map[string]any, pattern string) (map[string]any, bool) {
	if p, ok := props[pattern]; ok {
		return p, true
	}
	for key, p := range props {
		if strings.EqualFold(key, pattern) {
			return p, true
		}
	}
	return nil, false
}

// Build walks dir with walker and compiles the result. Walker errors abort
// the build and are returned unmodified.
func Build(dir, ext string, walker Walker, opts Options) (*Compiled, error) {
	if walker == nil {
		walker = Walk
	}
	files, err := walker(dir, ext)
	if err != nil {
		return nil, err
	}
	return Compile(dir, files, ext, opts)
}

// PatternFor maps a slash-separated path relative to the routes directory
// onto its URL pattern.
func PatternFor(rel, ext string) string {
	pattern := strings.TrimSuffix(rel, ext)
	if pattern == "index" {
		return ""
	}

	pattern = bracketParam.ReplaceAllString(pattern, ":$1")
	pattern = strings.TrimSuffix(pattern, "/index")
	return strings.TrimSuffix(pattern, "/")
}

func hasDynamicSegment(pattern string) bool {
	for _, seg := range strings.Split(pattern, "/") {
		if isDynamic(seg) {
			return true
		}
	}
	return false
}

func (o Options) importPrefix() string {
	if o.ImportPrefix == "" {
		return "/routes/"
	}
	if !strings.HasSuffix(o.ImportPrefix, "/") {
		return o.ImportPrefix + "/"
	}
	return o.ImportPrefix
}

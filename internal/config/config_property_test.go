//go:build property
// +build property

package config

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func TestPathValidationProperties(t *testing.T) {
	properties := gopter.NewProperties(nil)

	segment := gen.RegexMatch(`[a-z][a-z0-9_-]{0,8}`)

	properties.Property("relative paths of plain segments are accepted", prop.ForAll(
		func(parts []string) bool {
			if len(parts) == 0 {
				return true
			}
			return validatePath("./"+strings.Join(parts, "/")) == nil
		},
		gen.SliceOf(segment),
	))

	properties.Property("escaping the project is rejected", prop.ForAll(
		func(parts []string) bool {
			path := filepath.Join(append([]string{".."}, parts...)...)
			return validatePath(path) != nil
		},
		gen.SliceOf(segment),
	))

	properties.Property("shell metacharacters are rejected", prop.ForAll(
		func(prefix string, i int) bool {
			c := string(dangerousChars[i%len(dangerousChars)])
			return validatePath("./"+prefix+c) != nil
		},
		segment, gen.IntRange(0, 100),
	))

	properties.TestingRun(t)
}

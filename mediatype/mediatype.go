// Package mediatype maps request paths to media types by file extension and
// groups those media types into the content classes used in cache URL paths.
package mediatype

import (
	_ "embed"
	"fmt"
	"maps"
	"mime"
	"strings"
	"sync"

	"go.yaml.in/yaml/v2"
)

//go:embed types.yaml
var builtinTypes []byte

// Lookup resolves the media type of a path from its file extension.
// It reports false when the extension is missing or unknown.
type Lookup interface {
	TypeByPath(p string) (string, bool)
}

// LookupFunc adapts a plain function to the Lookup interface.
type LookupFunc func(p string) (string, bool)

// TypeByPath calls f(p).
func (f LookupFunc) TypeByPath(p string) (string, bool) {
	return f(p)
}

// Table is an immutable extension to media type table.
type Table struct {
	types map[string]string
}

var defaultTable = sync.OnceValue(func() *Table {
	t, err := NewTable(nil)
	if err != nil {
		panic(fmt.Sprintf("mediatype: builtin table: %v", err))
	}
	return t
})

// Default returns the shared builtin table.
func Default() *Table {
	return defaultTable()
}

// NewTable returns the builtin table merged with overrides, which map an
// extension (with or without the leading dot) to a media type. Overrides
// replace builtin entries for the same extension.
func NewTable(overrides map[string]string) (*Table, error) {
	types, err := parseTypes(builtinTypes)
	if err != nil {
		return nil, err
	}

	for ext, mediaType := range overrides {
		key := normalizeExtension(ext)
		if key == "" {
			return nil, fmt.Errorf("override %q: extension cannot be empty", ext)
		}
		if _, _, err := mime.ParseMediaType(mediaType); err != nil {
			return nil, fmt.Errorf("override %q: invalid media type %q: %w", ext, mediaType, err)
		}
		types[key] = strings.ToLower(mediaType)
	}

	return &Table{types: types}, nil
}

// parseTypes decodes the media type -> extensions document into an
// extension -> media type map.
func parseTypes(data []byte) (map[string]string, error) {
	var byType map[string][]string
	if err := yaml.Unmarshal(data, &byType); err != nil {
		return nil, fmt.Errorf("failed to parse media types: %w", err)
	}

	types := make(map[string]string)
	for mediaType, exts := range byType {
		for _, ext := range exts {
			key := normalizeExtension(ext)
			if prev, ok := types[key]; ok {
				return nil, fmt.Errorf("extension %q mapped to both %s and %s", key, prev, mediaType)
			}
			types[key] = mediaType
		}
	}
	return types, nil
}

// TypeByPath returns the media type for the extension of p.
func (t *Table) TypeByPath(p string) (string, bool) {
	return t.TypeByExtension(Extension(p))
}

// TypeByExtension returns the media type registered for ext.
func (t *Table) TypeByExtension(ext string) (string, bool) {
	key := normalizeExtension(ext)
	if key == "" {
		return "", false
	}
	mediaType, ok := t.types[key]
	return mediaType, ok
}

// Len returns the number of known extensions.
func (t *Table) Len() int {
	return len(t.types)
}

// Types returns a copy of the extension -> media type map.
func (t *Table) Types() map[string]string {
	return maps.Clone(t.types)
}

// Extension returns the lowercased extension of the last path element,
// without the dot. Trailing slashes are ignored; dotfiles such as
// "/.htaccess" and names ending in a dot have no extension.
func Extension(p string) string {
	p = strings.TrimRight(p, "/")
	base := p[strings.LastIndexByte(p, '/')+1:]

	i := strings.LastIndexByte(base, '.')
	if i <= 0 || i == len(base)-1 {
		return ""
	}
	if strings.TrimLeft(base[:i], ".") == "" {
		return ""
	}
	return strings.ToLower(base[i+1:])
}

func normalizeExtension(ext string) string {
	return strings.ToLower(strings.TrimPrefix(strings.TrimSpace(ext), "."))
}

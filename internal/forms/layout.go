// Package forms maps relational records onto the literal field names of
// fixed-layout document templates. Field names and signature placement are
// versioned configuration embedded from layouts/*.yaml; the mapping rules in
// this package are pure and perform no I/O.
package forms

import (
	"embed"
	"fmt"
	"path"
	"sort"

	"gopkg.in/yaml.v3"
)

//go:embed layouts/*.yaml
var layoutFS embed.FS

// Layout describes one template revision.
type Layout struct {
	DocumentType string            `yaml:"document_type"`
	Version      string            `yaml:"version"`
	Template     string            `yaml:"template"`
	FilePrefix   string            `yaml:"file_prefix"`
	Fields       map[string]string `yaml:"fields"`
	RoleTitles   map[string]string `yaml:"role_titles"`
	DefaultTitle string            `yaml:"default_title"`
	Signature    SignatureLayout   `yaml:"signature"`
}

// SignatureLayout locates the signature. Field, when set, is tried first;
// otherwise the image is stamped with its lower-left corner at (X, Y) on
// the 1-based Page, scaled to fit Width x Height points.
type SignatureLayout struct {
	Field    string  `yaml:"field"`
	Required bool    `yaml:"required"`
	Page     int     `yaml:"page"`
	X        float64 `yaml:"x"`
	Y        float64 `yaml:"y"`
	Width    float64 `yaml:"width"`
	Height   float64 `yaml:"height"`
}

// Field returns the literal template field name for a logical key.
func (l *Layout) Field(key string) (string, bool) {
	name, ok := l.Fields[key]
	return name, ok && name != ""
}

// LoadLayouts parses every embedded layout, keyed by document type.
func LoadLayouts() (map[string]*Layout, error) {
	entries, err := layoutFS.ReadDir("layouts")
	if err != nil {
		return nil, fmt.Errorf("read layouts: %w", err)
	}
	out := make(map[string]*Layout, len(entries))
	for _, e := range entries {
		raw, err := layoutFS.ReadFile(path.Join("layouts", e.Name()))
		if err != nil {
			return nil, fmt.Errorf("read layout %s: %w", e.Name(), err)
		}
		var l Layout
		if err := yaml.Unmarshal(raw, &l); err != nil {
			return nil, fmt.Errorf("parse layout %s: %w", e.Name(), err)
		}
		if err := l.validate(); err != nil {
			return nil, fmt.Errorf("layout %s: %w", e.Name(), err)
		}
		if _, dup := out[l.DocumentType]; dup {
			return nil, fmt.Errorf("layout %s: duplicate document type %q", e.Name(), l.DocumentType)
		}
		out[l.DocumentType] = &l
	}
	return out, nil
}

func (l *Layout) validate() error {
	switch {
	case l.DocumentType == "":
		return fmt.Errorf("document_type is required")
	case l.Template == "":
		return fmt.Errorf("template is required")
	case l.FilePrefix == "":
		return fmt.Errorf("file_prefix is required")
	case l.Signature.Page < 1:
		return fmt.Errorf("signature.page must be >= 1")
	case l.Signature.Width <= 0 || l.Signature.Height <= 0:
		return fmt.Errorf("signature width and height must be positive")
	}
	return nil
}

// DocumentTypes lists the document types with a layout, sorted.
func DocumentTypes(layouts map[string]*Layout) []string {
	out := make([]string, 0, len(layouts))
	for k := range layouts {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

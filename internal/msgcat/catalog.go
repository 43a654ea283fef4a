// Package msgcat holds the user-facing texts sent in error and info messages.
package msgcat

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sort"
	"strings"
	"text/template"

	yaml "gopkg.in/yaml.v3"
)

//go:embed messages.en.yaml
var defaults embed.FS

// Catalog maps dotted keys ("error.wait_black") to compiled templates.
// It is immutable after New and safe for concurrent use.
type Catalog struct {
	tpls map[string]*template.Template
}

// New loads the embedded English texts, then every *.yaml / *.yml file in
// overrideDir (if set) in name order. A key defined by two override files is an error.
func New(overrideDir string) (*Catalog, error) {
	texts, err := loadFile(defaults, "messages.en.yaml")
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(overrideDir) != "" {
		over, err := loadOverrides(os.DirFS(overrideDir))
		if err != nil {
			return nil, fmt.Errorf("messages dir %s: %w", overrideDir, err)
		}
		for k, v := range over {
			texts[k] = v
		}
	}

	c := &Catalog{tpls: make(map[string]*template.Template, len(texts))}
	for k, v := range texts {
		if strings.TrimSpace(v) == "" {
			continue
		}
		t, err := template.New(k).Option("missingkey=error").Parse(v)
		if err != nil {
			return nil, fmt.Errorf("message %s: %w", k, err)
		}
		c.tpls[k] = t
	}
	return c, nil
}

func loadOverrides(fsys fs.FS) (map[string]string, error) {
	var names []string
	for _, pattern := range []string{"*.yaml", "*.yml"} {
		m, err := fs.Glob(fsys, pattern)
		if err != nil {
			return nil, err
		}
		names = append(names, m...)
	}
	sort.Strings(names)

	out := make(map[string]string)
	owner := make(map[string]string)
	for _, name := range names {
		texts, err := loadFile(fsys, name)
		if err != nil {
			return nil, err
		}
		for k, v := range texts {
			if prev, dup := owner[k]; dup {
				return nil, fmt.Errorf("key %q defined in both %s and %s", k, prev, name)
			}
			owner[k] = name
			out[k] = v
		}
	}
	return out, nil
}

func loadFile(fsys fs.FS, name string) (map[string]string, error) {
	raw, err := fs.ReadFile(fsys, name)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", name, err)
	}
	var doc map[string]any
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parse %s: %w", name, err)
	}
	out := make(map[string]string)
	if err := flatten("", doc, out); err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return out, nil
}

// flatten turns nested maps into dotted keys. Leaves must be strings.
func flatten(prefix string, node any, out map[string]string) error {
	switch v := node.(type) {
	case nil:
		return nil
	case string:
		if prefix == "" {
			return errors.New("text without a key")
		}
		out[prefix] = v
		return nil
	case map[string]any:
		for k, child := range v {
			if err := flatten(join(prefix, k), child, out); err != nil {
				return err
			}
		}
		return nil
	default:
		return fmt.Errorf("%s: want text or mapping, got %T", prefix, v)
	}
}

func join(prefix, key string) string {
	if prefix == "" {
		return key
	}
	return prefix + "." + key
}

// Render executes the template for key. Unknown keys and missing fields are errors.
func (c *Catalog) Render(key string, data any) (string, error) {
	t, ok := c.tpls[strings.TrimSpace(key)]
	if !ok {
		return "", fmt.Errorf("no message for %q", key)
	}
	var b strings.Builder
	if err := t.Execute(&b, data); err != nil {
		return "", err
	}
	return b.String(), nil
}

// Text is Render that never fails: it answers the key itself instead of an error
// so outbound messages always carry some text.
func (c *Catalog) Text(key string, data any) string {
	if c == nil {
		return key
	}
	out, err := c.Render(key, data)
	if err != nil || strings.TrimSpace(out) == "" {
		return key
	}
	return out
}

// Keys lists the loaded keys in order.
func (c *Catalog) Keys() []string {
	keys := make([]string, 0, len(c.tpls))
	for k := range c.tpls {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

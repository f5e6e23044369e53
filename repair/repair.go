// Package repair holds the text substitutions that make known malformed
// registered manifests parseable. Repairs are data, not parser logic: a
// versioned table keyed by provider name, embedded and optionally extended by
// a user file.
package repair

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed known.yaml
var known []byte

// Replace substitutes every occurrence of Old with New.
type Replace struct {
	Old string `yaml:"old"`
	New string `yaml:"new"`
}

// Entry lists the substitutions of one provider, applied in order.
type Entry struct {
	Provider string    `yaml:"provider"`
	Replace  []Replace `yaml:"replace"`
}

type Table struct {
	Version int     `yaml:"version"`
	Entries []Entry `yaml:"entries"`
}

// Default returns the embedded table.
func Default() *Table {
	t, err := parse(known)
	if err != nil {
		panic(fmt.Sprintf("repair: embedded table: %s", err))
	}
	return t
}

// Load reads a table from a YAML file.
func Load(path string) (*Table, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	t, err := parse(b)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return t, nil
}

func parse(b []byte) (*Table, error) {
	var t Table
	if err := yaml.Unmarshal(b, &t); err != nil {
		return nil, err
	}
	for i, e := range t.Entries {
		if e.Provider == "" {
			return nil, fmt.Errorf("entry #%d has no provider", i)
		}
		for _, r := range e.Replace {
			if r.Old == "" {
				return nil, fmt.Errorf("entry %s: empty replace pattern", e.Provider)
			}
		}
	}
	return &t, nil
}

// Merge appends the entries of o. The resulting version is the highest of
// both; substitutions of a provider present in both run t's first.
func (t *Table) Merge(o *Table) {
	if o == nil {
		return
	}
	if o.Version > t.Version {
		t.Version = o.Version
	}
	t.Entries = append(t.Entries, o.Entries...)
}

// Has reports whether the table carries repairs for provider.
func (t *Table) Has(provider string) bool {
	for _, e := range t.Entries {
		if e.Provider == provider {
			return true
		}
	}
	return false
}

// Apply runs the substitutions registered for provider over xml. The boolean
// reports whether the text changed.
func (t *Table) Apply(provider, xml string) (string, bool) {
	out := xml
	for _, e := range t.Entries {
		if e.Provider != provider {
			continue
		}
		for _, r := range e.Replace {
			out = strings.ReplaceAll(out, r.Old, r.New)
		}
	}
	return out, out != xml
}

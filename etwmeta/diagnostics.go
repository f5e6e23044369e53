package etwmeta

import (
	"log/slog"
	"sync"
)

// Component names reported in diagnostics.
const (
	CompStringTable = "stringTable"
	CompKeyword     = "keyword"
	CompEvent       = "event"
	CompTask        = "task"
	CompTemplate    = "template"
	CompMetaClass   = "metaclass"
	CompMessage     = "message"
)

// Diagnostic describes one item that was skipped or degraded while building a
// model. Parsing continues after a diagnostic.
type Diagnostic struct {
	Provider  string
	Component string
	Reason    string
	Item      string
}

// Diagnostics receives skip records.
type Diagnostics interface {
	Skip(d Diagnostic)
}

// DiagnosticsFunc adapts a function to Diagnostics.
type DiagnosticsFunc func(Diagnostic)

func (f DiagnosticsFunc) Skip(d Diagnostic) { f(d) }

// Collector stores diagnostics, safe for concurrent use.
type Collector struct {
	mu    sync.Mutex
	items []Diagnostic
}

func (c *Collector) Skip(d Diagnostic) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = append(c.items, d)
}

// Items returns a copy of the collected diagnostics.
func (c *Collector) Items() []Diagnostic {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Diagnostic, len(c.items))
	copy(out, c.items)
	return out
}

// Count returns how many diagnostics have the given component, all of them
// when component is empty.
func (c *Collector) Count(component string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if component == "" {
		return len(c.items)
	}
	n := 0
	for _, d := range c.items {
		if d.Component == component {
			n++
		}
	}
	return n
}

type traceDiagnostics struct{}

func (traceDiagnostics) Skip(d Diagnostic) {
	LogTrace("skipped metadata item",
		slog.String("provider", d.Provider),
		slog.String("component", d.Component),
		slog.String("reason", d.Reason),
		slog.String("item", d.Item))
}

type options struct {
	diag      Diagnostics
	directory ProviderDirectory
}

// Option configures ParseManifest and ParseLegacy.
type Option func(*options)

// WithDiagnostics sets the sink for skipped items. Without it they are logged
// at trace level.
func WithDiagnostics(d Diagnostics) Option {
	return func(o *options) {
		if d != nil {
			o.diag = d
		}
	}
}

// WithProviderDirectory sets where ParseLegacy gets provider names and
// keywords from.
func WithProviderDirectory(dir ProviderDirectory) Option {
	return func(o *options) {
		o.directory = dir
	}
}

func newOptions(opts []Option) *options {
	o := &options{diag: traceDiagnostics{}}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

func (o *options) skip(provider, component, reason, item string) {
	o.diag.Skip(Diagnostic{Provider: provider, Component: component, Reason: reason, Item: item})
}

package evtmeta

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// ErrHelperUnavailable is returned by Fetch when the helper binary cannot be
// found and the cache has no entry for the provider.
var ErrHelperUnavailable = errors.New("evtmeta: helper binary not available")

// DefaultArgs are the helper arguments: dump the event metadata of provider
// {name} into file {out}.
var DefaultArgs = []string{"/meta", "/eventmeta", "/name", "{name}", "/out", "{out}"}

const DefaultTimeout = 30 * time.Second

// Fetcher runs the helper once per provider and caches its raw output.
type Fetcher struct {
	Command string
	Args    []string
	Timeout time.Duration
	// Cache is optional.
	Cache Cache

	once    sync.Once
	path    string
	missing bool
}

func NewFetcher(command string, cache Cache) *Fetcher {
	return &Fetcher{
		Command: command,
		Args:    DefaultArgs,
		Timeout: DefaultTimeout,
		Cache:   cache,
	}
}

// Available reports whether the helper binary can be run. The first negative
// answer is logged; enrichment is then limited to cached entries.
func (f *Fetcher) Available() bool {
	f.once.Do(func() {
		path, err := exec.LookPath(f.Command)
		if err != nil {
			f.missing = true
			slog.Warn("evtmeta: helper is missing, event log channel and message data will be incomplete",
				"command", f.Command, "error", err)
			return
		}
		f.path = path
	})
	return !f.missing
}

// Fetch returns the event metadata of provider, from the cache when present.
func (f *Fetcher) Fetch(ctx context.Context, provider string) (*ProviderMeta, error) {
	if f.Cache != nil {
		raw, ok, err := f.Cache.Get(ctx, provider)
		if err != nil {
			slog.Warn("evtmeta: cache read failed", "provider", provider, "error", err)
		} else if ok {
			return Parse(provider, raw)
		}
	}

	if !f.Available() {
		return nil, ErrHelperUnavailable
	}

	raw, err := f.run(ctx, provider)
	if err != nil {
		return nil, err
	}

	if f.Cache != nil {
		if err := f.Cache.Put(ctx, provider, raw); err != nil {
			slog.Warn("evtmeta: cache write failed", "provider", provider, "error", err)
		}
	}
	return Parse(provider, raw)
}

func (f *Fetcher) run(ctx context.Context, provider string) ([]byte, error) {
	tmp, err := os.MkdirTemp("", "evtmeta")
	if err != nil {
		return nil, err
	}
	defer os.RemoveAll(tmp)
	out := filepath.Join(tmp, "meta.xml")

	timeout := f.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	r := strings.NewReplacer("{name}", provider, "{out}", out)
	args := make([]string, len(f.Args))
	for i, a := range f.Args {
		args[i] = r.Replace(a)
	}

	if output, err := exec.CommandContext(ctx, f.path, args...).CombinedOutput(); err != nil {
		if cerr := ctx.Err(); cerr != nil {
			err = fmt.Errorf("%w: %w", cerr, err)
		}
		return nil, fmt.Errorf("evtmeta: helper for %s: %w (output: %s)", provider, err, strings.TrimSpace(string(output)))
	}
	return os.ReadFile(out)
}

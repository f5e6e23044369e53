// Package dump runs the provider loop: for every registered provider it
// builds the manifest model and the legacy model, whichever exist, and writes
// their reports.
package dump

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/phuslu/log"
	"github.com/tekert/golang-etwmeta/etwmeta"
	"github.com/tekert/golang-etwmeta/evtmeta"
	"github.com/tekert/golang-etwmeta/internal/metrics"
	"github.com/tekert/golang-etwmeta/logsampler/adapters/phusluadapter"
	"github.com/tekert/golang-etwmeta/registry"
	"github.com/tekert/golang-etwmeta/repair"
	"github.com/tekert/golang-etwmeta/report"
)

// Source lists providers and gives their manifest text. *registry.Snapshot
// implements it.
type Source interface {
	Providers() []registry.Provider
	Manifest(p registry.Provider) (string, error)
	etwmeta.ProviderDirectory
}

// MetaFetcher returns the event log metadata of a provider.
type MetaFetcher interface {
	Fetch(ctx context.Context, provider string) (*evtmeta.ProviderMeta, error)
}

type Options struct {
	Workers int
	// FailFast stops the run on the first manifest that does not parse after
	// repairs. Otherwise the failure is recorded and the run goes on.
	FailFast bool
	// Repairs is applied once to manifests that fail to parse. Nil disables
	// repairs.
	Repairs *repair.Table
	// Classes is the legacy class hierarchy, nil to skip legacy providers.
	Classes etwmeta.ClassQuery
	// Fetcher is optional.
	Fetcher MetaFetcher
	// Metrics is optional.
	Metrics *metrics.Run
	Logger  *phusluadapter.SampledLogger
}

// Dumper writes the reports of every provider of a source.
type Dumper struct {
	src  Source
	out  *report.Writer
	opts Options
	log  *phusluadapter.SampledLogger
}

func New(src Source, out *report.Writer, opts Options) *Dumper {
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.New()
	}
	l := opts.Logger
	if l == nil {
		l = phusluadapter.New(&log.DefaultLogger, nil)
	}
	return &Dumper{src: src, out: out, opts: opts, log: l}
}

// Run processes all providers. It returns the summary of what was done, and
// an error only when the run was cut short: FailFast, a report that could
// not be written or ctx being done.
func (d *Dumper) Run(ctx context.Context) (*Summary, error) {
	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	providers := d.src.Providers()
	jobs := make(chan registry.Provider)
	results := make(chan Result, d.opts.Workers)

	var wg sync.WaitGroup
	for range d.opts.Workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for p := range jobs {
				if ctx.Err() != nil {
					continue
				}
				r, err := d.Provider(ctx, p)
				results <- r
				if err != nil {
					cancel(err)
				}
			}
		}()
	}

	go func() {
		defer close(jobs)
		for _, p := range providers {
			select {
			case jobs <- p:
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	s := &Summary{}
	for r := range results {
		s.add(r)
	}
	sort.Slice(s.Results, func(i, j int) bool { return s.Results[i].Provider < s.Results[j].Provider })

	if err := context.Cause(ctx); err != nil {
		return s, err
	}
	return s, nil
}

func providerName(p registry.Provider) string {
	if p.Name != "" {
		return p.Name
	}
	return p.GUID.String()
}

// Provider processes one provider. The error is non nil when the run must
// stop.
func (d *Dumper) Provider(ctx context.Context, p registry.Provider) (Result, error) {
	r := Result{Provider: providerName(p), GUID: p.GUID}
	diag := d.diagnostics(&r)

	if err := d.manifest(ctx, p, &r, diag); err != nil {
		d.opts.Metrics.Providers.WithLabelValues(metrics.OutcomeFailed).Inc()
		return r, err
	}
	if err := d.legacy(p, &r, diag); err != nil {
		d.opts.Metrics.Providers.WithLabelValues(metrics.OutcomeFailed).Inc()
		return r, err
	}

	if r.Outcome() == metrics.OutcomeUnknown {
		if err := d.out.Unknown(r.Provider); err != nil {
			return r, fmt.Errorf("write report of %s: %w", r.Provider, err)
		}
	}
	d.opts.Metrics.Providers.WithLabelValues(r.Outcome()).Inc()
	return r, nil
}

func (d *Dumper) diagnostics(r *Result) etwmeta.Diagnostics {
	return etwmeta.DiagnosticsFunc(func(dg etwmeta.Diagnostic) {
		r.Skipped++
		d.opts.Metrics.Skipped.WithLabelValues(dg.Component).Inc()
		d.log.Debug().
			Str("provider", r.Provider).
			Str("component", dg.Component).
			Str("reason", dg.Reason).
			Str("item", dg.Item).
			Msg("skipped metadata item")
	})
}

func (d *Dumper) manifest(ctx context.Context, p registry.Provider, r *Result, diag etwmeta.Diagnostics) error {
	text, err := d.src.Manifest(p)
	if errors.Is(err, registry.ErrNoManifest) {
		return nil
	}
	if err != nil {
		r.ManifestErr = err
		d.log.SampledError("manifest-read").Err(err).Str("provider", r.Provider).Msg("cannot read manifest")
		return nil
	}

	m, err := etwmeta.ParseManifest(text, etwmeta.WithDiagnostics(diag))
	if errors.Is(err, etwmeta.ErrManifestParse) && d.opts.Repairs != nil {
		if fixed, changed := d.opts.Repairs.Apply(r.Provider, text); changed {
			r.Repaired = true
			m, err = etwmeta.ParseManifest(fixed, etwmeta.WithDiagnostics(diag))
			result := "ok"
			if err != nil {
				result = "failed"
			}
			d.opts.Metrics.Repairs.WithLabelValues(result).Inc()
			text = fixed
		}
	}
	if err != nil {
		r.ManifestErr = err
		path, werr := d.out.ManifestError(r.Provider, text)
		d.log.SampledError("manifest-parse").Err(err).
			Str("provider", r.Provider).
			Int("size", len(text)).
			Str("file", path).
			Msg("manifest parse failure")
		if werr != nil {
			return fmt.Errorf("dump manifest of %s: %w", r.Provider, werr)
		}
		if d.opts.FailFast {
			return fmt.Errorf("%s: %w", r.Provider, err)
		}
		return nil
	}

	meta := d.fetch(ctx, r)
	if err := d.out.Manifest(r.Provider, m, meta); err != nil {
		return fmt.Errorf("write report of %s: %w", r.Provider, err)
	}
	r.Manifest = true
	r.Events += len(m.Events)
	d.opts.Metrics.Events.WithLabelValues(report.ManifestDir).Add(float64(len(m.Events)))
	return nil
}

func (d *Dumper) fetch(ctx context.Context, r *Result) *evtmeta.ProviderMeta {
	if d.opts.Fetcher == nil {
		return nil
	}
	meta, err := d.opts.Fetcher.Fetch(ctx, r.Provider)
	var perr *evtmeta.ParseError
	switch {
	case err == nil:
		d.opts.Metrics.Helper.WithLabelValues("ok").Inc()
	case errors.Is(err, evtmeta.ErrHelperUnavailable):
		d.opts.Metrics.Helper.WithLabelValues("unavailable").Inc()
	case errors.As(err, &perr):
		d.opts.Metrics.Helper.WithLabelValues("parse_error").Inc()
		path, _ := d.out.HelperError(r.Provider, perr.Raw)
		d.log.SampledWarn("evtmeta-parse").Err(err).Str("provider", r.Provider).Str("file", path).
			Msg("event log metadata parse failure")
	default:
		d.opts.Metrics.Helper.WithLabelValues("error").Inc()
		d.log.SampledWarn("evtmeta-fetch").Err(err).Str("provider", r.Provider).
			Msg("event log metadata unavailable")
	}
	return meta
}

func (d *Dumper) legacy(p registry.Provider, r *Result, diag etwmeta.Diagnostics) error {
	if d.opts.Classes == nil || p.GUID.IsZero() {
		return nil
	}

	m, err := etwmeta.ParseLegacy(p.GUID, d.opts.Classes,
		etwmeta.WithProviderDirectory(d.src),
		etwmeta.WithDiagnostics(diag))
	if errors.Is(err, etwmeta.ErrProviderNotFound) {
		return nil
	}
	if err != nil {
		r.LegacyErr = err
		d.log.SampledError("legacy-walk").Err(err).Str("provider", r.Provider).Msg("legacy class walk failed")
		return nil
	}

	if err := d.out.Legacy(r.Provider, m); err != nil {
		return fmt.Errorf("write report of %s: %w", r.Provider, err)
	}
	r.Legacy = true
	r.Events += len(m.Events)
	d.opts.Metrics.Events.WithLabelValues(report.MofDir).Add(float64(len(m.Events)))
	return nil
}

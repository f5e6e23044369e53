// Package phusluadapter plugs a logsampler.Sampler into a phuslu logger.
package phusluadapter

import (
	"github.com/phuslu/log"
	"github.com/tekert/golang-etwmeta/logsampler"
)

// SampledLogger is a phuslu logger with sampled variants of the error and
// warning levels. Sampled entries are nil when suppressed, and a nil
// *log.Entry discards everything chained on it.
type SampledLogger struct {
	*log.Logger
	sampler logsampler.Sampler
}

// New wraps logger. With a nil sampler nothing is suppressed.
func New(logger *log.Logger, sampler logsampler.Sampler) *SampledLogger {
	return &SampledLogger{Logger: logger, sampler: sampler}
}

// Sampler returns the sampler deciding for the sampled levels.
func (l *SampledLogger) Sampler() logsampler.Sampler {
	return l.sampler
}

func (l *SampledLogger) sampled(key string, e *log.Entry) *log.Entry {
	if l.sampler == nil {
		return e
	}
	should, suppressed := l.sampler.ShouldLog(key, nil)
	if !should {
		return nil
	}
	if suppressed > 0 {
		e = e.Int64("suppressed", suppressed)
	}
	return e.Str("sample_key", key)
}

// SampledError returns an error entry, or nil when key is in its quiet window.
func (l *SampledLogger) SampledError(key string) *log.Entry {
	if l.Logger.Level > log.ErrorLevel {
		return nil
	}
	return l.sampled(key, l.Logger.Error())
}

// SampledWarn returns a warning entry, or nil when key is in its quiet window.
func (l *SampledLogger) SampledWarn(key string) *log.Entry {
	if l.Logger.Level > log.WarnLevel {
		return nil
	}
	return l.sampled(key, l.Logger.Warn())
}

// Reporter logs sampler summaries as warnings.
type Reporter struct {
	Logger *log.Logger
}

var _ logsampler.SummaryReporter = Reporter{}

func (r Reporter) LogSummary(key string, suppressedCount int64) {
	r.Logger.Warn().
		Str("sample_key", key).
		Int64("suppressed", suppressedCount).
		Msg("repeated log messages were suppressed")
}

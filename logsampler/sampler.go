/*
Package logsampler provides concurrent-safe log sampling for hot paths: code
that can fail the same way thousands of times in a row, like a provider walk
hitting the same broken metadata over and over.
*/
package logsampler

import (
	"sync"
	"time"
)

// SummaryReporter receives the number of suppressed messages of a key when
// the sampler forgets it. This keeps the sampler independent of any logging
// library.
type SummaryReporter interface {
	LogSummary(key string, suppressedCount int64)
}

// Sampler decides if a log message should be written.
type Sampler interface {
	// ShouldLog reports whether the message identified by key should be
	// written, and how many were suppressed since the last one that was.
	ShouldLog(key string, err error) (bool, int64)
	// Flush reports a summary of any suppressed logs.
	Flush()
	// Close stops background work, flushing one last time.
	Close()
}

// BackoffConfig controls the quiet window of a key. After a message is
// written, the key stays quiet for the current window, which then grows by
// Factor up to MaxInterval.
type BackoffConfig struct {
	InitialInterval time.Duration
	// MaxInterval defaults to InitialInterval (no backoff).
	MaxInterval time.Duration
	// Factor defaults to 1.
	Factor float64
	// ResetInterval is the silence after which a key starts over at
	// InitialInterval. Zero never resets.
	ResetInterval time.Duration
}

const defaultInterval = time.Second

func (c BackoffConfig) normalize() BackoffConfig {
	if c.InitialInterval <= 0 {
		c.InitialInterval = defaultInterval
	}
	if c.MaxInterval < c.InitialInterval {
		c.MaxInterval = c.InitialInterval
	}
	if c.Factor < 1 {
		c.Factor = 1
	}
	return c
}

func (c BackoffConfig) next(window time.Duration) time.Duration {
	return min(time.Duration(float64(window)*c.Factor), c.MaxInterval)
}

type keyState struct {
	sync.Mutex
	lastLog    time.Time
	lastSeen   time.Time
	window     time.Duration
	suppressed int64
	// evicted states are out of the map; callers holding one must reload.
	evicted bool
}

// DeduplicatingSampler writes the first message of a key, then suppresses the
// key for a backing-off window.
type DeduplicatingSampler struct {
	cfg      BackoffConfig
	keys     sync.Map
	reporter SummaryReporter
	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewDeduplicatingSampler creates a sampler. With a non nil reporter, keys
// idle for a while are reported and forgotten in the background.
func NewDeduplicatingSampler(cfg BackoffConfig, reporter SummaryReporter) *DeduplicatingSampler {
	s := &DeduplicatingSampler{
		cfg:      cfg.normalize(),
		reporter: reporter,
		stopCh:   make(chan struct{}),
	}
	if s.reporter != nil {
		go s.summaryReporter()
	}
	return s
}

func (s *DeduplicatingSampler) ShouldLog(key string, err error) (bool, int64) {
	now := time.Now()
	st := s.lockedState(key)
	defer st.Unlock()

	if s.cfg.ResetInterval > 0 && !st.lastSeen.IsZero() && now.Sub(st.lastSeen) > s.cfg.ResetInterval {
		st.lastLog = time.Time{}
	}
	st.lastSeen = now

	if st.lastLog.IsZero() || now.Sub(st.lastLog) >= st.window {
		if st.lastLog.IsZero() {
			st.window = s.cfg.InitialInterval
		} else {
			st.window = s.cfg.next(st.window)
		}
		st.lastLog = now
		n := st.suppressed
		st.suppressed = 0
		return true, n
	}

	st.suppressed++
	return false, 0
}

// lockedState returns the locked live state of key.
func (s *DeduplicatingSampler) lockedState(key string) *keyState {
	for {
		val, _ := s.keys.LoadOrStore(key, &keyState{})
		st := val.(*keyState)
		st.Lock()
		if !st.evicted {
			return st
		}
		st.Unlock()
	}
}

// evict removes key from the map and returns its suppressed count. The state
// lock is held across the removal so no ShouldLog counts into a dropped
// state. With idleFor > 0 only keys idle that long are evicted.
func (s *DeduplicatingSampler) evict(key any, st *keyState, idleFor time.Duration, now time.Time) (int64, bool) {
	st.Lock()
	defer st.Unlock()
	if st.evicted || (idleFor > 0 && now.Sub(st.lastSeen) <= idleFor) {
		return 0, false
	}
	st.evicted = true
	s.keys.CompareAndDelete(key, st)
	n := st.suppressed
	st.suppressed = 0
	return n, true
}

// Flush reports every key with suppressed messages and forgets all keys.
func (s *DeduplicatingSampler) Flush() {
	s.keys.Range(func(key, value any) bool {
		if n, ok := s.evict(key, value.(*keyState), 0, time.Time{}); ok && n > 0 && s.reporter != nil {
			s.reporter.LogSummary(key.(string), n)
		}
		return true
	})
}

func (s *DeduplicatingSampler) summaryReporter() {
	interval := max(s.cfg.MaxInterval*3, 10*time.Second)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			now := time.Now()
			s.keys.Range(func(key, value any) bool {
				if n, ok := s.evict(key, value.(*keyState), interval, now); ok && n > 0 {
					s.reporter.LogSummary(key.(string), n)
				}
				return true
			})
		case <-s.stopCh:
			return
		}
	}
}

// Close stops the background reporter and flushes pending summaries. It is
// safe to call more than once.
func (s *DeduplicatingSampler) Close() {
	s.stopOnce.Do(func() {
		close(s.stopCh)
		s.Flush()
	})
}

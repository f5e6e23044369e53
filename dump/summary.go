package dump

import (
	"github.com/tekert/golang-etwmeta/etwmeta"
	"github.com/tekert/golang-etwmeta/internal/metrics"
)

// Result is what happened to one provider.
type Result struct {
	Provider string
	GUID     etwmeta.GUID

	Manifest bool
	Legacy   bool
	Repaired bool
	Events   int
	Skipped  int

	ManifestErr error
	LegacyErr   error
}

// Outcome classifies r with the metrics outcome labels.
func (r Result) Outcome() string {
	switch {
	case r.Manifest && r.Legacy:
		return metrics.OutcomeBoth
	case r.Manifest:
		return metrics.OutcomeManifest
	case r.Legacy:
		return metrics.OutcomeLegacy
	case r.ManifestErr != nil || r.LegacyErr != nil:
		return metrics.OutcomeFailed
	default:
		return metrics.OutcomeUnknown
	}
}

// Summary aggregates the results of a run.
type Summary struct {
	// Results sorted by provider name.
	Results []Result

	Outcomes map[string]int
	Repaired int
	Events   int
	Skipped  int
}

func (s *Summary) add(r Result) {
	if s.Outcomes == nil {
		s.Outcomes = make(map[string]int)
	}
	s.Results = append(s.Results, r)
	s.Outcomes[r.Outcome()]++
	if r.Repaired {
		s.Repaired++
	}
	s.Events += r.Events
	s.Skipped += r.Skipped
}

// Failures returns the results carrying an error.
func (s *Summary) Failures() []Result {
	var out []Result
	for _, r := range s.Results {
		if r.ManifestErr != nil || r.LegacyErr != nil {
			out = append(out, r)
		}
	}
	return out
}

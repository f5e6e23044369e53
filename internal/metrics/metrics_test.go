package metrics

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/0xrawsec/toast"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRun(t *testing.T) {
	tt := toast.FromT(t)

	r := New()
	r.Providers.WithLabelValues(OutcomeManifest).Inc()
	r.Providers.WithLabelValues(OutcomeManifest).Inc()
	r.Providers.WithLabelValues(OutcomeUnknown).Inc()
	r.Events.WithLabelValues("manifest").Add(12)

	tt.Assert(testutil.ToFloat64(r.Providers.WithLabelValues(OutcomeManifest)) == 2)
	tt.Assert(testutil.ToFloat64(r.Providers.WithLabelValues(OutcomeUnknown)) == 1)
	tt.Assert(testutil.ToFloat64(r.Events.WithLabelValues("manifest")) == 12)

	n, err := testutil.GatherAndCount(r.Registry(), "etwmeta_providers_total")
	tt.CheckErr(err)
	tt.Assert(n == 2)
}

func TestWriteTextfile(t *testing.T) {
	tt := toast.FromT(t)

	r := New()
	r.Skipped.WithLabelValues("stringTable").Inc()

	path := filepath.Join(t.TempDir(), "etwmeta.prom")
	tt.CheckErr(r.WriteTextfile(path))

	b, err := os.ReadFile(path)
	tt.CheckErr(err)
	tt.Assert(strings.Contains(string(b), `etwmeta_skipped_items_total{component="stringTable"} 1`))
}

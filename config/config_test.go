package config

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/tekert/golang-etwmeta/internal/test"
)

func writeConfig(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

// TestLoad_YAML verifies YAML decoding, env expansion and defaults.
func TestLoad_YAML(t *testing.T) {
	tt := test.FromT(t)
	t.Setenv("ETWMETA_SNAPSHOT", "/data/snap")

	cfg, err := Load(writeConfig(t, "etwmetadump.yaml", `
input:
  snapshot: ${ETWMETA_SNAPSHOT}
output:
  compress: true
helper:
  enabled: true
  timeout: 5s
  redis:
    enabled: true
    ttl: 24h
pipeline:
  workers: 3
logging:
  level: DEBUG
  sampling:
    initial: 500ms
    reset: 10m
`))
	tt.CheckErr(err)

	tt.Equal(cfg.Input.Snapshot, "/data/snap")
	tt.Equal(cfg.Output.Dir, "output")
	tt.Assert(cfg.Output.Compress)
	tt.Equal(cfg.Helper.Timeout.Duration, 5*time.Second)
	tt.Equal(cfg.Helper.Command, "cli.exe")
	tt.Equal(cfg.Helper.Redis.TTL.Duration, 24*time.Hour)
	tt.Equal(cfg.Helper.Redis.Addr, "127.0.0.1:6379")
	tt.Equal(cfg.Pipeline.Workers, 3)
	tt.Equal(cfg.Logging.Level, "debug")
	tt.Equal(cfg.Logging.Format, "console")
	tt.Equal(cfg.Logging.Sampling.Initial.Duration, 500*time.Millisecond)
	tt.Equal(cfg.Logging.Sampling.Max.Duration, time.Minute)
	tt.Equal(cfg.Logging.Sampling.Factor, 2.0)
	tt.Equal(cfg.Logging.Sampling.Reset.Duration, 10*time.Minute)
}

// TestLoad_TOML verifies the TOML form decodes the same sections.
func TestLoad_TOML(t *testing.T) {
	tt := test.FromT(t)

	cfg, err := Load(writeConfig(t, "etwmetadump.toml", `
[input]
snapshot = "snap"

[repairs]
file = "extra.yaml"

[helper]
cache_dir = "meta"
args = ["/meta", "/name", "{name}", "/out", "{out}"]

[pipeline]
fail_fast = true

[metrics]
textfile = "etwmeta.prom"

[logging]
format = "json"
`))
	tt.CheckErr(err)

	tt.Equal(cfg.Repairs.File, "extra.yaml")
	tt.Equal(cfg.Helper.CacheDir, "meta")
	tt.Equal(cfg.Helper.Args, []string{"/meta", "/name", "{name}", "/out", "{out}"})
	tt.Assert(cfg.Pipeline.FailFast)
	tt.Equal(cfg.Pipeline.Workers, runtime.NumCPU())
	tt.Equal(cfg.Metrics.Textfile, "etwmeta.prom")
	tt.Equal(cfg.Logging.Format, "json")
}

// TestLoad_Rejects verifies validation errors.
func TestLoad_Rejects(t *testing.T) {
	tests := []struct {
		name string
		file string
		body string
		want string
	}{
		{"NoSnapshot", "c.yaml", "output: {dir: out}\n", "input.snapshot"},
		{"BadLevel", "c.yaml", "input: {snapshot: s}\nlogging: {level: loud}\n", "logging.level"},
		{"BadFormat", "c.yaml", "input: {snapshot: s}\nlogging: {format: xml}\n", "logging.format"},
		{"BadDuration", "c.yaml", "input: {snapshot: s}\nhelper: {timeout: soon}\n", "parse duration"},
		{"NegativeTTL", "c.toml", "[input]\nsnapshot = \"s\"\n[helper.redis]\nttl = \"-1s\"\n", "helper.redis.ttl"},
		{"BadFactor", "c.yaml", "input: {snapshot: s}\nlogging: {sampling: {factor: 0.5}}\n", "factor"},
		{"MaxBelowInitial", "c.yaml", "input: {snapshot: s}\nlogging: {sampling: {initial: 2m, max: 1m}}\n", "sampling.max"},
		{"TwoCaches", "c.yaml", "input: {snapshot: s}\nhelper: {cache_dir: d, redis: {enabled: true}}\n", "mutually exclusive"},
		{"Extension", "c.json", "{}", "unsupported extension"},
		{"TOMLSyntax", "c.toml", "[input\n", "decode TOML"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tc.file, tc.body))
			if err == nil {
				t.Fatal("expected an error")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected error containing %q, got %v", tc.want, err)
			}
		})
	}
}

// TestDecodeThenOverride verifies flags can fill what the file leaves out.
func TestDecodeThenOverride(t *testing.T) {
	tt := test.FromT(t)

	cfg, err := Decode(writeConfig(t, "c.yml", "output: {dir: reports}\n"))
	tt.CheckErr(err)
	tt.Assert(cfg.Validate() != nil, "snapshot should still be missing")

	cfg.Input.Snapshot = "snap"
	tt.CheckErr(cfg.Validate())
	tt.Equal(cfg.Output.Dir, "reports")

	def := Default()
	tt.Equal(def.Output.Dir, "output")
	tt.Equal(def.Logging.Level, "info")
}

func TestFindFile(t *testing.T) {
	tt := test.FromT(t)

	tt.Equal(FindFile("given.yaml"), "given.yaml")

	dir := t.TempDir()
	t.Chdir(dir)
	tt.Equal(FindFile(""), "")

	tt.CheckErr(os.WriteFile(filepath.Join(dir, "etwmetadump.toml"), []byte(""), 0o644))
	tt.Equal(FindFile(""), filepath.Join(".", "etwmetadump.toml"))
}

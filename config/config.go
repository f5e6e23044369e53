// Package config loads the etwmetadump configuration, YAML or TOML depending
// on the file extension.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

const (
	defaultOutputDir     = "output"
	defaultHelperCommand = "cli.exe"
	defaultHelperTimeout = 30 * time.Second
	defaultRedisAddr     = "127.0.0.1:6379"
	defaultRedisPrefix   = "etwmeta:evtmeta"
	defaultLogLevel      = "info"
	defaultLogFormat     = "console"
	defaultSampleInitial = time.Second
	defaultSampleMax     = time.Minute
	defaultSampleFactor  = 2.0
)

// FileNames are the names looked for when no config path is given.
var FileNames = []string{"etwmetadump.yaml", "etwmetadump.yml", "etwmetadump.toml"}

// Duration wraps time.Duration for text durations ("5s", "1m") in both
// formats.
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	value := strings.TrimSpace(string(text))
	if value == "" {
		d.Duration = 0
		return nil
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", value, err)
	}
	d.Duration = parsed
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

type Config struct {
	Input    InputConfig    `yaml:"input" toml:"input"`
	Output   OutputConfig   `yaml:"output" toml:"output"`
	Repairs  RepairsConfig  `yaml:"repairs" toml:"repairs"`
	Helper   HelperConfig   `yaml:"helper" toml:"helper"`
	Pipeline PipelineConfig `yaml:"pipeline" toml:"pipeline"`
	Metrics  MetricsConfig  `yaml:"metrics" toml:"metrics"`
	Logging  LoggingConfig  `yaml:"logging" toml:"logging"`
}

// InputConfig points at the provider snapshot directory.
type InputConfig struct {
	Snapshot string `yaml:"snapshot" toml:"snapshot"`
}

type OutputConfig struct {
	Dir      string `yaml:"dir" toml:"dir"`
	Compress bool   `yaml:"compress" toml:"compress"`
	// NoVersion skips the version.txt host stamp.
	NoVersion bool `yaml:"no_version" toml:"no_version"`
}

// RepairsConfig extends or disables the built-in manifest repairs.
type RepairsConfig struct {
	Disabled bool   `yaml:"disabled" toml:"disabled"`
	File     string `yaml:"file" toml:"file"`
}

// HelperConfig configures the event log metadata helper process.
type HelperConfig struct {
	Enabled  bool        `yaml:"enabled" toml:"enabled"`
	Command  string      `yaml:"command" toml:"command"`
	Args     []string    `yaml:"args" toml:"args"`
	Timeout  Duration    `yaml:"timeout" toml:"timeout"`
	CacheDir string      `yaml:"cache_dir" toml:"cache_dir"`
	Redis    RedisConfig `yaml:"redis" toml:"redis"`
}

type RedisConfig struct {
	Enabled   bool     `yaml:"enabled" toml:"enabled"`
	Addr      string   `yaml:"addr" toml:"addr"`
	Password  string   `yaml:"password" toml:"password"`
	DB        int      `yaml:"db" toml:"db"`
	KeyPrefix string   `yaml:"key_prefix" toml:"key_prefix"`
	TTL       Duration `yaml:"ttl" toml:"ttl"`
}

type PipelineConfig struct {
	Workers int `yaml:"workers" toml:"workers"`
	// FailFast stops the run on the first manifest that cannot be parsed,
	// even after repairs.
	FailFast bool `yaml:"fail_fast" toml:"fail_fast"`
}

// MetricsConfig sets where run counters are written, nowhere when empty.
type MetricsConfig struct {
	Textfile string `yaml:"textfile" toml:"textfile"`
}

type LoggingConfig struct {
	Level    string         `yaml:"level" toml:"level"`
	Format   string         `yaml:"format" toml:"format"`
	File     string         `yaml:"file" toml:"file"`
	Sampling SamplingConfig `yaml:"sampling" toml:"sampling"`
}

// SamplingConfig is the backoff of repeated error logs.
type SamplingConfig struct {
	Initial Duration `yaml:"initial" toml:"initial"`
	Max     Duration `yaml:"max" toml:"max"`
	Factor  float64  `yaml:"factor" toml:"factor"`
	Reset   Duration `yaml:"reset" toml:"reset"`
}

// Default returns the configuration used without a config file.
func Default() *Config {
	var cfg Config
	cfg.ApplyDefaults()
	return &cfg
}

// Load reads, defaults and validates the config file at path.
func Load(path string) (*Config, error) {
	cfg, err := Decode(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %q: %w", path, err)
	}
	return cfg, nil
}

// Decode reads the config file at path, expanding environment variables, and
// applies defaults. Callers overriding fields validate afterwards.
func Decode(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	expanded := []byte(os.ExpandEnv(string(raw)))

	var cfg Config
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		if err := toml.Unmarshal(expanded, &cfg); err != nil {
			return nil, fmt.Errorf("decode TOML %q: %w", path, err)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(expanded, &cfg); err != nil {
			return nil, fmt.Errorf("decode YAML %q: %w", path, err)
		}
	default:
		return nil, fmt.Errorf("config %q: unsupported extension, want .yaml, .yml or .toml", path)
	}

	cfg.ApplyDefaults()
	return &cfg, nil
}

// ApplyDefaults fills unset fields.
func (c *Config) ApplyDefaults() {
	if c.Output.Dir == "" {
		c.Output.Dir = defaultOutputDir
	}
	if c.Helper.Command == "" {
		c.Helper.Command = defaultHelperCommand
	}
	if c.Helper.Timeout.Duration == 0 {
		c.Helper.Timeout.Duration = defaultHelperTimeout
	}
	if c.Helper.Redis.Addr == "" {
		c.Helper.Redis.Addr = defaultRedisAddr
	}
	if c.Helper.Redis.KeyPrefix == "" {
		c.Helper.Redis.KeyPrefix = defaultRedisPrefix
	}
	if c.Pipeline.Workers <= 0 {
		c.Pipeline.Workers = runtime.NumCPU()
	}
	c.Logging.Level = lowerOrDefault(c.Logging.Level, defaultLogLevel)
	c.Logging.Format = lowerOrDefault(c.Logging.Format, defaultLogFormat)
	if c.Logging.Sampling.Initial.Duration == 0 {
		c.Logging.Sampling.Initial.Duration = defaultSampleInitial
	}
	if c.Logging.Sampling.Max.Duration == 0 {
		c.Logging.Sampling.Max.Duration = defaultSampleMax
	}
	if c.Logging.Sampling.Factor == 0 {
		c.Logging.Sampling.Factor = defaultSampleFactor
	}
}

// Validate checks a defaulted config.
func (c *Config) Validate() error {
	if c.Input.Snapshot == "" {
		return fmt.Errorf("input.snapshot is required")
	}
	if err := validateLogLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("logging.level: %w", err)
	}
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q", c.Logging.Format)
	}
	if c.Logging.Sampling.Factor < 1 {
		return fmt.Errorf("logging.sampling.factor must be >= 1, got %v", c.Logging.Sampling.Factor)
	}
	if c.Logging.Sampling.Max.Duration < c.Logging.Sampling.Initial.Duration {
		return fmt.Errorf("logging.sampling.max must not be below logging.sampling.initial")
	}
	for name, d := range map[string]time.Duration{
		"helper.timeout":         c.Helper.Timeout.Duration,
		"helper.redis.ttl":       c.Helper.Redis.TTL.Duration,
		"logging.sampling.reset": c.Logging.Sampling.Reset.Duration,
	} {
		if d < 0 {
			return fmt.Errorf("%s must be >= 0, got %s", name, d)
		}
	}
	if c.Helper.Redis.Enabled && c.Helper.CacheDir != "" {
		return fmt.Errorf("helper.cache_dir and helper.redis are mutually exclusive")
	}
	return nil
}

func validateLogLevel(level string) error {
	switch level {
	case "trace", "debug", "info", "warn", "error":
		return nil
	default:
		return fmt.Errorf("unsupported value %q", level)
	}
}

func lowerOrDefault(value, fallback string) string {
	normalized := strings.ToLower(strings.TrimSpace(value))
	if normalized == "" {
		return fallback
	}
	return normalized
}

// FindFile returns the config file to load: arg when given, else the first
// of FileNames in the working directory, then next to the executable. It
// returns "" when there is none.
func FindFile(arg string) string {
	if arg != "" {
		return arg
	}

	dirs := []string{"."}
	if exe, err := os.Executable(); err == nil {
		dirs = append(dirs, filepath.Dir(exe))
	}
	for _, dir := range dirs {
		for _, name := range FileNames {
			path := filepath.Join(dir, name)
			if _, err := os.Stat(path); err == nil {
				return path
			}
		}
	}
	return ""
}

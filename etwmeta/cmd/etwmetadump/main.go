// Command etwmetadump writes a grep-able listing of every event of every
// provider in a provider snapshot: one TSV per provider, from its manifest,
// its legacy MOF classes, or neither.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/tekert/golang-etwmeta/config"
)

const (
	exitCodeFailure = 1
	exitCodeUsage   = 2
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func run() int {
	var (
		configPath string
		snapshot   string
		outDir     string
		workers    int
		failFast   bool
		verbose    bool
		showInfo   bool
	)

	flag.StringVar(&configPath, "config", "", "path to a YAML or TOML config file")
	flag.StringVar(&snapshot, "snapshot", "", "provider snapshot directory (overrides input.snapshot)")
	flag.StringVar(&outDir, "out", "", "report directory (overrides output.dir)")
	flag.IntVar(&workers, "workers", 0, "providers processed in parallel (overrides pipeline.workers)")
	flag.BoolVar(&failFast, "fail-fast", false, "stop on the first manifest that cannot be parsed")
	flag.BoolVar(&verbose, "v", false, "debug logging")
	flag.BoolVar(&showInfo, "version", false, "show build information")
	flag.Parse()

	if showInfo {
		fmt.Printf("etwmetadump version=%s commit=%s date=%s\n", version, commit, date)
		return 0
	}

	cfg := config.Default()
	if path := config.FindFile(configPath); path != "" {
		var err error
		if cfg, err = config.Decode(path); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			return exitCodeUsage
		}
	}
	if snapshot != "" {
		cfg.Input.Snapshot = snapshot
	}
	if outDir != "" {
		cfg.Output.Dir = outDir
	}
	if workers > 0 {
		cfg.Pipeline.Workers = workers
	}
	if failFast {
		cfg.Pipeline.FailFast = true
	}
	if verbose {
		cfg.Logging.Level = "debug"
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		flag.Usage()
		return exitCodeUsage
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := runDump(ctx, cfg); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return exitCodeFailure
	}
	return 0
}

func main() {
	os.Exit(run())
}

// Command trianglescan scans a mounted or extracted iOS filesystem image
// for traces of compromise by Operation Triangulation.
//
// The scan is strictly read-only and never claims certainty: it reports
// exact indicator matches and suspicious combinations of events, or the
// absence of both.
//
// Usage:
//
//	trianglescan [flags] /path/to/mounted_ios_image
//
// Exit codes:
//
//	0 - scan completed, no findings
//	2 - scan completed, findings reported
//	1 - run error (unreadable root, bad configuration)
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"trianglescan/internal/config"
	"trianglescan/internal/correlate"
	"trianglescan/internal/logging"
	"trianglescan/internal/report"
	"trianglescan/internal/scan"
	"trianglescan/internal/snapshot"
)

// Version information (set at build time).
var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("trianglescan", flag.ContinueOnError)
	fs.SetOutput(stderr)

	configPath := fs.String("config", "", "configuration file (TOML, YAML, or JSON); defaults are built in")
	format := fs.String("format", "text", "output format: text, json")
	window := fs.Duration("window", 0, "override the correlation window (e.g. 5m)")
	logLevel := fs.String("log-level", "", "log level: debug, info, warn, error")
	versionFlag := fs.Bool("version", false, "print version and exit")

	fs.Usage = func() {
		fmt.Fprintf(stderr, "trianglescan - scan iOS filesystem images for traces of Operation Triangulation\n\n")
		fmt.Fprintf(stderr, "Based on Kaspersky's triangle_check indicators.\n")
		fmt.Fprintf(stderr, "More info: https://securelist.com/operation-triangulation/109842/\n\n")
		fmt.Fprintf(stderr, "Usage: trianglescan [flags] /path/to/mounted_ios_image\n\n")
		fmt.Fprintf(stderr, "Flags:\n")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		return 1
	}

	if *versionFlag {
		fmt.Fprintf(stdout, "trianglescan %s (commit: %s)\n", version, commit)
		return 0
	}

	if fs.NArg() != 1 {
		fs.Usage()
		return 1
	}
	root := fs.Arg(0)

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	if *window > 0 {
		cfg.Correlation.WindowSec = int(*window / time.Second)
	}
	if *logLevel != "" {
		cfg.Logging.Level = *logLevel
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	log, err := newLogger(cfg.Logging)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	logging.SetDefault(log)

	provider, err := snapshot.NewOS(root)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %s: %v\n", root, err)
		return 1
	}

	log.Info("scanning snapshot", "root", provider.Root())

	result := scan.NewRunner(cfg, log).Run(context.Background(), provider)

	engine := correlate.New(correlate.Config{
		Window:        cfg.Correlation.Window(),
		MinCategories: cfg.Correlation.MinCategories,
	})
	rep := &report.Report{
		Detections: result.Detections,
		Events:     engine.Correlate(result.Evidence),
		Warnings:   result.Warnings,
	}

	switch *format {
	case "json":
		if err := report.WriteJSON(stdout, rep); err != nil {
			fmt.Fprintf(stderr, "Error: write report: %v\n", err)
			return 1
		}
	default:
		report.WriteText(stdout, rep)
	}

	if rep.Empty() {
		return 0
	}
	return 2
}

// newLogger builds the process logger from config.
func newLogger(cfg config.LoggingConfig) (*logging.Logger, error) {
	level, err := logging.ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	format, err := logging.ParseFormat(cfg.Format)
	if err != nil {
		return nil, err
	}
	return logging.New(&logging.Config{
		Level:     level,
		Format:    format,
		Output:    cfg.Output,
		Component: "trianglescan",
	}), nil
}

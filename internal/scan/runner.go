package scan

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"trianglescan/internal/config"
	"trianglescan/internal/evidence"
	"trianglescan/internal/logging"
	"trianglescan/internal/snapshot"
)

// iosLayoutDirs are the directories a typical iOS filesystem image carries.
// Their absence does not stop a run, it only makes the result less reliable.
var iosLayoutDirs = []string{
	"private/var/mobile",
	"private/var/root",
	"private/var/containers",
}

// SkippedCategory records a category whose scan was abandoned.
type SkippedCategory struct {
	Category evidence.Category
	Err      error
}

// RunResult is the merged output of all category scans for one snapshot.
type RunResult struct {
	// Evidence is the union of all scanners' output, sorted by
	// (Timestamp, Path).
	Evidence []evidence.Evidence

	// Detections are exact indicator matches, sorted by timestamp.
	Detections []evidence.Detection

	// Skipped lists categories that contributed nothing because their scan
	// failed.
	Skipped []SkippedCategory

	// Warnings are non-fatal problems surfaced to the user alongside the
	// report.
	Warnings []string
}

// Runner executes the category scanners against a snapshot.
type Runner struct {
	scanners []Scanner
	log      *logging.Logger
}

// NewRunner builds the four category scanners from the rule tables.
func NewRunner(cfg *config.Config, log *logging.Logger) *Runner {
	if log == nil {
		log = logging.Default()
	}
	return &Runner{
		scanners: []Scanner{
			NewSMSScanner(cfg.Rules.SMS),
			NewPreferenceScanner(cfg.Rules.Preferences),
			NewNetworkScanner(cfg.Rules.Network),
			NewLocationScanner(cfg.Rules.Location),
		},
		log: log,
	}
}

// Run scans all categories in parallel and merges their output. The
// scanners share nothing but a read-only provider handle; the merge after
// the group wait is the single synchronization point.
//
// A failing category never fails the run: its evidence is dropped, the
// category is recorded as skipped, and the remaining categories proceed.
func (r *Runner) Run(ctx context.Context, p snapshot.Provider) *RunResult {
	out := &RunResult{}
	out.Warnings = append(out.Warnings, r.checkLayout(p)...)

	results := make([]Result, len(r.scanners))
	failures := make([]error, len(r.scanners))

	g, ctx := errgroup.WithContext(ctx)
	for i, s := range r.scanners {
		i, s := i, s
		g.Go(func() error {
			res, err := s.Scan(ctx, p)
			results[i] = res
			failures[i] = err
			return nil
		})
	}
	g.Wait() // goroutines never return errors; failures are per-category

	for i, s := range r.scanners {
		if err := failures[i]; err != nil {
			r.log.Warn("category scan failed",
				"category", string(s.Category()),
				"error", err)
			out.Skipped = append(out.Skipped, SkippedCategory{Category: s.Category(), Err: err})
			out.Warnings = append(out.Warnings,
				fmt.Sprintf("category %s skipped: %v", s.Category(), err))
			continue
		}
		out.Evidence = append(out.Evidence, results[i].Evidence...)
		out.Detections = append(out.Detections, results[i].Detections...)
		out.Warnings = append(out.Warnings, results[i].Warnings...)
	}

	evidence.Sort(out.Evidence)
	evidence.SortDetections(out.Detections)

	r.log.Info("scan complete",
		"evidence", len(out.Evidence),
		"detections", len(out.Detections),
		"skipped", len(out.Skipped))
	return out
}

// checkLayout warns when the snapshot does not look like an iOS filesystem.
func (r *Runner) checkLayout(p snapshot.Provider) []string {
	var missing []string
	for _, dir := range iosLayoutDirs {
		rec, err := p.Stat(dir)
		if errors.Is(err, snapshot.ErrNotFound) || (err == nil && !rec.Exists) {
			missing = append(missing, dir)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	return []string{fmt.Sprintf(
		"this doesn't appear to be a typical iOS filesystem, missing: %v; results may not be reliable",
		missing)}
}

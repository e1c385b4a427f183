package scan

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"trianglescan/internal/config"
	"trianglescan/internal/correlate"
	"trianglescan/internal/evidence"
	"trianglescan/internal/snapshot"
)

// faultyProvider wraps a real provider and fails paths under broken with an
// unclassified error.
type faultyProvider struct {
	snapshot.Provider
	broken string
}

var errDiskFault = errors.New("I/O error reading device")

func (f *faultyProvider) Stat(rel string) (snapshot.FileRecord, error) {
	if strings.HasPrefix(rel, f.broken) {
		return snapshot.FileRecord{}, errDiskFault
	}
	return f.Provider.Stat(rel)
}

func (f *faultyProvider) ListDirectory(rel string) ([]string, error) {
	if strings.HasPrefix(rel, f.broken) {
		return nil, errDiskFault
	}
	return f.Provider.ListDirectory(rel)
}

func (f *faultyProvider) Open(rel string) (io.ReadCloser, error) {
	if strings.HasPrefix(rel, f.broken) {
		return nil, errDiskFault
	}
	return f.Provider.Open(rel)
}

func TestRunEmptySnapshot(t *testing.T) {
	_, p := newSnapshot(t)
	result := NewRunner(config.DefaultConfig(), nil).Run(context.Background(), p)

	if len(result.Evidence) != 0 || len(result.Detections) != 0 {
		t.Fatalf("empty snapshot produced findings: %+v", result)
	}
	if len(result.Skipped) != 0 {
		t.Fatalf("absence is not failure, got skipped %+v", result.Skipped)
	}
}

func TestRunWarnsOnNonIOSLayout(t *testing.T) {
	_, p := newSnapshot(t)
	result := NewRunner(config.DefaultConfig(), nil).Run(context.Background(), p)

	found := false
	for _, w := range result.Warnings {
		if strings.Contains(w, "iOS filesystem") {
			found = true
		}
	}
	if !found {
		t.Errorf("expected a layout warning, got %v", result.Warnings)
	}
}

func TestRunFailedCategoryIsSkippedOthersProceed(t *testing.T) {
	root, base := newSnapshot(t)
	cfg := config.DefaultConfig()

	// Preferences category has real evidence; SMS category hits a disk
	// fault and must be skipped without dropping the preference evidence.
	writeFile(t, root, locationdPlist, time.Time{})
	p := &faultyProvider{Provider: base, broken: cfg.Rules.SMS.AttachmentsRoot}

	result := NewRunner(cfg, nil).Run(context.Background(), p)

	if len(result.Skipped) != 1 {
		t.Fatalf("got %d skipped categories, want 1: %+v", len(result.Skipped), result.Skipped)
	}
	if result.Skipped[0].Category != evidence.CategorySMS {
		t.Errorf("skipped = %s, want sms", result.Skipped[0].Category)
	}
	if !errors.Is(result.Skipped[0].Err, errDiskFault) {
		t.Errorf("skip reason should wrap the provider fault, got %v", result.Skipped[0].Err)
	}

	if len(result.Evidence) != 2 {
		t.Fatalf("surviving categories should contribute, got %+v", result.Evidence)
	}
	for _, ev := range result.Evidence {
		if ev.Category != evidence.CategoryPreferences {
			t.Errorf("unexpected category %s in evidence", ev.Category)
		}
	}

	skipWarned := false
	for _, w := range result.Warnings {
		if strings.Contains(w, "category sms skipped") {
			skipWarned = true
		}
	}
	if !skipWarned {
		t.Errorf("skip must surface as a warning, got %v", result.Warnings)
	}
}

func TestRunMergedEvidenceIsSorted(t *testing.T) {
	root, p := newSnapshot(t)
	mkdirAll(t, root, attachmentsRoot+"/ff/15")
	writeFile(t, root, locationdPlist, time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC))

	result := NewRunner(config.DefaultConfig(), nil).Run(context.Background(), p)

	for i := 1; i < len(result.Evidence); i++ {
		if evidence.Less(result.Evidence[i], result.Evidence[i-1]) {
			t.Fatal("merged evidence must be sorted by (timestamp, path)")
		}
	}
}

// The classic compromise shape end to end: two emptied attachment
// directories plus a touched preference file, all within the window, must
// produce exactly one suspicion event spanning both categories.
func TestRunAndCorrelateCompromiseScenario(t *testing.T) {
	root, p := newSnapshot(t)
	mkdirAll(t, root, attachmentsRoot+"/ff/15")
	mkdirAll(t, root, attachmentsRoot+"/76/06")
	writeFile(t, root, locationdPlist, time.Time{})

	cfg := config.DefaultConfig()
	result := NewRunner(cfg, nil).Run(context.Background(), p)

	engine := correlate.New(correlate.Config{
		Window:        cfg.Correlation.Window(),
		MinCategories: cfg.Correlation.MinCategories,
	})
	events := engine.Correlate(result.Evidence)

	if len(events) != 1 {
		t.Fatalf("got %d suspicion events, want 1: %+v", len(events), events)
	}
	// 2 per attachment directory + 2 for the preference file, all created
	// just now and therefore inside one window.
	if len(events[0].Members) != 6 {
		t.Fatalf("got %d members, want 6: %+v", len(events[0].Members), events[0].Members)
	}
	cats := events[0].Categories()
	if len(cats) != 2 {
		t.Fatalf("got categories %v, want sms+preferences", cats)
	}
}

// A single emptied attachment directory with nothing else nearby must not
// become a finding.
func TestRunSingleEmptyDirectoryIsNotAFinding(t *testing.T) {
	root, p := newSnapshot(t)
	mkdirAll(t, root, attachmentsRoot+"/ff/15")

	cfg := config.DefaultConfig()
	result := NewRunner(cfg, nil).Run(context.Background(), p)
	events := correlate.New(correlate.DefaultConfig()).Correlate(result.Evidence)

	if len(events) != 0 {
		t.Fatalf("single-category evidence must not qualify, got %+v", events)
	}
}

func TestRunnerSkipsAllCategoriesOnTotalFault(t *testing.T) {
	_, base := newSnapshot(t)
	p := &faultyProvider{Provider: base, broken: "private/"}

	result := NewRunner(config.DefaultConfig(), nil).Run(context.Background(), p)
	if len(result.Skipped) == 0 {
		t.Fatal("expected skipped categories under a total provider fault")
	}
	if len(result.Evidence) != 0 {
		t.Fatalf("failed categories must contribute zero evidence, got %+v", result.Evidence)
	}
}

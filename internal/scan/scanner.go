// Package scan implements the four category scanners and the runner that
// executes them against a snapshot. Each scanner is a generic interpreter
// over its rule table: indicator paths, process patterns, and bundle
// identifiers are data, not code.
package scan

import (
	"context"
	"math"
	"time"

	"trianglescan/internal/evidence"
	"trianglescan/internal/snapshot"
)

// Scanner produces evidence for a single detection category.
//
// A missing artifact is negative evidence, never an error: scanners return
// an error only when the provider fails in a way that makes the whole
// category unreliable. Permission problems on individual paths degrade to
// warnings and the scanner continues with partial data.
type Scanner interface {
	Category() evidence.Category
	Scan(ctx context.Context, p snapshot.Provider) (Result, error)
}

// Result is the output of a single category scan.
type Result struct {
	Evidence   []evidence.Evidence
	Detections []evidence.Detection
	Warnings   []string
}

// Offset between the Cocoa reference date (2001-01-01) and the Unix epoch,
// in seconds. Data-usage and location artifacts store Cocoa timestamps.
const cocoaEpochDelta = 978307200

// cocoaTime converts seconds since the Cocoa reference date to a time.Time.
func cocoaTime(seconds float64) time.Time {
	unix := cocoaEpochDelta + seconds
	sec, frac := math.Modf(unix)
	return time.Unix(int64(sec), int64(frac*float64(time.Second))).UTC()
}

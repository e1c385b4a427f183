package scan

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"howett.net/plist"

	"trianglescan/internal/config"
	"trianglescan/internal/evidence"
	"trianglescan/internal/snapshot"
)

// LocationScanner reads the location service client registry and flags
// entries for suspicious bundle identifiers that record a service stop time.
// The implant unregisters its location bundles when it cleans up, which
// leaves the stop timestamp behind.
type LocationScanner struct {
	rule config.LocationRule
}

// NewLocationScanner returns a scanner for the given rule table.
func NewLocationScanner(rule config.LocationRule) *LocationScanner {
	return &LocationScanner{rule: rule}
}

// Category implements Scanner.
func (s *LocationScanner) Category() evidence.Category {
	return evidence.CategoryLocation
}

// Scan implements Scanner.
func (s *LocationScanner) Scan(ctx context.Context, p snapshot.Provider) (Result, error) {
	var res Result
	if err := ctx.Err(); err != nil {
		return res, err
	}

	f, err := p.Open(s.rule.ClientsPlist)
	if err != nil {
		switch {
		case errors.Is(err, snapshot.ErrNotFound):
			return res, nil
		case errors.Is(err, snapshot.ErrPermissionDenied):
			res.Warnings = append(res.Warnings, fmt.Sprintf("location clients %s: permission denied", s.rule.ClientsPlist))
			return res, nil
		default:
			return res, fmt.Errorf("open location clients: %w", err)
		}
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return res, fmt.Errorf("read location clients: %w", err)
	}

	var clients map[string]map[string]any
	if _, err := plist.Unmarshal(data, &clients); err != nil {
		res.Warnings = append(res.Warnings, fmt.Sprintf("location clients %s: %v", s.rule.ClientsPlist, err))
		return res, nil
	}

	for _, bundle := range s.rule.BundleIDs {
		entry, ok := clients[bundle]
		if !ok {
			continue
		}
		stopped, ok := stopTime(entry)
		if !ok {
			continue
		}
		res.Evidence = append(res.Evidence, evidence.Evidence{
			Kind:      evidence.KindLocationAnomaly,
			Category:  evidence.CategoryLocation,
			Path:      bundle,
			Timestamp: stopped,
			Detail:    fmt.Sprintf("LocationTimeStopped in %s", s.rule.ClientsPlist),
		})
	}

	return res, nil
}

// stopTime extracts the LocationTimeStopped value, stored as seconds since
// the Cocoa reference date.
func stopTime(entry map[string]any) (time.Time, bool) {
	v, ok := entry["LocationTimeStopped"]
	if !ok {
		return time.Time{}, false
	}
	switch n := v.(type) {
	case float64:
		return cocoaTime(n), true
	case int64:
		return cocoaTime(float64(n)), true
	case uint64:
		return cocoaTime(float64(n)), true
	case time.Time:
		return n.UTC(), true
	default:
		return time.Time{}, false
	}
}

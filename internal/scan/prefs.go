package scan

import (
	"context"
	"errors"
	"fmt"

	"trianglescan/internal/config"
	"trianglescan/internal/evidence"
	"trianglescan/internal/snapshot"
)

// PreferenceScanner checks a fixed list of preference files whose change
// times move when location status or messaging service configuration is
// tampered with.
type PreferenceScanner struct {
	rule config.PreferenceRule
}

// NewPreferenceScanner returns a scanner for the given rule table.
func NewPreferenceScanner(rule config.PreferenceRule) *PreferenceScanner {
	return &PreferenceScanner{rule: rule}
}

// Category implements Scanner.
func (s *PreferenceScanner) Category() evidence.Category {
	return evidence.CategoryPreferences
}

// Scan implements Scanner.
func (s *PreferenceScanner) Scan(ctx context.Context, p snapshot.Provider) (Result, error) {
	var res Result

	for _, file := range s.rule.Files {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		rec, err := p.Stat(file)
		if err != nil {
			switch {
			case errors.Is(err, snapshot.ErrNotFound):
				continue
			case errors.Is(err, snapshot.ErrPermissionDenied):
				res.Warnings = append(res.Warnings, fmt.Sprintf("preference file %s: permission denied", file))
				continue
			default:
				return res, fmt.Errorf("stat %s: %w", file, err)
			}
		}

		if s.rule.Baseline.IsZero() || rec.ModifiedAt.After(s.rule.Baseline) {
			res.Evidence = append(res.Evidence, evidence.Evidence{
				Kind:      evidence.KindFileModification,
				Category:  evidence.CategoryPreferences,
				Path:      file,
				Timestamp: rec.ModifiedAt,
				Detail:    "preference file modified",
			})
		}
		if s.rule.Baseline.IsZero() || rec.AttrChangedAt.After(s.rule.Baseline) {
			res.Evidence = append(res.Evidence, evidence.Evidence{
				Kind:      evidence.KindAttributeChange,
				Category:  evidence.CategoryPreferences,
				Path:      file,
				Timestamp: rec.AttrChangedAt,
				Detail:    "preference file attributes changed",
			})
		}
	}

	return res, nil
}

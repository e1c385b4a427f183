package scan

import (
	"context"
	"errors"
	"fmt"
	"path"

	"trianglescan/internal/config"
	"trianglescan/internal/evidence"
	"trianglescan/internal/snapshot"
)

// SMSScanner walks the two-level hashed attachment directory tree and flags
// leaf directories that exist, are empty, and were touched after the tree's
// creation baseline. An attachment wiped by an exploit chain leaves exactly
// this shape behind: the directory survives, its contents do not.
//
// A single flagged directory is weak signal on its own; the correlation
// engine decides significance.
type SMSScanner struct {
	rule config.SMSRule
}

// NewSMSScanner returns a scanner for the given rule table.
func NewSMSScanner(rule config.SMSRule) *SMSScanner {
	return &SMSScanner{rule: rule}
}

// Category implements Scanner.
func (s *SMSScanner) Category() evidence.Category {
	return evidence.CategorySMS
}

// Scan implements Scanner.
func (s *SMSScanner) Scan(ctx context.Context, p snapshot.Provider) (Result, error) {
	var res Result

	root := s.rule.AttachmentsRoot
	firstLevel, err := p.ListDirectory(root)
	if err != nil {
		if errors.Is(err, snapshot.ErrNotFound) {
			return res, nil
		}
		if errors.Is(err, snapshot.ErrPermissionDenied) {
			res.Warnings = append(res.Warnings, fmt.Sprintf("attachment root %s: permission denied", root))
			return res, nil
		}
		return res, fmt.Errorf("list attachment root: %w", err)
	}

	for _, first := range firstLevel {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		parent := path.Join(root, first)
		rec, err := p.Stat(parent)
		if err != nil {
			switch {
			case errors.Is(err, snapshot.ErrNotFound):
				continue
			case errors.Is(err, snapshot.ErrPermissionDenied):
				res.Warnings = append(res.Warnings, fmt.Sprintf("attachment directory %s: permission denied", parent))
				continue
			default:
				return res, fmt.Errorf("stat %s: %w", parent, err)
			}
		}
		// Stray files next to the hashed directories are normal clutter.
		if !rec.IsDir {
			continue
		}
		leaves, err := p.ListDirectory(parent)
		if err != nil {
			switch {
			case errors.Is(err, snapshot.ErrNotFound):
				continue
			case errors.Is(err, snapshot.ErrPermissionDenied):
				res.Warnings = append(res.Warnings, fmt.Sprintf("attachment directory %s: permission denied", parent))
				continue
			default:
				return res, fmt.Errorf("list %s: %w", parent, err)
			}
		}

		for _, second := range leaves {
			leaf := path.Join(parent, second)
			ev, warn, err := s.inspectLeaf(p, leaf)
			if err != nil {
				return res, err
			}
			if warn != "" {
				res.Warnings = append(res.Warnings, warn)
			}
			res.Evidence = append(res.Evidence, ev...)
		}
	}

	return res, nil
}

// inspectLeaf stats and lists one leaf directory and returns its evidence.
func (s *SMSScanner) inspectLeaf(p snapshot.Provider, leaf string) ([]evidence.Evidence, string, error) {
	rec, err := p.Stat(leaf)
	if err != nil {
		switch {
		case errors.Is(err, snapshot.ErrNotFound):
			return nil, "", nil
		case errors.Is(err, snapshot.ErrPermissionDenied):
			return nil, fmt.Sprintf("attachment directory %s: permission denied", leaf), nil
		default:
			return nil, "", fmt.Errorf("stat %s: %w", leaf, err)
		}
	}
	if !rec.IsDir {
		return nil, "", nil
	}

	entries, err := p.ListDirectory(leaf)
	if err != nil {
		switch {
		case errors.Is(err, snapshot.ErrNotFound):
			return nil, "", nil
		case errors.Is(err, snapshot.ErrPermissionDenied):
			return nil, fmt.Sprintf("attachment directory %s: permission denied", leaf), nil
		default:
			return nil, "", fmt.Errorf("list %s: %w", leaf, err)
		}
	}
	if len(entries) != 0 {
		return nil, "", nil
	}

	// Empty leaf. Only suspicious when touched after the creation baseline;
	// an unset baseline treats any empty leaf as touched.
	if !s.rule.Baseline.IsZero() {
		if !rec.ModifiedAt.After(s.rule.Baseline) || !rec.AttrChangedAt.After(s.rule.Baseline) {
			return nil, "", nil
		}
	}

	// Both change marks carry the later of the two times so the pair stays
	// adjacent in the merged stream.
	ts := rec.ModifiedAt
	if rec.AttrChangedAt.After(ts) {
		ts = rec.AttrChangedAt
	}
	return []evidence.Evidence{
		{
			Kind:      evidence.KindFileModification,
			Category:  evidence.CategorySMS,
			Path:      leaf,
			Timestamp: ts,
			Detail:    "empty attachment directory",
		},
		{
			Kind:      evidence.KindAttributeChange,
			Category:  evidence.CategorySMS,
			Path:      leaf,
			Timestamp: ts,
			Detail:    "empty attachment directory",
		},
	}, "", nil
}

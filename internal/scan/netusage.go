package scan

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"howett.net/plist"

	"trianglescan/internal/config"
	"trianglescan/internal/evidence"
	"trianglescan/internal/snapshot"
)

// NetworkScanner inspects process data-usage accounting for known-malicious
// process names. Two artifact sources feed it: the OS analytics daily
// property list (netUsageBaseline) and the data-usage SQLite database.
//
// Exact process matches become standalone detections; implicit matches only
// contribute heuristic evidence, gated on the configured volume threshold.
type NetworkScanner struct {
	rule config.NetworkRule
}

// NewNetworkScanner returns a scanner for the given rule table.
func NewNetworkScanner(rule config.NetworkRule) *NetworkScanner {
	return &NetworkScanner{rule: rule}
}

// Category implements Scanner.
func (s *NetworkScanner) Category() evidence.Category {
	return evidence.CategoryNetwork
}

// Scan implements Scanner.
func (s *NetworkScanner) Scan(ctx context.Context, p snapshot.Provider) (Result, error) {
	var res Result

	if s.rule.AnalyticsPlist != "" {
		if err := s.scanAnalytics(p, &res); err != nil {
			return res, err
		}
	}
	if s.rule.UsageDatabase != "" {
		if err := s.scanUsageDatabase(ctx, p, &res); err != nil {
			return res, err
		}
	}

	return res, nil
}

func (s *NetworkScanner) matchExact(name string) bool {
	for _, n := range s.rule.ExactProcesses {
		if n == name {
			return true
		}
	}
	return false
}

func (s *NetworkScanner) matchImplicit(name string) bool {
	for _, n := range s.rule.ImplicitProcesses {
		if n == name {
			return true
		}
	}
	return false
}

// scanAnalytics reads the netUsageBaseline dictionary from the OS analytics
// property list. Each entry maps a process name to an array whose first
// element is the observation date, followed by transfer counters.
func (s *NetworkScanner) scanAnalytics(p snapshot.Provider, res *Result) error {
	f, err := p.Open(s.rule.AnalyticsPlist)
	if err != nil {
		switch {
		case errors.Is(err, snapshot.ErrNotFound):
			return nil
		case errors.Is(err, snapshot.ErrPermissionDenied):
			res.Warnings = append(res.Warnings, fmt.Sprintf("analytics plist %s: permission denied", s.rule.AnalyticsPlist))
			return nil
		default:
			return fmt.Errorf("open analytics plist: %w", err)
		}
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return fmt.Errorf("read analytics plist: %w", err)
	}

	var doc struct {
		NetUsageBaseline map[string][]any `plist:"netUsageBaseline"`
	}
	if _, err := plist.Unmarshal(data, &doc); err != nil {
		res.Warnings = append(res.Warnings, fmt.Sprintf("analytics plist %s: %v", s.rule.AnalyticsPlist, err))
		return nil
	}

	for name, entry := range doc.NetUsageBaseline {
		exact := s.matchExact(name)
		if !exact && !s.matchImplicit(name) {
			continue
		}
		if len(entry) == 0 {
			continue
		}
		ts, ok := entry[0].(time.Time)
		if !ok {
			continue
		}
		ts = ts.UTC()

		if exact {
			res.Detections = append(res.Detections, evidence.Detection{
				Timestamp: ts,
				Source:    "NetUsage",
				Name:      name,
			})
		}

		var volume int64
		for _, v := range entry[1:] {
			volume += asInt64(v)
		}
		if exact || volume >= s.rule.MinBytes {
			res.Evidence = append(res.Evidence, evidence.Evidence{
				Kind:      evidence.KindProcessNetworkAnomaly,
				Category:  evidence.CategoryNetwork,
				Path:      name,
				Timestamp: ts,
				Detail:    fmt.Sprintf("net usage baseline in %s", s.rule.AnalyticsPlist),
			})
		}
	}

	return nil
}

// usageRow is one process row joined with its live usage records.
type usageRow struct {
	first  sql.NullFloat64
	proc   sql.NullFloat64
	live   sql.NullFloat64
	volume int64
}

// scanUsageDatabase reads the data-usage accounting database. Timestamps in
// it are seconds since the Cocoa reference date.
func (s *NetworkScanner) scanUsageDatabase(ctx context.Context, p snapshot.Provider, res *Result) error {
	// Existence and permission are checked through the provider so absence
	// stays a non-event; the SQLite driver needs its own read-only handle.
	if _, err := p.Stat(s.rule.UsageDatabase); err != nil {
		switch {
		case errors.Is(err, snapshot.ErrNotFound):
			return nil
		case errors.Is(err, snapshot.ErrPermissionDenied):
			res.Warnings = append(res.Warnings, fmt.Sprintf("usage database %s: permission denied", s.rule.UsageDatabase))
			return nil
		default:
			return fmt.Errorf("stat usage database: %w", err)
		}
	}

	full := filepath.Join(p.Root(), filepath.FromSlash(s.rule.UsageDatabase))
	db, err := sql.Open("sqlite3", "file:"+full+"?mode=ro&immutable=1")
	if err != nil {
		return fmt.Errorf("open usage database: %w", err)
	}
	defer db.Close()

	rows, err := db.QueryContext(ctx, `
		SELECT ZPROCESS.ZFIRSTTIMESTAMP, ZPROCESS.ZTIMESTAMP, ZPROCESS.ZPROCNAME,
		       ZLIVEUSAGE.ZTIMESTAMP,
		       COALESCE(ZLIVEUSAGE.ZWIFIIN,0) + COALESCE(ZLIVEUSAGE.ZWIFIOUT,0) +
		       COALESCE(ZLIVEUSAGE.ZWWANIN,0) + COALESCE(ZLIVEUSAGE.ZWWANOUT,0)
		FROM ZPROCESS
		LEFT JOIN ZLIVEUSAGE ON ZLIVEUSAGE.ZHASPROCESS = ZPROCESS.Z_PK`)
	if err != nil {
		return fmt.Errorf("query usage database: %w", err)
	}
	defer rows.Close()

	perProcess := make(map[string][]usageRow)
	for rows.Next() {
		var name sql.NullString
		var r usageRow
		if err := rows.Scan(&r.first, &r.proc, &name, &r.live, &r.volume); err != nil {
			return fmt.Errorf("scan usage row: %w", err)
		}
		if !name.Valid {
			continue
		}
		perProcess[name.String] = append(perProcess[name.String], r)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate usage rows: %w", err)
	}

	for name, procRows := range perProcess {
		exact := s.matchExact(name)
		if !exact && !s.matchImplicit(name) {
			continue
		}

		var volume int64
		for _, r := range procRows {
			volume += r.volume
		}
		emit := exact || volume >= s.rule.MinBytes

		for _, r := range procRows {
			s.emitUsageRow(res, name, "NetFirst", r.first, exact, emit)
			s.emitUsageRow(res, name, "NetTimestamp", r.proc, exact, emit)
			s.emitUsageRow(res, name, "NetTimestamp2", r.live, exact, emit)
		}
	}

	return nil
}

// emitUsageRow records one timestamp column as a detection and/or evidence.
func (s *NetworkScanner) emitUsageRow(res *Result, name, source string, v sql.NullFloat64, exact, emit bool) {
	if !v.Valid {
		return
	}
	ts := cocoaTime(v.Float64)
	if exact {
		res.Detections = append(res.Detections, evidence.Detection{
			Timestamp: ts,
			Source:    source,
			Name:      name,
		})
	}
	if emit {
		res.Evidence = append(res.Evidence, evidence.Evidence{
			Kind:      evidence.KindProcessNetworkAnomaly,
			Category:  evidence.CategoryNetwork,
			Path:      name,
			Timestamp: ts,
			Detail:    fmt.Sprintf("%s in %s", source, s.rule.UsageDatabase),
		})
	}
}

// asInt64 coerces the numeric types a plist decoder can produce.
func asInt64(v any) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case uint64:
		return int64(n)
	case float64:
		return int64(n)
	case int:
		return int64(n)
	default:
		return 0
	}
}

// Package evidence defines the data model shared by the category scanners
// and the correlation engine: typed, timestamped observations and the
// correlated suspicion events built from them.
package evidence

import (
	"sort"
	"time"
)

// Kind identifies the type of observation a scanner produced.
type Kind string

const (
	KindFileModification         Kind = "file_modification"
	KindAttributeChange          Kind = "attribute_change"
	KindSuspiciousDirectoryState Kind = "suspicious_directory_state"
	KindProcessNetworkAnomaly    Kind = "process_network_anomaly"
	KindLocationAnomaly          Kind = "location_anomaly"
)

// Phrase returns the human-readable wording used in report bullets.
func (k Kind) Phrase() string {
	switch k {
	case KindFileModification:
		return "file modification"
	case KindAttributeChange:
		return "file attribute change"
	case KindSuspiciousDirectoryState:
		return "suspicious directory state"
	case KindProcessNetworkAnomaly:
		return "traffic by process"
	case KindLocationAnomaly:
		return "location service stopped"
	default:
		return string(k)
	}
}

// Category is one of the four independent detection domains.
type Category string

const (
	CategorySMS         Category = "sms"
	CategoryPreferences Category = "preferences"
	CategoryNetwork     Category = "network"
	CategoryLocation    Category = "location"
)

// Evidence is a single observation. Immutable once produced; the ordering
// key is (Timestamp, Path).
type Evidence struct {
	Kind      Kind      `json:"kind"`
	Category  Category  `json:"category"`
	Path      string    `json:"path"`
	Timestamp time.Time `json:"timestamp"`
	Detail    string    `json:"detail,omitempty"`
}

// Less reports whether a orders before b under the (Timestamp, Path) key.
func Less(a, b Evidence) bool {
	if !a.Timestamp.Equal(b.Timestamp) {
		return a.Timestamp.Before(b.Timestamp)
	}
	return a.Path < b.Path
}

// Sort orders evidence in place by (Timestamp, Path).
func Sort(evs []Evidence) {
	sort.SliceStable(evs, func(i, j int) bool {
		return Less(evs[i], evs[j])
	})
}

// SuspicionEvent is a correlated group of evidence from at least two
// distinct categories within the correlation window. Members are ordered by
// (Timestamp, Path) and Timestamp is the earliest member timestamp.
type SuspicionEvent struct {
	Timestamp time.Time  `json:"timestamp"`
	Members   []Evidence `json:"members"`
}

// Categories returns the distinct categories represented in the event,
// in first-seen member order.
func (e SuspicionEvent) Categories() []Category {
	seen := make(map[Category]bool, 4)
	var out []Category
	for _, m := range e.Members {
		if !seen[m.Category] {
			seen[m.Category] = true
			out = append(out, m.Category)
		}
	}
	return out
}

// Detection is an exact indicator match. Unlike heuristic evidence, a
// detection is reportable on its own and bypasses correlation.
type Detection struct {
	Timestamp time.Time `json:"timestamp"`
	Source    string    `json:"source"` // e.g. "NetUsage", "NetFirst"
	Name      string    `json:"name"`   // matched process or bundle name
}

// SortDetections orders detections by (Timestamp, Source, Name).
func SortDetections(ds []Detection) {
	sort.SliceStable(ds, func(i, j int) bool {
		a, b := ds[i], ds[j]
		if !a.Timestamp.Equal(b.Timestamp) {
			return a.Timestamp.Before(b.Timestamp)
		}
		if a.Source != b.Source {
			return a.Source < b.Source
		}
		return a.Name < b.Name
	})
}

// Package correlate groups time-ordered evidence into suspicion events.
//
// Clustering is a single left-to-right scan over sorted evidence with a
// running boundary: an item joins the current cluster while its timestamp is
// within the window of the cluster's latest member. Chaining is therefore
// transitive, and a cluster's total span may exceed the window when
// intermediate evidence bridges it.
package correlate

import (
	"sort"
	"time"

	"trianglescan/internal/evidence"
)

// Config holds the clustering policy.
type Config struct {
	// Window is the maximum timestamp gap for chaining two evidence items
	// into the same cluster.
	Window time.Duration

	// MinCategories is the number of distinct categories a cluster must
	// contain before it becomes a suspicion event. Below that the cluster
	// is discarded, no matter how large: single-category activity is normal
	// device behavior.
	MinCategories int
}

// DefaultConfig returns the clustering policy of the original tool: a five
// minute window and two distinct categories.
func DefaultConfig() Config {
	return Config{
		Window:        5 * time.Minute,
		MinCategories: 2,
	}
}

// Engine clusters evidence. It is stateless between calls: correlation is a
// batch operation over a complete evidence set, and for a fixed input and
// window the output is identical run to run.
type Engine struct {
	cfg Config
}

// New returns an engine with the given policy. Zero fields fall back to the
// defaults.
func New(cfg Config) *Engine {
	def := DefaultConfig()
	if cfg.Window <= 0 {
		cfg.Window = def.Window
	}
	if cfg.MinCategories < 2 {
		cfg.MinCategories = def.MinCategories
	}
	return &Engine{cfg: cfg}
}

// Correlate groups evidence into qualifying suspicion events, ordered
// ascending by event timestamp with ties broken by first-member path.
// The input is not mutated.
func (e *Engine) Correlate(evs []evidence.Evidence) []evidence.SuspicionEvent {
	if len(evs) == 0 {
		return nil
	}

	sorted := make([]evidence.Evidence, len(evs))
	copy(sorted, evs)
	evidence.Sort(sorted)

	var events []evidence.SuspicionEvent
	start := 0
	latest := sorted[0].Timestamp
	for i := 1; i <= len(sorted); i++ {
		if i < len(sorted) && sorted[i].Timestamp.Sub(latest) <= e.cfg.Window {
			if sorted[i].Timestamp.After(latest) {
				latest = sorted[i].Timestamp
			}
			continue
		}
		if ev, ok := e.qualify(sorted[start:i]); ok {
			events = append(events, ev)
		}
		if i < len(sorted) {
			start = i
			latest = sorted[i].Timestamp
		}
	}

	sort.SliceStable(events, func(i, j int) bool {
		a, b := events[i], events[j]
		if !a.Timestamp.Equal(b.Timestamp) {
			return a.Timestamp.Before(b.Timestamp)
		}
		return a.Members[0].Path < b.Members[0].Path
	})
	return events
}

// qualify turns a cluster into a suspicion event when it spans enough
// distinct categories.
func (e *Engine) qualify(cluster []evidence.Evidence) (evidence.SuspicionEvent, bool) {
	distinct := make(map[evidence.Category]bool, 4)
	for _, ev := range cluster {
		distinct[ev.Category] = true
	}
	if len(distinct) < e.cfg.MinCategories {
		return evidence.SuspicionEvent{}, false
	}

	members := make([]evidence.Evidence, len(cluster))
	copy(members, cluster)
	return evidence.SuspicionEvent{
		Timestamp: members[0].Timestamp,
		Members:   members,
	}, true
}

// Package report renders the scan outcome. Purely presentational: it owns
// no data and writes nothing back.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"trianglescan/internal/evidence"
)

// Timestamps render as ISO-8601 with an explicit UTC offset, matching the
// output consumed by existing triage tooling. Fractional seconds appear
// only when nonzero, as six microsecond digits.
const (
	timeLayout     = "2006-01-02 15:04:05-07:00"
	timeLayoutFrac = "2006-01-02 15:04:05.000000-07:00"
)

func formatTimestamp(t time.Time) string {
	t = t.UTC()
	if t.Nanosecond() != 0 {
		return t.Format(timeLayoutFrac)
	}
	return t.Format(timeLayout)
}

// Header printed above any findings.
const findingsHeader = "==== IDENTIFIED TRACES OF COMPROMISE (Operation Triangulation) ===="

// Line printed when the scan found nothing.
const noFindingsLine = "No traces of compromise were identified"

// Report is the complete outcome of one run.
type Report struct {
	Detections []evidence.Detection      `json:"detections,omitempty"`
	Events     []evidence.SuspicionEvent `json:"events,omitempty"`
	Warnings   []string                  `json:"warnings,omitempty"`
}

// Empty reports whether the run produced no findings of either kind.
func (r *Report) Empty() bool {
	return len(r.Detections) == 0 && len(r.Events) == 0
}

// WriteText renders the report in the plain-text shape.
func WriteText(w io.Writer, r *Report) {
	for _, warning := range r.Warnings {
		fmt.Fprintf(w, "Warning: %s\n", warning)
	}

	if r.Empty() {
		fmt.Fprintln(w, noFindingsLine)
		return
	}

	fmt.Fprintln(w, findingsHeader)
	for _, d := range r.Detections {
		fmt.Fprintf(w, "%s DETECTED Exact match by %s : %s\n",
			formatTimestamp(d.Timestamp), d.Source, d.Name)
	}
	for _, e := range r.Events {
		fmt.Fprintf(w, "%s SUSPICION Suspicious combination of events:\n",
			formatTimestamp(e.Timestamp))
		for _, m := range e.Members {
			fmt.Fprintf(w, " * %s: %s\n", m.Kind.Phrase(), m.Path)
		}
	}
}

// WriteJSON renders the report as indented JSON for downstream tooling.
func WriteJSON(w io.Writer, r *Report) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}

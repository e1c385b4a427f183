package report

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"trianglescan/internal/evidence"
)

func TestWriteTextNoFindings(t *testing.T) {
	var buf bytes.Buffer
	WriteText(&buf, &Report{})

	want := "No traces of compromise were identified\n"
	if buf.String() != want {
		t.Errorf("got %q, want %q", buf.String(), want)
	}
}

func TestWriteTextFindings(t *testing.T) {
	ts := time.Date(2023, 5, 1, 12, 0, 0, 0, time.UTC)
	r := &Report{
		Detections: []evidence.Detection{
			{Timestamp: ts, Source: "NetUsage", Name: "BackupAgent"},
		},
		Events: []evidence.SuspicionEvent{
			{
				Timestamp: ts.Add(time.Minute),
				Members: []evidence.Evidence{
					{
						Kind:      evidence.KindFileModification,
						Category:  evidence.CategorySMS,
						Path:      "private/var/mobile/Library/SMS/Attachments/ff/15",
						Timestamp: ts.Add(time.Minute),
					},
					{
						Kind:      evidence.KindLocationAnomaly,
						Category:  evidence.CategoryLocation,
						Path:      "com.apple.locationd.bundle-/System/Library/LocationBundles/IonosphereHarvest.bundle",
						Timestamp: ts.Add(2 * time.Minute),
					},
				},
			},
		},
	}

	var buf bytes.Buffer
	WriteText(&buf, r)

	want := "==== IDENTIFIED TRACES OF COMPROMISE (Operation Triangulation) ====\n" +
		"2023-05-01 12:00:00+00:00 DETECTED Exact match by NetUsage : BackupAgent\n" +
		"2023-05-01 12:01:00+00:00 SUSPICION Suspicious combination of events:\n" +
		" * file modification: private/var/mobile/Library/SMS/Attachments/ff/15\n" +
		" * location service stopped: com.apple.locationd.bundle-/System/Library/LocationBundles/IonosphereHarvest.bundle\n"
	if buf.String() != want {
		t.Errorf("report text mismatch:\ngot:\n%s\nwant:\n%s", buf.String(), want)
	}
}

func TestWriteTextNonUTCTimestampsRenderAsUTC(t *testing.T) {
	loc := time.FixedZone("CEST", 2*3600)
	ts := time.Date(2023, 5, 1, 14, 0, 0, 0, loc) // 12:00 UTC

	var buf bytes.Buffer
	WriteText(&buf, &Report{
		Detections: []evidence.Detection{{Timestamp: ts, Source: "NetFirst", Name: "BackupAgent"}},
	})

	if !strings.Contains(buf.String(), "2023-05-01 12:00:00+00:00") {
		t.Errorf("timestamps must render in UTC, got %q", buf.String())
	}
}

func TestWriteTextFractionalSeconds(t *testing.T) {
	ts := time.Date(2023, 5, 1, 12, 0, 0, 500000000, time.UTC)

	var buf bytes.Buffer
	WriteText(&buf, &Report{
		Detections: []evidence.Detection{{Timestamp: ts, Source: "NetUsage", Name: "BackupAgent"}},
	})

	if !strings.Contains(buf.String(), "2023-05-01 12:00:00.500000+00:00") {
		t.Errorf("fractional seconds must render as microseconds, got %q", buf.String())
	}
}

func TestWriteTextWarningsPrecedeReport(t *testing.T) {
	var buf bytes.Buffer
	WriteText(&buf, &Report{Warnings: []string{"category sms skipped: disk fault"}})

	out := buf.String()
	wantWarn := "Warning: category sms skipped: disk fault\n"
	if !strings.HasPrefix(out, wantWarn) {
		t.Errorf("warnings must come first, got %q", out)
	}
	if !strings.HasSuffix(out, "No traces of compromise were identified\n") {
		t.Errorf("warnings alone are not findings, got %q", out)
	}
}

func TestEmpty(t *testing.T) {
	if !(&Report{}).Empty() {
		t.Error("report with no findings should be empty")
	}
	if (&Report{Detections: []evidence.Detection{{}}}).Empty() {
		t.Error("a detection is a finding")
	}
	if (&Report{Events: []evidence.SuspicionEvent{{}}}).Empty() {
		t.Error("a suspicion event is a finding")
	}
	if !(&Report{Warnings: []string{"w"}}).Empty() {
		t.Error("warnings alone are not findings")
	}
}

func TestWriteJSONRoundTrip(t *testing.T) {
	ts := time.Date(2023, 5, 1, 12, 0, 0, 0, time.UTC)
	r := &Report{
		Events: []evidence.SuspicionEvent{
			{
				Timestamp: ts,
				Members: []evidence.Evidence{
					{Kind: evidence.KindFileModification, Category: evidence.CategorySMS, Path: "p", Timestamp: ts},
				},
			},
		},
		Warnings: []string{"w"},
	}

	var buf bytes.Buffer
	if err := WriteJSON(&buf, r); err != nil {
		t.Fatalf("WriteJSON: %v", err)
	}

	var decoded Report
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(decoded.Events) != 1 || len(decoded.Events[0].Members) != 1 {
		t.Fatalf("round trip lost data: %+v", decoded)
	}
	if decoded.Events[0].Members[0].Kind != evidence.KindFileModification {
		t.Errorf("kind lost in round trip")
	}
}

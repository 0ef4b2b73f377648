package signalqueue

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"mft-core/internal/analysis"
	"mft-core/internal/decision"
)

func testDecision(id string) decision.Decision {
	return decision.Decision{
		ID:          id,
		Symbol:      "WIN$N",
		Profile:     "moderate",
		Direction:   analysis.Buy,
		EntryPrice:  130000,
		StopPrice:   129500,
		TargetPrice: 131000,
		Confidence:  0.72,
		RiskReward:  2.0,
		GeneratedAt: time.Date(2025, 3, 10, 10, 0, 0, 0, time.UTC),
	}
}

func TestWriteThenRead(t *testing.T) {
	dir := t.TempDir()

	w, err := NewWriter(dir)
	if err != nil {
		t.Fatalf("writer: %v", err)
	}
	defer w.Close()

	ids := []string{"d-1", "d-2", "d-3"}
	for _, id := range ids {
		if err := w.Append(testDecision(id)); err != nil {
			t.Fatalf("append %s: %v", id, err)
		}
	}

	r, err := NewReader(dir)
	if err != nil {
		t.Fatalf("reader: %v", err)
	}
	got, err := r.Poll()
	if err != nil {
		t.Fatalf("poll: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 decisions, got %d", len(got))
	}
	for i, id := range ids {
		if got[i].ID != id {
			t.Errorf("decision %d: expected %s got %s", i, id, got[i].ID)
		}
	}
	if got[0].Direction != analysis.Buy || got[0].EntryPrice != 130000 {
		t.Errorf("decision fields lost in transit: %+v", got[0])
	}
}

func TestUncommittedBatchIsRedelivered(t *testing.T) {
	dir := t.TempDir()
	w, err := NewWriter(dir)
	if err != nil {
		t.Fatalf("writer: %v", err)
	}
	defer w.Close()
	if err := w.Append(testDecision("d-1")); err != nil {
		t.Fatalf("append: %v", err)
	}

	r1, err := NewReader(dir)
	if err != nil {
		t.Fatalf("reader: %v", err)
	}
	got, err := r1.Poll()
	if err != nil || len(got) != 1 {
		t.Fatalf("first poll: %v (%d decisions)", err, len(got))
	}
	// Consumer dies before Commit: a fresh reader sees the batch again.
	r2, err := NewReader(dir)
	if err != nil {
		t.Fatalf("second reader: %v", err)
	}
	got, err = r2.Poll()
	if err != nil || len(got) != 1 {
		t.Fatalf("redelivery poll: %v (%d decisions)", err, len(got))
	}
	if got[0].ID != "d-1" {
		t.Errorf("expected redelivered d-1, got %s", got[0].ID)
	}
}

func TestCommitAdvancesCursorAcrossRestart(t *testing.T) {
	dir := t.TempDir()
	w, err := NewWriter(dir)
	if err != nil {
		t.Fatalf("writer: %v", err)
	}
	defer w.Close()
	if err := w.Append(testDecision("d-1")); err != nil {
		t.Fatalf("append: %v", err)
	}

	r1, _ := NewReader(dir)
	if _, err := r1.Poll(); err != nil {
		t.Fatalf("poll: %v", err)
	}
	if err := r1.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}

	if err := w.Append(testDecision("d-2")); err != nil {
		t.Fatalf("append: %v", err)
	}

	r2, err := NewReader(dir)
	if err != nil {
		t.Fatalf("restart reader: %v", err)
	}
	got, err := r2.Poll()
	if err != nil {
		t.Fatalf("poll: %v", err)
	}
	if len(got) != 1 || got[0].ID != "d-2" {
		t.Fatalf("expected only d-2 after committed cursor, got %+v", got)
	}
}

func TestPollSkipsCorruptLine(t *testing.T) {
	dir := t.TempDir()
	w, err := NewWriter(dir)
	if err != nil {
		t.Fatalf("writer: %v", err)
	}
	if err := w.Append(testDecision("d-1")); err != nil {
		t.Fatalf("append: %v", err)
	}
	w.Close()

	f, err := os.OpenFile(filepath.Join(dir, logName), os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		t.Fatalf("open log: %v", err)
	}
	f.WriteString("{not json}\n")
	f.Close()

	w2, err := NewWriter(dir)
	if err != nil {
		t.Fatalf("reopen writer: %v", err)
	}
	defer w2.Close()
	if err := w2.Append(testDecision("d-2")); err != nil {
		t.Fatalf("append: %v", err)
	}

	r, _ := NewReader(dir)
	got, err := r.Poll()
	if err != nil {
		t.Fatalf("poll: %v", err)
	}
	if len(got) != 2 || got[0].ID != "d-1" || got[1].ID != "d-2" {
		t.Fatalf("expected d-1 and d-2 around the corrupt line, got %+v", got)
	}
}

func TestPollWithoutLogFile(t *testing.T) {
	r, err := NewReader(t.TempDir())
	if err != nil {
		t.Fatalf("reader: %v", err)
	}
	got, err := r.Poll()
	if err != nil {
		t.Fatalf("poll on empty dir: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected no decisions, got %d", len(got))
	}
}

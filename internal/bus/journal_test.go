package bus

import (
	"context"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"
)

func TestJournalRecordAndEvents(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.jsonl")

	j, err := NewJournal(path, true)
	if err != nil {
		t.Fatalf("NewJournal() error = %v", err)
	}
	defer j.Close()

	events := []Event{
		NewEvent("evt-1", EventRunStarted, RunStartedPayload{Pipelines: 2, Tables: 3}),
		NewEvent("evt-2", EventTableEvaluated, TableEvaluatedPayload{Pipeline: "query_by_entity", TableID: 7}),
	}
	for _, event := range events {
		if err := j.Record(TopicRunProgress, event); err != nil {
			t.Fatalf("Record() error = %v", err)
		}
	}

	got, err := j.Events(time.Time{}, 0)
	if err != nil {
		t.Fatalf("Events() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("Events() returned %d entries, want 2", len(got))
	}
	if got[0].Event.ID != "evt-1" || got[1].Event.ID != "evt-2" {
		t.Errorf("entries out of order: %q, %q", got[0].Event.ID, got[1].Event.ID)
	}
	if got[0].Topic != TopicRunProgress {
		t.Errorf("Topic = %q, want %q", got[0].Topic, TopicRunProgress)
	}
}

func TestJournalLimit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.jsonl")

	j, err := NewJournal(path, true)
	if err != nil {
		t.Fatalf("NewJournal() error = %v", err)
	}
	defer j.Close()

	for i := 0; i < 5; i++ {
		j.Record(TopicTableProgress, NewEvent("evt", EventTableEvaluated, nil))
	}

	got, err := j.Events(time.Time{}, 2)
	if err != nil {
		t.Fatalf("Events() error = %v", err)
	}
	if len(got) != 2 {
		t.Errorf("Events() with limit 2 returned %d entries", len(got))
	}
}

func TestJournalDisabled(t *testing.T) {
	j, err := NewJournal("", false)
	if err != nil {
		t.Fatalf("NewJournal() error = %v", err)
	}

	if err := j.Record(TopicRunProgress, Event{ID: "x"}); err != nil {
		t.Errorf("Record() on disabled journal error = %v, want nil", err)
	}
	if _, err := j.Events(time.Time{}, 0); err == nil {
		t.Error("Events() on disabled journal did not fail")
	}
	if j.Enabled() {
		t.Error("Enabled() = true for disabled journal")
	}
}

func TestJournalReplay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.jsonl")

	j, err := NewJournal(path, true)
	if err != nil {
		t.Fatalf("NewJournal() error = %v", err)
	}
	defer j.Close()

	j.Record(TopicRunProgress, NewEvent("evt-1", EventRunStarted, nil))
	j.Record(TopicRunProgress, NewEvent("evt-2", EventRunFinished, nil))

	b := NewMemoryBus()
	defer b.Close()

	var replayed atomic.Int32
	b.Subscribe(context.Background(), TopicRunProgress, func(ctx context.Context, event Event) error {
		replayed.Add(1)
		return nil
	})

	if err := j.Replay(context.Background(), b, time.Time{}); err != nil {
		t.Fatalf("Replay() error = %v", err)
	}

	if !b.Drain(time.Second) {
		t.Fatal("handlers did not finish")
	}
	if got := replayed.Load(); got != 2 {
		t.Errorf("replayed %d events, want 2", got)
	}
}

func TestJournaledBusRecords(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.jsonl")

	j, err := NewJournal(path, true)
	if err != nil {
		t.Fatalf("NewJournal() error = %v", err)
	}

	b := NewJournaledBus(NewMemoryBus(), j, nil)
	defer b.Close()

	event := NewEvent("evt-1", EventTableFailed, TableFailedPayload{Pipeline: "generate_entity", TableID: 3, Error: "boom"})
	if err := b.Publish(context.Background(), TopicTableProgress, event); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	got, err := j.Events(time.Time{}, 0)
	if err != nil {
		t.Fatalf("Events() error = %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("journal has %d entries, want 1", len(got))
	}
	if got[0].Event.ID != "evt-1" {
		t.Errorf("journaled event ID = %q", got[0].Event.ID)
	}
}

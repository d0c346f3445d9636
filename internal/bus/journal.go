package bus

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	apperrors "github.com/tablefill/table-fill/internal/pkg/errors"
)

// JournaledEvent is one journal line: the event plus where and when it
// was published.
type JournaledEvent struct {
	Event     Event     `json:"event"`
	Topic     string    `json:"topic"`
	Timestamp time.Time `json:"timestamp"`
}

// Journal records progress events to disk as JSON lines, one object per
// line, so interrupted batch runs can be inspected and replayed.
type Journal struct {
	path    string
	mu      sync.Mutex
	file    *os.File
	enabled bool
	encoder *json.Encoder
}

// NewJournal opens a journal at path. When enabled is false the journal
// is created but never writes.
func NewJournal(path string, enabled bool) (*Journal, error) {
	j := &Journal{
		path:    path,
		enabled: enabled,
	}

	if !enabled {
		return j, nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, apperrors.StorageError("creating journal directory", err)
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, apperrors.StorageError("opening journal file", err)
	}

	j.file = file
	j.encoder = json.NewEncoder(file)

	return j, nil
}

// Record appends one event to the journal. A disabled journal is a no-op.
func (j *Journal) Record(topic string, event Event) error {
	if !j.enabled {
		return nil
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	if j.file == nil {
		return apperrors.New(apperrors.CodeInternal, "journal not initialized")
	}

	entry := JournaledEvent{
		Event:     event,
		Topic:     topic,
		Timestamp: time.Now(),
	}

	if err := j.encoder.Encode(entry); err != nil {
		return apperrors.StorageError("encoding journal entry", err)
	}

	if err := j.file.Sync(); err != nil {
		return apperrors.StorageError("syncing journal file", err)
	}

	return nil
}

// Events reads journal entries recorded after since, in order. A limit of
// zero means no limit. Malformed lines are skipped.
func (j *Journal) Events(since time.Time, limit int) ([]JournaledEvent, error) {
	if !j.enabled {
		return nil, apperrors.New(apperrors.CodeInternal, "journal is disabled")
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	file, err := os.Open(j.path)
	if err != nil {
		if os.IsNotExist(err) {
			return []JournaledEvent{}, nil
		}
		return nil, apperrors.StorageError("opening journal file", err)
	}
	defer file.Close()

	var events []JournaledEvent
	scanner := bufio.NewScanner(file)

	const maxScanTokenSize = 1024 * 1024
	buf := make([]byte, maxScanTokenSize)
	scanner.Buffer(buf, maxScanTokenSize)

	for scanner.Scan() {
		var entry JournaledEvent
		if err := json.Unmarshal(scanner.Bytes(), &entry); err != nil {
			continue
		}

		if entry.Timestamp.After(since) {
			events = append(events, entry)

			if limit > 0 && len(events) >= limit {
				break
			}
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, apperrors.StorageError("scanning journal file", err)
	}

	return events, nil
}

// Replay republishes journal entries recorded after since onto the bus.
func (j *Journal) Replay(ctx context.Context, b Bus, since time.Time) error {
	if !j.enabled {
		return apperrors.New(apperrors.CodeInternal, "journal is disabled")
	}

	events, err := j.Events(since, 0)
	if err != nil {
		return err
	}

	for _, entry := range events {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
			if err := b.Publish(ctx, entry.Topic, entry.Event); err != nil {
				return apperrors.Wrap(apperrors.CodeInternal, "replaying journal entry "+entry.Event.ID, err)
			}
		}
	}

	return nil
}

// Close closes the journal file.
func (j *Journal) Close() error {
	if !j.enabled {
		return nil
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	if j.file != nil {
		if err := j.file.Close(); err != nil {
			return apperrors.StorageError("closing journal file", err)
		}
		j.file = nil
		j.encoder = nil
	}

	return nil
}

// Enabled reports whether the journal writes entries.
func (j *Journal) Enabled() bool {
	return j.enabled
}

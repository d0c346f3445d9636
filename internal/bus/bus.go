// Package bus publishes experiment progress events to interested consumers.
package bus

import (
	"context"
	"time"
)

// Handler is a function that handles events.
type Handler func(ctx context.Context, event Event) error

// Bus is the interface progress events are published through.
type Bus interface {
	// Publish publishes an event to a topic.
	Publish(ctx context.Context, topic string, event Event) error

	// Subscribe registers a handler for events on a topic.
	Subscribe(ctx context.Context, topic string, handler Handler) error

	// Close closes the bus and releases resources.
	Close() error
}

// Event represents one progress event of an experiment run.
type Event struct {
	// ID is the unique event identifier.
	ID string `json:"id"`

	// Type is the event type, one of the Event* constants.
	Type string `json:"type"`

	// Source names the component that generated the event.
	Source string `json:"source"`

	// Timestamp is when the event was created (unix milliseconds).
	Timestamp int64 `json:"timestamp"`

	// Payload contains the event data.
	Payload any `json:"payload"`
}

// Topics experiment events are published on.
const (
	TopicRunProgress   = "experiment.run"
	TopicTableProgress = "experiment.table"
)

// Event types.
const (
	EventRunStarted      = "run.started"
	EventRunFinished     = "run.finished"
	EventPipelineStarted = "pipeline.started"
	EventTableEvaluated  = "table.evaluated"
	EventTableFailed     = "table.failed"
)

// RunStartedPayload announces a starting experiment run.
type RunStartedPayload struct {
	Pipelines  int    `json:"pipelines"`
	Tables     int    `json:"tables"`
	Experiment string `json:"experiment"`
}

// RunFinishedPayload carries the outcome of a finished run.
type RunFinishedPayload struct {
	Results   int    `json:"results"`
	Failures  int    `json:"failures"`
	ElapsedMs int64  `json:"elapsed_ms"`
	Output    string `json:"output"`
}

// PipelineStartedPayload announces one pipeline starting its tables.
type PipelineStartedPayload struct {
	Pipeline string `json:"pipeline"`
	Tables   int    `json:"tables"`
}

// TableEvaluatedPayload reports one evaluated query table.
type TableEvaluatedPayload struct {
	Pipeline  string `json:"pipeline"`
	TableID   int    `json:"table_id"`
	Results   int    `json:"results"`
	ElapsedMs int64  `json:"elapsed_ms"`
}

// TableFailedPayload reports one query table that could not be evaluated.
type TableFailedPayload struct {
	Pipeline string `json:"pipeline"`
	TableID  int    `json:"table_id"`
	Error    string `json:"error"`
}

// NewEvent builds an event with source and timestamp filled in.
func NewEvent(id, eventType string, payload any) Event {
	return Event{
		ID:        id,
		Type:      eventType,
		Source:    "table-fill",
		Timestamp: time.Now().UnixMilli(),
		Payload:   payload,
	}
}

package core

import (
	"context"
	"time"
)

// Processor is the base interface shared by triggers and collectors.
type Processor interface {
	// Name returns the processor name
	Name() string
	// Validate checks if the processor configuration is valid
	Validate() error
}

type SnapshotConfig struct {
	Snapshot bool   `json:"snapshot" yaml:"snapshot"`
	Restore  bool   `json:"restore" yaml:"restore"`
	Path     string `json:"path" yaml:"path"`
}

// TriggerEvent represents a trigger firing
type TriggerEvent struct {
	Timestamp time.Time
	Reason    string
}

// TriggerProcessor defines when check cycles run.
type TriggerProcessor interface {
	Processor
	// Start begins the trigger and returns a channel of trigger events.
	// Events that cannot be delivered because a cycle is still running are dropped.
	Start(ctx context.Context) (<-chan TriggerEvent, error)
	// Stop gracefully shuts down the trigger
	Stop() error
}

// Collector discovers candidate free games for one store. A collector failure
// is local to its store.
type Collector interface {
	Processor
	// Store returns the store every record from this collector belongs to.
	Store() Store
	// Collect fetches the current candidates. The result is finite and may be empty.
	Collect(ctx context.Context) ([]GameRecord, error)
}

// Dispatcher delivers a notification for one record.
type Dispatcher interface {
	Notify(ctx context.Context, record GameRecord) DispatchResult
}

// RecordFilter drops records before dedup (platform filters, user rules).
type RecordFilter interface {
	Name() string
	Keep(ctx context.Context, record GameRecord) (bool, error)
}

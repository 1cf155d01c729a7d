package core

import (
	"time"
)

// CycleStatus represents the current state of a check cycle
type CycleStatus string

const (
	CycleStatusRunning   CycleStatus = "running"
	CycleStatusCompleted CycleStatus = "completed"
	CycleStatusPartial   CycleStatus = "partial"
	CycleStatusCancelled CycleStatus = "cancelled"
)

// StoreStage is the step a store reached within a cycle.
type StoreStage string

const (
	StageCollecting  StoreStage = "collecting"
	StageFiltering   StoreStage = "filtering"
	StageDispatching StoreStage = "dispatching"
	StageDone        StoreStage = "done"
)

// CycleReport summarises one complete pass over all configured stores.
type CycleReport struct {
	ID          string         `json:"id" yaml:"id"`
	StartedAt   time.Time      `json:"started_at" yaml:"started_at"`
	CompletedAt *time.Time     `json:"completed_at,omitempty" yaml:"completed_at,omitempty"`
	Status      CycleStatus    `json:"status" yaml:"status"`
	Reason      string         `json:"reason,omitempty" yaml:"reason,omitempty"`
	Stores      []*StoreReport `json:"stores" yaml:"stores"`
}

// Store returns the report for the given store, or nil.
func (r *CycleReport) Store(store Store) *StoreReport {
	if r == nil {
		return nil
	}
	for _, s := range r.Stores {
		if s.Store == store {
			return s
		}
	}
	return nil
}

// Delivered counts notifications delivered across all stores.
func (r *CycleReport) Delivered() int {
	if r == nil {
		return 0
	}
	total := 0
	for _, s := range r.Stores {
		total += s.Delivered
	}
	return total
}

// StoreReport holds per-store counters for a cycle.
type StoreReport struct {
	Store     Store        `json:"store" yaml:"store"`
	Stage     StoreStage   `json:"stage" yaml:"stage"`
	Collected int          `json:"collected" yaml:"collected"`
	Filtered  int          `json:"filtered" yaml:"filtered"`
	Seen      int          `json:"seen" yaml:"seen"`
	New       int          `json:"new" yaml:"new"`
	Delivered int          `json:"delivered" yaml:"delivered"`
	Failed    int          `json:"failed" yaml:"failed"`
	Skipped   bool         `json:"skipped,omitempty" yaml:"skipped,omitempty"`
	Errors    []StoreError `json:"errors,omitempty" yaml:"errors,omitempty"`
}

// StoreError records a failure that happened while processing a store.
type StoreError struct {
	Stage      StoreStage `json:"stage" yaml:"stage"`
	Source     string     `json:"source,omitempty" yaml:"source,omitempty"`
	Error      string     `json:"error" yaml:"error"`
	OccurredAt time.Time  `json:"occurred_at" yaml:"occurred_at"`
	Err        error      `json:"-" yaml:"-"`
}

func (s *StoreReport) AddError(stage StoreStage, source string, err error) {
	if err == nil {
		return
	}
	s.Errors = append(s.Errors, StoreError{
		Stage:      stage,
		Source:     source,
		Error:      err.Error(),
		OccurredAt: time.Now().UTC(),
		Err:        err,
	})
}

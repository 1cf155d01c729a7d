package core

import (
	"errors"
	"fmt"
)

// ErrCycleInProgress is returned when a cycle is requested while another one is running.
var ErrCycleInProgress = errors.New("check cycle already in progress")

// ErrStopped is returned when a cycle is requested after shutdown has begun.
var ErrStopped = errors.New("runner is stopping")

// CollectorError is a scraping, network or parsing failure local to one store.
type CollectorError struct {
	Store     Store
	Collector string
	Err       error
}

func (e *CollectorError) Error() string {
	return fmt.Sprintf("collector %s (%s): %v", e.Collector, e.Store, e.Err)
}

func (e *CollectorError) Unwrap() error { return e.Err }

// DispatchError is a webhook delivery failure. The record stays unmarked.
type DispatchError struct {
	Store Store
	ID    string
	Err   error
}

func (e *DispatchError) Error() string {
	return fmt.Sprintf("dispatch %s/%s: %v", e.Store, e.ID, e.Err)
}

func (e *DispatchError) Unwrap() error { return e.Err }

// PersistenceError means the seen set for a partition could not be read or
// written; notifications for that partition may be duplicated.
type PersistenceError struct {
	Partition string
	Op        string
	Path      string
	Err       error
}

func (e *PersistenceError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("seen store %s %s (%s): %v", e.Op, e.Partition, e.Path, e.Err)
	}
	return fmt.Sprintf("seen store %s %s: %v", e.Op, e.Partition, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// Package queue provides the Redis-backed work queue that receives dispatched
// work items and hands them to workers.
package queue

import (
	"errors"
	"strings"
	"time"
)

var (
	// ErrEmpty indicates no item became available before the wait timed out.
	ErrEmpty = errors.New("queue empty")

	// ErrInvalidEntry indicates a stored entry could not be decoded.
	ErrInvalidEntry = errors.New("invalid queue entry")

	// ErrEmptyReference is returned when adding an item without a reference.
	ErrEmptyReference = errors.New("item reference is required")
)

// Item is the submitted work item.
type Item struct {
	Reference string         `json:"reference"`
	Data      map[string]any `json:"data"`
}

// Entry is the stored envelope around an item.
type Entry struct {
	Item Item `json:"item"`

	// EnqueuedAt is when the item was pushed.
	EnqueuedAt time.Time `json:"enqueued_at"`
}

// Age returns how long the entry has been waiting.
func (e *Entry) Age() time.Duration {
	if e.EnqueuedAt.IsZero() {
		return 0
	}
	return time.Since(e.EnqueuedAt)
}

// Keys derives the Redis keys used by one named queue.
type Keys struct {
	Name string
}

// List is the key of the pending item list.
// Format: termsync:queue:<name>
func (k Keys) List() string {
	return "termsync:queue:" + k.normalized()
}

// Reference is the key marking a reference as already enqueued.
// Format: termsync:queue:<name>:ref:<reference>
func (k Keys) Reference(reference string) string {
	return k.List() + ":ref:" + reference
}

func (k Keys) normalized() string {
	name := strings.TrimSpace(k.Name)
	if name == "" {
		return "default"
	}
	return strings.ReplaceAll(name, ":", "_")
}

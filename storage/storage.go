// Package storage persists committed exchange events.
package storage

import (
	"context"
	"errors"

	"github.com/defistate/defistate-dex-go/dex"
)

var (
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("not found")
)

// EventWriter is a sink for committed exchange events.
//
// Events arrive in batches that the caller reuses after WriteEvents returns. A writer may
// see the same event twice and must treat a repeated event ID as already written.
type EventWriter interface {
	WriteEvents(ctx context.Context, events []dex.Event) error
}

// Logger defines a standard interface for structured, leveled logging.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

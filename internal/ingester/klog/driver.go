package klog

import (
	"context"
	"errors"
	"time"
)

// ErrDriverClosed is returned by Driver.Read when the log source has
// been cleanly shut down (Stop was called or the source ended). It is
// the stop signal, not a failure.
var ErrDriverClosed = errors.New("kernel log source closed")

// RawLine is one kernel log entry as delivered by a driver. Stamp is
// the capture time when the source provides one; zero otherwise.
type RawLine struct {
	Data  []byte
	Stamp time.Time
}

// InternalLogger posts a driver diagnostic through the same queue that
// carries kernel messages, at the given severity.
type InternalLogger func(severity int, text string)

// Driver abstracts the OS-specific kernel log source. One
// implementation per platform, selected at construction time.
//
// Read blocks until a line is available, ctx is cancelled, or the
// source stops. Drivers report their own diagnostics through the
// InternalLogger they were constructed with.
type Driver interface {
	// Start opens the log source and prepares it for reading.
	Start() error

	// Read returns the next line. It returns ErrDriverClosed on a
	// clean stop and ctx.Err() when the context is cancelled; any
	// other error is fatal for the ingestion run.
	Read(ctx context.Context) (RawLine, error)

	// Stop closes the log source, unblocking any pending Read.
	Stop() error
}

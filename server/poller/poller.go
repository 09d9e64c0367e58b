// Package poller drives inventory runs: it invokes the GLPI agent for a
// device, feeds the report through the reconciliation pipeline, persists
// the outcome and broadcasts progress.
package poller

import (
	"context"
	"errors"
)

var (
	// ErrAlreadyRunning is returned when a run for the printer is in flight.
	ErrAlreadyRunning = errors.New("inventory already running for printer")
	// ErrQueueFull is returned when the work queue cannot take another job.
	ErrQueueFull = errors.New("inventory queue is full")
	// ErrStopped is returned after the service has been stopped.
	ErrStopped = errors.New("inventory service stopped")
	// ErrNoReport is returned when the agent finished but left no XML.
	ErrNoReport = errors.New("agent produced no XML report")
)

// Target identifies a device to poll.
type Target struct {
	IP        string
	Community string
}

// Poller produces an inventory report for a target and returns the path
// of the XML file it wrote.
type Poller interface {
	Poll(ctx context.Context, t Target) (string, error)
}

// PollerFunc adapts a function to the Poller interface.
type PollerFunc func(ctx context.Context, t Target) (string, error)

// Poll calls f.
func (f PollerFunc) Poll(ctx context.Context, t Target) (string, error) {
	return f(ctx, t)
}

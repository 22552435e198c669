package supervisor

import (
	"context"
	"time"
)

type ExitReason string

const (
	ReasonExit      ExitReason = "exit"
	ReasonTimeout   ExitReason = "timeout"
	ReasonSignal    ExitReason = "signal"
	ReasonCancelled ExitReason = "cancelled"
)

// ExitStatus describes how a supervised process ended.
type ExitStatus struct {
	Reason ExitReason
	Code   int
	Signal string
}

// SpawnOptions configures one supervised run. OnOutput receives raw
// stdout/stderr chunks from a dedicated reader; all OnOutput calls finish
// before Wait resolves.
type SpawnOptions struct {
	// RunID names the run; a fresh identifier is generated when empty.
	RunID    string
	Command  string
	Dir      string
	Timeout  time.Duration
	OnOutput func(chunk []byte)
}

// Handle is a live supervised process.
type Handle interface {
	RunID() string
	PID() int
	// Write sends data to the child's input.
	Write(data string) error
	// Wait blocks until the process ends and returns its exit status.
	Wait(ctx context.Context) (ExitStatus, error)
	// Cancel requests termination; the eventual status reports ReasonCancelled.
	Cancel(reason string)
	// Alive reports whether the process is still running. Observability only.
	Alive() bool
}

// Supervisor owns process spawn, exit and cancellation.
type Supervisor interface {
	Spawn(ctx context.Context, opts SpawnOptions) (Handle, error)
}

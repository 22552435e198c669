package bridge

import (
	"context"
	"log/slog"
	"time"

	"promptbridge/internal/policy"
	"promptbridge/internal/promptdetect"
	"promptbridge/internal/supervisor"
)

const (
	defaultTranscriptCap    = 16384
	defaultDetectionTailCap = 2048

	// A prompt with the same signature reappearing within this window is
	// treated as the same still-unresolved prompt and not re-dispatched.
	signatureDedupWindow = 2000 * time.Millisecond

	defaultHeartbeatInterval = 500 * time.Millisecond
)

// PromptSource records who answered a prompt.
type PromptSource string

const (
	SourceAuto   PromptSource = "auto"
	SourceManual PromptSource = "manual"
)

// PromptEvent is the audit record of one resolved prompt.
type PromptEvent struct {
	Kind     promptdetect.Kind
	Text     string
	Source   PromptSource
	Response string
	At       time.Time
}

// Responder resolves a deferred prompt out of band. It may take
// arbitrarily long; output keeps being absorbed and buffered meanwhile.
type Responder func(ctx context.Context, match promptdetect.Match) (string, error)

// Options configures one bridged session.
type Options struct {
	// RunID pre-assigns the run identifier, letting callers name the log
	// file before spawn. Generated by the supervisor when empty.
	RunID   string
	Command string
	Dir     string
	Timeout time.Duration
	Mode    policy.Mode

	// LogPath is the append-only output log. Parent directories are
	// created as needed.
	LogPath string

	// OnOutput receives forwarded (non-suppressed) sanitized chunks.
	OnOutput func(chunk string)

	// Responder handles prompts the policy defers. Required whenever the
	// mode can defer; a deferred prompt without a responder is fatal.
	Responder Responder

	// Supervisor overrides the process supervisor, mainly for tests.
	Supervisor supervisor.Supervisor

	Logger *slog.Logger

	TranscriptCap     int
	DetectionTailCap  int
	HeartbeatInterval time.Duration
}

// Result is the final outcome of a bridged session.
type Result struct {
	RunID      string
	PID        int
	Exit       supervisor.ExitStatus
	Events     []PromptEvent
	Transcript string
	Heartbeats int
	LogPath    string
}

package bridge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"promptbridge/internal/logging"
	"promptbridge/internal/policy"
	"promptbridge/internal/promptdetect"
	"promptbridge/internal/supervisor"
)

// ErrResponderRequired is returned when the policy defers a prompt and no
// manual responder is configured.
var ErrResponderRequired = errors.New("prompt deferred but no responder configured")

type outputMsg struct {
	data string
}

type exitMsg struct {
	status supervisor.ExitStatus
	err    error
}

type promptDoneMsg struct {
	event PromptEvent
	err   error
}

// session owns all mutable run state. Every field below the deps block is
// touched only from the run loop; prompt tasks and the process waiter
// re-enter the loop through msgs instead of sharing state.
type session struct {
	ctx       context.Context
	logger    *slog.Logger
	handle    supervisor.Handle
	msgs      chan any
	logFile   *os.File
	logPath   string
	mode      policy.Mode
	onOutput  func(string)
	responder Responder

	transcriptCap int
	tailCap       int

	transcript  string
	tail        string
	suppressing bool
	buffer      string
	promptBusy  bool
	fatalErr    error
	lastSig     string
	lastSigAt   time.Time
	events      []PromptEvent
	heartbeats  int
	exited      bool
	exit        supervisor.ExitStatus
}

// Run executes a bridged session to completion and returns its result. A
// fatal prompt-handling failure is returned as an error and takes
// precedence over the process's own exit, clean or not.
func Run(ctx context.Context, opts Options) (*Result, error) {
	if strings.TrimSpace(opts.Command) == "" {
		return nil, errors.New("command is required")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewDiscard()
	}
	mode := opts.Mode
	if mode == "" {
		mode = policy.ModeOff
	}
	transcriptCap := opts.TranscriptCap
	if transcriptCap <= 0 {
		transcriptCap = defaultTranscriptCap
	}
	tailCap := opts.DetectionTailCap
	if tailCap <= 0 {
		tailCap = defaultDetectionTailCap
	}
	heartbeatInterval := opts.HeartbeatInterval
	if heartbeatInterval <= 0 {
		heartbeatInterval = defaultHeartbeatInterval
	}

	var logFile *os.File
	if opts.LogPath != "" {
		if err := os.MkdirAll(filepath.Dir(opts.LogPath), 0o755); err != nil {
			return nil, err
		}
		f, err := os.OpenFile(opts.LogPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, err
		}
		logFile = f
		defer func() { _ = f.Close() }()
	}

	sup := opts.Supervisor
	if sup == nil {
		sup = supervisor.NewPTY(logger)
	}

	// Output delivery is a bounded channel fed by the supervisor's reader;
	// the callback itself never does more than enqueue.
	msgs := make(chan any, 256)
	handle, err := sup.Spawn(ctx, supervisor.SpawnOptions{
		RunID:   opts.RunID,
		Command: opts.Command,
		Dir:     opts.Dir,
		Timeout: opts.Timeout,
		OnOutput: func(chunk []byte) {
			msgs <- outputMsg{data: string(chunk)}
		},
	})
	if err != nil {
		return nil, err
	}

	go func() {
		status, waitErr := handle.Wait(context.Background())
		msgs <- exitMsg{status: status, err: waitErr}
	}()

	s := &session{
		ctx:           ctx,
		logger:        logger,
		handle:        handle,
		msgs:          msgs,
		logFile:       logFile,
		logPath:       opts.LogPath,
		mode:          mode,
		onOutput:      opts.OnOutput,
		responder:     opts.Responder,
		transcriptCap: transcriptCap,
		tailCap:       tailCap,
	}
	return s.run(heartbeatInterval)
}

func (s *session) run(heartbeatInterval time.Duration) (*Result, error) {
	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()

	ctxDone := s.ctx.Done()
	for {
		select {
		case <-ctxDone:
			ctxDone = nil
			s.handle.Cancel("session context cancelled")
		case <-ticker.C:
			s.heartbeats++
			if !s.exited && !s.handle.Alive() {
				s.logger.Debug("heartbeat: process not running", "run_id", s.handle.RunID())
			}
		case m := <-s.msgs:
			switch msg := m.(type) {
			case outputMsg:
				s.absorb(msg.data)
				s.maybeHandlePrompt()
			case promptDoneMsg:
				s.finishPrompt(msg)
			case exitMsg:
				s.exited = true
				s.exit = msg.status
				if msg.err != nil && s.fatalErr == nil {
					s.fatalErr = fmt.Errorf("wait for process: %w", msg.err)
				}
			}
		}
		// A prompt task still in flight defers completion until it
		// re-enters the loop.
		if s.exited && !s.promptBusy {
			break
		}
	}

	if s.fatalErr != nil {
		return nil, s.fatalErr
	}
	return &Result{
		RunID:      s.handle.RunID(),
		PID:        s.handle.PID(),
		Exit:       s.exit,
		Events:     s.events,
		Transcript: s.transcript,
		Heartbeats: s.heartbeats,
		LogPath:    s.logPath,
	}, nil
}

// absorb folds one raw chunk into log, transcript and detection tail, then
// either forwards it or buffers it while a manual prompt is pending.
func (s *session) absorb(raw string) {
	clean := sanitizeChunk(raw)
	if clean == "" {
		return
	}
	if s.logFile != nil {
		if _, err := s.logFile.WriteString(clean); err != nil {
			s.logger.Warn("output log write failed", "err", err)
		}
	}
	s.transcript = capTail(s.transcript+clean, s.transcriptCap)
	s.tail = capTail(s.tail+clean, s.tailCap)
	if s.suppressing {
		s.buffer += clean
		return
	}
	s.forward(clean)
}

func (s *session) forward(chunk string) {
	if s.onOutput != nil {
		s.onOutput(chunk)
	}
}

func (s *session) maybeHandlePrompt() {
	if s.promptBusy || s.fatalErr != nil || s.handle == nil {
		return
	}
	match, ok := promptdetect.Classify(s.tail)
	if !ok {
		return
	}
	sig := signature(match)
	now := time.Now()
	if sig == s.lastSig && now.Sub(s.lastSigAt) < signatureDedupWindow {
		return
	}
	s.lastSig = sig
	s.lastSigAt = now

	decision := policy.Decide(s.mode, match)
	if decision.Respond {
		s.promptBusy = true
		go s.answer(match, decision.Response, SourceAuto)
		return
	}
	if s.responder == nil {
		s.fatalErr = fmt.Errorf("%w: %s prompt %q", ErrResponderRequired, match.Kind, match.Text)
		s.logger.Error("prompt deferred without responder", "kind", match.Kind, "text", match.Text)
		s.handle.Cancel("prompt requires manual response")
		return
	}
	s.promptBusy = true
	s.suppressing = true
	s.logger.Info("prompt deferred to responder", "kind", match.Kind, "text", match.Text)
	go s.askResponder(match)
}

// answer runs off the loop; it only writes to the child and re-enters
// through msgs.
func (s *session) answer(match promptdetect.Match, response string, source PromptSource) {
	err := s.handle.Write(response + "\n")
	s.msgs <- promptDoneMsg{
		event: PromptEvent{
			Kind:     match.Kind,
			Text:     match.Text,
			Source:   source,
			Response: response,
			At:       time.Now().UTC(),
		},
		err: err,
	}
}

func (s *session) askResponder(match promptdetect.Match) {
	response, err := s.responder(s.ctx, match)
	if err != nil {
		s.msgs <- promptDoneMsg{err: fmt.Errorf("manual responder: %w", err)}
		return
	}
	s.answer(match, response, SourceManual)
}

func (s *session) finishPrompt(msg promptDoneMsg) {
	s.promptBusy = false
	if msg.err != nil {
		if s.fatalErr == nil {
			s.fatalErr = msg.err
		}
		s.logger.Error("prompt handling failed", "err", msg.err)
		s.handle.Cancel("prompt handling failed")
	} else {
		s.events = append(s.events, msg.event)
		// The answered prompt text stays visible in the child's echo;
		// an empty tail keeps it from matching again.
		s.tail = ""
		s.logger.Info("prompt answered", "kind", msg.event.Kind, "source", msg.event.Source, "response", msg.event.Response)
	}
	if s.suppressing {
		s.suppressing = false
		if s.buffer != "" {
			s.forward(s.buffer)
			s.buffer = ""
		}
	}
}

// signature collapses a match into a dedup key: kind plus lowercased,
// whitespace-collapsed text.
func signature(match promptdetect.Match) string {
	normalized := strings.Join(strings.Fields(strings.ToLower(match.Text)), " ")
	return string(match.Kind) + "\x00" + normalized
}

// capTail keeps only the trailing max bytes, cutting on a rune boundary.
func capTail(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	cut := len(s) - max
	for cut < len(s) && !utf8.RuneStart(s[cut]) {
		cut++
	}
	return s[cut:]
}

package supervisor

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/creack/pty"
	"github.com/google/uuid"
	"github.com/shirou/gopsutil/v4/process"
)

const readBufferSize = 4096

// PTY runs commands attached to a pseudo-terminal so interactive programs
// behave as if a human were at the keyboard.
type PTY struct {
	logger *slog.Logger
}

func NewPTY(logger *slog.Logger) *PTY {
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	return &PTY{logger: logger}
}

func (s *PTY) Spawn(ctx context.Context, opts SpawnOptions) (Handle, error) {
	command := strings.TrimSpace(opts.Command)
	if command == "" {
		return nil, errors.New("command is required")
	}
	cmd := exec.Command("/bin/sh", "-c", command)
	cmd.Dir = opts.Dir
	cmd.Env = append(os.Environ(), "TERM=xterm-256color")

	ptmx, err := pty.Start(cmd)
	if err != nil {
		return nil, err
	}

	runID := strings.TrimSpace(opts.RunID)
	if runID == "" {
		runID = uuid.NewString()
	}
	h := &ptyHandle{
		runID:  runID,
		pid:    cmd.Process.Pid,
		cmd:    cmd,
		ptmx:   ptmx,
		logger: s.logger,
		done:   make(chan struct{}),
	}

	readerDone := make(chan struct{})
	go h.readLoop(opts.OnOutput, readerDone)
	go h.waitLoop(readerDone)
	if opts.Timeout > 0 {
		go h.timeoutLoop(opts.Timeout)
	}
	if ctx != nil && ctx.Done() != nil {
		go func() {
			select {
			case <-h.done:
			case <-ctx.Done():
				h.kill(ReasonCancelled)
			}
		}()
	}

	s.logger.Debug("spawned", "run_id", h.runID, "pid", h.pid, "command", command)
	return h, nil
}

type ptyHandle struct {
	runID  string
	pid    int
	cmd    *exec.Cmd
	ptmx   *os.File
	logger *slog.Logger

	mu       sync.Mutex
	override ExitReason

	done   chan struct{}
	status ExitStatus
}

func (h *ptyHandle) RunID() string { return h.runID }

func (h *ptyHandle) PID() int { return h.pid }

func (h *ptyHandle) Write(data string) error {
	_, err := io.WriteString(h.ptmx, data)
	return err
}

func (h *ptyHandle) Wait(ctx context.Context) (ExitStatus, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	select {
	case <-ctx.Done():
		return ExitStatus{}, ctx.Err()
	case <-h.done:
		return h.status, nil
	}
}

func (h *ptyHandle) Cancel(reason string) {
	h.logger.Debug("cancel requested", "run_id", h.runID, "reason", reason)
	h.kill(ReasonCancelled)
}

func (h *ptyHandle) Alive() bool {
	proc, err := process.NewProcess(int32(h.pid))
	if err != nil {
		return false
	}
	running, err := proc.IsRunning()
	return err == nil && running
}

// readLoop drains the PTY until the child side closes. Reads past child
// exit surface as EIO on Linux; both that and EOF end the loop normally.
func (h *ptyHandle) readLoop(onOutput func([]byte), readerDone chan struct{}) {
	defer close(readerDone)
	buf := make([]byte, readBufferSize)
	for {
		n, err := h.ptmx.Read(buf)
		if n > 0 && onOutput != nil {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			onOutput(chunk)
		}
		if err != nil {
			return
		}
	}
}

// waitLoop resolves the exit status only after the reader has delivered
// every chunk, so callers observe all output before Wait returns.
func (h *ptyHandle) waitLoop(readerDone <-chan struct{}) {
	<-readerDone
	err := h.cmd.Wait()
	_ = h.ptmx.Close()

	h.mu.Lock()
	override := h.override
	h.mu.Unlock()

	status := ExitStatus{Reason: ReasonExit}
	state := h.cmd.ProcessState
	if state != nil {
		status.Code = state.ExitCode()
	} else if err != nil {
		status.Code = -1
	}
	if override != "" {
		status.Reason = override
	} else if state != nil {
		if ws, ok := state.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
			status.Reason = ReasonSignal
			status.Signal = ws.Signal().String()
		}
	}

	h.status = status
	close(h.done)
	h.logger.Debug("process ended", "run_id", h.runID, "reason", status.Reason, "code", status.Code)
}

func (h *ptyHandle) timeoutLoop(timeout time.Duration) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-h.done:
	case <-timer.C:
		h.kill(ReasonTimeout)
	}
}

func (h *ptyHandle) kill(reason ExitReason) {
	h.mu.Lock()
	if h.override == "" {
		h.override = reason
	}
	h.mu.Unlock()
	if h.cmd.Process != nil {
		_ = h.cmd.Process.Kill()
	}
}

package bridge

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"promptbridge/internal/policy"
	"promptbridge/internal/promptdetect"
	"promptbridge/internal/supervisor"
)

type fakeProcess struct {
	onOutput func([]byte)
	writeCh  chan string
	cancelCh chan struct{}

	exitOnce   sync.Once
	cancelOnce sync.Once
	done       chan struct{}
	status     supervisor.ExitStatus
}

func newFakeProcess() *fakeProcess {
	return &fakeProcess{
		writeCh:  make(chan string),
		cancelCh: make(chan struct{}),
		done:     make(chan struct{}),
	}
}

func (p *fakeProcess) RunID() string { return "run-fake" }

func (p *fakeProcess) PID() int { return 4242 }

func (p *fakeProcess) Write(data string) error {
	p.writeCh <- data
	return nil
}

func (p *fakeProcess) Wait(ctx context.Context) (supervisor.ExitStatus, error) {
	select {
	case <-ctx.Done():
		return supervisor.ExitStatus{}, ctx.Err()
	case <-p.done:
		return p.status, nil
	}
}

func (p *fakeProcess) Cancel(string) {
	p.cancelOnce.Do(func() { close(p.cancelCh) })
	p.exit(supervisor.ExitStatus{Reason: supervisor.ReasonCancelled, Code: -1})
}

func (p *fakeProcess) Alive() bool {
	select {
	case <-p.done:
		return false
	default:
		return true
	}
}

func (p *fakeProcess) emit(text string) {
	p.onOutput([]byte(text))
}

func (p *fakeProcess) exit(status supervisor.ExitStatus) {
	p.exitOnce.Do(func() {
		p.status = status
		close(p.done)
	})
}

type fakeSupervisor struct {
	proc   *fakeProcess
	script func(p *fakeProcess)
}

func (s *fakeSupervisor) Spawn(_ context.Context, opts supervisor.SpawnOptions) (supervisor.Handle, error) {
	s.proc.onOutput = opts.OnOutput
	go s.script(s.proc)
	return s.proc, nil
}

func runScripted(t *testing.T, opts Options, script func(p *fakeProcess)) (*Result, error) {
	t.Helper()
	sup := &fakeSupervisor{proc: newFakeProcess(), script: script}
	opts.Supervisor = sup
	if opts.Command == "" {
		opts.Command = "fake-command"
	}
	type outcome struct {
		res *Result
		err error
	}
	resCh := make(chan outcome, 1)
	go func() {
		res, err := Run(context.Background(), opts)
		resCh <- outcome{res: res, err: err}
	}()
	select {
	case out := <-resCh:
		return out.res, out.err
	case <-time.After(5 * time.Second):
		t.Fatal("session did not finish in time")
		return nil, nil
	}
}

func TestRunCleanExitWithoutPrompts(t *testing.T) {
	res, err := runScripted(t, Options{Mode: policy.ModeOff}, func(p *fakeProcess) {
		p.emit("booting\n")
		p.emit("all done\n")
		p.exit(supervisor.ExitStatus{Reason: supervisor.ReasonExit, Code: 0})
	})
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if len(res.Events) != 0 {
		t.Fatalf("expected no prompt events, got %d", len(res.Events))
	}
	if res.Exit.Reason != supervisor.ReasonExit || res.Exit.Code != 0 {
		t.Fatalf("unexpected exit: %+v", res.Exit)
	}
	if !strings.Contains(res.Transcript, "booting") || !strings.Contains(res.Transcript, "all done") {
		t.Fatalf("transcript missing output: %q", res.Transcript)
	}
}

func TestRunManualConfirm(t *testing.T) {
	responder := func(context.Context, promptdetect.Match) (string, error) {
		return "y", nil
	}
	res, err := runScripted(t, Options{Mode: policy.ModeOff, Responder: responder}, func(p *fakeProcess) {
		p.emit("Proceed? (y/N) ")
		answer := <-p.writeCh
		if answer != "y\n" {
			p.exit(supervisor.ExitStatus{Reason: supervisor.ReasonExit, Code: 9})
			return
		}
		p.emit("confirmed\n")
		p.exit(supervisor.ExitStatus{Reason: supervisor.ReasonExit, Code: 0})
	})
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if len(res.Events) != 1 {
		t.Fatalf("expected one prompt event, got %d", len(res.Events))
	}
	evt := res.Events[0]
	if evt.Source != SourceManual || evt.Response != "y" || evt.Kind != promptdetect.KindConfirm {
		t.Fatalf("unexpected event: %+v", evt)
	}
	if res.Exit.Code != 0 {
		t.Fatalf("unexpected exit code %d", res.Exit.Code)
	}
	if !strings.Contains(res.Transcript, "confirmed") {
		t.Fatalf("transcript missing post-confirmation output: %q", res.Transcript)
	}
}

func TestRunYoloAutoConfirm(t *testing.T) {
	res, err := runScripted(t, Options{Mode: policy.ModeYolo}, func(p *fakeProcess) {
		p.emit("Proceed? (y/N) ")
		answer := <-p.writeCh
		if answer != "y\n" {
			p.exit(supervisor.ExitStatus{Reason: supervisor.ReasonExit, Code: 9})
			return
		}
		p.emit("done\n")
		p.exit(supervisor.ExitStatus{Reason: supervisor.ReasonExit, Code: 0})
	})
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if len(res.Events) != 1 {
		t.Fatalf("expected one prompt event, got %d", len(res.Events))
	}
	if res.Events[0].Source != SourceAuto || res.Events[0].Response != "y" {
		t.Fatalf("unexpected event: %+v", res.Events[0])
	}
	if res.Exit.Code != 0 {
		t.Fatalf("unexpected exit code %d", res.Exit.Code)
	}
}

func TestRunBalancedDefersHighRiskAndKeepsChildExitCode(t *testing.T) {
	responder := func(context.Context, promptdetect.Match) (string, error) {
		return "n", nil
	}
	res, err := runScripted(t, Options{Mode: policy.ModeBalanced, Responder: responder}, func(p *fakeProcess) {
		p.emit("Are you sure you want to delete production DB? (y/N) ")
		answer := <-p.writeCh
		if answer != "n\n" {
			p.exit(supervisor.ExitStatus{Reason: supervisor.ReasonExit, Code: 9})
			return
		}
		p.emit("aborted\n")
		p.exit(supervisor.ExitStatus{Reason: supervisor.ReasonExit, Code: 2})
	})
	if err != nil {
		t.Fatalf("run should report exit code as data, got error: %v", err)
	}
	if len(res.Events) != 1 {
		t.Fatalf("expected one prompt event, got %d", len(res.Events))
	}
	if res.Events[0].Source != SourceManual || res.Events[0].Response != "n" {
		t.Fatalf("unexpected event: %+v", res.Events[0])
	}
	if res.Exit.Reason != supervisor.ReasonExit || res.Exit.Code != 2 {
		t.Fatalf("unexpected exit: %+v", res.Exit)
	}
}

func TestRunDeferredPromptWithoutResponderIsFatal(t *testing.T) {
	res, err := runScripted(t, Options{Mode: policy.ModeOff}, func(p *fakeProcess) {
		p.emit("Proceed? (y/N) ")
		<-p.cancelCh
	})
	if !errors.Is(err, ErrResponderRequired) {
		t.Fatalf("expected ErrResponderRequired, got res=%+v err=%v", res, err)
	}
}

func TestRunResponderFailureIsFatalEvenOnCleanExit(t *testing.T) {
	boom := errors.New("responder down")
	responder := func(context.Context, promptdetect.Match) (string, error) {
		return "", boom
	}
	_, err := runScripted(t, Options{Mode: policy.ModeOff, Responder: responder}, func(p *fakeProcess) {
		p.emit("Proceed? (y/N) ")
		<-p.cancelCh
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected responder error, got %v", err)
	}
}

func TestRunSuppressedOutputFlushedOnceInOrder(t *testing.T) {
	responderStarted := make(chan struct{})
	release := make(chan struct{})
	responder := func(context.Context, promptdetect.Match) (string, error) {
		close(responderStarted)
		<-release
		return "y", nil
	}

	var mu sync.Mutex
	forwarded := make([]string, 0, 4)
	onOutput := func(chunk string) {
		mu.Lock()
		forwarded = append(forwarded, chunk)
		mu.Unlock()
	}

	res, err := runScripted(t, Options{Mode: policy.ModeOff, Responder: responder, OnOutput: onOutput}, func(p *fakeProcess) {
		p.emit("Proceed? (y/N) ")
		<-responderStarted
		p.emit("hidden one\n")
		p.emit("hidden two\n")
		close(release)
		<-p.writeCh
		p.emit("after\n")
		p.exit(supervisor.ExitStatus{Reason: supervisor.ReasonExit, Code: 0})
	})
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if len(res.Events) != 1 {
		t.Fatalf("expected one prompt event, got %d", len(res.Events))
	}

	mu.Lock()
	joined := strings.Join(forwarded, "\x00")
	mu.Unlock()
	if strings.Count(joined, "hidden one") != 1 || strings.Count(joined, "hidden two") != 1 {
		t.Fatalf("suppressed output not delivered exactly once: %q", joined)
	}
	oneIdx := strings.Index(joined, "hidden one")
	twoIdx := strings.Index(joined, "hidden two")
	afterIdx := strings.Index(joined, "after")
	if !(oneIdx < twoIdx && twoIdx < afterIdx) {
		t.Fatalf("suppressed output out of order: %q", joined)
	}
	if !strings.Contains(res.Transcript, "hidden one") || !strings.Contains(res.Transcript, "after") {
		t.Fatalf("transcript missing suppressed output: %q", res.Transcript)
	}
}

func TestRunIdenticalSignatureWithinWindowTriggersOnce(t *testing.T) {
	var calls int32
	responderStarted := make(chan struct{})
	release := make(chan struct{})
	responder := func(context.Context, promptdetect.Match) (string, error) {
		if atomic.AddInt32(&calls, 1) == 1 {
			close(responderStarted)
		}
		<-release
		return "y", nil
	}
	res, err := runScripted(t, Options{Mode: policy.ModeOff, Responder: responder}, func(p *fakeProcess) {
		p.emit("Proceed? (y/N) ")
		<-responderStarted
		p.emit("Proceed? (y/N) ")
		close(release)
		<-p.writeCh
		p.exit(supervisor.ExitStatus{Reason: supervisor.ReasonExit, Code: 0})
	})
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Fatalf("responder invoked %d times, want 1", got)
	}
	if len(res.Events) != 1 {
		t.Fatalf("expected one prompt event, got %d", len(res.Events))
	}
}

func TestRunEchoedPromptDoesNotRetrigger(t *testing.T) {
	res, err := runScripted(t, Options{Mode: policy.ModeYolo}, func(p *fakeProcess) {
		p.emit("Proceed? (y/N) ")
		<-p.writeCh
		// The child redraws the same prompt text right after the answer.
		p.emit("Proceed? (y/N) \n")
		p.exit(supervisor.ExitStatus{Reason: supervisor.ReasonExit, Code: 0})
	})
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if len(res.Events) != 1 {
		t.Fatalf("expected one prompt event, got %d", len(res.Events))
	}
}

func TestRunTranscriptAndTailStayWithinCaps(t *testing.T) {
	long := strings.Repeat("0123456789", 40) + "\n"
	res, err := runScripted(t, Options{Mode: policy.ModeOff, TranscriptCap: 128, DetectionTailCap: 48}, func(p *fakeProcess) {
		for i := 0; i < 8; i++ {
			p.emit(long)
		}
		p.emit("tail marker\n")
		p.exit(supervisor.ExitStatus{Reason: supervisor.ReasonExit, Code: 0})
	})
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if len(res.Transcript) > 128 {
		t.Fatalf("transcript exceeds cap: %d", len(res.Transcript))
	}
	if !strings.HasSuffix(res.Transcript, "tail marker\n") {
		t.Fatalf("transcript is not the true suffix: %q", res.Transcript)
	}
}

func TestRunWritesAppendOnlyLog(t *testing.T) {
	dir := t.TempDir()
	logPath := filepath.Join(dir, "logs", "run.log")
	res, err := runScripted(t, Options{Mode: policy.ModeOff, LogPath: logPath}, func(p *fakeProcess) {
		p.emit("line one\n")
		p.emit("line two\n")
		p.exit(supervisor.ExitStatus{Reason: supervisor.ReasonExit, Code: 0})
	})
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if res.LogPath != logPath {
		t.Fatalf("unexpected log path %q", res.LogPath)
	}
	data, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	if string(data) != "line one\nline two\n" {
		t.Fatalf("unexpected log content: %q", data)
	}
}

func TestRunHeartbeatCounterAdvances(t *testing.T) {
	res, err := runScripted(t, Options{Mode: policy.ModeOff, HeartbeatInterval: 10 * time.Millisecond}, func(p *fakeProcess) {
		p.emit("working\n")
		time.Sleep(80 * time.Millisecond)
		p.exit(supervisor.ExitStatus{Reason: supervisor.ReasonExit, Code: 0})
	})
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if res.Heartbeats < 1 {
		t.Fatalf("expected heartbeat samples, got %d", res.Heartbeats)
	}
}

func TestCapTailKeepsSuffixOnRuneBoundary(t *testing.T) {
	s := "héllo wörld"
	capped := capTail(s, 6)
	if len(capped) > 6 {
		t.Fatalf("capped string too long: %d", len(capped))
	}
	if !strings.HasSuffix(s, capped) {
		t.Fatalf("capped string %q is not a suffix of %q", capped, s)
	}
}

func TestSignatureNormalizesWhitespaceAndCase(t *testing.T) {
	a := signature(promptdetect.Match{Kind: promptdetect.KindConfirm, Text: "Proceed?  (y/N)"})
	b := signature(promptdetect.Match{Kind: promptdetect.KindConfirm, Text: "proceed? (y/n)"})
	if a != b {
		t.Fatalf("signatures differ: %q vs %q", a, b)
	}
	c := signature(promptdetect.Match{Kind: promptdetect.KindChoice, Text: "proceed? (y/n)"})
	if a == c {
		t.Fatal("different kinds must not share a signature")
	}
}

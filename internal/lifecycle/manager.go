package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
)

type job struct {
	name string
	run  func(context.Context) error
}

// Manager runs a set of named tasks until the first failure or signal,
// then runs cleanups in reverse registration order.
type Manager struct {
	mu       sync.Mutex
	tasks    []job
	cleanups []job
}

func NewManager() *Manager {
	return &Manager{}
}

func (m *Manager) AddTask(name string, fn func(context.Context) error) {
	if fn == nil {
		return
	}
	m.mu.Lock()
	m.tasks = append(m.tasks, job{name: name, run: fn})
	m.mu.Unlock()
}

func (m *Manager) AddCleanup(name string, fn func(context.Context) error) {
	if fn == nil {
		return
	}
	m.mu.Lock()
	m.cleanups = append(m.cleanups, job{name: name, run: fn})
	m.mu.Unlock()
}

// StartAndWait blocks until all tasks finish, one fails, or a listed
// signal arrives. Cleanups always run, and their errors are joined with
// any task error.
func (m *Manager) StartAndWait(parent context.Context, sig ...os.Signal) error {
	ctx := parent
	stopSignal := func() {}
	if len(sig) > 0 {
		var stop context.CancelFunc
		ctx, stop = signal.NotifyContext(parent, sig...)
		stopSignal = stop
	}
	defer stopSignal()

	taskCtx, cancelTasks := context.WithCancel(ctx)
	defer cancelTasks()

	m.mu.Lock()
	tasks := make([]job, len(m.tasks))
	copy(tasks, m.tasks)
	cleanups := make([]job, len(m.cleanups))
	copy(cleanups, m.cleanups)
	m.mu.Unlock()

	errCh := make(chan error, len(tasks))
	var wg sync.WaitGroup
	for _, task := range tasks {
		task := task
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := task.run(taskCtx); err != nil && !errors.Is(err, context.Canceled) {
				errCh <- fmt.Errorf("%s: %w", task.name, err)
				cancelTasks()
			}
		}()
	}

	doneCh := make(chan struct{})
	go func() {
		wg.Wait()
		close(doneCh)
	}()

	var taskErr error
	select {
	case <-ctx.Done():
		cancelTasks()
	case err := <-errCh:
		taskErr = err
		cancelTasks()
	case <-doneCh:
	}
	<-doneCh
	if taskErr == nil {
		select {
		case taskErr = <-errCh:
		default:
		}
	}

	var cleanupErr error
	for i := len(cleanups) - 1; i >= 0; i-- {
		c := cleanups[i]
		if err := c.run(context.Background()); err != nil && !errors.Is(err, context.Canceled) {
			cleanupErr = errors.Join(cleanupErr, fmt.Errorf("%s: %w", c.name, err))
		}
	}
	return errors.Join(taskErr, cleanupErr)
}

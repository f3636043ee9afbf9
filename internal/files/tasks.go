package files

import (
	"context"
	"sync"
	"time"

	"github.com/swicore/switcher/pkg/types"
)

// Task is a tracked file operation. It completes exactly once; the manager
// publishes FileTaskStart on registration and FileTaskEnd on completion.
type Task struct {
	mu       sync.Mutex
	info     types.FileTask
	progress *float64
	done     chan struct{}
	err      error
}

// ID returns the monotonic task id.
func (t *Task) ID() int64 { return t.info.ID }

// Done is closed when the task reaches a terminal result.
func (t *Task) Done() <-chan struct{} { return t.done }

// Err returns the task error after Done is closed.
func (t *Task) Err() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.err
}

// Info snapshots the wire representation.
func (t *Task) Info() types.FileTask {
	t.mu.Lock()
	defer t.mu.Unlock()
	info := t.info
	if t.progress != nil {
		p := *t.progress
		info.Progress = &p
	}
	return info
}

func (t *Task) setProgress(f float64) {
	t.mu.Lock()
	t.progress = &f
	t.mu.Unlock()
}

// NewTask registers a task in the set and fires FileTaskStart. The caller
// must eventually complete it via Run or finish.
func (m *Manager) NewTask(ttype types.FileTaskType, src, dst Path, server string) *Task {
	t := &Task{
		info: types.FileTask{
			ID:          m.nextID.Add(1),
			Type:        ttype,
			Src:         src.Real,
			Dst:         dst.Real,
			Result:      types.ResultPending,
			BoundServer: server,
			SrcPath:     src.Virtual,
			DstPath:     dst.Virtual,
		},
		done: make(chan struct{}),
	}

	m.mu.Lock()
	m.tasks[t.info.ID] = t
	m.mu.Unlock()

	m.bus.Publish(types.FileTaskStart{Task: t.Info()})
	return t
}

// Run executes fn on its own goroutine and completes the task with its
// outcome.
func (m *Manager) Run(t *Task, fn func(ctx context.Context, progress func(float64)) error) *Task {
	go func() {
		err := fn(context.Background(), t.setProgress)
		m.finish(t, err)
	}()
	return t
}

// finish records the terminal result, fires FileTaskEnd and drops the task
// from the set.
func (m *Manager) finish(t *Task, err error) {
	t.mu.Lock()
	if t.info.Result != types.ResultPending {
		t.mu.Unlock()
		return
	}
	if err != nil {
		t.info.Result = types.ResultFailed
		t.err = err
	} else {
		t.info.Result = types.ResultSuccess
		one := 1.0
		t.progress = &one
	}
	t.mu.Unlock()
	close(t.done)

	m.mu.Lock()
	delete(m.tasks, t.info.ID)
	m.mu.Unlock()

	errMsg := ""
	if err != nil {
		errMsg = err.Error()
		m.log.Error().Int64("task", t.info.ID).Str("type", string(t.info.Type)).Err(err).Msg("file task failed")
	}
	m.bus.Publish(types.FileTaskEnd{Task: t.Info(), Error: errMsg})
}

// Await waits for the task up to the deadline. When the deadline passes the
// task keeps running and the returned snapshot still reads PENDING.
func (m *Manager) Await(ctx context.Context, t *Task, timeout time.Duration) types.FileTask {
	select {
	case <-t.Done():
	case <-time.After(timeout):
	case <-ctx.Done():
	}
	return t.Info()
}

// Tasks lists the tasks currently tracked.
func (m *Manager) Tasks() []types.FileTask {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]types.FileTask, 0, len(m.tasks))
	for _, t := range m.tasks {
		out = append(out, t.Info())
	}
	return out
}

// TaskByServer reports whether a task of the given type is bound to the
// server.
func (m *Manager) TaskByServer(server string, ttype types.FileTaskType) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.tasks {
		info := t.Info()
		if info.BoundServer == server && info.Type == ttype {
			return true
		}
	}
	return false
}

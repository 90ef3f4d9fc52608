package download

import (
	"github.com/google/uuid"
)

// TaskState is the lifecycle position of a single transfer
type TaskState int

const (
	TaskPending TaskState = iota
	TaskRunning
	TaskVerifying
	TaskDone
	TaskFailed
)

func (s TaskState) String() string {
	switch s {
	case TaskPending:
		return "pending"
	case TaskRunning:
		return "running"
	case TaskVerifying:
		return "verifying"
	case TaskDone:
		return "done"
	case TaskFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further transition can happen.
func (s TaskState) Terminal() bool { return s == TaskDone || s == TaskFailed }

// Task is one file transfer owned by a Coordinator. The exported fields are
// fixed at Enqueue time; mutable state is read through accessors.
type Task struct {
	ID          string
	URL         string
	Size        int64  // expected size in bytes, 0 when unknown
	Checksum    string // expected hex digest, empty to skip verification
	Destination string
	Label       string

	coord     *Coordinator
	state     TaskState
	received  int64
	err       error
	onSuccess []func(*Task) error
}

func newTask(c *Coordinator, url string, size int64, checksum, dest, label string) *Task {
	if label == "" {
		label = dest
	}
	return &Task{
		ID:          uuid.NewString(),
		URL:         url,
		Size:        size,
		Checksum:    checksum,
		Destination: dest,
		Label:       label,
		coord:       c,
	}
}

// OnSuccess registers a hook fired after the task's bytes were verified and
// moved into place. A hook error fails the task and therefore the batch.
func (t *Task) OnSuccess(fn func(*Task) error) *Task {
	t.coord.mu.Lock()
	defer t.coord.mu.Unlock()
	t.onSuccess = append(t.onSuccess, fn)
	return t
}

// State returns the current state
func (t *Task) State() TaskState {
	t.coord.mu.Lock()
	defer t.coord.mu.Unlock()
	return t.state
}

// BytesReceived returns the bytes received by the current attempt
func (t *Task) BytesReceived() int64 {
	t.coord.mu.Lock()
	defer t.coord.mu.Unlock()
	return t.received
}

// Err returns the failure of a failed task
func (t *Task) Err() error {
	t.coord.mu.Lock()
	defer t.coord.mu.Unlock()
	return t.err
}

// units is the task's weight in the progress aggregate
func (t *Task) units() int64 {
	if t.Size > 0 {
		return t.Size
	}
	return 1
}

func (t *Task) partPath() string {
	return t.Destination + ".part"
}

package publish

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// Progress is the title, message and completion of a running job. A caller
// samples it with Snapshot while the job updates it.
type Progress struct {
	mu      sync.Mutex
	title   string
	message string
	percent float64
}

// ProgressState is a point-in-time copy of a Progress.
type ProgressState struct {
	Title   string
	Message string
	Percent float64
}

// NewProgress creates a progress record with a title.
func NewProgress(title string) *Progress {
	return &Progress{title: title}
}

// SetTitle replaces the title. Safe on a nil Progress.
func (p *Progress) SetTitle(title string) {
	if p == nil {
		return
	}
	p.mu.Lock()
	p.title = title
	p.mu.Unlock()
}

// SetMessage replaces the message. Safe on a nil Progress.
func (p *Progress) SetMessage(msg string) {
	if p == nil {
		return
	}
	p.mu.Lock()
	p.message = msg
	p.mu.Unlock()
}

// SetPercent records completion in [0, 1]. Safe on a nil Progress.
func (p *Progress) SetPercent(v float64) {
	if p == nil {
		return
	}
	v = min(max(v, 0), 1)
	p.mu.Lock()
	p.percent = v
	p.mu.Unlock()
}

// Snapshot returns the current state.
func (p *Progress) Snapshot() ProgressState {
	if p == nil {
		return ProgressState{}
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return ProgressState{Title: p.title, Message: p.message, Percent: p.percent}
}

// Job is a background operation. Wait blocks until it finishes.
type Job struct {
	ID       string
	Progress *Progress

	done   chan struct{}
	result string
	err    error
}

// Start runs fn in its own goroutine with a background context. Jobs are
// not cancellable; the processes they run are bounded by their own
// timeouts.
func Start(title string, fn func(ctx context.Context, p *Progress) (string, error)) *Job {
	j := &Job{
		ID:       uuid.NewString(),
		Progress: NewProgress(title),
		done:     make(chan struct{}),
	}
	go func() {
		defer close(j.done)
		j.result, j.err = fn(context.Background(), j.Progress)
		if j.err == nil {
			j.Progress.SetPercent(1)
		}
	}()
	return j
}

// Done is closed when the job has finished.
func (j *Job) Done() <-chan struct{} { return j.done }

// Wait returns the job's result. Giving up through ctx leaves the job
// running.
func (j *Job) Wait(ctx context.Context) (string, error) {
	select {
	case <-j.done:
		return j.result, j.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

package run

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// State represents the current state of a run.
type State string

const (
	StateCreated  State = "created"
	StateStarting State = "starting"
	StateRunning  State = "running"
	StateStopping State = "stopping"
	StateStopped  State = "stopped"
	StateFailed   State = "failed"
)

// Run is one launch, from planning to container removal.
type Run struct {
	ID          string
	Agent       string
	ContainerID string
	CreatedAt   time.Time

	mu        sync.Mutex
	state     State
	startedAt time.Time
	stoppedAt time.Time
	exitCode  int
	err       error
}

func newRun(agent string) *Run {
	return &Run{
		ID:        generateID(),
		Agent:     agent,
		CreatedAt: time.Now(),
		state:     StateCreated,
	}
}

// GetState returns the current state.
func (r *Run) GetState() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// SetState moves the run to s, stamping start and stop times.
func (r *Run) SetState(s State) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state = s
	switch s {
	case StateRunning:
		r.startedAt = time.Now()
	case StateStopped, StateFailed:
		r.stoppedAt = time.Now()
	}
}

// ExitCode is the caller-visible exit code once the run has stopped.
func (r *Run) ExitCode() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.exitCode
}

// Err is the failure that ended the run, if any.
func (r *Run) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

func (r *Run) finish(code int, err error) {
	r.mu.Lock()
	r.exitCode = code
	r.err = err
	r.mu.Unlock()
	if err != nil {
		r.SetState(StateFailed)
	} else {
		r.SetState(StateStopped)
	}
}

// generateID creates a session identifier.
func generateID() string {
	return uuid.NewString()
}

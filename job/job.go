// Package job tracks the progress of one depthify run. A Job is owned by the
// caller that starts the run and passed by reference to each stage.
package job

import (
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
)

type State int

const (
	Pending State = iota
	Running
	Succeeded
	Failed
)

func (s State) String() string {
	switch s {
	case Pending:
		return "pending"
	case Running:
		return "running"
	case Succeeded:
		return "succeeded"
	case Failed:
		return "failed"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Snapshot is a copy of a job's progress at one point in time.
type Snapshot struct {
	ID       string
	Name     string
	State    State
	Stage    string
	Done     int
	Total    int
	Progress float64
	Elapsed  time.Duration
	Err      error
}

type Job struct {
	id     string
	name   string
	stages []string
	logger *log.Logger

	// OnProgress is called after every state change, outside the lock.
	OnProgress func(Snapshot)

	mu      sync.Mutex
	state   State
	current int // index of the running stage, -1 before the first
	done    int
	started time.Time
	ended   time.Time
	err     error
}

// New creates a pending job that will run the named stages in order.
func New(name string, stages []string, logger *log.Logger) *Job {
	if logger == nil {
		logger = log.Default()
	}
	id := uuid.NewString()
	return &Job{
		id:      id,
		name:    name,
		stages:  append([]string(nil), stages...),
		logger:  logger.With("job", id[:8]),
		current: -1,
	}
}

func (j *Job) ID() string { return j.id }

// Logger returns the job's logger, tagged with its id.
func (j *Job) Logger() *log.Logger { return j.logger }

// Start marks the named stage as running. Any previous stage counts as done.
// Stages must be started in the order given to New.
func (j *Job) Start(stage string) error {
	j.mu.Lock()
	if j.state == Succeeded || j.state == Failed {
		j.mu.Unlock()
		return fmt.Errorf("job %s already %s", j.name, j.state)
	}
	next := j.current + 1
	if next >= len(j.stages) || j.stages[next] != stage {
		j.mu.Unlock()
		return fmt.Errorf("job %s: unexpected stage %q", j.name, stage)
	}
	if j.state == Pending {
		j.state = Running
		j.started = time.Now()
	}
	if j.current >= 0 {
		j.done++
	}
	j.current = next
	snap := j.snapshotLocked()
	j.mu.Unlock()

	j.logger.Debug("stage started", "stage", stage, "progress", fmt.Sprintf("%.0f%%", snap.Progress*100))
	j.notify(snap)
	return nil
}

// Done marks the job as succeeded; all stages count as complete.
func (j *Job) Done() {
	j.mu.Lock()
	if j.state == Succeeded || j.state == Failed {
		j.mu.Unlock()
		return
	}
	j.state = Succeeded
	j.done = len(j.stages)
	j.ended = time.Now()
	snap := j.snapshotLocked()
	j.mu.Unlock()

	j.logger.Info("completed", "name", j.name, "elapsed", snap.Elapsed.Round(time.Millisecond))
	j.notify(snap)
}

// Fail marks the job as failed with err. Progress stays where it was.
func (j *Job) Fail(err error) {
	j.mu.Lock()
	if j.state == Succeeded || j.state == Failed {
		j.mu.Unlock()
		return
	}
	j.state = Failed
	j.err = err
	j.ended = time.Now()
	snap := j.snapshotLocked()
	j.mu.Unlock()

	j.logger.Error("failed", "name", j.name, "stage", snap.Stage, "err", err)
	j.notify(snap)
}

func (j *Job) State() State {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.state
}

func (j *Job) Err() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.err
}

// Progress is the fraction of completed stages in [0,1].
func (j *Job) Progress() float64 {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.progressLocked()
}

func (j *Job) Snapshot() Snapshot {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.snapshotLocked()
}

func (j *Job) progressLocked() float64 {
	if len(j.stages) == 0 {
		if j.state == Succeeded {
			return 1
		}
		return 0
	}
	return float64(j.done) / float64(len(j.stages))
}

func (j *Job) snapshotLocked() Snapshot {
	s := Snapshot{
		ID:       j.id,
		Name:     j.name,
		State:    j.state,
		Done:     j.done,
		Total:    len(j.stages),
		Progress: j.progressLocked(),
		Err:      j.err,
	}
	if j.current >= 0 {
		s.Stage = j.stages[j.current]
	}
	switch {
	case j.started.IsZero():
	case j.ended.IsZero():
		s.Elapsed = time.Since(j.started)
	default:
		s.Elapsed = j.ended.Sub(j.started)
	}
	return s
}

func (j *Job) notify(s Snapshot) {
	if j.OnProgress != nil {
		j.OnProgress(s)
	}
}

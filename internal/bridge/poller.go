// Package bridge drives the poll, build and dispatch cycle.
package bridge

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/OFFIS-RIT/rquest-bridge/internal/crate"
	"github.com/OFFIS-RIT/rquest-bridge/internal/metrics"
	"github.com/OFFIS-RIT/rquest-bridge/pkg/logger"
	"github.com/OFFIS-RIT/rquest-bridge/pkg/rocrate"
)

type State int32

const (
	StateIdle State = iota
	StatePolling
	StateBuilding
	StateDispatching
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePolling:
		return "polling"
	case StateBuilding:
		return "building"
	case StateDispatching:
		return "dispatching"
	default:
		return "unknown"
	}
}

// TaskSource returns the next pending task, or nil when there is none.
type TaskSource interface {
	Next(ctx context.Context) (*crate.Task, error)
}

// Builder turns a task into a finished archive. *crate.Assembler is one.
type Builder interface {
	Build(task crate.Task, seed *rocrate.Graph) (*rocrate.Archive, error)
}

type JobDispatcher interface {
	Dispatch(ctx context.Context, task crate.Task, archive []byte) error
}

// Status is a snapshot of what the poller is doing and how its last
// cycle ended.
type Status struct {
	State       string    `json:"state"`
	Cycles      uint64    `json:"cycles"`
	LastPoll    time.Time `json:"last_poll,omitzero"`
	LastTaskID  string    `json:"last_task_id,omitempty"`
	LastOutcome string    `json:"last_outcome,omitempty"`
	LastError   string    `json:"last_error,omitempty"`
}

type PollerParams struct {
	Source     TaskSource
	Builder    Builder
	Dispatcher JobDispatcher

	Interval time.Duration
	// Timeout bounds building and dispatching one task.
	Timeout time.Duration
	// DB is attached to every task before it is built.
	DB crate.DBConnection
	// Seed, if set, is imported into every crate before the workflow
	// entity is checked.
	Seed *rocrate.Graph

	Metrics *metrics.Metrics
}

// Poller runs one poll, build and dispatch cycle at a time. Run must be
// called from a single goroutine; Status may be called from any.
type Poller struct {
	params PollerParams

	state  atomic.Int32
	mu     sync.RWMutex
	status Status
}

func NewPoller(params PollerParams) *Poller {
	if params.Interval <= 0 {
		params.Interval = 5 * time.Second
	}
	if params.Timeout <= 0 {
		params.Timeout = 2 * time.Minute
	}
	return &Poller{params: params}
}

func (p *Poller) State() State {
	return State(p.state.Load())
}

func (p *Poller) Status() Status {
	p.mu.RLock()
	defer p.mu.RUnlock()
	s := p.status
	s.State = p.State().String()
	return s
}

// Run polls until ctx is cancelled. After a successful dispatch the next
// poll starts right away; otherwise the poller waits for the interval.
func (p *Poller) Run(ctx context.Context) error {
	logger.Info("[Poller] Started", "interval", p.params.Interval)
	for {
		outcome := p.Cycle(ctx)
		if ctx.Err() != nil {
			logger.Info("[Poller] Stopped")
			return nil
		}

		if outcome == metrics.OutcomeDispatched {
			continue
		}

		timer := time.NewTimer(p.params.Interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			logger.Info("[Poller] Stopped")
			return nil
		case <-timer.C:
		}
	}
}

// Cycle performs one poll and, if a task is pending, builds and dispatches
// it. It returns the cycle's outcome. Once a task has been received the
// build and dispatch are not interrupted by cancellation of ctx.
func (p *Poller) Cycle(ctx context.Context) string {
	defer p.state.Store(int32(StateIdle))

	p.state.Store(int32(StatePolling))
	task, err := p.params.Source.Next(ctx)
	if err != nil {
		if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
			return p.finish(nil, metrics.OutcomePollError, nil)
		}
		logger.Error("[Poller] Failed to poll task source", "err", err)
		return p.finish(nil, metrics.OutcomePollError, err)
	}
	if task == nil {
		logger.Debug("[Poller] No task")
		return p.finish(nil, metrics.OutcomeNoTask, nil)
	}

	t := *task
	if t.DB.IsZero() {
		t.DB = p.params.DB
	}
	logger.Info("[Poller] Task found", "task_id", t.ID, "kind", t.Kind())

	work, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.params.Timeout)
	defer cancel()

	p.state.Store(int32(StateBuilding))
	archive, err := p.params.Builder.Build(t, p.params.Seed)
	if err != nil {
		logger.Error("[Poller] Failed to build crate", "task_id", t.ID, "err", err)
		return p.finish(&t, metrics.OutcomeBuildError, err)
	}
	if dangling := archive.Graph.DanglingRefs(); len(dangling) > 0 {
		logger.Warn("[Poller] Crate has unresolved references", "task_id", t.ID, "refs", dangling)
		p.params.Metrics.DanglingRefs(len(dangling))
	}
	data, err := archive.Bytes()
	if err != nil {
		logger.Error("[Poller] Failed to package crate", "task_id", t.ID, "err", err)
		return p.finish(&t, metrics.OutcomeBuildError, err)
	}

	p.state.Store(int32(StateDispatching))
	if err := p.params.Dispatcher.Dispatch(work, t, data); err != nil {
		logger.Error("[Poller] Failed to dispatch crate", "task_id", t.ID, "err", err)
		return p.finish(&t, metrics.OutcomeDispatchError, err)
	}

	logger.Info("[Poller] Task dispatched", "task_id", t.ID)
	return p.finish(&t, metrics.OutcomeDispatched, nil)
}

func (p *Poller) finish(task *crate.Task, outcome string, err error) string {
	kind := "none"
	if task != nil {
		kind = task.Kind()
	}
	p.params.Metrics.Cycle(outcome, kind)

	p.mu.Lock()
	defer p.mu.Unlock()
	p.status.Cycles++
	p.status.LastPoll = time.Now().UTC()
	p.status.LastOutcome = outcome
	p.status.LastError = ""
	if err != nil {
		p.status.LastError = err.Error()
	}
	if task != nil {
		p.status.LastTaskID = task.ID
	}
	return outcome
}

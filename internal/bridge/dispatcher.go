package bridge

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/OFFIS-RIT/rquest-bridge/internal/agent"
	"github.com/OFFIS-RIT/rquest-bridge/internal/crate"
	"github.com/OFFIS-RIT/rquest-bridge/internal/metrics"
	"github.com/OFFIS-RIT/rquest-bridge/internal/queue"
	"github.com/OFFIS-RIT/rquest-bridge/internal/util"
	"github.com/OFFIS-RIT/rquest-bridge/pkg/logger"
)

var (
	ErrStore   = errors.New("store failed")
	ErrNotify  = errors.New("notify failed")
	ErrEnqueue = errors.New("enqueue failed")
)

// ArchiveStore persists a task's archive and returns the key it was
// stored under.
type ArchiveStore interface {
	Put(ctx context.Context, taskID string, data []byte) (string, error)
	Bucket() string
}

type Notifier interface {
	Submit(ctx context.Context, job agent.Job) error
}

type DispatcherParams struct {
	Store    ArchiveStore
	Notifier Notifier
	// Publisher is optional.
	Publisher queue.Publisher

	// Source carries the storage host and credentials handed to the agent.
	// Bucket and Path are filled in per task.
	Source agent.CrateSource

	Retries int
	Backoff time.Duration
	Metrics *metrics.Metrics
}

// Dispatcher stores a finished archive and tells downstream consumers about
// it, keyed by task id throughout.
type Dispatcher struct {
	params DispatcherParams
}

func NewDispatcher(params DispatcherParams) *Dispatcher {
	if params.Retries <= 0 {
		params.Retries = 1
	}
	return &Dispatcher{params: params}
}

// Dispatch runs Store, then Notify and Enqueue. A store failure stops the
// dispatch; notify and enqueue failures are independent and joined. Nothing
// is rolled back.
func (d *Dispatcher) Dispatch(ctx context.Context, task crate.Task, archive []byte) error {
	var key string
	err := d.step(ctx, "store", func(ctx context.Context) error {
		var err error
		key, err = d.params.Store.Put(ctx, task.ID, archive)
		return err
	})
	if err != nil {
		return fmt.Errorf("%w: %w", ErrStore, err)
	}
	logger.Info("[Dispatch] Stored crate", "task_id", task.ID, "bucket", d.params.Store.Bucket(), "key", key)

	var errs []error

	source := d.params.Source
	source.Bucket = d.params.Store.Bucket()
	source.Path = key
	err = d.step(ctx, "notify", func(ctx context.Context) error {
		return d.params.Notifier.Submit(ctx, agent.Job{SubID: task.ID, CrateSource: source})
	})
	if err != nil {
		errs = append(errs, fmt.Errorf("%w: %w", ErrNotify, err))
	} else {
		logger.Info("[Dispatch] Notified agent", "task_id", task.ID)
	}

	if d.params.Publisher != nil {
		msg := queue.JobMessage{
			TaskID:    task.ID,
			Kind:      task.Kind(),
			Bucket:    source.Bucket,
			Path:      key,
			CreatedAt: time.Now().UTC(),
		}
		err = d.step(ctx, "enqueue", func(ctx context.Context) error {
			return d.params.Publisher.Publish(ctx, msg)
		})
		if err != nil {
			errs = append(errs, fmt.Errorf("%w: %w", ErrEnqueue, err))
		} else {
			logger.Debug("[Dispatch] Enqueued job", "task_id", task.ID)
		}
	}

	return errors.Join(errs...)
}

func (d *Dispatcher) step(ctx context.Context, name string, fn func(context.Context) error) error {
	start := time.Now()
	attempt := 0
	err := util.RetryErrWithContext(ctx, d.params.Retries, d.params.Backoff, func(ctx context.Context) error {
		attempt++
		err := fn(ctx)
		if err != nil && attempt < d.params.Retries {
			logger.Warn("[Dispatch] Step failed, retrying", "step", name, "attempt", attempt, "err", err)
		}
		return err
	})
	d.params.Metrics.DispatchStep(name, time.Since(start), err)
	return err
}

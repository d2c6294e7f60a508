package bridge

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/OFFIS-RIT/rquest-bridge/internal/agent"
	"github.com/OFFIS-RIT/rquest-bridge/internal/crate"
	"github.com/OFFIS-RIT/rquest-bridge/internal/queue"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	mu    sync.Mutex
	puts  map[string][]byte
	calls int
	errs  []error
}

func (s *fakeStore) Put(ctx context.Context, taskID string, data []byte) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if len(s.errs) > 0 {
		err := s.errs[0]
		s.errs = s.errs[1:]
		if err != nil {
			return "", err
		}
	}
	if s.puts == nil {
		s.puts = map[string][]byte{}
	}
	key := taskID + ".zip"
	s.puts[key] = data
	return key, nil
}

func (s *fakeStore) Bucket() string { return "crates" }

type fakeNotifier struct {
	mu   sync.Mutex
	jobs []agent.Job
	err  error
}

func (n *fakeNotifier) Submit(ctx context.Context, job agent.Job) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.jobs = append(n.jobs, job)
	return n.err
}

type fakePublisher struct {
	mu   sync.Mutex
	msgs []queue.JobMessage
	err  error
}

func (p *fakePublisher) Publish(ctx context.Context, msg queue.JobMessage) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.msgs = append(p.msgs, msg)
	return p.err
}

func (p *fakePublisher) Close() error { return nil }

var testSource = agent.CrateSource{Host: "minio:9000", AccessKey: "access", SecretKey: "secret"}

func TestDispatchSuccess(t *testing.T) {
	store, notifier, publisher := &fakeStore{}, &fakeNotifier{}, &fakePublisher{}
	d := NewDispatcher(DispatcherParams{Store: store, Notifier: notifier, Publisher: publisher, Source: testSource})

	err := d.Dispatch(context.Background(), crate.Task{ID: "job-1", IsAvailability: true}, []byte("zip"))
	require.NoError(t, err)

	assert.Equal(t, []byte("zip"), store.puts["job-1.zip"])
	require.Len(t, notifier.jobs, 1)
	assert.Equal(t, agent.Job{
		SubID: "job-1",
		CrateSource: agent.CrateSource{
			Host:      "minio:9000",
			Bucket:    "crates",
			Path:      "job-1.zip",
			AccessKey: "access",
			SecretKey: "secret",
		},
	}, notifier.jobs[0])
	require.Len(t, publisher.msgs, 1)
	assert.Equal(t, "job-1", publisher.msgs[0].TaskID)
	assert.Equal(t, "is_availability", publisher.msgs[0].Kind)
	assert.Equal(t, "job-1.zip", publisher.msgs[0].Path)
}

func TestDispatchStoreFailureStops(t *testing.T) {
	store := &fakeStore{errs: []error{errors.New("s3 down")}}
	notifier, publisher := &fakeNotifier{}, &fakePublisher{}
	d := NewDispatcher(DispatcherParams{Store: store, Notifier: notifier, Publisher: publisher})

	err := d.Dispatch(context.Background(), crate.Task{ID: "job-1"}, nil)

	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrStore))
	assert.Empty(t, notifier.jobs)
	assert.Empty(t, publisher.msgs)
}

func TestDispatchNotifyAndEnqueueFailuresAreJoined(t *testing.T) {
	store := &fakeStore{}
	notifier := &fakeNotifier{err: &agent.StatusError{StatusCode: 500}}
	publisher := &fakePublisher{err: errors.New("broker gone")}
	d := NewDispatcher(DispatcherParams{Store: store, Notifier: notifier, Publisher: publisher})

	err := d.Dispatch(context.Background(), crate.Task{ID: "job-1"}, nil)

	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotify))
	assert.True(t, errors.Is(err, ErrEnqueue))
	assert.False(t, errors.Is(err, ErrStore))
	var statusErr *agent.StatusError
	assert.True(t, errors.As(err, &statusErr))
	assert.Len(t, store.puts, 1, "stored archive is kept")
	assert.Len(t, publisher.msgs, 1, "enqueue runs even when notify fails")
}

func TestDispatchWithoutPublisher(t *testing.T) {
	d := NewDispatcher(DispatcherParams{Store: &fakeStore{}, Notifier: &fakeNotifier{}})
	assert.NoError(t, d.Dispatch(context.Background(), crate.Task{ID: "job-1"}, nil))
}

func TestDispatchRetries(t *testing.T) {
	store := &fakeStore{errs: []error{errors.New("transient"), errors.New("transient")}}
	d := NewDispatcher(DispatcherParams{Store: store, Notifier: &fakeNotifier{}, Retries: 3})

	require.NoError(t, d.Dispatch(context.Background(), crate.Task{ID: "job-1"}, nil))
	assert.Equal(t, 3, store.calls)
}

func TestDispatchDefaultDoesNotRetry(t *testing.T) {
	store := &fakeStore{errs: []error{errors.New("transient")}}
	d := NewDispatcher(DispatcherParams{Store: store, Notifier: &fakeNotifier{}})

	require.Error(t, d.Dispatch(context.Background(), crate.Task{ID: "job-1"}, nil))
	assert.Equal(t, 1, store.calls)
}

// Package source asks the RQuest task API for the next pending job.
package source

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/OFFIS-RIT/rquest-bridge/internal/crate"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// QueryFile is the payload file name the task body is stored under.
const QueryFile = "query.json"

// distributionSuffix selects distribution jobs on the collection endpoint.
const distributionSuffix = ".b"

// ErrUnexpectedStatus is returned for any response that is neither a job
// nor an empty queue.
var ErrUnexpectedStatus = errors.New("unexpected task api status")

// ErrInvalidTask is returned when a job body cannot be read as a task.
var ErrInvalidTask = errors.New("invalid task body")

type Params struct {
	BaseURL       string
	FetchEndpoint string
	CollectionID  string
	Username      string
	Password      string

	// PollDistribution alternates availability and distribution requests.
	PollDistribution bool

	// HTTPClient defaults to an instrumented client with Timeout.
	HTTPClient *http.Client
	Timeout    time.Duration
}

// Client fetches at most one task per call. It is driven by a single poller
// and is not safe for concurrent use.
type Client struct {
	params Params
	http   *http.Client

	distributionNext bool
}

func NewClient(params Params) *Client {
	httpClient := params.HTTPClient
	if httpClient == nil {
		timeout := params.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		httpClient = &http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport),
			Timeout:   timeout,
		}
	}
	return &Client{params: params, http: httpClient}
}

type taskBody struct {
	TaskID string `json:"task_id"`
}

// Next returns the next pending task, or nil when there is none.
func (c *Client) Next(ctx context.Context) (*crate.Task, error) {
	availability := true
	if c.params.PollDistribution {
		availability = !c.distributionNext
		c.distributionNext = !c.distributionNext
	}

	endpoint, err := c.endpoint(availability)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.params.Username != "" || c.params.Password != "" {
		req.SetBasicAuth(c.params.Username, c.params.Password)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to query task api: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNoContent:
		return nil, nil
	case resp.StatusCode != http.StatusOK:
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("%w: %s", ErrUnexpectedStatus, resp.Status)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read task body: %w", err)
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, nil
	}

	var tb taskBody
	if err := json.Unmarshal(body, &tb); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidTask, err)
	}
	if tb.TaskID == "" {
		return nil, fmt.Errorf("%w: missing task_id", ErrInvalidTask)
	}

	return &crate.Task{
		ID:             tb.TaskID,
		QueryFile:      QueryFile,
		Query:          body,
		IsAvailability: availability,
	}, nil
}

func (c *Client) endpoint(availability bool) (string, error) {
	collection := c.params.CollectionID
	if !availability {
		collection += distributionSuffix
	}
	u, err := url.JoinPath(c.params.BaseURL, c.params.FetchEndpoint, collection)
	if err != nil {
		return "", fmt.Errorf("invalid task api url: %w", err)
	}
	return u, nil
}

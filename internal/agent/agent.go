// Package agent announces finished crates to the Hutch agent.
package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/OFFIS-RIT/rquest-bridge/pkg/logger"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// CrateSource tells the agent where to fetch a crate from.
type CrateSource struct {
	Host      string `json:"host"`
	Bucket    string `json:"bucket"`
	Path      string `json:"path"`
	AccessKey string `json:"accessKey"`
	SecretKey string `json:"secretKey"`
	Secure    bool   `json:"secure"`
}

// Job is the submission body.
type Job struct {
	SubID       string      `json:"subId"`
	CrateSource CrateSource `json:"crateSource"`
}

// StatusError reports a non-2xx answer from the agent.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("agent responded with status %d", e.StatusCode)
	}
	return fmt.Sprintf("agent responded with status %d: %s", e.StatusCode, e.Body)
}

type Params struct {
	Host           string
	EndpointBase   string
	SubmitEndpoint string

	HTTPClient *http.Client
	Timeout    time.Duration
}

type Client struct {
	submitURL string
	http      *http.Client
}

func NewClient(params Params) (*Client, error) {
	submitURL, err := url.JoinPath(params.Host, params.EndpointBase, params.SubmitEndpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid agent url: %w", err)
	}

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

	return &Client{submitURL: submitURL, http: httpClient}, nil
}

// Submit posts one job to the agent. Any 2xx status counts as delivered.
func (c *Client) Submit(ctx context.Context, job Job) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to encode job: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.submitURL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("failed to reach agent: %w", err)
	}
	defer resp.Body.Close()

	logger.Debug("[Agent] Submit response", "task_id", job.SubID, "status", resp.StatusCode)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &StatusError{StatusCode: resp.StatusCode, Body: string(bytes.TrimSpace(body))}
	}
	io.Copy(io.Discard, resp.Body)
	return nil
}

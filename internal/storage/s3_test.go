package storage

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordedRequest struct {
	method      string
	path        string
	contentType string
	body        []byte
}

func newFakeS3(t *testing.T, handler func(w http.ResponseWriter, r *http.Request)) (*ArchiveStore, <-chan recordedRequest) {
	t.Helper()
	requests := make(chan recordedRequest, 8)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		requests <- recordedRequest{
			method:      r.Method,
			path:        r.URL.Path,
			contentType: r.Header.Get("Content-Type"),
			body:        body,
		}
		handler(w, r)
	}))
	t.Cleanup(srv.Close)

	client, err := NewS3Client(context.Background(), S3Params{
		Endpoint:  srv.URL,
		Region:    "us-east-1",
		AccessKey: "access",
		SecretKey: "secret",
	})
	require.NoError(t, err)
	return NewArchiveStore(client, "crates"), requests
}

func TestArchiveKey(t *testing.T) {
	assert.Equal(t, "job-1.zip", ArchiveKey("job-1"))
}

func TestPutUploadsUnderTaskKey(t *testing.T) {
	store, requests := newFakeS3(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("ETag", `"abc"`)
		w.WriteHeader(http.StatusOK)
	})

	key, err := store.Put(context.Background(), "job-1", []byte("PK\x03\x04"))
	require.NoError(t, err)
	assert.Equal(t, "job-1.zip", key)

	req := <-requests
	assert.Equal(t, http.MethodPut, req.method)
	assert.Equal(t, "/crates/job-1.zip", req.path)
	assert.Equal(t, "application/zip", req.contentType)
	assert.Equal(t, []byte("PK\x03\x04"), req.body)
}

func TestPutReportsFailure(t *testing.T) {
	store, _ := newFakeS3(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/xml")
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte(`<Error><Code>AccessDenied</Code><Message>denied</Message></Error>`))
	})

	_, err := store.Put(context.Background(), "job-1", []byte("zip"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "job-1.zip")
}

func TestEnsureBucketCreatesMissingBucket(t *testing.T) {
	store, requests := newFakeS3(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodHead {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusOK)
	})

	require.NoError(t, store.EnsureBucket(context.Background()))

	head := <-requests
	assert.Equal(t, http.MethodHead, head.method)
	create := <-requests
	assert.Equal(t, http.MethodPut, create.method)
	assert.Equal(t, "/crates", strings.TrimSuffix(create.path, "/"))
}

func TestEnsureBucketExisting(t *testing.T) {
	store, requests := newFakeS3(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	require.NoError(t, store.EnsureBucket(context.Background()))
	assert.Len(t, requests, 1)
}

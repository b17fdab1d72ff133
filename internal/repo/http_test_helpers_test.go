package repo

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"testing"
	"time"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

// newClientWith returns a backend client whose transport is rt, with millisecond backoff.
func newClientWith(rt roundTripFunc, maxRetries int) *BackendClient {
	client := NewBackendClient(BackendOptions{
		BaseURL:    "https://backend.example.com/api/",
		MaxRetries: maxRetries,
		RetryBase:  time.Millisecond,
	})
	client.httpClient = &http.Client{Transport: rt}
	return client
}

func jsonResponse(t *testing.T, status int, payload any) *http.Response {
	t.Helper()
	data, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	return rawResponse(status, string(data))
}

func rawResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Status:     http.StatusText(status),
		Body:       io.NopCloser(bytes.NewBufferString(body)),
		Header:     make(http.Header),
	}
}

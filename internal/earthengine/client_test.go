package earthengine

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"golang.org/x/oauth2"
)

func testClient(t *testing.T, handler http.Handler) (*Client, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := NewClient(context.Background(), Options{
		Project:     "test-project",
		BaseURL:     server.URL,
		TokenSource: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: "test-token"}),
		Retry: &RetryStrategy{
			Intervals:  []time.Duration{time.Millisecond},
			MaxRetries: 3,
		},
	})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return client, server
}

func TestClientSetsAuthHeaders(t *testing.T) {
	var gotAuth, gotProject string
	client, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotProject = r.Header.Get("X-Goog-User-Project")
		w.Write([]byte(`{}`))
	}))

	if _, err := client.get(context.Background(), "/ping", nil); err != nil {
		t.Fatalf("get: %v", err)
	}
	if gotAuth != "Bearer test-token" {
		t.Errorf("Authorization = %q", gotAuth)
	}
	if gotProject != "test-project" {
		t.Errorf("X-Goog-User-Project = %q", gotProject)
	}
}

func TestClientRetriesRateLimit(t *testing.T) {
	attempts := 0
	client, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts <= 2 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Write([]byte(`ok`))
	}))

	data, err := client.get(context.Background(), "/limited", nil)
	if err != nil {
		t.Fatalf("get after retries: %v", err)
	}
	if string(data) != "ok" {
		t.Errorf("body = %q", data)
	}
	if attempts != 3 {
		t.Errorf("attempts = %d, want 3", attempts)
	}
}

func TestClientGivesUpAfterMaxRetries(t *testing.T) {
	attempts := 0
	client, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusTooManyRequests)
	}))

	_, err := client.get(context.Background(), "/limited", nil)
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("error = %v, want APIError", err)
	}
	if apiErr.StatusCode != http.StatusTooManyRequests {
		t.Errorf("StatusCode = %d", apiErr.StatusCode)
	}
	// Initial attempt plus MaxRetries
	if attempts != 4 {
		t.Errorf("attempts = %d, want 4", attempts)
	}
}

func TestClientDoesNotRetryClientErrors(t *testing.T) {
	attempts := 0
	client, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error": {"message": "bad region"}}`))
	}))

	_, err := client.get(context.Background(), "/bad", nil)
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("error = %v, want APIError", err)
	}
	if attempts != 1 {
		t.Errorf("attempts = %d, want 1 (400 is not retryable)", attempts)
	}
}

func TestClientHonorsContextDuringBackoff(t *testing.T) {
	client, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	client.retry = &RetryStrategy{Intervals: []time.Duration{time.Hour}, MaxRetries: 3}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := client.get(ctx, "/limited", nil)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("error = %v, want context deadline", err)
	}
}

func TestIsRateLimitStatus(t *testing.T) {
	for _, code := range []int{429, 403, 509} {
		if !isRateLimitStatus(code) {
			t.Errorf("status %d should be retryable", code)
		}
	}
	for _, code := range []int{200, 400, 404, 500} {
		if isRateLimitStatus(code) {
			t.Errorf("status %d should not be retryable", code)
		}
	}
}

func TestRetryStrategyInterval(t *testing.T) {
	s := DefaultRetryStrategy()
	if s.Interval(0) != 2*time.Second {
		t.Errorf("Interval(0) = %v", s.Interval(0))
	}
	if s.Interval(100) != 5*time.Minute {
		t.Errorf("Interval(100) = %v, want last table entry", s.Interval(100))
	}
	empty := &RetryStrategy{}
	if empty.Interval(0) != time.Minute {
		t.Errorf("empty strategy Interval = %v", empty.Interval(0))
	}
}

func TestAPIErrorTruncatesBody(t *testing.T) {
	long := make([]byte, 1024)
	for i := range long {
		long[i] = 'x'
	}
	s := truncateBody(long)
	if len(s) != 512+3 {
		t.Errorf("truncated length = %d", len(s))
	}
}

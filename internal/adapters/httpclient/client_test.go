package httpclient_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"ga_friendliness/internal/adapters/httpclient"
)

func noWait(int) time.Duration { return 0 }

func get(url string) func(ctx context.Context) (*http.Request, error) {
	return func(ctx context.Context) (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	}
}

func TestDo_RetriesThenSuccess(t *testing.T) {
	var hits int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch atomic.AddInt32(&hits, 1) {
		case 1, 2:
			w.WriteHeader(http.StatusServiceUnavailable)
		default:
			_, _ = w.Write([]byte(`{"ok":true}`))
		}
	}))
	defer ts.Close()

	cl := httpclient.New("test", 100, time.Second).WithBackoff(noWait)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	b, err := cl.Do(ctx, "root", get(ts.URL))
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if string(b) != `{"ok":true}` {
		t.Fatalf("unexpected body: %s", b)
	}
	if n := atomic.LoadInt32(&hits); n != 3 {
		t.Fatalf("expected 3 calls, got %d", n)
	}
}

func TestDo_GivesUpAfterAttempts(t *testing.T) {
	var hits int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer ts.Close()

	cl := httpclient.New("test", 100, time.Second).WithBackoff(noWait)
	_, err := cl.Do(context.Background(), "root", get(ts.URL))
	if err == nil {
		t.Fatal("expected error")
	}
	if n := atomic.LoadInt32(&hits); n != 4 {
		t.Fatalf("expected 4 calls, got %d", n)
	}
}

func TestDo_StatusMapping(t *testing.T) {
	cases := map[int]error{
		http.StatusNotFound:     httpclient.ErrNotFound,
		http.StatusUnauthorized: httpclient.ErrUnauthorized,
		http.StatusForbidden:    httpclient.ErrForbidden,
	}
	for code, want := range cases {
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(code)
		}))
		cl := httpclient.New("test", 100, time.Second).WithBackoff(noWait)
		_, err := cl.Do(context.Background(), "root", get(ts.URL))
		ts.Close()
		if !errors.Is(err, want) {
			t.Fatalf("status %d: expected %v, got %v", code, want, err)
		}
	}
}

func TestDo_BadRequestIsNotRetried(t *testing.T) {
	var hits int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		http.Error(w, "nope", http.StatusBadRequest)
	}))
	defer ts.Close()

	cl := httpclient.New("test", 100, time.Second).WithBackoff(noWait)
	_, err := cl.Do(context.Background(), "root", get(ts.URL))
	var se *httpclient.StatusError
	if !errors.As(err, &se) || se.Code != http.StatusBadRequest || se.Body != "nope" {
		t.Fatalf("unexpected err: %v", err)
	}
	if hits != 1 {
		t.Fatalf("expected single call, got %d", hits)
	}
}

package client

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/studentpen/pen-batch-engine/internal/domain"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *SchoolClient {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c, err := NewSchoolClient(srv.URL, nil)
	if err != nil {
		t.Fatalf("NewSchoolClient() error = %v", err)
	}
	c.sleep = func(context.Context, time.Duration) error { return nil }
	return c
}

func TestLookupParsesDirectoryEntry(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/schools/10312345" {
			t.Errorf("request path = %q", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"mincode": "10312345",
			"schoolName": "EXAMPLE SECONDARY",
			"openedDate": "1998-09-01",
			"closedDate": "2030-06-30"
		}`))
	})

	submitter, err := c.Lookup(context.Background(), "10312345")
	if err != nil {
		t.Fatalf("Lookup() error = %v", err)
	}

	if submitter.Mincode != "10312345" || submitter.SchoolName != "EXAMPLE SECONDARY" {
		t.Errorf("submitter = %+v", submitter)
	}
	if got := submitter.OpenedAt.Format("2006-01-02"); got != "1998-09-01" {
		t.Errorf("opened = %s, want 1998-09-01", got)
	}
	if submitter.ClosedAt == nil || submitter.ClosedAt.Format("2006-01-02") != "2030-06-30" {
		t.Errorf("closed = %v, want 2030-06-30", submitter.ClosedAt)
	}
}

func TestLookupUnknownMincodeIsNotFound(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	_, err := c.Lookup(context.Background(), "99999999")
	if !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("Lookup() error = %v, want ErrNotFound", err)
	}
}

func TestLookupRetriesServerErrors(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte(`{"mincode":"10312345","schoolName":"EXAMPLE","openedDate":"1998-09-01"}`))
	})

	submitter, err := c.Lookup(context.Background(), "10312345")
	if err != nil {
		t.Fatalf("Lookup() error = %v", err)
	}
	if submitter.Mincode != "10312345" {
		t.Errorf("submitter = %+v", submitter)
	}
	if got := calls.Load(); got != 3 {
		t.Errorf("server saw %d calls, want 3", got)
	}
}

func TestLookupGivesUpAfterMaxAttempts(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	})

	_, err := c.Lookup(context.Background(), "10312345")
	if err == nil {
		t.Fatal("Lookup() error = nil, want exhaustion")
	}
	if got := calls.Load(); got != int32(c.maxAttempts) {
		t.Errorf("server saw %d calls, want %d", got, c.maxAttempts)
	}
}

func TestLookupDoesNotRetryClientErrors(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusForbidden)
	})

	_, err := c.Lookup(context.Background(), "10312345")

	var serviceErr *ServiceError
	if !errors.As(err, &serviceErr) || serviceErr.Transient {
		t.Fatalf("Lookup() error = %v, want permanent ServiceError", err)
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("server saw %d calls, want 1", got)
	}
}

func TestLookupRejectsMalformedDates(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"mincode":"10312345","schoolName":"EXAMPLE","openedDate":"01/09/1998"}`))
	})

	_, err := c.Lookup(context.Background(), "10312345")
	if err == nil {
		t.Fatal("Lookup() error = nil, want date parse failure")
	}
}

func TestIsTransientClassification(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"deadline", context.DeadlineExceeded, true},
		{"canceled", context.Canceled, false},
		{"transient service error", &ServiceError{Transient: true}, true},
		{"permanent service error", &ServiceError{}, false},
		{"plain error", errors.New("boom"), false},
	}

	for _, tc := range cases {
		if got := IsTransient(tc.err); got != tc.want {
			t.Errorf("IsTransient(%s) = %v, want %v", tc.name, got, tc.want)
		}
	}
}

package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/studentpen/pen-batch-engine/internal/domain"
	"go.uber.org/zap"
)

const (
	defaultMaxAttempts = 3
	defaultBaseDelay   = 200 * time.Millisecond
	defaultHTTPTimeout = 10 * time.Second
)

// SchoolClient resolves submitter codes against the school directory
// service. Transient failures are retried with bounded exponential backoff;
// exhausting the attempts surfaces the last error to the caller.
type SchoolClient struct {
	baseURL     string
	httpClient  *http.Client
	maxAttempts int
	baseDelay   time.Duration
	logger      *zap.Logger
	sleep       func(ctx context.Context, d time.Duration) error
}

type schoolResponse struct {
	Mincode    string `json:"mincode"`
	SchoolName string `json:"schoolName"`
	OpenedDate string `json:"openedDate"`
	ClosedDate string `json:"closedDate,omitempty"`
}

func NewSchoolClient(baseURL string, logger *zap.Logger) (*SchoolClient, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, fmt.Errorf("school api url is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &SchoolClient{
		baseURL:     baseURL,
		httpClient:  &http.Client{Timeout: defaultHTTPTimeout},
		maxAttempts: defaultMaxAttempts,
		baseDelay:   defaultBaseDelay,
		logger:      logger,
		sleep:       sleepWithContext,
	}, nil
}

// Lookup returns the directory entry for a submitter code, or
// domain.ErrNotFound when the directory does not know it.
func (c *SchoolClient) Lookup(ctx context.Context, mincode string) (*domain.Submitter, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	url := fmt.Sprintf("%s/api/v1/schools/%s", c.baseURL, mincode)

	var lastErr error
	delay := c.baseDelay
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		submitter, err := c.fetch(ctx, url)
		if err == nil {
			return submitter, nil
		}

		lastErr = err
		if !IsTransient(err) {
			return nil, err
		}

		if attempt < c.maxAttempts {
			c.logger.Warn("school lookup failed, retrying",
				zap.String("mincode", mincode),
				zap.Int("attempt", attempt),
				zap.Duration("backoff", delay),
				zap.Error(err),
			)
			if sleepErr := c.sleep(ctx, delay); sleepErr != nil {
				return nil, sleepErr
			}
			delay *= 2
		}
	}

	return nil, fmt.Errorf("school lookup exhausted %d attempts: %w", c.maxAttempts, lastErr)
}

func (c *SchoolClient) fetch(ctx context.Context, url string) (*domain.Submitter, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build school request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &ServiceError{Message: "school directory unreachable", Transient: true, Cause: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, &ServiceError{StatusCode: resp.StatusCode, Message: "failed to read response", Transient: true, Cause: err}
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, domain.ErrNotFound
	case resp.StatusCode >= 500:
		return nil, &ServiceError{StatusCode: resp.StatusCode, Message: "school directory error", Transient: true}
	case resp.StatusCode != http.StatusOK:
		return nil, &ServiceError{StatusCode: resp.StatusCode, Message: "unexpected school directory response"}
	}

	var payload schoolResponse
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, &ServiceError{StatusCode: resp.StatusCode, Message: "malformed school directory response", Cause: err}
	}

	return payload.toDomain()
}

func (r schoolResponse) toDomain() (*domain.Submitter, error) {
	opened, err := time.Parse("2006-01-02", strings.TrimSpace(r.OpenedDate))
	if err != nil {
		return nil, &ServiceError{Message: fmt.Sprintf("invalid opened date %q", r.OpenedDate), Cause: err}
	}

	submitter := &domain.Submitter{
		Mincode:    r.Mincode,
		SchoolName: r.SchoolName,
		OpenedAt:   opened,
	}

	if closedRaw := strings.TrimSpace(r.ClosedDate); closedRaw != "" {
		closed, err := time.Parse("2006-01-02", closedRaw)
		if err != nil {
			return nil, &ServiceError{Message: fmt.Sprintf("invalid closed date %q", r.ClosedDate), Cause: err}
		}
		submitter.ClosedAt = &closed
	}

	return submitter, nil
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

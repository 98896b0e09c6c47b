// Package reasoning calls the external reasoning service that produces
// advisory plausibility findings.
package reasoning

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/turtacn/TaxFlow/internal/application/plausibility"
	"github.com/turtacn/TaxFlow/internal/config"
	"github.com/turtacn/TaxFlow/internal/domain/submission"
	"github.com/turtacn/TaxFlow/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/TaxFlow/pkg/errors"
)

const (
	advisePath      = "/v1/plausibility/advise"
	maxResponseSize = 1 << 20
)

// Client implements plausibility.Advisor over HTTP JSON.
type Client struct {
	baseURL      string
	apiKey       string
	httpClient   *http.Client
	logger       logging.Logger
	retryMax     int
	retryWaitMin time.Duration
	retryWaitMax time.Duration
}

type Option func(*Client)

func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		if h != nil {
			c.httpClient = h
		}
	}
}

func WithRetry(max int, waitMin, waitMax time.Duration) Option {
	return func(c *Client) {
		if max >= 0 {
			c.retryMax = max
		}
		if waitMin > 0 {
			c.retryWaitMin = waitMin
			if waitMax >= waitMin {
				c.retryWaitMax = waitMax
			}
		}
	}
}

func NewClient(cfg config.ReasoningConfig, logger logging.Logger, opts ...Option) (*Client, error) {
	u, err := url.Parse(cfg.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, errors.InvalidParam("reasoning base url must be an absolute http(s) url").WithDetail(cfg.BaseURL)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	c := &Client{
		baseURL:      strings.TrimSuffix(cfg.BaseURL, "/"),
		apiKey:       cfg.APIKey,
		httpClient:   &http.Client{Timeout: timeout},
		logger:       logger.Named("reasoning"),
		retryMax:     2,
		retryWaitMin: 200 * time.Millisecond,
		retryWaitMax: 2 * time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

type adviseResponse struct {
	Issues []submission.Issue `json:"issues"`
}

// Advise posts the request and returns the findings with a known severity.
// Every failure carries ErrCodeReasoningUnavailable.
func (c *Client) Advise(ctx context.Context, req plausibility.AdvisoryRequest) ([]submission.Issue, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeSerialization, "failed to encode advisory request")
	}

	var out adviseResponse
	if err := c.post(ctx, advisePath, body, &out); err != nil {
		return nil, err
	}

	issues := make([]submission.Issue, 0, len(out.Issues))
	for _, is := range out.Issues {
		if !is.Severity.IsValid() || strings.TrimSpace(is.Message) == "" {
			c.logger.Debug("Dropping malformed advisory finding",
				logging.SubmissionID(req.SubmissionID),
				logging.String("severity", string(is.Severity)))
			continue
		}
		issues = append(issues, is)
	}
	return issues, nil
}

func (c *Client) post(ctx context.Context, path string, body []byte, result interface{}) error {
	var lastErr error
	for attempt := 0; attempt <= c.retryMax; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(c.backoff(attempt)):
			case <-ctx.Done():
				return unavailable(ctx.Err(), "reasoning request cancelled")
			}
		}

		retry, err := c.once(ctx, path, body, result)
		if err == nil {
			return nil
		}
		lastErr = err
		if !retry {
			return err
		}
		c.logger.Warn("Reasoning request failed, retrying",
			logging.Int("attempt", attempt+1),
			logging.Err(err))
	}
	return lastErr
}

// once performs one round trip and reports whether a failure is retryable.
func (c *Client) once(ctx context.Context, path string, body []byte, result interface{}) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return false, unavailable(err, "failed to build reasoning request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", uuid.NewString())
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return ctx.Err() == nil, unavailable(err, "reasoning service unreachable")
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return true, unavailable(err, "failed to read reasoning response")
	}
	if resp.StatusCode >= 400 {
		msg := fmt.Sprintf("reasoning service returned HTTP %d", resp.StatusCode)
		retry := resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests
		return retry, errors.New(errors.ErrCodeReasoningUnavailable, msg).WithDetail(strings.TrimSpace(string(data)))
	}
	if err := json.Unmarshal(data, result); err != nil {
		return false, unavailable(err, "malformed reasoning response")
	}
	return false, nil
}

func (c *Client) backoff(attempt int) time.Duration {
	d := c.retryWaitMin * time.Duration(1<<uint(attempt-1))
	if d > c.retryWaitMax {
		d = c.retryWaitMax
	}
	if q := int64(d / 4); q > 0 {
		d += time.Duration(rand.Int63n(q))
	}
	return d
}

func unavailable(err error, msg string) error {
	return errors.Wrap(err, errors.ErrCodeReasoningUnavailable, msg)
}

var _ plausibility.Advisor = (*Client)(nil)

// Package agents provides a client for the extraction-agent service, the
// external collaborator that produces raw quality metrics for an artifact.
package agents

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/quality-engine/internal/model"
	"github.com/sells-group/quality-engine/internal/resilience"
	"github.com/sells-group/quality-engine/internal/runner"
)

// Client defines the extraction-agent operations the engine consumes.
type Client interface {
	// Extract requests fresh metrics for one evaluation round. Prior
	// suggestions are forwarded so the agents re-extract against them.
	Extract(ctx context.Context, req ExtractRequest) (model.MetricsBundle, error)
}

// ExtractRequest identifies the project round to (re-)extract.
type ExtractRequest struct {
	ProjectID   string   `json:"project_id"`
	Iteration   int      `json:"iteration"`
	Suggestions []string `json:"suggestions,omitempty"`
}

// extractResponse is the agent service's wire envelope.
type extractResponse struct {
	Metrics model.MetricsBundle `json:"metrics"`
}

// Option configures the agents client.
type Option func(*httpClient)

// WithBaseURL sets a custom base URL (for testing).
func WithBaseURL(url string) Option {
	return func(c *httpClient) {
		c.baseURL = url
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

// WithRateLimit caps outgoing extract requests per second.
func WithRateLimit(rps float64, burst int) Option {
	return func(c *httpClient) {
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithRetry overrides the default retry policy.
func WithRetry(cfg resilience.RetryConfig) Option {
	return func(c *httpClient) {
		c.retry = cfg
	}
}

type httpClient struct {
	apiKey  string
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
	retry   resilience.RetryConfig
}

// NewClient creates an extraction-agent client.
func NewClient(apiKey string, opts ...Option) Client {
	c := &httpClient{
		apiKey:  apiKey,
		baseURL: "http://localhost:8090",
		http: &http.Client{
			Timeout: 120 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		limiter: rate.NewLimiter(rate.Limit(2), 4),
		retry:   resilience.DefaultRetryConfig(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Extract posts the round request and decodes the metrics bundle. Transient
// failures (429, 5xx, network timeouts) are retried with backoff; anything
// else fails immediately.
func (c *httpClient) Extract(ctx context.Context, req ExtractRequest) (model.MetricsBundle, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return model.MetricsBundle{}, eris.Wrap(err, "agents: marshal extract request")
	}

	return resilience.DoVal(ctx, c.retry, func(ctx context.Context) (model.MetricsBundle, error) {
		if err := c.limiter.Wait(ctx); err != nil {
			return model.MetricsBundle{}, eris.Wrap(err, "agents: rate limiter")
		}

		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
			c.baseURL+"/v1/extract", bytes.NewReader(payload))
		if err != nil {
			return model.MetricsBundle{}, eris.Wrap(err, "agents: build request")
		}
		httpReq.Header.Set("Content-Type", "application/json")
		if c.apiKey != "" {
			httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
		}

		resp, err := c.http.Do(httpReq)
		if err != nil {
			return model.MetricsBundle{}, eris.Wrap(err, "agents: extract request")
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return model.MetricsBundle{}, eris.Wrap(err, "agents: read response")
		}

		if resp.StatusCode != http.StatusOK {
			reqErr := eris.Errorf("agents: extract status %d: %s", resp.StatusCode, string(body))
			if resilience.IsTransientHTTPStatus(resp.StatusCode) {
				return model.MetricsBundle{}, resilience.NewTransientError(reqErr, resp.StatusCode)
			}
			return model.MetricsBundle{}, reqErr
		}

		var envelope extractResponse
		if err := json.Unmarshal(body, &envelope); err != nil {
			return model.MetricsBundle{}, eris.Wrap(err, "agents: decode metrics")
		}

		zap.L().Debug("agents: metrics extracted",
			zap.String("project_id", req.ProjectID),
			zap.Int("iteration", req.Iteration),
		)
		return envelope.Metrics, nil
	})
}

// Provider adapts the client into the runner's MetricsProvider contract for
// one project.
func Provider(c Client, projectID string) runner.MetricsProvider {
	return func(ctx context.Context, iteration int, priorSuggestions []string) (model.MetricsBundle, error) {
		return c.Extract(ctx, ExtractRequest{
			ProjectID:   projectID,
			Iteration:   iteration,
			Suggestions: priorSuggestions,
		})
	}
}

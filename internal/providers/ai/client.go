package ai

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"

	"github.com/techscaniq/diligence/internal/infrastructure/resilience"
)

// Config holds the connection settings for one AI provider endpoint
type Config struct {
	Provider string
	BaseURL  string
	APIKey   string
	Timeout  time.Duration
}

// Client is an HTTP Invoker for a hosted completion API
type Client struct {
	cfg   Config
	resty *resty.Client
	log   *zap.Logger
}

// completionRequest is the wire shape of an invocation
type completionRequest struct {
	Model string `json:"model"`
	Input string `json:"input"`
}

// completionResponse is the wire shape of a model reply
type completionResponse struct {
	Output string `json:"output"`
	Error  string `json:"error,omitempty"`
}

// transportCheckRetry retries connection-level failures only. Responses
// with provider error statuses pass through untouched: their backoff is
// owned by the caller's retry policy, so those attempts stay observable.
func transportCheckRetry(ctx context.Context, resp *http.Response, err error) (bool, error) {
	if ctx.Err() != nil {
		return false, ctx.Err()
	}
	return resp == nil && err != nil, nil
}

// NewClient creates an HTTP invoker. The retryablehttp transport absorbs
// connection resets and broken keep-alives below the caller's retry policy.
func NewClient(cfg Config, log *zap.Logger) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if log == nil {
		log = zap.NewNop()
	}

	transport := retryablehttp.NewClient()
	transport.RetryMax = 2
	transport.RetryWaitMin = 100 * time.Millisecond
	transport.RetryWaitMax = 500 * time.Millisecond
	transport.CheckRetry = transportCheckRetry
	transport.Logger = nil

	client := resty.New().
		SetTransport(&retryablehttp.RoundTripper{Client: transport}).
		SetBaseURL(cfg.BaseURL).
		SetTimeout(cfg.Timeout).
		SetAuthToken(cfg.APIKey).
		SetHeader("User-Agent", "diligence-pipeline/1.0")

	return &Client{cfg: cfg, resty: client, log: log}
}

// Invoke sends a prompt to the given model and returns its raw text output
func (c *Client) Invoke(ctx context.Context, prompt string, modelID string) (string, error) {
	var result completionResponse

	resp, err := c.resty.R().
		SetContext(ctx).
		SetBody(completionRequest{Model: modelID, Input: prompt}).
		SetResult(&result).
		Post("/v1/completions")
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}
		return "", &resilience.ProviderError{Provider: c.cfg.Provider, Kind: resilience.KindNetwork, Err: err}
	}

	if resp.IsError() {
		kind := classifyStatus(resp.StatusCode())
		c.log.Warn("model invocation failed",
			zap.String("provider", c.cfg.Provider),
			zap.String("model", modelID),
			zap.Int("status", resp.StatusCode()),
			zap.String("kind", kind.String()),
		)
		return "", &resilience.ProviderError{
			Provider: c.cfg.Provider,
			Kind:     kind,
			Err:      fmt.Errorf("status %d: %s", resp.StatusCode(), errorBody(result, resp)),
		}
	}

	return result.Output, nil
}

// classifyStatus maps provider HTTP statuses onto the failure taxonomy
func classifyStatus(status int) resilience.Kind {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return resilience.KindAuth
	case status == http.StatusTooManyRequests:
		return resilience.KindRateLimit
	case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
		return resilience.KindTimeout
	case status >= 500:
		return resilience.KindNetwork
	default:
		return resilience.KindUnknown
	}
}

func errorBody(result completionResponse, resp *resty.Response) string {
	if result.Error != "" {
		return result.Error
	}
	return resp.Status()
}

package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"golang.org/x/time/rate"

	"github.com/go-modpackinstaller/pkg/config"
	"github.com/go-modpackinstaller/pkg/errdefs"
	"github.com/go-modpackinstaller/pkg/utils"
)

// apiClient is the JSON client shared by the marketplace backends. Requests
// are paced by a token bucket and retried on 429/5xx by retryablehttp; the
// final answer is translated into the errdefs taxonomy.
type apiClient struct {
	name    string
	baseURL string
	http    *retryablehttp.Client
	limiter *rate.Limiter
	headers map[string]string
	logger  *utils.Logger
}

func newAPIClient(name, baseURL string, cfg *config.Config, logger *utils.Logger) *apiClient {
	rc := retryablehttp.NewClient()
	rc.RetryMax = cfg.APIMaxRetries
	rc.RetryWaitMin = 500 * time.Millisecond
	rc.RetryWaitMax = 10 * time.Second
	rc.HTTPClient.Timeout = cfg.RequestTimeout
	rc.ErrorHandler = retryablehttp.PassthroughErrorHandler
	rc.Logger = leveledLogger{logger}

	limit := rate.Inf
	burst := 1
	if cfg.APIRequestsPerSecond > 0 {
		limit = rate.Limit(cfg.APIRequestsPerSecond)
		if b := int(cfg.APIRequestsPerSecond); b > 1 {
			burst = b
		}
	}

	headers := map[string]string{"User-Agent": cfg.UserAgent, "Accept": "application/json"}
	for k, v := range cfg.HTTPHeaders {
		headers[k] = v
	}

	return &apiClient{
		name:    name,
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    rc,
		limiter: rate.NewLimiter(limit, burst),
		headers: headers,
		logger:  logger,
	}
}

func (c *apiClient) getJSON(ctx context.Context, path string, query url.Values, out interface{}) error {
	return c.do(ctx, http.MethodGet, path, query, nil, out)
}

func (c *apiClient) postJSON(ctx context.Context, path string, body, out interface{}) error {
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}
	return c.do(ctx, http.MethodPost, path, nil, data, out)
}

func (c *apiClient) do(ctx context.Context, method, path string, query url.Values, body []byte, out interface{}) error {
	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}
	op := c.name + " " + method + " " + path

	if err := c.limiter.Wait(ctx); err != nil {
		return errdefs.Wrap(errdefs.KindCanceled, op, err)
	}

	var reqBody interface{}
	if body != nil {
		reqBody = body
	}
	req, err := retryablehttp.NewRequestWithContext(ctx, method, endpoint, reqBody)
	if err != nil {
		return errdefs.Wrap(errdefs.KindProvider, op, err)
	}
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	c.logger.Debug("%s %s", method, endpoint)
	resp, err := c.http.Do(req)
	if resp == nil {
		if err == nil {
			err = fmt.Errorf("no response")
		}
		return errdefs.Wrap(errdefs.KindNetwork, op, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 32<<20))
	if err != nil {
		return errdefs.Wrap(errdefs.KindNetwork, op, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return statusError(op, resp.StatusCode, data)
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return errdefs.Wrap(errdefs.KindParse, op, fmt.Errorf("malformed response: %w", err))
	}
	return nil
}

// statusError maps a non-2xx answer onto the taxonomy
func statusError(op string, code int, body []byte) error {
	msg := apiMessage(body)
	if msg == "" {
		msg = http.StatusText(code)
	}
	switch {
	case code == http.StatusTooManyRequests:
		return errdefs.Status(errdefs.KindRateLimit, op, code, msg)
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return errdefs.Status(errdefs.KindAuth, op, code, msg)
	default:
		return errdefs.Status(errdefs.KindProvider, op, code, msg)
	}
}

// apiMessage extracts the human message marketplaces put in error bodies
func apiMessage(body []byte) string {
	var payload struct {
		Error       string `json:"error"`
		Description string `json:"description"`
		Message     string `json:"message"`
	}
	if json.Unmarshal(body, &payload) != nil {
		return ""
	}
	switch {
	case payload.Description != "":
		return payload.Description
	case payload.Message != "":
		return payload.Message
	default:
		return payload.Error
	}
}

// leveledLogger adapts utils.Logger to retryablehttp.LeveledLogger
type leveledLogger struct {
	logger *utils.Logger
}

func (l leveledLogger) Error(msg string, keysAndValues ...interface{}) {
	l.logger.Warn("%s %v", msg, keysAndValues)
}

func (l leveledLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug("%s %v", msg, keysAndValues)
}

func (l leveledLogger) Debug(msg string, keysAndValues ...interface{}) {
	l.logger.Verbose("%s %v", msg, keysAndValues)
}

func (l leveledLogger) Warn(msg string, keysAndValues ...interface{}) {
	l.logger.Warn("%s %v", msg, keysAndValues)
}

var _ retryablehttp.LeveledLogger = leveledLogger{}

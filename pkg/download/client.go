package download

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/go-modpackinstaller/pkg/errdefs"
	"github.com/go-modpackinstaller/pkg/utils"
)

// Client handles HTTP file transfers
type Client struct {
	httpClient      *http.Client
	logger          *utils.Logger
	customHeaders   map[string]string
	userAgent       string
	followRedirects bool
}

// NewClient creates a new download client
func NewClient(logger *utils.Logger, headers map[string]string) *Client {
	client := &Client{
		httpClient:    &http.Client{},
		logger:        logger,
		customHeaders: make(map[string]string),
		userAgent:     "go-modpackinstaller/1.0",
	}
	client.SetFollowRedirects(true)

	for k, v := range headers {
		client.customHeaders[k] = v
	}
	return client
}

// SetFollowRedirects toggles HTTP redirect following
func (c *Client) SetFollowRedirects(follow bool) {
	c.followRedirects = follow
	if follow {
		c.httpClient.CheckRedirect = nil
	} else {
		c.httpClient.CheckRedirect = func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse // do not follow
		}
	}
}

// SetUserAgent overrides the User-Agent header
func (c *Client) SetUserAgent(ua string) {
	if ua != "" {
		c.userAgent = ua
	}
}

// SetTimeout bounds a whole transfer, body included
func (c *Client) SetTimeout(d time.Duration) {
	c.httpClient.Timeout = d
}

// Fetch streams url into w, reporting each chunk to onBytes. Failures are
// classified: transport problems and 5xx/408/429 answers are KindNetwork
// (retryable), other answers are KindProvider.
func (c *Client) Fetch(ctx context.Context, url string, w io.Writer, onBytes func(int64)) (int64, error) {
	c.logger.Debug("Making HTTP request to %s", url)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, errdefs.Wrap(errdefs.KindProvider, url, fmt.Errorf("failed to create request: %w", err))
	}

	for key, value := range c.customHeaders {
		req.Header.Set(key, value)
	}
	req.Header.Set("User-Agent", c.userAgent)

	if c.logger.IsDebug() {
		safe := make(http.Header)
		for k, vals := range req.Header {
			if k == "Authorization" || k == "Proxy-Authorization" || k == "X-Api-Key" {
				safe[k] = []string{"***redacted***"}
			} else {
				safe[k] = vals
			}
		}
		c.logger.Verbose("HTTP request headers: %v", safe)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, errdefs.Wrap(errdefs.KindNetwork, url, err)
	}
	defer resp.Body.Close()

	c.logger.Debug("HTTP response status: %d", resp.StatusCode)

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return 0, statusError(url, resp.StatusCode)
	}

	cw := &countingWriter{w: w, onBytes: onBytes}
	n, err := io.Copy(cw, resp.Body)
	if err != nil {
		if cw.writeErr != nil {
			return n, fmt.Errorf("failed to write %s: %w", url, cw.writeErr)
		}
		return n, errdefs.Wrap(errdefs.KindNetwork, url, err)
	}

	c.logger.Debug("Received %d bytes from %s", n, url)
	return n, nil
}

func statusError(url string, code int) error {
	switch {
	case code >= 500, code == http.StatusRequestTimeout, code == http.StatusTooManyRequests:
		return errdefs.Status(errdefs.KindNetwork, url, code, "server answered "+http.StatusText(code))
	case code >= 300 && code < 400:
		return errdefs.Status(errdefs.KindProvider, url, code, "redirect not followed")
	default:
		return errdefs.Status(errdefs.KindProvider, url, code, "download failed: "+http.StatusText(code))
	}
}

// countingWriter forwards writes and remembers write-side failures so they
// are not mistaken for network errors.
type countingWriter struct {
	w        io.Writer
	onBytes  func(int64)
	writeErr error
}

func (cw *countingWriter) Write(p []byte) (int, error) {
	n, err := cw.w.Write(p)
	if n > 0 && cw.onBytes != nil {
		cw.onBytes(int64(n))
	}
	if err != nil {
		cw.writeErr = err
	}
	return n, err
}

// VerifyFile checks path against an expected size and checksum. A zero size
// or empty checksum skips that comparison.
func VerifyFile(path string, size int64, checksum string) error {
	if size > 0 {
		n, err := fileSize(path)
		if err != nil {
			return err
		}
		if n != size {
			return errdefs.New(errdefs.KindIntegrity, path, "size mismatch: expected %d, got %d", size, n)
		}
	}
	if checksum == "" {
		return nil
	}
	actual, err := utils.HashFile(path, checksum)
	if err != nil {
		return errdefs.Wrap(errdefs.KindIntegrity, path, err)
	}
	return compareDigest(path, checksum, actual)
}

func compareDigest(op, expected, actual string) error {
	if !utils.ChecksumEqual(expected, actual) {
		return errdefs.New(errdefs.KindIntegrity, op, "checksum mismatch: expected %s, got %s", expected, actual)
	}
	return nil
}

var errNotRegular = errors.New("not a regular file")

func fileSize(path string) (int64, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, err
	}
	if !info.Mode().IsRegular() {
		return 0, fmt.Errorf("%s: %w", path, errNotRegular)
	}
	return info.Size(), nil
}

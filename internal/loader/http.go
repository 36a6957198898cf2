// internal/loader/http.go
package loader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
)

// ErrStatus is wrapped when the bundle origin answers with a non-2xx status
var ErrStatus = errors.New("loader: unexpected status")

// HTTPLoader warms route bundles by requesting them from an origin, which
// fills any CDN or proxy cache in between
type HTTPLoader struct {
	baseURL string
	client  *http.Client
	logger  *zap.Logger
}

// NewHTTPLoader creates a loader for bundles under baseURL. client and
// logger may be nil.
func NewHTTPLoader(baseURL string, client *http.Client, logger *zap.Logger) (*HTTPLoader, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("loader: parse base url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("loader: base url %q must be http or https", baseURL)
	}
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &HTTPLoader{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  client,
		logger:  logger.Named("loader.http"),
	}, nil
}

// Load fetches the bundle for path and discards the body
func (l *HTTPLoader) Load(ctx context.Context, path string) error {
	target := l.baseURL + "/" + strings.TrimLeft(path, "/")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return fmt.Errorf("loader: build request: %w", err)
	}

	resp, err := l.client.Do(req)
	if err != nil {
		return fmt.Errorf("loader: get %s: %w", target, err)
	}
	defer func() { _ = resp.Body.Close() }()

	n, err := io.Copy(io.Discard, resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%w: %s returned %d", ErrStatus, target, resp.StatusCode)
	}
	if err != nil {
		return fmt.Errorf("loader: read %s: %w", target, err)
	}

	l.logger.Debug("bundle warmed", zap.String("url", target), zap.Int64("bytes", n))
	return nil
}

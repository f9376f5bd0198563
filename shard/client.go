package shard

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// maxShardBytes guards against runaway shard bodies.
const maxShardBytes = 8 << 20

var ErrPayloadTooLarge = errors.New("payload too large")

// Fetcher obtains the raw bytes of one shard.
type Fetcher interface {
	Fetch(ctx context.Context, ref Ref) ([]byte, error)
}

// StatusError is a non-success response from a shard host.
type StatusError struct {
	Code int
	URL  string
}

func (e *StatusError) Error() string { return fmt.Sprintf("shard host returned %d for %s", e.Code, e.URL) }

type HTTPFetcher struct {
	baseURL string
	http    *retryablehttp.Client
	limiter *rate.Limiter
}

// NewHTTPFetcher fetches shards relative to baseURL. rps <= 0 disables the
// client-side throttle.
func NewHTTPFetcher(baseURL string, rps float64, log *zap.Logger) *HTTPFetcher {
	rc := retryablehttp.NewClient()
	rc.RetryWaitMin = 100 * time.Millisecond
	rc.RetryWaitMax = 900 * time.Millisecond
	rc.RetryMax = 3
	rc.HTTPClient.Timeout = 6 * time.Second
	rc.Logger = leveledLogger{log: orNop(log).Sugar()}

	lim := rate.NewLimiter(rate.Inf, 0)
	if rps > 0 {
		lim = rate.NewLimiter(rate.Limit(rps), int(rps)+1)
	}
	return &HTTPFetcher{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    rc,
		limiter: lim,
	}
}

// WithRetryMax overrides the retry budget; tests use 0.
func (f *HTTPFetcher) WithRetryMax(n int) *HTTPFetcher {
	f.http.RetryMax = n
	return f
}

func (f *HTTPFetcher) Fetch(ctx context.Context, ref Ref) ([]byte, error) {
	if err := f.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	u := f.baseURL + "/" + strings.TrimLeft(ref.Path, "/")
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("accept", "application/json")

	resp, err := f.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		return nil, &StatusError{Code: resp.StatusCode, URL: u}
	}
	return ioReadAllLimit(resp.Body, maxShardBytes)
}

func ioReadAllLimit(r io.Reader, limit int64) ([]byte, error) {
	lr := io.LimitReader(r, limit+1)
	b, err := io.ReadAll(lr)
	if err != nil {
		return nil, err
	}
	if int64(len(b)) > limit {
		return nil, ErrPayloadTooLarge
	}
	return b, nil
}

// leveledLogger routes retryablehttp's logging through zap.
type leveledLogger struct{ log *zap.SugaredLogger }

func (l leveledLogger) Error(msg string, kv ...interface{}) { l.log.Errorw(msg, kv...) }
func (l leveledLogger) Info(msg string, kv ...interface{})  { l.log.Debugw(msg, kv...) }
func (l leveledLogger) Debug(msg string, kv ...interface{}) { l.log.Debugw(msg, kv...) }
func (l leveledLogger) Warn(msg string, kv ...interface{})  { l.log.Warnw(msg, kv...) }

func orNop(l *zap.Logger) *zap.Logger {
	if l == nil {
		return zap.NewNop()
	}
	return l
}

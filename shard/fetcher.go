package shard

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
)

// FetcherOptions carries the knobs for NewFetcher.
type FetcherOptions struct {
	RPS       float64
	AWSRegion string
	Logger    *zap.Logger
}

// NewFetcher picks a fetcher by the scheme of base: http(s), s3 or file.
func NewFetcher(ctx context.Context, base string, opts FetcherOptions) (Fetcher, error) {
	u, err := url.Parse(base)
	if err != nil {
		return nil, fmt.Errorf("parse shard base %q: %w", base, err)
	}
	switch u.Scheme {
	case "http", "https":
		return NewHTTPFetcher(base, opts.RPS, opts.Logger), nil
	case "s3":
		return NewS3FetcherFromEnv(ctx, opts.AWSRegion, u.Host, u.Path)
	case "file", "":
		dir := u.Path
		if u.Scheme == "" {
			dir = base
		}
		return FileFetcher{Dir: dir}, nil
	}
	return nil, fmt.Errorf("unsupported shard base scheme %q", u.Scheme)
}

// FileFetcher serves shards from a local directory, mainly for development.
type FileFetcher struct{ Dir string }

func (f FileFetcher) Fetch(ctx context.Context, ref Ref) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p := filepath.Join(f.Dir, filepath.FromSlash(strings.TrimLeft(ref.Path, "/")))
	b, err := os.ReadFile(p)
	if os.IsNotExist(err) {
		return nil, &StatusError{Code: 404, URL: "file://" + p}
	}
	if err != nil {
		return nil, err
	}
	if len(b) > maxShardBytes {
		return nil, ErrPayloadTooLarge
	}
	return b, nil
}

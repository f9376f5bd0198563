package shard

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPFetcher(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/shards/sale/miami.json":
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`[{"id":"1"}]`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	f := NewHTTPFetcher(srv.URL+"/shards/", 0, nil).WithRetryMax(0)

	body, err := f.Fetch(context.Background(), Ref{Category: Sale, Location: "miami", Path: "sale/miami.json"})
	require.NoError(t, err)
	assert.JSONEq(t, `[{"id":"1"}]`, string(body))

	_, err = f.Fetch(context.Background(), Ref{Category: Lease, Location: "miami", Path: "lease/miami.json"})
	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusNotFound, se.Code)
}

func TestIOReadAllLimit(t *testing.T) {
	_, err := ioReadAllLimit(bytes.NewReader(make([]byte, 11)), 10)
	assert.ErrorIs(t, err, ErrPayloadTooLarge)

	b, err := ioReadAllLimit(bytes.NewReader(make([]byte, 10)), 10)
	require.NoError(t, err)
	assert.Len(t, b, 10)
}

type fakeS3 struct {
	objects map[string]string
	lastKey string
}

func (f *fakeS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.lastKey = *in.Key
	body, ok := f.objects[*in.Key]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader([]byte(body)))}, nil
}

func TestS3Fetcher(t *testing.T) {
	api := &fakeS3{objects: map[string]string{"v2/sale/austin.json": `{"results":[]}`}}
	f := NewS3Fetcher(api, "listings", "/v2/")

	body, err := f.Fetch(context.Background(), Ref{Path: "sale/austin.json"})
	require.NoError(t, err)
	assert.Equal(t, `{"results":[]}`, string(body))
	assert.Equal(t, "v2/sale/austin.json", api.lastKey)

	_, err = f.Fetch(context.Background(), Ref{Path: "lease/austin.json"})
	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, 404, se.Code)
}

func TestNewFetcherFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "sale"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "sale", "tampa.json"), []byte(`[]`), 0o644))

	f, err := NewFetcher(context.Background(), "file://"+dir, FetcherOptions{})
	require.NoError(t, err)

	body, err := f.Fetch(context.Background(), Ref{Path: "sale/tampa.json"})
	require.NoError(t, err)
	assert.Equal(t, "[]", string(body))

	_, err = f.Fetch(context.Background(), Ref{Path: "lease/tampa.json"})
	var se *StatusError
	assert.ErrorAs(t, err, &se)

	_, err = NewFetcher(context.Background(), "ftp://host/x", FetcherOptions{})
	assert.Error(t, err)
}

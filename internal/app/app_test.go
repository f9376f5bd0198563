package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourorg/listing-api/internal/cache"
	"github.com/yourorg/listing-api/internal/env"
	"github.com/yourorg/listing-api/internal/idcodec"
	"github.com/yourorg/listing-api/internal/resolver"
	"github.com/yourorg/listing-api/internal/session"
	"github.com/yourorg/listing-api/shard"
)

func testConfig(t *testing.T, backend string) env.Config {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "shards", "sale"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "shards", "sale", "austin.json"),
		[]byte(`[{"id":"a1","price":1},{"id":"a2","price":2}]`), 0o644))
	return env.Config{
		ShardBaseURL: filepath.Join(dir, "shards"),
		CacheBackend: backend,
		SQLitePath:   filepath.Join(dir, "listing.db"),
		RefreshQueue: 4,
	}
}

func TestBuildSQLiteBackendEndToEnd(t *testing.T) {
	ctx := context.Background()
	a, err := Build(ctx, testConfig(t, env.BackendSQLite), nil, Options{})
	require.NoError(t, err)
	defer a.Close()

	assert.IsType(t, &cache.SQLiteStore{}, a.Cache)
	assert.NotNil(t, a.Favorites)
	assert.NotNil(t, a.Refresher)
	assert.Nil(t, a.Store)

	sess := session.New("")
	recs, err := a.Loader.Load(ctx, sess, shard.Sale, "austin")
	require.NoError(t, err)
	require.Len(t, recs, 2)

	res, err := a.Resolver.Resolve(ctx, session.New(""), resolver.Request{ID: idcodec.Encode(shard.Sale, "Austin, TX", recs[1].Ordinal)})
	require.NoError(t, err)
	assert.Equal(t, resolver.TierHinted, res.Tier)
	assert.Equal(t, recs[1].NativeID, res.Record.NativeID)
}

func TestBuildWithoutCache(t *testing.T) {
	a, err := Build(context.Background(), testConfig(t, env.BackendNone), nil, Options{SkipFavorites: true, SkipRefresher: true})
	require.NoError(t, err)
	assert.Nil(t, a.Cache)
	assert.Nil(t, a.Favorites)
	assert.Nil(t, a.Refresher)
	assert.NoError(t, a.Close())
	assert.NoError(t, a.Close(), "close is idempotent")
}

func TestBuildRejectsUnknownBackend(t *testing.T) {
	_, err := Build(context.Background(), testConfig(t, "etcd"), nil, Options{})
	assert.Error(t, err)
}

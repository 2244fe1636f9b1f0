package storage

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	require.NoError(t, store.Upload(ctx, "artworks/u1/castle.png", strings.NewReader("pixels"), 6, "image/png"))

	reader, info, err := store.Download(ctx, "artworks/u1/castle.png")
	require.NoError(t, err)
	defer reader.Close()

	data, err := io.ReadAll(reader)
	require.NoError(t, err)
	assert.Equal(t, "pixels", string(data))
	assert.Equal(t, int64(6), info.Size)
	assert.Equal(t, "image/png", info.ContentType)
}

func TestMemoryStoreListByPrefix(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	for _, key := range []string{"artworks/u1/b.png", "artworks/u1/a.png", "artworks/u2/c.png", "audit-logs/x.ndjson"} {
		require.NoError(t, store.Upload(ctx, key, strings.NewReader("x"), 1, "application/octet-stream"))
	}

	objects, err := store.List(ctx, "artworks/u1/")
	require.NoError(t, err)
	require.Len(t, objects, 2)
	assert.Equal(t, "artworks/u1/a.png", objects[0].Key)
	assert.Equal(t, "artworks/u1/b.png", objects[1].Key)
}

func TestMemoryStoreMissingObject(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	_, _, err := store.Download(ctx, "nope")
	assert.True(t, errors.Is(err, ErrObjectNotFound))

	_, err = store.Stat(ctx, "nope")
	assert.True(t, errors.Is(err, ErrObjectNotFound))

	_, err = store.PresignedGetURL(ctx, "nope", time.Minute)
	assert.True(t, errors.Is(err, ErrObjectNotFound))

	assert.NoError(t, store.Delete(ctx, "nope"))
}

func TestMemoryStorePresignedURL(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	fixed := time.Unix(1_700_000_000, 0)
	store.now = func() time.Time { return fixed }

	require.NoError(t, store.Upload(ctx, "artworks/u1/a b.png", strings.NewReader("x"), 1, "image/png"))
	url, err := store.PresignedGetURL(ctx, "artworks/u1/a b.png", 15*time.Minute)
	require.NoError(t, err)
	assert.Contains(t, url, "expires=1700000900")
	assert.Contains(t, url, "a%20b.png")
}

package services

import (
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/FelipeDesigne/pixelart-supabase-sub000/internal/storage"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitizeArtworkName(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"castle.png", "castle.png", false},
		{"  sprite sheet.gif ", "sprite sheet.gif", false},
		{"../../etc/passwd", "passwd", false},
		{"dir\\sub\\tile.png", "tile.png", false},
		{"", "", true},
		{"..", "", true},
		{"/", "", true},
		{"bad\nname.png", "", true},
		{strings.Repeat("a", 201), "", true},
	}
	for _, tt := range tests {
		got, err := SanitizeArtworkName(tt.in)
		if tt.wantErr {
			assert.Error(t, err, "input %q", tt.in)
			assert.ErrorIs(t, err, ErrValidation)
			continue
		}
		require.NoError(t, err, "input %q", tt.in)
		assert.Equal(t, tt.want, got)
	}
}

func TestArtworkKeyRoundTrip(t *testing.T) {
	userID := uuid.New()
	key, err := ArtworkKey(userID, "hero.png")
	require.NoError(t, err)
	assert.Equal(t, "artworks/"+userID.String()+"/hero.png", key)

	owner, name, err := ParseArtworkKey(key)
	require.NoError(t, err)
	assert.Equal(t, userID, owner)
	assert.Equal(t, "hero.png", name)

	for _, bad := range []string{"artworks/not-a-uuid/x.png", "other/" + userID.String() + "/x.png", "artworks/" + userID.String() + "/"} {
		_, _, err := ParseArtworkKey(bad)
		assert.Error(t, err, bad)
	}
}

func TestArtworkServiceLifecycle(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	svc := NewArtworkService(store)
	userID, otherID := uuid.New(), uuid.New()

	first, err := svc.Upload(ctx, userID, "first.png", strings.NewReader("one"), 3, "")
	require.NoError(t, err)
	assert.Equal(t, "image/png", first.ContentType)
	assert.Equal(t, int64(3), first.Size)

	time.Sleep(5 * time.Millisecond)
	_, err = svc.Upload(ctx, userID, "second.gif", strings.NewReader("two!"), 4, "image/gif")
	require.NoError(t, err)
	_, err = svc.Upload(ctx, otherID, "theirs.png", strings.NewReader("x"), 1, "image/png")
	require.NoError(t, err)

	list, err := svc.List(ctx, userID)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "second.gif", list[0].Name, "newest first")
	assert.Equal(t, "first.png", list[1].Name)

	reader, artwork, err := svc.Open(ctx, userID, "first.png")
	require.NoError(t, err)
	data, _ := io.ReadAll(reader)
	reader.Close()
	assert.Equal(t, "one", string(data))
	assert.Equal(t, userID.String(), artwork.UserID)

	url, err := svc.PresignedURL(ctx, userID, "first.png", 15*time.Minute)
	require.NoError(t, err)
	assert.NotEmpty(t, url)

	require.NoError(t, svc.Delete(ctx, userID, "first.png"))
	_, _, err = svc.Open(ctx, userID, "first.png")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, svc.Delete(ctx, userID, "first.png"), ErrNotFound)

	_, err = svc.PresignedURL(ctx, userID, "missing.png", time.Minute)
	assert.ErrorIs(t, err, ErrNotFound)
}

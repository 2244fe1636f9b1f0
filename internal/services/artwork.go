package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/FelipeDesigne/pixelart-supabase-sub000/internal/models"
	"github.com/FelipeDesigne/pixelart-supabase-sub000/internal/storage"
	"github.com/google/uuid"
)

const artworkPrefix = "artworks"

const maxArtworkNameLength = 200

// SanitizeArtworkName reduces name to a single safe path segment.
func SanitizeArtworkName(name string) (string, error) {
	name = strings.TrimSpace(strings.ReplaceAll(name, "\\", "/"))
	name = path.Base(name)
	if name == "" || name == "." || name == ".." || name == "/" {
		return "", invalid("invalid file name")
	}
	if strings.ContainsAny(name, "\x00\r\n") {
		return "", invalid("invalid file name")
	}
	if len(name) > maxArtworkNameLength {
		return "", invalid("file name too long")
	}
	return name, nil
}

func ArtworkPrefix(userID uuid.UUID) string {
	return fmt.Sprintf("%s/%s/", artworkPrefix, userID.String())
}

func ArtworkKey(userID uuid.UUID, name string) (string, error) {
	clean, err := SanitizeArtworkName(name)
	if err != nil {
		return "", err
	}
	return ArtworkPrefix(userID) + clean, nil
}

// ParseArtworkKey splits a key built by ArtworkKey back into owner and name.
func ParseArtworkKey(key string) (uuid.UUID, string, error) {
	parts := strings.SplitN(key, "/", 3)
	if len(parts) != 3 || parts[0] != artworkPrefix || parts[2] == "" || strings.Contains(parts[2], "/") {
		return uuid.Nil, "", invalid("invalid artwork key")
	}
	userID, err := uuid.Parse(parts[1])
	if err != nil {
		return uuid.Nil, "", invalid("invalid artwork key")
	}
	return userID, parts[2], nil
}

type ArtworkService struct {
	Store storage.ObjectStore
}

func NewArtworkService(store storage.ObjectStore) *ArtworkService {
	return &ArtworkService{Store: store}
}

// List returns the user's artworks, newest first.
func (s *ArtworkService) List(ctx context.Context, userID uuid.UUID) ([]models.Artwork, error) {
	objects, err := s.Store.List(ctx, ArtworkPrefix(userID))
	if err != nil {
		return nil, fmt.Errorf("list artworks: %w", err)
	}

	artworks := make([]models.Artwork, 0, len(objects))
	for _, obj := range objects {
		owner, name, err := ParseArtworkKey(obj.Key)
		if err != nil || owner != userID {
			continue
		}
		artworks = append(artworks, toArtwork(owner, name, obj))
	}
	sort.SliceStable(artworks, func(i, j int) bool {
		return artworks[i].UpdatedAt.After(artworks[j].UpdatedAt)
	})
	return artworks, nil
}

func (s *ArtworkService) Upload(ctx context.Context, userID uuid.UUID, name string, reader io.Reader, size int64, contentType string) (models.Artwork, error) {
	key, err := ArtworkKey(userID, name)
	if err != nil {
		return models.Artwork{}, err
	}
	if contentType == "" || contentType == "application/octet-stream" {
		if guessed := mime.TypeByExtension(path.Ext(key)); guessed != "" {
			contentType = guessed
		} else {
			contentType = "application/octet-stream"
		}
	}

	if err := s.Store.Upload(ctx, key, reader, size, contentType); err != nil {
		return models.Artwork{}, fmt.Errorf("upload artwork: %w", err)
	}

	info, err := s.Store.Stat(ctx, key)
	if err != nil {
		info = storage.ObjectInfo{Key: key, Size: size, ContentType: contentType, LastModified: time.Now().UTC()}
	}
	_, clean, _ := ParseArtworkKey(key)
	return toArtwork(userID, clean, info), nil
}

func (s *ArtworkService) Stat(ctx context.Context, userID uuid.UUID, name string) (models.Artwork, error) {
	key, err := ArtworkKey(userID, name)
	if err != nil {
		return models.Artwork{}, err
	}
	info, err := s.Store.Stat(ctx, key)
	if err != nil {
		return models.Artwork{}, mapStorageError(err)
	}
	_, clean, _ := ParseArtworkKey(key)
	return toArtwork(userID, clean, info), nil
}

func (s *ArtworkService) Open(ctx context.Context, userID uuid.UUID, name string) (io.ReadCloser, models.Artwork, error) {
	key, err := ArtworkKey(userID, name)
	if err != nil {
		return nil, models.Artwork{}, err
	}
	reader, info, err := s.Store.Download(ctx, key)
	if err != nil {
		return nil, models.Artwork{}, mapStorageError(err)
	}
	_, clean, _ := ParseArtworkKey(key)
	return reader, toArtwork(userID, clean, info), nil
}

func (s *ArtworkService) PresignedURL(ctx context.Context, userID uuid.UUID, name string, expiry time.Duration) (string, error) {
	artwork, err := s.Stat(ctx, userID, name)
	if err != nil {
		return "", err
	}
	url, err := s.Store.PresignedGetURL(ctx, artwork.Key, expiry)
	if err != nil {
		return "", mapStorageError(err)
	}
	return url, nil
}

func (s *ArtworkService) Delete(ctx context.Context, userID uuid.UUID, name string) error {
	artwork, err := s.Stat(ctx, userID, name)
	if err != nil {
		return err
	}
	if err := s.Store.Delete(ctx, artwork.Key); err != nil {
		return fmt.Errorf("delete artwork: %w", err)
	}
	return nil
}

func toArtwork(userID uuid.UUID, name string, info storage.ObjectInfo) models.Artwork {
	return models.Artwork{
		UserID:      userID.String(),
		Name:        name,
		Key:         info.Key,
		Size:        info.Size,
		ContentType: info.ContentType,
		UpdatedAt:   info.LastModified,
	}
}

func mapStorageError(err error) error {
	if errors.Is(err, storage.ErrObjectNotFound) {
		return ErrNotFound
	}
	return err
}

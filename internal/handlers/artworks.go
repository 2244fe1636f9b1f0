package handlers

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/FelipeDesigne/pixelart-supabase-sub000/internal/middleware"
	"github.com/FelipeDesigne/pixelart-supabase-sub000/internal/models"
	"github.com/FelipeDesigne/pixelart-supabase-sub000/internal/realtime"
	"github.com/FelipeDesigne/pixelart-supabase-sub000/internal/services"
	"github.com/FelipeDesigne/pixelart-supabase-sub000/pkg/downloadtoken"
	"github.com/FelipeDesigne/pixelart-supabase-sub000/pkg/logger"
	"github.com/FelipeDesigne/pixelart-supabase-sub000/pkg/utils"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

const presignedURLExpiry = 15 * time.Minute

type ArtworksHandler struct {
	auditor
	DB       *gorm.DB
	Artworks *services.ArtworkService
	Tokens   *downloadtoken.Issuer
	Broker   realtime.Broker
}

func NewArtworksHandler(db *gorm.DB, artworks *services.ArtworkService, tokens *downloadtoken.Issuer, broker realtime.Broker, audit *services.AuditService) *ArtworksHandler {
	return &ArtworksHandler{
		DB:       db,
		Artworks: artworks,
		Tokens:   tokens,
		Broker:   broker,
		auditor:  auditor{Audit: audit},
	}
}

func (h *ArtworksHandler) List(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	ownerID := currentUser.ID
	if raw := strings.TrimSpace(c.Query("userId")); raw != "" {
		parsed, err := parseUUID(raw)
		if err != nil {
			return utils.Error(c, fiber.StatusBadRequest, "invalid userId")
		}
		if !canAccessUserResource(currentUser, parsed) {
			return utils.Error(c, fiber.StatusForbidden, "access denied")
		}
		ownerID = parsed
	}

	artworks, err := h.Artworks.List(c.UserContext(), ownerID)
	if err != nil {
		logger.Error("artwork_list_failed", err, map[string]interface{}{
			"owner_id": ownerID.String(),
		})
		return utils.Error(c, fiber.StatusInternalServerError, "failed listing artworks")
	}

	return utils.Success(c, fiber.StatusOK, artworks)
}

// Upload stores the multipart "file" for the customer named by :id.
func (h *ArtworksHandler) Upload(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	ownerID, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid user id")
	}

	var owner models.User
	if err := h.DB.First(&owner, "id = ?", ownerID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return utils.Error(c, fiber.StatusNotFound, "user not found")
		}
		return utils.Error(c, fiber.StatusInternalServerError, "failed fetching user")
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "file is required")
	}
	name := fileHeader.Filename
	if override := strings.TrimSpace(c.FormValue("name")); override != "" {
		name = override
	}

	file, err := fileHeader.Open()
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "failed reading upload")
	}
	defer file.Close()

	artwork, err := h.Artworks.Upload(c.UserContext(), ownerID, name, file, fileHeader.Size, fileHeader.Header.Get("Content-Type"))
	if err != nil {
		logger.Error("artwork_upload_failed", err, map[string]interface{}{
			"owner_id": ownerID.String(),
			"name":     name,
		})
		return serviceError(c, err, "failed uploading artwork")
	}

	h.audit(c, currentUser, services.AuditArtworkUpload, "artwork", artwork.Key, map[string]interface{}{
		"size": artwork.Size,
	})
	publishEvent(c, h.Broker, realtime.EventArtwork, ownerID, realtime.UserTopic(ownerID.String()))

	return utils.Success(c, fiber.StatusCreated, artwork)
}

// artworkTarget reads :userId and :name and checks the caller may access them.
func artworkTarget(c *fiber.Ctx) (*models.User, uuid.UUID, string, bool, error) {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return nil, uuid.Nil, "", false, utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	ownerID, err := parseUUID(c.Params("userId"))
	if err != nil {
		return nil, uuid.Nil, "", false, utils.Error(c, fiber.StatusBadRequest, "invalid user id")
	}
	name, err := url.PathUnescape(c.Params("name"))
	if err != nil || name == "" {
		return nil, uuid.Nil, "", false, utils.Error(c, fiber.StatusBadRequest, "invalid file name")
	}
	if !canAccessUserResource(currentUser, ownerID) {
		logger.WarnWithUser(currentUser.ID.String(), "permission_denied", map[string]interface{}{
			"action":   "artwork_access",
			"owner_id": ownerID.String(),
		})
		return nil, uuid.Nil, "", false, utils.Error(c, fiber.StatusForbidden, "access denied")
	}
	return currentUser, ownerID, name, true, nil
}

func (h *ArtworksHandler) Download(c *fiber.Ctx) error {
	_, ownerID, name, ok, err := artworkTarget(c)
	if !ok {
		return err
	}
	return h.stream(c, ownerID, name)
}

func (h *ArtworksHandler) stream(c *fiber.Ctx, ownerID uuid.UUID, name string) error {
	reader, artwork, err := h.Artworks.Open(c.UserContext(), ownerID, name)
	if err != nil {
		if errors.Is(err, services.ErrNotFound) {
			return utils.Error(c, fiber.StatusNotFound, "artwork not found")
		}
		return serviceError(c, err, "failed downloading artwork")
	}

	contentType := artwork.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	c.Set(fiber.HeaderContentType, contentType)
	c.Set(fiber.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", artwork.Name))

	logger.Info("artwork_downloaded", map[string]interface{}{
		"key":  artwork.Key,
		"size": artwork.Size,
	})

	// fasthttp closes the reader once the body has been written.
	return c.SendStream(reader, int(artwork.Size))
}

func (h *ArtworksHandler) PresignedURL(c *fiber.Ctx) error {
	_, ownerID, name, ok, err := artworkTarget(c)
	if !ok {
		return err
	}

	signed, err := h.Artworks.PresignedURL(c.UserContext(), ownerID, name, presignedURLExpiry)
	if err != nil {
		if errors.Is(err, services.ErrNotFound) {
			return utils.Error(c, fiber.StatusNotFound, "artwork not found")
		}
		return serviceError(c, err, "failed generating download url")
	}

	return utils.Success(c, fiber.StatusOK, fiber.Map{
		"url":       signed,
		"expiresAt": time.Now().Add(presignedURLExpiry).UTC(),
	})
}

// Link issues a single-use token that downloads the artwork without a session.
func (h *ArtworksHandler) Link(c *fiber.Ctx) error {
	currentUser, ownerID, name, ok, err := artworkTarget(c)
	if !ok {
		return err
	}

	artwork, err := h.Artworks.Stat(c.UserContext(), ownerID, name)
	if err != nil {
		if errors.Is(err, services.ErrNotFound) {
			return utils.Error(c, fiber.StatusNotFound, "artwork not found")
		}
		return serviceError(c, err, "failed loading artwork")
	}

	token, expiresAt, err := h.Tokens.Issue(ownerID.String(), artwork.Key)
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed issuing download link")
	}

	logger.InfoWithUser(currentUser.ID.String(), "artwork_link_issued", map[string]interface{}{
		"key": artwork.Key,
	})

	return utils.Success(c, fiber.StatusOK, fiber.Map{
		"token":     token,
		"url":       "/api/public/artworks/download?token=" + url.QueryEscape(token),
		"expiresAt": expiresAt,
	})
}

func (h *ArtworksHandler) PublicDownload(c *fiber.Ctx) error {
	raw := strings.TrimSpace(c.Query("token"))
	if raw == "" {
		return utils.Error(c, fiber.StatusBadRequest, "token is required")
	}

	token, err := h.Tokens.Redeem(c.UserContext(), raw)
	if err != nil {
		logger.Warn("download_token_rejected", map[string]interface{}{
			"ip":    c.IP(),
			"error": err.Error(),
		})
		switch {
		case errors.Is(err, downloadtoken.ErrAlreadyUsed):
			return utils.Error(c, fiber.StatusGone, "download link already used")
		case errors.Is(err, downloadtoken.ErrExpired):
			return utils.Error(c, fiber.StatusGone, "download link expired")
		default:
			return utils.Error(c, fiber.StatusUnauthorized, "invalid download link")
		}
	}

	ownerID, name, err := services.ParseArtworkKey(token.Key)
	if err != nil || ownerID.String() != token.UserID {
		return utils.Error(c, fiber.StatusUnauthorized, "invalid download link")
	}

	details := map[string]interface{}{
		"key": token.Key,
		"ip":  c.IP(),
	}
	if redeemer := middleware.GetCurrentUser(c); redeemer != nil {
		logger.InfoWithUser(redeemer.ID.String(), "artwork_link_redeemed", details)
	} else {
		logger.Info("artwork_link_redeemed", details)
	}

	return h.stream(c, ownerID, name)
}

func (h *ArtworksHandler) Delete(c *fiber.Ctx) error {
	currentUser, ownerID, name, ok, err := artworkTarget(c)
	if !ok {
		return err
	}

	if err := h.Artworks.Delete(c.UserContext(), ownerID, name); err != nil {
		if errors.Is(err, services.ErrNotFound) {
			return utils.Error(c, fiber.StatusNotFound, "artwork not found")
		}
		return serviceError(c, err, "failed deleting artwork")
	}

	h.audit(c, currentUser, services.AuditArtworkDelete, "artwork", services.ArtworkPrefix(ownerID)+name, nil)
	publishEvent(c, h.Broker, realtime.EventArtwork, ownerID, realtime.UserTopic(ownerID.String()))

	return utils.Success(c, fiber.StatusOK, fiber.Map{"message": "artwork deleted"})
}

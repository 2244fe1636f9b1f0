package handlers

import (
	"github.com/FelipeDesigne/pixelart-supabase-sub000/pkg/utils"
	"github.com/gofiber/fiber/v2"
)

// Version is set at build time:
//
//	go build -ldflags "-X github.com/FelipeDesigne/pixelart-supabase-sub000/internal/handlers.Version=1.0.0" ./cmd/server
var Version = "dev"

const (
	apiVersion  = "v1"
	serviceName = "pixelart"
)

type versionResponse struct {
	Service    string `json:"service"`
	Version    string `json:"version"`
	APIVersion string `json:"apiVersion"`
}

func GetVersion(c *fiber.Ctx) error {
	return utils.Success(c, fiber.StatusOK, versionResponse{
		Service:    serviceName,
		Version:    Version,
		APIVersion: apiVersion,
	})
}

package handlers

import (
	"context"
	"fmt"
	"time"

	"github.com/FelipeDesigne/pixelart-supabase-sub000/internal/middleware"
	"github.com/FelipeDesigne/pixelart-supabase-sub000/internal/services"
	"github.com/FelipeDesigne/pixelart-supabase-sub000/pkg/logger"
	"github.com/FelipeDesigne/pixelart-supabase-sub000/pkg/utils"
	"github.com/gofiber/fiber/v2"
)

type ExportHandler struct {
	auditor
	Export *services.ExportService
}

func NewExportHandler(export *services.ExportService, audit *services.AuditService) *ExportHandler {
	return &ExportHandler{Export: export, auditor: auditor{Audit: audit}}
}

func (h *ExportHandler) Users(c *fiber.Ctx) error {
	return h.send(c, "users", h.Export.UsersTable)
}

func (h *ExportHandler) Requests(c *fiber.Ctx) error {
	return h.send(c, "requests", h.Export.RequestsTable)
}

func (h *ExportHandler) send(c *fiber.Ctx, dataset string, load func(context.Context) (services.Table, error)) error {
	format, err := services.ParseExportFormat(c.Query("format"))
	if err != nil {
		return serviceError(c, err, "invalid format")
	}

	table, err := load(c.UserContext())
	if err != nil {
		logger.Error("export_load_failed", err, map[string]interface{}{
			"dataset": dataset,
		})
		return utils.Error(c, fiber.StatusInternalServerError, "failed loading "+dataset)
	}

	data, err := services.Render(table, format)
	if err != nil {
		logger.Error("export_render_failed", err, map[string]interface{}{
			"dataset": dataset,
			"format":  string(format),
		})
		return utils.Error(c, fiber.StatusInternalServerError, "failed rendering export")
	}

	currentUser := middleware.GetCurrentUser(c)
	h.audit(c, currentUser, services.AuditExport, "export", dataset, map[string]interface{}{
		"format": string(format),
		"rows":   len(table.Rows),
	})

	c.Set(fiber.HeaderContentType, format.ContentType())
	c.Set(fiber.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", services.ExportFileName(dataset, format, time.Now())))
	return c.Status(fiber.StatusOK).Send(data)
}

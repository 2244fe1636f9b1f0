package handlers

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/FelipeDesigne/pixelart-supabase-sub000/internal/middleware"
	"github.com/FelipeDesigne/pixelart-supabase-sub000/internal/models"
	"github.com/FelipeDesigne/pixelart-supabase-sub000/internal/realtime"
	"github.com/FelipeDesigne/pixelart-supabase-sub000/internal/services"
	"github.com/FelipeDesigne/pixelart-supabase-sub000/pkg/logger"
	"github.com/FelipeDesigne/pixelart-supabase-sub000/pkg/utils"
	"github.com/gofiber/fiber/v2"
)

const (
	DefaultHeartbeat  = 25 * time.Second
	unreadEventName   = "unread"
	heartbeatComment  = ": heartbeat\n\n"
	snapshotQueryWait = 10 * time.Second
)

type NotificationsHandler struct {
	Unread    *services.UnreadService
	Broker    realtime.Broker
	Heartbeat time.Duration

	// shutdown ends every open stream when the server stops.
	shutdown context.Context
}

func NewNotificationsHandler(shutdown context.Context, unread *services.UnreadService, broker realtime.Broker) *NotificationsHandler {
	return &NotificationsHandler{
		Unread:    unread,
		Broker:    broker,
		Heartbeat: DefaultHeartbeat,
		shutdown:  shutdown,
	}
}

func (h *NotificationsHandler) UnreadCounts(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	snapshot, err := h.Unread.Snapshot(c.UserContext(), currentUser)
	if err != nil {
		logger.ErrorWithUser(currentUser.ID.String(), "unread_snapshot_failed", err, nil)
		return utils.Error(c, fiber.StatusInternalServerError, "failed computing unread counts")
	}
	return utils.Success(c, fiber.StatusOK, snapshot)
}

func viewerTopic(viewer *models.User) string {
	if viewer.IsAdmin() {
		return realtime.TopicAdmin
	}
	return realtime.UserTopic(viewer.ID.String())
}

// Stream sends the viewer's unread snapshot as Server-Sent Events: once on
// connect and again after every change event on the viewer's topic.
func (h *NotificationsHandler) Stream(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}
	viewer := *currentUser

	sub, err := h.Broker.Subscribe(h.shutdown, viewerTopic(&viewer))
	if err != nil {
		logger.ErrorWithUser(viewer.ID.String(), "unread_stream_subscribe_failed", err, nil)
		return utils.Error(c, fiber.StatusServiceUnavailable, "realtime updates unavailable")
	}

	c.Set(fiber.HeaderContentType, "text/event-stream")
	c.Set(fiber.HeaderCacheControl, "no-cache")
	c.Set(fiber.HeaderConnection, "keep-alive")
	c.Set("X-Accel-Buffering", "no")

	logger.InfoWithUser(viewer.ID.String(), "unread_stream_opened", nil)

	c.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
		defer sub.Close()
		h.runStream(h.shutdown, w, &viewer, sub.C)
		logger.InfoWithUser(viewer.ID.String(), "unread_stream_closed", nil)
	})
	return nil
}

type flushWriter interface {
	io.Writer
	Flush() error
}

// runStream returns when ctx ends, the subscription closes or a write fails,
// which is how a client disconnect shows up.
func (h *NotificationsHandler) runStream(ctx context.Context, w flushWriter, viewer *models.User, events <-chan realtime.Event) {
	if err := h.sendSnapshot(ctx, w, viewer); err != nil {
		return
	}

	interval := h.Heartbeat
	if interval <= 0 {
		interval = DefaultHeartbeat
	}
	heartbeat := time.NewTicker(interval)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-events:
			if !ok {
				return
			}
			drainPending(events)
			if err := h.sendSnapshot(ctx, w, viewer); err != nil {
				return
			}
		case <-heartbeat.C:
			if _, err := io.WriteString(w, heartbeatComment); err != nil {
				return
			}
			if err := w.Flush(); err != nil {
				return
			}
		}
	}
}

// drainPending discards events already queued so a burst triggers one recompute.
func drainPending(events <-chan realtime.Event) {
	for {
		select {
		case _, ok := <-events:
			if !ok {
				return
			}
		default:
			return
		}
	}
}

// sendSnapshot only returns write errors. A failed recompute is logged and
// the stream keeps its last state.
func (h *NotificationsHandler) sendSnapshot(ctx context.Context, w flushWriter, viewer *models.User) error {
	queryCtx, cancel := context.WithTimeout(ctx, snapshotQueryWait)
	snapshot, err := h.Unread.Snapshot(queryCtx, viewer)
	cancel()
	if err != nil {
		logger.ErrorWithUser(viewer.ID.String(), "unread_recompute_failed", err, nil)
		return nil
	}

	payload, err := json.Marshal(snapshot)
	if err != nil {
		logger.ErrorWithUser(viewer.ID.String(), "unread_encode_failed", err, nil)
		return nil
	}
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", unreadEventName, payload); err != nil {
		return err
	}
	return w.Flush()
}

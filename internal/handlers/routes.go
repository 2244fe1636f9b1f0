package handlers

import (
	"github.com/FelipeDesigne/pixelart-supabase-sub000/internal/middleware"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
)

// Router holds every handler the HTTP API is built from.
type Router struct {
	AuthMiddleware *middleware.AuthMiddleware
	// LoginLimiter guards the password and MFA endpoints. Nil disables it.
	LoginLimiter fiber.Handler

	Auth          *AuthHandler
	MFA           *MFAHandler
	SSO           *SSOHandler
	Users         *UsersHandler
	Requests      *RequestsHandler
	Chats         *ChatsHandler
	Artworks      *ArtworksHandler
	Notifications *NotificationsHandler
	Export        *ExportHandler
	Audit         *AuditHandler
}

// NewApp builds the fiber app with the shared middleware stack.
func NewApp(bodyLimitMB int, frontendURL string) *fiber.App {
	if bodyLimitMB <= 0 {
		bodyLimitMB = 50
	}
	app := fiber.New(fiber.Config{
		BodyLimit:             bodyLimitMB * 1024 * 1024,
		DisableStartupMessage: true,
	})
	app.Use(recover.New(recover.Config{EnableStackTrace: true}))
	app.Use(middleware.CORS(frontendURL))
	app.Use(middleware.RequestLogger())
	app.Use(middleware.SecurityLogger())

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"status": "ok"})
	})
	return app
}

func (r *Router) Register(app *fiber.App) {
	requireAuth := r.AuthMiddleware.RequireAuth
	limiter := r.LoginLimiter
	if limiter == nil {
		limiter = func(c *fiber.Ctx) error { return c.Next() }
	}

	api := app.Group("/api")
	api.Get("/version", GetVersion)

	authRoutes := api.Group("/auth")
	authRoutes.Post("/register", limiter, r.Auth.Register)
	authRoutes.Post("/login", limiter, r.Auth.Login)
	authRoutes.Post("/mfa/verify", limiter, r.MFA.Verify)
	authRoutes.Get("/me", requireAuth, r.Auth.Me)
	authRoutes.Put("/me", requireAuth, r.Auth.UpdateMe)
	authRoutes.Put("/password", requireAuth, r.Auth.ChangePassword)
	authRoutes.Get("/mfa/status", requireAuth, r.MFA.Status)
	authRoutes.Post("/mfa/totp/setup", requireAuth, r.MFA.TOTPSetup)
	authRoutes.Post("/mfa/totp/verify-setup", requireAuth, r.MFA.TOTPVerifySetup)
	authRoutes.Post("/mfa/totp/disable", requireAuth, r.MFA.TOTPDisable)
	authRoutes.Get("/google", r.SSO.GoogleLogin)
	authRoutes.Get("/google/callback", r.SSO.GoogleCallback)

	userRoutes := api.Group("/users", requireAuth, middleware.AdminOnly)
	userRoutes.Get("/", r.Users.List)
	userRoutes.Get("/:id", r.Users.Get)
	userRoutes.Put("/:id", r.Users.Update)
	userRoutes.Put("/:id/deactivate", r.Users.Deactivate)
	userRoutes.Put("/:id/activate", r.Users.Activate)
	userRoutes.Delete("/:id", r.Users.Delete)
	userRoutes.Post("/:id/artworks", r.Artworks.Upload)

	requestRoutes := api.Group("/requests", requireAuth)
	requestRoutes.Post("/", r.Requests.Create)
	requestRoutes.Get("/", r.Requests.List)
	requestRoutes.Put("/read-all", middleware.AdminOnly, r.Requests.MarkAllRead)
	requestRoutes.Get("/:id", r.Requests.Get)
	requestRoutes.Put("/:id", r.Requests.Update)
	requestRoutes.Put("/:id/status", middleware.AdminOnly, r.Requests.UpdateStatus)
	requestRoutes.Put("/:id/read", middleware.AdminOnly, r.Requests.MarkRead)
	requestRoutes.Delete("/:id", r.Requests.Delete)

	chatRoutes := api.Group("/chats", requireAuth)
	chatRoutes.Get("/", middleware.AdminOnly, r.Chats.List)
	chatRoutes.Get("/:chatId/messages", r.Chats.Messages)
	chatRoutes.Post("/:chatId/messages", r.Chats.Send)
	chatRoutes.Put("/:chatId/read", r.Chats.MarkRead)
	chatRoutes.Delete("/:chatId/messages/:id", middleware.AdminOnly, r.Chats.DeleteMessage)
	chatRoutes.Delete("/:chatId", middleware.AdminOnly, r.Chats.Clear)

	artworkRoutes := api.Group("/artworks", requireAuth)
	artworkRoutes.Get("/", r.Artworks.List)
	artworkRoutes.Get("/:userId/:name/download", r.Artworks.Download)
	artworkRoutes.Get("/:userId/:name/url", r.Artworks.PresignedURL)
	artworkRoutes.Get("/:userId/:name/link", r.Artworks.Link)
	artworkRoutes.Delete("/:userId/:name", middleware.AdminOnly, r.Artworks.Delete)

	api.Get("/public/artworks/download", r.AuthMiddleware.OptionalAuth, r.Artworks.PublicDownload)

	notificationRoutes := api.Group("/notifications", requireAuth)
	notificationRoutes.Get("/unread", r.Notifications.UnreadCounts)
	notificationRoutes.Get("/stream", r.Notifications.Stream)

	adminRoutes := api.Group("/admin", requireAuth, middleware.AdminOnly)
	adminRoutes.Get("/export/users", r.Export.Users)
	adminRoutes.Get("/export/requests", r.Export.Requests)
	adminRoutes.Get("/audit", r.Audit.List)
}

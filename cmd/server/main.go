package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/FelipeDesigne/pixelart-supabase-sub000/internal/config"
	"github.com/FelipeDesigne/pixelart-supabase-sub000/internal/database"
	"github.com/FelipeDesigne/pixelart-supabase-sub000/internal/handlers"
	"github.com/FelipeDesigne/pixelart-supabase-sub000/internal/middleware"
	"github.com/FelipeDesigne/pixelart-supabase-sub000/internal/nonce"
	"github.com/FelipeDesigne/pixelart-supabase-sub000/internal/ratelimit"
	"github.com/FelipeDesigne/pixelart-supabase-sub000/internal/realtime"
	"github.com/FelipeDesigne/pixelart-supabase-sub000/internal/services"
	"github.com/FelipeDesigne/pixelart-supabase-sub000/internal/storage"
	"github.com/FelipeDesigne/pixelart-supabase-sub000/pkg/downloadtoken"
	"github.com/FelipeDesigne/pixelart-supabase-sub000/pkg/logger"
	"github.com/FelipeDesigne/pixelart-supabase-sub000/pkg/utils"
	"github.com/gofiber/fiber/v2"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
)

const (
	downloadLinkTTL = 15 * time.Minute
	shutdownTimeout = 10 * time.Second
)

func main() {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("ignoring .env: %v", err)
	}
	logger.Init()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	utils.ConfigureJWT(cfg.JWT.Secret, cfg.JWT.ExpirationHours)
	utils.ConfigureEncryption(cfg.JWT.Secret)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := database.Connect(cfg.DB)
	if err != nil {
		log.Fatalf("database connection failed: %v", err)
	}
	if created, err := database.SeedAdmin(db, cfg.Admin); err != nil {
		log.Fatalf("seeding admin failed: %v", err)
	} else if created {
		logger.Info("admin_seeded", map[string]interface{}{"email": cfg.Admin.Email})
	}

	store, err := newObjectStore(ctx, cfg.MinIO)
	if err != nil {
		log.Fatalf("object storage initialization failed: %v", err)
	}

	rt, err := newRealtime(cfg)
	if err != nil {
		log.Fatalf("redis initialization failed: %v", err)
	}
	broker := rt.broker

	var notifier services.AdminNotifier = services.NoopNotifier{}
	if cfg.Telegram.Enabled() {
		tg, err := services.NewTelegramNotifier(cfg.Telegram.BotToken, cfg.Telegram.AdminChatID)
		if err != nil {
			log.Fatalf("telegram initialization failed: %v", err)
		}
		notifier = tg
	}

	// A nil *GoogleOIDC must not reach the handler as a non-nil interface.
	var google services.GoogleAuthenticator
	if cfg.Google.Enabled {
		oidc, err := services.NewGoogleOIDC(ctx, cfg.Google)
		if err != nil {
			log.Fatalf("google sign-in initialization failed: %v", err)
		}
		google = oidc
	}

	auditService := services.NewAuditService(db, store, cfg.Audit.QueueSize)
	go auditService.RunExporter(ctx, cfg.Audit.ExportInterval)

	tokens := downloadtoken.NewIssuer(cfg.JWT.Secret, downloadLinkTTL)
	if rt.usedTokens != nil {
		tokens.UseStore(rt.usedTokens)
		utils.ConfigureJTIStore(rt.usedTokens)
	} else {
		go tokens.RunCleanup(ctx, 5*time.Minute)
	}

	unread := services.NewUnreadService(db)
	router := &handlers.Router{
		AuthMiddleware: middleware.NewAuthMiddleware(db),
		LoginLimiter:   rt.loginLimiter,
		Auth:           handlers.NewAuthHandler(db, auditService),
		MFA:            handlers.NewMFAHandler(db, auditService),
		SSO:            handlers.NewSSOHandler(db, google, services.NewSSOService(db, cfg.JWT.Secret), cfg.Server.FrontendURL, auditService),
		Users:          handlers.NewUsersHandler(db, auditService),
		Requests:       handlers.NewRequestsHandler(db, broker, notifier, auditService),
		Chats:          handlers.NewChatsHandler(db, unread, broker, notifier, auditService),
		Artworks:       handlers.NewArtworksHandler(db, services.NewArtworkService(store), tokens, broker, auditService),
		Notifications:  handlers.NewNotificationsHandler(ctx, unread, broker),
		Export:         handlers.NewExportHandler(services.NewExportService(db), auditService),
		Audit:          handlers.NewAuditHandler(db),
	}

	app := handlers.NewApp(cfg.Server.BodyLimitMB, cfg.Server.FrontendURL)
	router.Register(app)

	listenAddr := fmt.Sprintf(":%s", cfg.Server.Port)
	logger.Info("server_starting", map[string]interface{}{
		"port":           cfg.Server.Port,
		"address":        listenAddr,
		"db_driver":      cfg.DB.Driver,
		"storage_driver": cfg.MinIO.Driver,
		"redis":          cfg.Redis.Enabled(),
		"google_sso":     google != nil,
		"telegram":       cfg.Telegram.Enabled(),
		"version":        handlers.Version,
	})

	errCh := make(chan error, 1)
	go func() {
		errCh <- app.Listen(listenAddr)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		log.Printf("shutting down server due to signal: %s", sig)
	case err := <-errCh:
		if err != nil {
			log.Printf("server error: %v", err)
		}
	}

	// Streams watch ctx, so cancel first or Shutdown waits on them.
	cancel()
	shutdownDone := make(chan struct{})
	go func() {
		_ = app.Shutdown()
		close(shutdownDone)
	}()
	select {
	case <-shutdownDone:
	case <-time.After(shutdownTimeout):
		log.Print("forced shutdown timeout reached")
	}

	auditService.Close()
	if err := broker.Close(); err != nil {
		logger.Error("broker_close_failed", err, nil)
	}
	rt.close()
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
	logger.Info("server_stopped", nil)
}

func newObjectStore(ctx context.Context, cfg config.MinIOConfig) (storage.ObjectStore, error) {
	if cfg.Driver == "memory" {
		logger.Warn("storage_in_memory", map[string]interface{}{
			"reason": "STORAGE_DRIVER=memory; artworks are lost on restart",
		})
		return storage.NewMemoryStore(), nil
	}

	client, err := storage.NewMinIOClient(cfg)
	if err != nil {
		return nil, err
	}
	if err := client.EnsureBucket(ctx); err != nil {
		return nil, fmt.Errorf("ensuring bucket: %w", err)
	}
	return client, nil
}

type realtimeDeps struct {
	broker       realtime.Broker
	loginLimiter fiber.Handler
	usedTokens   nonce.Store
	close        func()
}

// newRealtime picks the Redis broker, login limiter and shared nonce store
// when Redis is configured, and the in-process hub alone otherwise. close
// releases the Redis client.
func newRealtime(cfg *config.Config) (*realtimeDeps, error) {
	if !cfg.Redis.Enabled() {
		return &realtimeDeps{broker: realtime.NewHub(0), close: func() {}}, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
	})
	closeClient := func() { _ = client.Close() }

	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		closeClient()
		return nil, fmt.Errorf("ping %s: %w", cfg.Redis.Addr, err)
	}

	broker, err := realtime.NewRedisBroker(client, cfg.Redis.Prefix)
	if err != nil {
		closeClient()
		return nil, err
	}

	limiter, err := ratelimit.NewFixedWindowLimiter(client, cfg.Redis.Prefix+":ratelimit", cfg.RateLimit.LoginLimit, cfg.RateLimit.LoginWindow)
	if err != nil {
		_ = broker.Close()
		closeClient()
		return nil, err
	}

	usedTokens, err := nonce.NewRedisStore(client, cfg.Redis.Prefix+":nonce")
	if err != nil {
		_ = broker.Close()
		closeClient()
		return nil, err
	}

	return &realtimeDeps{
		broker:       broker,
		loginLimiter: ratelimit.Middleware(limiter, "login"),
		usedTokens:   usedTokens,
		close:        closeClient,
	}, nil
}

package main

import (
	"context"
	"errors"
	"net/http"
	"os"

	"arena-relay/internal/auth"
	"arena-relay/internal/cache"
	"arena-relay/internal/chat"
	"arena-relay/internal/config"
	"arena-relay/internal/database"
	"arena-relay/internal/events"
	"arena-relay/internal/handlers"
	"arena-relay/internal/presence"
	"arena-relay/internal/relay"
	"arena-relay/internal/services"
	"arena-relay/internal/team"
	"arena-relay/internal/websocket"
	"arena-relay/pkg/logger"

	gfshutdown "github.com/gelmium/graceful-shutdown"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
)

func main() {
	// Load configuration
	cfg := config.Load()
	logger.SetLevel(logger.ParseLevel(cfg.LogLevel))

	ctx := context.Background()

	// Initialize database
	db, err := database.NewPostgresDB(ctx, cfg.Database.URL)
	if err != nil {
		logger.Fatal("Failed to connect to database: %v", err)
	}
	if cfg.Database.AutoMigrate {
		if err := db.Migrate(ctx); err != nil {
			logger.Fatal("Failed to migrate database: %v", err)
		}
	}

	// Optional redis: profile cache and presence mirror
	var (
		redisClient  *redis.Client
		profileCache services.Cache
		mirror       cache.PresenceMirror = cache.NopPresenceMirror{}
		lastSeen     handlers.LastSeenSource
	)
	if cfg.Redis.URL != "" {
		redisClient, err = cache.Connect(ctx, cfg.Redis.URL)
		if err != nil {
			logger.Fatal("Failed to connect to redis: %v", err)
		}
		profileCache = cache.NewJSONCache(redisClient, "arena", cfg.Redis.ProfileCacheTTL)
		redisMirror := cache.NewRedisPresenceMirror(redisClient, cfg.Redis.PresenceTTL)
		mirror = redisMirror
		lastSeen = redisMirror
		logger.Info("Redis presence mirror and profile cache enabled")
	}

	// Optional kafka: team lifecycle events
	var publisher events.Publisher = events.NopPublisher{}
	if len(cfg.Kafka.Brokers) > 0 {
		kp, err := events.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.TeamEventsTopic)
		if err != nil {
			logger.Fatal("Failed to create kafka publisher: %v", err)
		}
		publisher = kp
		logger.Info("Publishing team events to %s", cfg.Kafka.TeamEventsTopic)
	}

	// Initialize services
	profiles := services.NewProfileService(db, profileCache)
	authService := auth.NewService(profiles, cfg)
	presenceRegistry := presence.NewRegistry()
	teamRegistry := team.NewRegistry(team.Config{MaxSize: cfg.Team.MaxSize, InviteTTL: cfg.Team.InviteTTL})
	store := chat.NewStore(db, chat.Config{
		MaxMessageLength: cfg.Chat.MaxMessageLength,
		HistoryLimit:     cfg.Chat.HistoryLimit,
	})

	hub := websocket.NewHub(presenceRegistry)
	router := relay.NewRouter(relay.Deps{
		Presence:  presenceRegistry,
		Teams:     teamRegistry,
		Store:     store,
		Profiles:  profiles,
		Emitter:   hub,
		Publisher: publisher,
		Mirror:    mirror,
	}, relay.Config{PurgePrivateOnLogout: cfg.Chat.PurgePrivateOnLogout})

	// Initialize handlers
	wsHandlers := handlers.NewWebSocketHandlers(authService, hub, router, cfg.Server.AllowedOrigins)
	statusHandlers := handlers.NewStatusHandlers(presenceRegistry, teamRegistry, hub, lastSeen)

	server := &http.Server{
		Addr:         cfg.Server.Port,
		Handler:      handlers.NewRouter(wsHandlers, statusHandlers, cfg.Server.AllowedOrigins),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Background maintenance
	loopCtx, stopLoops := context.WithCancel(ctx)
	loops, loopCtx := errgroup.WithContext(loopCtx)
	loops.Go(func() error {
		return router.RunCleanup(loopCtx, cfg.Presence.CleanupInterval, cfg.Presence.StaleAfter)
	})
	loops.Go(func() error {
		return store.RunSweeper(loopCtx, cfg.Chat.SweepInterval, cfg.Chat.RetentionDays)
	})
	loops.Go(func() error {
		return store.RunReaper(loopCtx, cfg.Chat.ReapInterval)
	})

	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Server error: %v", err)
		}
	}()

	logger.Info("🚀 Server started on http://localhost%s", cfg.Server.Port)
	logger.Info("📡 WebSocket endpoint: ws://localhost%s/ws", cfg.Server.Port)
	printAPIEndpoints()

	wait := gfshutdown.GracefulShutdown(ctx, cfg.Server.ShutdownTimeout, map[string]gfshutdown.Operation{
		"arena-relay": func(ctx context.Context) error {
			logger.Info("Server shutting down...")
			var errs []error
			if err := server.Shutdown(ctx); err != nil {
				errs = append(errs, err)
			}
			if err := hub.Shutdown(ctx); err != nil {
				errs = append(errs, err)
			}
			stopLoops()
			if err := loops.Wait(); err != nil {
				errs = append(errs, err)
			}
			if err := publisher.Close(); err != nil {
				errs = append(errs, err)
			}
			if redisClient != nil {
				if err := redisClient.Close(); err != nil {
					errs = append(errs, err)
				}
			}
			if err := db.Close(); err != nil {
				errs = append(errs, err)
			}
			return errors.Join(errs...)
		},
	})

	exitCode := <-wait
	logger.Info("Server exited with code %d", exitCode)
	os.Exit(exitCode)
}

func printAPIEndpoints() {
	logger.Info("🔗 API endpoints:")
	logger.Info("   GET  /ws                  (Authorization: Bearer <token> or ?token=)")
	logger.Info("   GET  /health")
	logger.Info("   GET  /presence/{userID}")
	logger.Info("   GET  /teams/{teamID}")
}

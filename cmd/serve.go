package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/strandhq/strand/internal/artifact"
	"github.com/strandhq/strand/internal/auth"
	"github.com/strandhq/strand/internal/cache"
	"github.com/strandhq/strand/internal/chat"
	"github.com/strandhq/strand/internal/config"
	"github.com/strandhq/strand/internal/database"
	"github.com/strandhq/strand/internal/history"
	"github.com/strandhq/strand/internal/vote"
	"github.com/strandhq/strand/internal/web"
	"github.com/strandhq/strand/internal/web/handlers"
)

// Server timeout configuration.
const (
	readHeaderTimeout = 10 * time.Second
	readTimeout       = 30 * time.Second
	writeTimeout      = 5 * time.Minute // SSE streaming needs a long write window
	serverIdleTimeout = 2 * time.Minute
	shutdownTimeout   = 30 * time.Second
)

// runServe wires the application and starts the HTTP server.
func runServe() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if err := cfg.RequireAPIKey(); err != nil {
		return fmt.Errorf("validating config: %w", err)
	}
	logger := initLogger(cfg)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger.Info("starting strand server", "version", Version)

	pool, err := database.Open(ctx, cfg.Postgres.DSN())
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer pool.Close()

	if err := database.Migrate(cfg.Postgres.DSN()); err != nil {
		return fmt.Errorf("applying migrations: %w", err)
	}

	var pageCache cache.Cache = cache.NewMemory()
	if cfg.Redis.Enabled {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, DB: cfg.Redis.DB})
		defer func() {
			if err := rdb.Close(); err != nil {
				logger.Warn("redis close failed", "error", err)
			}
		}()
		if err := rdb.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("pinging redis %s: %w", cfg.Redis.Addr, err)
		}
		pageCache = cache.NewRedis(rdb)
		logger.Info("redis cache enabled", "addr", cfg.Redis.Addr)
	}

	chatStore := chat.NewStore(pool, logger)
	artifactStore := artifact.NewPGStore(pool, logger)
	voteStore := vote.NewStore(pool, logger)
	voteCache := vote.NewCache(voteStore, voteStore, nil, logger)

	pager, err := history.New(chatStore, pageCache, cfg.History.PageSize, logger)
	if err != nil {
		return fmt.Errorf("creating history paginator: %w", err)
	}

	transport, err := chat.NewOpenAITransport(chat.OpenAIConfig{
		APIKey:  cfg.OpenAI.APIKey,
		BaseURL: cfg.OpenAI.BaseURL,
		Model:   cfg.OpenAI.Model,
	})
	if err != nil {
		return fmt.Errorf("creating stream transport: %w", err)
	}

	sessions := handlers.NewSessions(handlers.SessionsConfig{
		Transport:     transport,
		Persist:       chatStore,
		Artifacts:     artifactStore,
		History:       pager,
		Logger:        logger,
		IdleTimeout:   cfg.Stream.IdleTimeout,
		FlushInterval: cfg.Stream.ArtifactFlushInterval,
	})

	resolver := auth.HeaderResolver{}
	server, err := web.NewServer(web.ServerConfig{
		Logger:    logger,
		Sessions:  sessions,
		ChatStore: chatStore,
		Votes: handlers.NewVotes(handlers.VoteConfig{
			Logger:    logger,
			Cache:     voteCache,
			Resolver:  resolver,
			Ownership: chatStore,
		}),
		Pager:     pager,
		Artifacts: artifactStore,
		Resolver:  resolver,
	})
	if err != nil {
		return fmt.Errorf("creating HTTP server: %w", err)
	}

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           server.Handler(),
		ReadHeaderTimeout: readHeaderTimeout,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       serverIdleTimeout,
	}

	logger.Info("HTTP server ready",
		"addr", cfg.Server.Addr,
		"vote", "/vote",
		"chat", "/api/chat",
		"health", "/healthz",
	)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down HTTP server")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutting down server: %w", err)
		}
		<-errCh
		// Let in-flight vote writes resolve before the pool closes.
		voteCache.Wait()
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("HTTP server: %w", err)
	}
}

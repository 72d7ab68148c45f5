package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/anooppandey17/virtual-teacher/internal/api"
	"github.com/anooppandey17/virtual-teacher/internal/auth"
	"github.com/anooppandey17/virtual-teacher/internal/config"
	"github.com/anooppandey17/virtual-teacher/internal/database"
	"github.com/anooppandey17/virtual-teacher/internal/llm"
	"github.com/anooppandey17/virtual-teacher/internal/lock"
	"github.com/anooppandey17/virtual-teacher/internal/pacing"
	"github.com/anooppandey17/virtual-teacher/internal/repository"
	"github.com/anooppandey17/virtual-teacher/internal/service"
)

const shutdownTimeout = 30 * time.Second

// App is the assembled server and the resources it owns.
type App struct {
	Config *config.Config
	DB     *sql.DB
	Redis  *redis.Client
	Repo   repository.Repository
	Issuer *auth.Issuer
	Server *http.Server
}

// NewApp wires every component from cfg. The caller must Close the app.
func NewApp(cfg *config.Config) (*App, error) {
	issuer, err := auth.NewIssuer(cfg.JWTSecret)
	if err != nil {
		return nil, fmt.Errorf("JWT_SECRET must be set: %w", err)
	}

	db, err := database.InitDB(cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	slog.Info("Successfully connected to SQLite database.", "path", cfg.DatabasePath)

	a := &App{Config: cfg, DB: db, Issuer: issuer}

	locker, err := a.newLocker()
	if err != nil {
		_ = a.Close()
		return nil, err
	}

	a.Repo = repository.NewSQLiteRepository(db)
	provider := llm.NewClient(llm.Config{
		BaseURL:              cfg.LLMAPIURL,
		APIKey:               cfg.LLMAPIKey,
		Model:                cfg.LLMModel,
		Temperature:          cfg.LLMTemperature,
		MaxTokens:            cfg.LLMMaxTokens,
		TopP:                 cfg.LLMTopP,
		FrequencyPenalty:     cfg.LLMFrequencyPenalty,
		PresencePenalty:      cfg.LLMPresencePenalty,
		Timeout:              cfg.LLMTimeout,
		StreamConnectTimeout: cfg.LLMStreamConnectTimeout,
		StreamIdleTimeout:    cfg.LLMStreamIdleTimeout,
	})

	settingsService := service.NewSettingsService(db, provider)
	appSettings, err := settingsService.InitAndGet(context.Background(), service.Settings{
		Persona: cfg.InitialPersona,
		Model:   cfg.LLMModel,
	})
	if err != nil {
		_ = a.Close()
		return nil, fmt.Errorf("failed to initialize tutor settings: %w", err)
	}
	slog.Info("Loaded tutor settings", "model", appSettings.Model)

	chatService := service.NewChatService(a.Repo, provider, settingsService, locker,
		service.WithPacer(pacing.New(pacerConfig(cfg))),
		service.WithTurnTimeout(cfg.TurnTimeout),
	)
	modelService := service.NewModelService(provider)

	router := api.NewRouter(api.Handlers{
		Conversations: api.NewConversationHandler(chatService),
		WS:            api.NewWSHandler(chatService, issuer, cfg.CORSAllowedOrigins),
		Settings:      api.NewSettingsHandler(settingsService),
		Models:        api.NewModelHandler(modelService),
	}, api.RouterOptions{
		Tokens:         issuer,
		Limiter:        api.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst),
		AllowedOrigins: cfg.CORSAllowedOrigins,
	})

	a.Server = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.AppPort),
		Handler:           router,
		ReadHeaderTimeout: 20 * time.Second,
		WriteTimeout:      0, // Disabled for streaming endpoints
		IdleTimeout:       120 * time.Second,
	}
	return a, nil
}

// newLocker uses Redis when REDIS_ADDR is set so that several replicas share
// the one-turn-per-conversation rule, and an in-process lock otherwise.
func (a *App) newLocker() (lock.Locker, error) {
	if a.Config.RedisAddr == "" {
		slog.Info("REDIS_ADDR not set, using in-process turn locks")
		return lock.NewLocalLocker(), nil
	}

	rdb := redis.NewClient(&redis.Options{Addr: a.Config.RedisAddr})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", a.Config.RedisAddr, err)
	}
	slog.Info("Successfully connected to Redis.", "addr", a.Config.RedisAddr)
	a.Redis = rdb
	return lock.NewRedisLocker(rdb, a.Config.TurnLockTTL), nil
}

func pacerConfig(cfg *config.Config) pacing.Config {
	if !cfg.PacingEnabled {
		return pacing.Config{}
	}
	return pacing.Config{
		SentencePause: cfg.PacingSentencePause,
		PhrasePause:   cfg.PacingPhrasePause,
		WordPause:     cfg.PacingWordPause,
		MinSpacing:    cfg.PacingMinSpacing,
		CharDelay:     cfg.PacingCharDelay,
	}
}

// Serve runs the HTTP server until ctx is done, then shuts it down
// gracefully. In-flight turns are allowed to finish and persist.
func (a *App) Serve(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("Starting server", "addr", a.Server.Addr)
		if err := a.Server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("Shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return a.Server.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// Close releases the database and Redis connections.
func (a *App) Close() error {
	var errs []error
	if a.Redis != nil {
		errs = append(errs, a.Redis.Close())
	}
	if a.DB != nil {
		errs = append(errs, a.DB.Close())
	}
	return errors.Join(errs...)
}

// Run wires cfg into an App, serves until ctx is done and closes the app.
func Run(ctx context.Context, cfg *config.Config) error {
	logConfigSource(cfg)

	a, err := NewApp(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			slog.Error("Failed to close resources", "error", err)
		}
	}()
	return a.Serve(ctx)
}

func logConfigSource(cfg *config.Config) {
	if cfg.ConfigFile != "" {
		slog.Info("Successfully loaded configuration from file.", "file", cfg.ConfigFile)
	} else {
		slog.Info("Configuration file not found. Using environment variables and defaults.")
	}
}

// SetupLogger installs a JSON slog handler at the given level.
func SetupLogger(logLevel string) {
	var level slog.Level
	switch strings.ToUpper(logLevel) {
	case "DEBUG":
		level = slog.LevelDebug
	case "WARN":
		level = slog.LevelWarn
	case "ERROR":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)
}

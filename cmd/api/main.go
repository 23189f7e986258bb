package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/ieltswriter/ieltswriter/internal/ai"
	"github.com/ieltswriter/ieltswriter/internal/api"
	"github.com/ieltswriter/ieltswriter/internal/auth"
	"github.com/ieltswriter/ieltswriter/internal/cache"
	"github.com/ieltswriter/ieltswriter/internal/config"
	"github.com/ieltswriter/ieltswriter/internal/credentials"
	"github.com/ieltswriter/ieltswriter/internal/database"
	"github.com/ieltswriter/ieltswriter/internal/history"
	mw "github.com/ieltswriter/ieltswriter/internal/middleware"
	inats "github.com/ieltswriter/ieltswriter/internal/nats"
	"github.com/ieltswriter/ieltswriter/internal/questionbank"
	"github.com/ieltswriter/ieltswriter/internal/quota"
	iredis "github.com/ieltswriter/ieltswriter/internal/redis"
	"github.com/ieltswriter/ieltswriter/internal/server"
	"github.com/ieltswriter/ieltswriter/internal/stats"
	"github.com/ieltswriter/ieltswriter/internal/users"
	"github.com/ieltswriter/ieltswriter/internal/writing"
)

var errNATSDisconnected = errors.New("nats disconnected")

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("loading config", "error", err)
		os.Exit(1)
	}

	setupLogger(cfg.Log)

	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// PostgreSQL
	pool, err := database.NewPostgresPool(ctx, cfg.DB)
	if err != nil {
		slog.Error("connecting to postgres", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	if err := database.RunMigrations(cfg.DB.DSN(), cfg.DB.MigrationsPath); err != nil {
		slog.Error("running migrations", "error", err)
		os.Exit(1)
	}

	// Redis
	redisClient, err := iredis.NewClient(ctx, cfg.Redis)
	if err != nil {
		slog.Error("connecting to redis", "error", err)
		os.Exit(1)
	}
	defer redisClient.Close()

	// Auth
	jwtManager := auth.NewJWTManager(
		cfg.JWT.AccessSecret,
		cfg.JWT.RefreshSecret,
		cfg.JWT.AccessExpiry,
		cfg.JWT.RefreshExpiry,
	)
	authSvc := auth.NewService(jwtManager, redisClient)
	userSvc := users.NewService(users.NewRepository(pool), cfg.Server.AdminEmails...)

	// Stored API keys
	credSvc, err := newCredentialService(cfg.Encryption, credentials.NewRepository(pool))
	if err != nil {
		slog.Error("creating credential cipher", "error", err)
		os.Exit(1)
	}

	// Quota
	loc, err := cfg.Quota.Location()
	if err != nil {
		slog.Error("resolving quota timezone", "error", err)
		os.Exit(1)
	}
	var store quota.Store = quota.NewPostgresStore(pool)
	if cfg.Quota.Backend == "redis" {
		store = quota.NewRedisStore(redisClient)
	}
	governor := quota.NewGovernor(store, credSvc, cfg.Quota.DailyLimit, loc)

	proxyLimiter := quota.NewRateLimiter(redisClient, "ai-proxy", cfg.AI.ProxyPerMinute, time.Minute)
	grammarLimiter, err := quota.NewFixedWindowLimiter(redisClient, "ielts:ratelimit:grammar", cfg.AI.GrammarPerMinute, time.Minute)
	if err != nil {
		slog.Error("creating grammar limiter", "error", err)
		os.Exit(1)
	}
	evaluateLimiter, err := quota.NewFixedWindowLimiter(redisClient, "ielts:ratelimit:evaluate", cfg.AI.EvaluatePerMinute, time.Minute)
	if err != nil {
		slog.Error("creating evaluate limiter", "error", err)
		os.Exit(1)
	}
	authWindow := time.Duration(cfg.Server.AuthRateWindowSec) * time.Second
	authLimit := mw.NewClientRateLimit(quota.NewRateLimiter(redisClient, "auth", cfg.Server.AuthRateLimit, authWindow), authWindow)

	// AI transports. Per-user transports are built per call and share one
	// HTTP client so connections are reused.
	aiHTTP := &http.Client{Timeout: cfg.AI.Timeout}
	gemini := func(apiKey string) ai.Transport {
		return ai.NewGeminiTransport(apiKey, cfg.AI.Model, cfg.AI.Timeout,
			ai.WithBaseURL(cfg.AI.GeminiBaseURL), ai.WithHTTPClient(aiHTTP))
	}
	shared := gemini(cfg.AI.GeminiAPIKey)
	var proxied ai.Transport = ai.NewLimitedTransport(shared, proxyLimiter, "ai-proxy")
	if cfg.AI.ProxyURL != "" {
		proxied = ai.NewProxyTransport(cfg.AI.ProxyURL, cfg.AI.Timeout)
	}
	aiRouter := ai.NewRouter(credSvc, gemini, proxied)
	notifier := ai.MultiNotifier{ai.LogNotifier{}, api.ContextNotifier{}}
	aiClient := ai.NewClient(notifier)
	proxyHandler := ai.NewProxyHandler(shared, proxyLimiter)

	// Stats
	statsSvc := stats.NewService(stats.NewRepository(pool), userSvc, cfg.Stats.RollupStaleness, cfg.Stats.RecentWindow)

	var recorder history.GradedRecorder = history.StatsRecorder{Stats: statsSvc}
	var natsClient *inats.Client
	if cfg.NATS.URL != "" {
		natsClient, err = inats.NewClient(ctx, cfg.NATS)
		if err != nil {
			slog.Error("connecting to nats", "error", err)
			os.Exit(1)
		}
		defer natsClient.Close()

		recorder = history.EventRecorder{Publisher: inats.NewPublisher(natsClient.JetStream())}
		consumer := stats.NewConsumer(statsSvc, inats.NewConsumerManager(natsClient.JetStream()))
		go func() {
			if err := consumer.Start(ctx); err != nil {
				slog.Error("stats consumer stopped", "error", err)
			}
		}()
	}

	if cfg.Stats.RefreshInterval > 0 {
		scheduler := stats.NewScheduler(statsSvc, cfg.Stats.RefreshInterval)
		if err := scheduler.Start(); err != nil {
			slog.Error("starting stats scheduler", "error", err)
			os.Exit(1)
		}
		defer scheduler.Stop()
	}

	// History and question bank
	resultCache := cache.NewRedis(redisClient, cfg.Cache.ListCap, cfg.Cache.SessionTTL)
	historySvc := history.NewService(history.NewRepository(pool), resultCache, recorder)
	bankSvc := questionbank.NewService(questionbank.NewRepository(pool))

	writingSvc := writing.NewService(writing.Deps{
		Router:          aiRouter,
		Client:          aiClient,
		Governor:        governor,
		GrammarLimiter:  grammarLimiter,
		EvaluateLimiter: evaluateLimiter,
		History:         historySvc,
		Bank:            bankSvc,
		Notifier:        notifier,
	})

	// Handlers
	authHandler := auth.NewHandler(authSvc, userSvc, func(ctx context.Context, userID uuid.UUID, sessionID string) {
		resultCache.ClearAll(ctx, userID.String(), sessionID)
		governor.Forget(userID)
	})
	credHandler := credentials.NewHandler(credSvc)
	quotaHandler := quota.NewHandler(governor)
	writingHandler := writing.NewHandler(writingSvc)
	historyHandler := history.NewHandler(historySvc)
	statsHandler := stats.NewHandler(statsSvc, historySvc)
	bankHandler := questionbank.NewHandler(bankSvc)

	readiness := []api.ReadinessCheck{
		{Name: "database", Check: func(ctx context.Context) error { return database.HealthCheck(ctx, pool) }},
		{Name: "redis", Check: func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }},
	}
	if natsClient != nil {
		readiness = append(readiness, api.ReadinessCheck{
			Name:     "nats",
			Optional: true,
			Check: func(context.Context) error {
				if !natsClient.Healthy() {
					return errNATSDisconnected
				}
				return nil
			},
		})
	}

	// Router
	router := api.NewRouter(api.RouterConfig{
		CORSAllowedOrigins: cfg.Server.CORSAllowedOrigins,
		AuthRateLimiter:    authLimit.Middleware,
		Readiness:          readiness,
	}, api.HandlerSet{
		Register:      authHandler.Register,
		Login:         authHandler.Login,
		Refresh:       authHandler.Refresh,
		Logout:        authHandler.Logout,
		DeleteAccount: authHandler.DeleteAccount,

		GetCredential:    credHandler.Get,
		PutCredential:    credHandler.Put,
		DeleteCredential: credHandler.Delete,

		GetQuota: quotaHandler.GetQuota,

		GenerateTask1: writingHandler.GenerateTask1,
		GenerateTask2: writingHandler.GenerateTask2,
		CheckGrammar:  writingHandler.Grammar,
		Evaluate:      writingHandler.Evaluate,

		ListHistory:   historyHandler.List,
		GetHistory:    historyHandler.Get,
		DeleteHistory: historyHandler.Delete,

		GetStats:         statsHandler.Get,
		RecalculateStats: statsHandler.Recalculate,

		AIProxy: proxyHandler.Complete,

		GlobalStats:     statsHandler.Rollup,
		ListQuestions:   bankHandler.List,
		ExportQuestions: bankHandler.Export,

		AuthMiddleware: auth.Middleware(authSvc),
		AdminOnly:      auth.RequireRole(string(users.RoleAdmin)),
	})

	// Start server
	srv := server.New(cfg.Server, router)
	if err := srv.Start(); err != nil {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
}

// newCredentialService seals new keys with AES-GCM when an encryption key is
// configured. Keys sealed before that stay readable through the XOR cipher.
func newCredentialService(cfg config.EncryptionConfig, repo credentials.Repository) (*credentials.Service, error) {
	if cfg.Key == "" {
		return credentials.NewService(repo, credentials.XORCipher{}), nil
	}
	enc, err := auth.NewEncryptor(cfg.Key)
	if err != nil {
		return nil, err
	}
	aes, err := credentials.NewAESCipher(enc)
	if err != nil {
		return nil, err
	}
	return credentials.NewService(repo, aes, credentials.XORCipher{}), nil
}

func setupLogger(cfg config.LogConfig) {
	var handler slog.Handler

	opts := &slog.HandlerOptions{}
	switch cfg.Level {
	case "debug":
		opts.Level = slog.LevelDebug
	case "info":
		opts.Level = slog.LevelInfo
	case "warn":
		opts.Level = slog.LevelWarn
	case "error":
		opts.Level = slog.LevelError
	default:
		opts.Level = slog.LevelInfo
	}

	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	slog.SetDefault(slog.New(handler))
}

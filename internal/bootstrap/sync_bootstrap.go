// Package bootstrap wires configuration, infrastructure, services and the
// HTTP surface into a runnable application.
package bootstrap

import (
	"os"
	"strings"

	"github.com/goccy/go-json"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	httpin "sync_server/adapter/in/http"
	"sync_server/adapter/in/worker"
	"sync_server/adapter/out/persistence"
	"sync_server/adapter/out/provider"
	"sync_server/config"
	"sync_server/core/agent/llm"
	"sync_server/core/port/out"
	"sync_server/core/service/auth"
	"sync_server/core/service/mailbox"
	"sync_server/infra/database"
	"sync_server/pkg/crypto"
	"sync_server/pkg/logger"
)

// Dependencies holds every wired component.
type Dependencies struct {
	DB    *pgxpool.Pool
	SQLX  *sqlx.DB
	Redis *redis.Client

	JobRepo      *persistence.JobAdapter
	InsightRepo  *persistence.InsightAdapter
	DraftRepo    *persistence.DraftAdapter
	MessageCache *persistence.MessageCacheAdapter
	AccountRepo  *persistence.AccountAdapter
	SettingsRepo *persistence.SettingsAdapter

	TokenManager *auth.TokenManager
	Mailbox      *mailbox.Service
	LLM          *llm.Client
	Runner       *worker.Runner
}

// NewDependencies connects infrastructure and builds the service graph.
func NewDependencies(cfg *config.Config) (*Dependencies, func(), error) {
	zlog := zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).
		With().Timestamp().Str("component", "bootstrap").Logger()

	if err := crypto.Init(); err != nil {
		return nil, nil, err
	}

	pool, db, err := database.NewPostgres(cfg.DatabaseURL)
	if err != nil {
		return nil, nil, err
	}
	zlog.Info().Msg("postgres connected")

	var rdb *redis.Client
	if cfg.RedisURL != "" {
		rdb, err = database.NewRedis(cfg.RedisURL)
		if err != nil {
			zlog.Warn().Err(err).Msg("redis unavailable, token cache disabled")
			rdb = nil
		} else {
			zlog.Info().Msg("redis connected")
		}
	}

	deps := &Dependencies{
		DB:    pool,
		SQLX:  db,
		Redis: rdb,

		JobRepo:      persistence.NewJobAdapter(db),
		InsightRepo:  persistence.NewInsightAdapter(db),
		DraftRepo:    persistence.NewDraftAdapter(db),
		MessageCache: persistence.NewMessageCacheAdapter(db),
		AccountRepo:  persistence.NewAccountAdapter(db),
		SettingsRepo: persistence.NewSettingsAdapter(db),
	}

	deps.TokenManager = auth.NewTokenManager(deps.AccountRepo, rdb, &auth.Config{
		GoogleClientID:        cfg.GoogleClientID,
		GoogleClientSecret:    cfg.GoogleClientSecret,
		MicrosoftClientID:     cfg.MicrosoftClientID,
		MicrosoftClientSecret: cfg.MicrosoftClientSecret,
		MicrosoftTenantID:     cfg.MicrosoftTenantID,
	})

	providers := []out.MailProvider{
		provider.NewGmailAdapter(),
		provider.NewOutlookAdapter(),
	}
	deps.Mailbox = mailbox.NewService(providers, deps.TokenManager,
		deps.MessageCache, deps.InsightRepo, deps.DraftRepo)

	deps.LLM = llm.NewClient(llm.ClientConfig{
		APIKey:        cfg.OpenAIAPIKey,
		Model:         cfg.LLMModel,
		FallbackModel: cfg.LLMFallbackModel,
		MaxTokens:     cfg.LLMMaxTokens,
		Temperature:   cfg.LLMTemperature,
	})

	processor := worker.NewAIProcessor(deps.Mailbox, deps.LLM,
		deps.InsightRepo, deps.DraftRepo, deps.SettingsRepo, cfg.BatchDelay)
	deps.Runner = worker.NewRunner(deps.JobRepo, processor, cfg.JobTimeout)
	processor.SetEnqueuer(deps.Runner)

	cleanup := func() {
		deps.Runner.Wait()
		if rdb != nil {
			rdb.Close()
		}
		db.Close()
		pool.Close()
		zlog.Info().Msg("dependencies closed")
	}
	return deps, cleanup, nil
}

// NewAPI builds the fiber application.
func NewAPI(cfg *config.Config) (*fiber.App, func(), error) {
	logLevel := logger.LevelInfo
	if cfg.IsDevelopment() {
		logLevel = logger.LevelDebug
	}
	logger.Init(logger.Config{
		Level:   logLevel,
		Service: "sync-server",
	})

	deps, cleanup, err := NewDependencies(cfg)
	if err != nil {
		logger.WithError(err).Error("Failed to initialize dependencies")
		return nil, nil, err
	}

	app := fiber.New(fiber.Config{
		DisableStartupMessage: cfg.IsProduction(),
		ReadBufferSize:        16384,
		WriteBufferSize:       16384,
		JSONEncoder:           json.Marshal,
		JSONDecoder:           json.Unmarshal,
		BodyLimit:             10 * 1024 * 1024,
	})

	app.Use(recover.New())
	app.Use(requestid.New())
	app.Use(compress.New(compress.Config{
		Level: compress.LevelBestSpeed,
	}))

	allowOrigins := strings.Join(cfg.AllowedOrigins, ",")
	app.Use(cors.New(cors.Config{
		AllowOrigins: allowOrigins,
		AllowMethods: "GET,POST,PUT,DELETE,PATCH,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept,X-User-ID,X-Request-ID",
	}))

	httpin.NewHealthHandler(deps.DB, deps.Redis).Register(app)

	api := app.Group("/api")
	httpin.NewJobHandler(deps.Runner).Register(api)
	httpin.NewEmailHandler(deps.Mailbox, deps.DraftRepo).Register(api)

	return app, cleanup, nil
}

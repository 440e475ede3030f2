package app

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/trocopix/trocopix/internal/cache"
	"github.com/trocopix/trocopix/internal/config"
	"github.com/trocopix/trocopix/internal/env"
	"github.com/trocopix/trocopix/internal/errHandler"
	"github.com/trocopix/trocopix/internal/gateway"
	"github.com/trocopix/trocopix/internal/helper"
	"github.com/trocopix/trocopix/internal/payout"
	"github.com/trocopix/trocopix/internal/repository"
	"github.com/trocopix/trocopix/internal/smtp"
	"github.com/trocopix/trocopix/internal/stream"

	"github.com/joho/godotenv"
)

// Essential services and resources are exposed on the application so
// route handlers and workers can reach them when they need them.
type Application struct {
	Config       config.Config
	DB           repository.Database
	Logger       *slog.Logger
	Mailer       *smtp.Mailer
	WG           sync.WaitGroup
	ErrorHandler *errHandler.ErrorHandler
	Helper       *helper.HelperRepository
	Kafka        *stream.KafkaStream
	Cache        *cache.Cache
	Gateway      gateway.Client
	Orchestrator *payout.Orchestrator
}

func NewApplication(logger *slog.Logger) (*Application, error) {
	if err := godotenv.Load(); err != nil {
		logger.Error("Error loading .env file", "error", err)
	}

	var cfg config.Config

	// Config values are loaded from the .env file. Defaults are for
	// development only; no production value belongs here.
	cfg.BaseURL = env.GetString("BASE_URL", "http://localhost:4444")
	cfg.HttpPort = env.GetInt("HTTP_PORT", 4444)

	cfg.Db.Dsn = env.GetString("DB_DSN", "user:pass@localhost:5432/db")
	cfg.Db.Automigrate = env.GetBool("DB_AUTOMIGRATE", true)

	cfg.Jwt.SecretKey = env.GetString("JWT_SECRET_KEY", "ajf5nx3qmp6zquevllxocxqvyz42ypuo")

	// Server errors won't be sent via email if NOTIFICATIONS_EMAIL is
	// not set in the .env file.
	cfg.Notifications.Email = env.GetString("NOTIFICATIONS_EMAIL", "")

	cfg.Smtp.Host = env.GetString("SMTP_HOST", "example.smtp.host")
	cfg.Smtp.Port = env.GetInt("SMTP_PORT", 25)
	cfg.Smtp.Username = env.GetString("SMTP_USERNAME", "example_username")
	cfg.Smtp.Password = env.GetString("SMTP_PASSWORD", "pa55word")
	cfg.Smtp.From = env.GetString("SMTP_FROM", "trocopix <no_reply@example.org>")

	cfg.KafkaServers = env.GetString("KAFKA_SERVERS", "localhost:9092")
	cfg.RedisServer = env.GetString("REDIS_SERVER", "localhost:6379")

	cfg.Gateway.BaseURL = env.GetString("GATEWAY_BASE_URL", "https://sandbox.bank.example/v2")
	cfg.Gateway.ClientID = env.GetString("GATEWAY_CLIENT_ID", "")
	cfg.Gateway.ClientSecret = env.GetString("GATEWAY_CLIENT_SECRET", "")
	cfg.Gateway.CertFile = env.GetString("GATEWAY_CERT_FILE", "")
	cfg.Gateway.KeyFile = env.GetString("GATEWAY_KEY_FILE", "")
	cfg.Gateway.CAFile = env.GetString("GATEWAY_CA_FILE", "")

	db, err := repository.New(cfg.Db.Dsn, cfg.Db.Automigrate)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	mailer, err := smtp.NewMailer(cfg.Smtp.Host, cfg.Smtp.Port, cfg.Smtp.Username, cfg.Smtp.Password, cfg.Smtp.From)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize mailer: %w", err)
	}

	bankClient, err := gateway.NewBankClient(gateway.Config{
		BaseURL:      cfg.Gateway.BaseURL,
		ClientID:     cfg.Gateway.ClientID,
		ClientSecret: cfg.Gateway.ClientSecret,
		CertFile:     cfg.Gateway.CertFile,
		KeyFile:      cfg.Gateway.KeyFile,
		CAFile:       cfg.Gateway.CAFile,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize bank client: %w", err)
	}

	kafkaStream := stream.New(cfg.KafkaServers)
	cacheStore := cache.New(cfg.RedisServer, 0)

	app := &Application{
		Config:  cfg,
		DB:      db,
		Logger:  logger,
		Mailer:  mailer,
		Kafka:   kafkaStream,
		Cache:   cacheStore,
		Gateway: bankClient,
	}

	app.ErrorHandler = errHandler.New(cfg.Notifications.Email, cfg.BaseURL, mailer, logger)
	app.Helper = helper.New(&app.Config.BaseURL, &app.WG, app.ErrorHandler)

	notifier := stream.NewPayoutNotifier(kafkaStream, logger)
	app.Orchestrator = payout.New(payout.NewStore(db), bankClient, notifier, logger)

	return app, nil
}

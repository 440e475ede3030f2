package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"runtime/debug"

	"github.com/trocopix/trocopix/internal/app"
	seeders "github.com/trocopix/trocopix/internal/seeder"
	"github.com/trocopix/trocopix/internal/version"
	"github.com/trocopix/trocopix/internal/worker"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))

	err := run(logger)
	if err != nil {
		trace := string(debug.Stack())
		logger.Error(err.Error(), "trace", trace)
		os.Exit(1)
	}
}

func run(logger *slog.Logger) error {
	showVersion := flag.Bool("version", false, "display version and exit")
	seed := flag.Bool("seed", false, "seed the demo merchant and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("version: %s\n", version.Get())
		return nil
	}

	application, err := app.NewApplication(logger)
	if err != nil {
		return err
	}
	defer application.DB.Close()

	if *seed {
		seeders.New(application.DB).Run()
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	workers := worker.New(&worker.Worker{
		KafkaStream:  application.Kafka,
		DB:           application.DB,
		Ctx:          ctx,
		Logger:       logger,
		Mailer:       application.Mailer,
		Orchestrator: application.Orchestrator,
		BaseURL:      application.Config.BaseURL,
	})

	go workers.ReceiptWorker()
	go workers.FailureWorker()
	go workers.ReconcileWorker()

	return application.ServeHTTP()
}

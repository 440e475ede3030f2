package worker

import (
	"context"
	"log/slog"

	"github.com/trocopix/trocopix/internal/payout"
	"github.com/trocopix/trocopix/internal/repository"
	"github.com/trocopix/trocopix/internal/smtp"
	"github.com/trocopix/trocopix/internal/stream"
)

type Worker struct {
	KafkaStream  *stream.KafkaStream
	DB           repository.Database
	Ctx          context.Context
	Logger       *slog.Logger
	Mailer       smtp.MailerInterface
	Orchestrator *payout.Orchestrator
	BaseURL      string
}

const (
	// payoutReceiptGroupID is used for workers that react to completed
	// payouts: audit log plus the merchant receipt email.
	payoutReceiptGroupID = "payout-receipt-group"

	// payoutFailureGroupID is used for workers that record confirmed
	// payout failures.
	payoutFailureGroupID = "payout-failure-group"
)

// Our workers typically need access to the database and the kafka event
// stream; worker-specific dependencies are carried on the struct.
func New(wk *Worker) *Worker {
	return &Worker{
		KafkaStream:  wk.KafkaStream,
		DB:           wk.DB,
		Ctx:          wk.Ctx,
		Logger:       wk.Logger,
		Mailer:       wk.Mailer,
		Orchestrator: wk.Orchestrator,
		BaseURL:      wk.BaseURL,
	}
}

package worker

import (
	"encoding/json"
	"time"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"github.com/trocopix/trocopix/internal/models"
	"github.com/trocopix/trocopix/internal/stream"
)

// ReceiptWorker consumes completed-payout events, appends the audit log
// row and emails the merchant a receipt.
func (wk *Worker) ReceiptWorker() {
	consumer, err := wk.KafkaStream.CreateConsumer(&stream.StreamConsumer{
		GroupId: payoutReceiptGroupID,
		Topic:   stream.PayoutCompletedTopic,
	})
	if err != nil {
		wk.Logger.Error("creating receipt consumer", "error", err)
		return
	}

	for {
		event := consumer.Poll(100)
		switch e := event.(type) {
		case *kafka.Message:
			var payoutEvent stream.PayoutEvent
			if err := json.Unmarshal(e.Value, &payoutEvent); err != nil {
				wk.Logger.Error("decoding payout event", "error", err)
				continue
			}

			wk.handleCompletedPayout(&payoutEvent)
		case kafka.Error:
			wk.Logger.Error("receipt consumer", "error", e)
		default:
		}
	}
}

// FailureWorker consumes failed-payout events and appends the audit log
// row so the merchant's activity feed shows the rejection.
func (wk *Worker) FailureWorker() {
	consumer, err := wk.KafkaStream.CreateConsumer(&stream.StreamConsumer{
		GroupId: payoutFailureGroupID,
		Topic:   stream.PayoutFailedTopic,
	})
	if err != nil {
		wk.Logger.Error("creating failure consumer", "error", err)
		return
	}

	for {
		event := consumer.Poll(100)
		switch e := event.(type) {
		case *kafka.Message:
			var payoutEvent stream.PayoutEvent
			if err := json.Unmarshal(e.Value, &payoutEvent); err != nil {
				wk.Logger.Error("decoding payout event", "error", err)
				continue
			}

			_, err := wk.DB.AccountLog().Insert(&models.AccountLog{
				AccountID:   payoutEvent.AccountID,
				Entity:      models.AccountLogTransactionEntity,
				EntityID:    payoutEvent.TransactionID,
				Description: models.AccountLogPayoutFailedDescription,
			})
			if err != nil {
				wk.Logger.Error("logging failed payout", "transaction_id", payoutEvent.TransactionID, "error", err)
			}
		case kafka.Error:
			wk.Logger.Error("failure consumer", "error", e)
		default:
		}
	}
}

func (wk *Worker) handleCompletedPayout(event *stream.PayoutEvent) {
	_, err := wk.DB.AccountLog().Insert(&models.AccountLog{
		AccountID:   event.AccountID,
		Entity:      models.AccountLogTransactionEntity,
		EntityID:    event.TransactionID,
		Description: models.AccountLogPayoutCompletedDescription,
	})
	if err != nil {
		wk.Logger.Error("logging completed payout", "transaction_id", event.TransactionID, "error", err)
	}

	if wk.Mailer == nil {
		return
	}

	account, found, err := wk.DB.Account().GetOne(event.AccountID)
	if err != nil || !found {
		wk.Logger.Error("loading account for receipt", "account_id", event.AccountID, "error", err)
		return
	}

	emailData := map[string]any{
		"BaseURL":       wk.BaseURL,
		"BusinessName":  account.BusinessName,
		"TransactionID": event.TransactionID,
		"PixKey":        event.PixKey,
		"Amount":        "R$ " + event.Amount,
		"ProcessedAt":   event.OccurredAt.Format(time.RFC3339),
	}

	if err := wk.Mailer.Send(account.Email, emailData, "payout-receipt.tmpl"); err != nil {
		wk.Logger.Error("sending payout receipt", "transaction_id", event.TransactionID, "error", err)
	}
}

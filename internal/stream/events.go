package stream

import (
	"encoding/json"
	"log/slog"
	"time"

	"github.com/trocopix/trocopix/internal/models"
)

const (
	// PayoutCompletedTopic carries one event per settled payout; the
	// receipt worker consumes it to write the audit log and email the
	// merchant.
	PayoutCompletedTopic = "payout.completed"

	// PayoutFailedTopic carries one event per confirmed gateway
	// rejection.
	PayoutFailedTopic = "payout.failed"
)

// PayoutEvent is the wire shape published on the payout topics.
type PayoutEvent struct {
	TransactionID string    `json:"transaction_id"`
	AccountID     string    `json:"account_id"`
	SubAccountID  string    `json:"sub_account_id"`
	PixKey        string    `json:"pix_key"`
	Amount        string    `json:"amount"`
	Status        string    `json:"status"`
	LastError     string    `json:"last_error,omitempty"`
	OccurredAt    time.Time `json:"occurred_at"`
}

// PayoutNotifier publishes payout lifecycle events to Kafka. Publish
// failures are logged and dropped; the transaction record is the source
// of truth, the stream is a convenience for downstream consumers.
type PayoutNotifier struct {
	stream *KafkaStream
	logger *slog.Logger
}

func NewPayoutNotifier(stream *KafkaStream, logger *slog.Logger) *PayoutNotifier {
	return &PayoutNotifier{
		stream: stream,
		logger: logger,
	}
}

func (n *PayoutNotifier) PayoutCompleted(transaction *models.PixTransaction) {
	n.publish(PayoutCompletedTopic, transaction)
}

func (n *PayoutNotifier) PayoutFailed(transaction *models.PixTransaction) {
	n.publish(PayoutFailedTopic, transaction)
}

func (n *PayoutNotifier) publish(topic string, transaction *models.PixTransaction) {
	event := PayoutEvent{
		TransactionID: transaction.ID,
		AccountID:     transaction.AccountID,
		SubAccountID:  transaction.SubAccountID,
		PixKey:        transaction.PixKey,
		Amount:        transaction.Amount.String(),
		Status:        transaction.Status,
		LastError:     transaction.LastError.String,
		OccurredAt:    time.Now(),
	}

	message, err := json.Marshal(event)
	if err != nil {
		n.logger.Error("marshalling payout event", "topic", topic, "error", err)
		return
	}

	if err := n.stream.ProduceMessage(topic, string(message)); err != nil {
		n.logger.Error("publishing payout event", "topic", topic, "transaction_id", transaction.ID, "error", err)
	}
}

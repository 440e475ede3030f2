package gateway

import (
	"context"
	"errors"
	"fmt"

	"github.com/trocopix/trocopix/internal/money"
)

// ProviderStatus is the small internal view of the bank's payout states.
type ProviderStatus string

const (
	StatusSettled           ProviderStatus = "SETTLED"
	StatusRemovedByReceiver ProviderStatus = "REMOVED_BY_RECEIVER"
	StatusUnknown           ProviderStatus = "UNKNOWN"
)

// ErrAuth marks credential or client-certificate rejection by the bank.
var ErrAuth = errors.New("gateway authentication failed")

// Error is a confirmed non-success response from the bank. A transport
// failure where no response was read is NOT wrapped in Error, because
// the payout may still have gone through on the provider side.
type Error struct {
	Message    string
	HTTPStatus int
}

func (e *Error) Error() string {
	if e.HTTPStatus != 0 {
		return fmt.Sprintf("gateway error (status %d): %s", e.HTTPStatus, e.Message)
	}
	return "gateway error: " + e.Message
}

// Debtor identifies the paying merchant on the payout order.
type Debtor struct {
	Name  string `json:"name"`
	TaxID string `json:"tax_id"`
}

type SubmitRequest struct {
	PixKey      string
	KeyType     string
	Amount      money.Money
	Description string
	Debtor      Debtor
}

type SubmitResult struct {
	GatewayTxID string
	QRCode      string
}

// Client wraps the bank's OAuth + PIX payout API. Implementations hold
// no state besides the cached bearer token.
type Client interface {
	SubmitPayout(ctx context.Context, req *SubmitRequest) (*SubmitResult, error)
	CheckStatus(ctx context.Context, gatewayTxID string) (ProviderStatus, error)
	Cancel(ctx context.Context, gatewayTxID, reason string) error
}

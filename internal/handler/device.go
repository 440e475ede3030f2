package handler

import (
	"net/http"
	"time"

	"github.com/trocopix/trocopix/internal/cache"
	"github.com/trocopix/trocopix/internal/errHandler"
	"github.com/trocopix/trocopix/internal/models"
	"github.com/trocopix/trocopix/internal/money"
	"github.com/trocopix/trocopix/internal/payout"
	"github.com/trocopix/trocopix/internal/pixkey"
	"github.com/trocopix/trocopix/internal/repository"
	"github.com/trocopix/trocopix/internal/request"
	"github.com/trocopix/trocopix/internal/response"
	"github.com/trocopix/trocopix/internal/validator"
)

const (
	deviceKeyHeader   = "X-Device-Key"
	deviceNonceHeader = "X-Device-Nonce"

	// nonceTTL bounds how long a replayed nonce stays suppressed. Vending
	// hardware retries aggressively on flaky links, so this errs long.
	nonceTTL = 24 * time.Hour
)

// DeviceHandler serves unattended hardware (vending machines, kiosks)
// that authenticates with a per-account device key instead of a JWT.
// Every request carries a client-generated nonce; a nonce seen before
// is answered with a conflict instead of a second payout.
type DeviceHandler struct {
	AccountRepo    repository.AccountRepository
	SubAccountRepo repository.SubAccountRepository
	Cache          *cache.Cache
	Orchestrator   *payout.Orchestrator
	ErrHandler     *errHandler.ErrorHandler
}

func NewDeviceHandler(handler *DeviceHandler) *DeviceHandler {
	return &DeviceHandler{
		AccountRepo:    handler.AccountRepo,
		SubAccountRepo: handler.SubAccountRepo,
		Cache:          handler.Cache,
		Orchestrator:   handler.Orchestrator,
		ErrHandler:     handler.ErrHandler,
	}
}

func (h *DeviceHandler) HandleDevicePayout(w http.ResponseWriter, r *http.Request) {
	deviceKey := r.Header.Get(deviceKeyHeader)
	nonce := r.Header.Get(deviceNonceHeader)

	if deviceKey == "" {
		h.ErrHandler.AuthenticationRequired(w, r)
		return
	}

	account, found, err := h.AccountRepo.GetByDeviceKey(deviceKey)
	if err != nil {
		h.ErrHandler.ServerError(w, r, err)
		return
	}
	if !found {
		h.ErrHandler.InvalidAuthenticationToken(w, r)
		return
	}

	var input struct {
		PixKey      string              `json:"pix_key"`
		KeyType     string              `json:"key_type"`
		AmountPaid  string              `json:"amount_paid"`
		AmountOwed  string              `json:"amount_owed"`
		Description string              `json:"description"`
		Validator   validator.Validator `json:"-"`
	}

	err = request.DecodeJSON(w, r, &input)
	if err != nil {
		h.ErrHandler.BadRequest(w, r, err)
		return
	}

	input.Validator.Check(validator.NotBlank(nonce), "Device nonce header is required")
	input.Validator.Check(validator.NotBlank(input.PixKey), "Pix key is required")

	paid, paidErr := money.New(input.AmountPaid)
	owed, owedErr := money.New(input.AmountOwed)
	input.Validator.Check(paidErr == nil, "Amount paid must be a decimal value")
	input.Validator.Check(owedErr == nil, "Amount owed must be a decimal value")

	if input.Validator.HasErrors() {
		h.ErrHandler.FailedValidation(w, r, input.Validator.Errors)
		return
	}

	// The nonce is claimed before any side effect. A crashed device that
	// resends the same request gets a conflict, not a second payout.
	claimed, err := h.Cache.SetIfNotExists("device-nonce:"+account.ID+":"+nonce, "1", nonceTTL)
	if err != nil {
		h.ErrHandler.ServerError(w, r, err)
		return
	}
	if !claimed {
		h.ErrHandler.Conflict(w, r, "Duplicate request: this nonce has already been processed")
		return
	}

	change, err := payout.ComputeChange(paid, owed)
	if err != nil {
		respondPayoutError(h.ErrHandler, w, r, err)
		return
	}

	if change.IsZero() {
		message := "No change due, nothing to pay out"
		jsonOk(h.ErrHandler, w, r, map[string]string{"change": change.String()}, message)
		return
	}

	sub, found, err := h.SubAccountRepo.GetByAccount(account.ID)
	if err != nil {
		h.ErrHandler.ServerError(w, r, err)
		return
	}
	if !found {
		h.ErrHandler.NotFound(w, r)
		return
	}

	transaction, err := h.Orchestrator.Initiate(r.Context(), &payout.InitiateInput{
		SubAccountID: sub.ID,
		PixKey:       input.PixKey,
		KeyType:      pixkey.KeyType(input.KeyType),
		Amount:       change,
		Description:  input.Description,
		Source:       models.TxSourceDevice,
	})
	if err != nil {
		respondPayoutError(h.ErrHandler, w, r, err)
		return
	}

	message := "Payout " + transaction.Status
	err = response.JSONCreatedResponse(w, newPayoutResponseData(transaction), message)
	if err != nil {
		h.ErrHandler.ServerError(w, r, err)
	}
}

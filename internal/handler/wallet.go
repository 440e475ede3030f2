package handler

import (
	"net/http"
	"time"

	"github.com/trocopix/trocopix/internal/context"
	"github.com/trocopix/trocopix/internal/errHandler"
	"github.com/trocopix/trocopix/internal/helper"
	"github.com/trocopix/trocopix/internal/limits"
	"github.com/trocopix/trocopix/internal/models"
	"github.com/trocopix/trocopix/internal/money"
	"github.com/trocopix/trocopix/internal/repository"
	"github.com/trocopix/trocopix/internal/request"
	"github.com/trocopix/trocopix/internal/validator"
)

type WalletResponseData struct {
	ID                string    `json:"id"`
	Balance           string    `json:"balance"`
	BalanceDisplay    string    `json:"balance_display"`
	MaxPerTransaction string    `json:"max_per_transaction"`
	DailyLimit        string    `json:"daily_limit"`
	DailyUsed         string    `json:"daily_used"`
	DailyCount        int       `json:"daily_count"`
	Status            string    `json:"status"`
	CreatedAt         time.Time `json:"created_at"`
}

type WalletHandler struct {
	SubAccountRepo repository.SubAccountRepository
	ErrHandler     *errHandler.ErrorHandler
	Helper         *helper.HelperRepository
}

func NewWalletHandler(handler *WalletHandler) *WalletHandler {
	return &WalletHandler{
		SubAccountRepo: handler.SubAccountRepo,
		ErrHandler:     handler.ErrHandler,
		Helper:         handler.Helper,
	}
}

func newWalletResponseData(sub *models.SubAccount) *WalletResponseData {
	return &WalletResponseData{
		ID:                sub.ID,
		Balance:           sub.Balance.String(),
		BalanceDisplay:    sub.Balance.Display(),
		MaxPerTransaction: sub.MaxPerTransaction.String(),
		DailyLimit:        sub.DailyLimit.String(),
		DailyUsed:         sub.DailyUsed.String(),
		DailyCount:        sub.DailyCount,
		Status:            sub.Status,
		CreatedAt:         sub.CreatedAt,
	}
}

func (h *WalletHandler) HandleWalletDetails(w http.ResponseWriter, r *http.Request) {
	account := context.ContextGetAuthenticatedAccount(r)

	sub, found, err := h.SubAccountRepo.GetByAccount(account.ID)
	if err != nil {
		h.ErrHandler.ServerError(w, r, err)
		return
	}
	if !found {
		h.ErrHandler.NotFound(w, r)
		return
	}

	// Daily counters are reset lazily; reflect a rolled-over day in the
	// response without waiting for the next payout to persist it.
	limits.ApplyDailyReset(sub, time.Now())

	message := "Wallet details fetched successfully"
	jsonOk(h.ErrHandler, w, r, newWalletResponseData(sub), message)
}

// HandleWalletCredit tops up the wallet. Credits come from the
// merchant's own till, not the payout gateway, so a plain row-locked
// update is enough.
func (h *WalletHandler) HandleWalletCredit(w http.ResponseWriter, r *http.Request) {
	account := context.ContextGetAuthenticatedAccount(r)

	var input struct {
		Amount    string              `json:"amount"`
		Validator validator.Validator `json:"-"`
	}

	err := request.DecodeJSON(w, r, &input)
	if err != nil {
		h.ErrHandler.BadRequest(w, r, err)
		return
	}

	amount, err := money.New(input.Amount)
	input.Validator.Check(err == nil, "Amount must be a decimal value")
	if err == nil {
		input.Validator.Check(!amount.IsZero() && !amount.IsNegative(), "Amount must be greater than zero")
	}

	if input.Validator.HasErrors() {
		h.ErrHandler.FailedValidation(w, r, input.Validator.Errors)
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

	credited, err := h.SubAccountRepo.Credit(sub.ID, amount)
	if err != nil {
		h.ErrHandler.ServerError(w, r, err)
		return
	}
	if !credited {
		h.ErrHandler.Conflict(w, r, "Wallet could not be credited")
		return
	}

	sub, _, err = h.SubAccountRepo.GetOne(sub.ID)
	if err != nil {
		h.ErrHandler.ServerError(w, r, err)
		return
	}

	message := "Wallet credited successfully"
	jsonOk(h.ErrHandler, w, r, newWalletResponseData(sub), message)
}

func (h *WalletHandler) HandleWalletLimitsUpdate(w http.ResponseWriter, r *http.Request) {
	account := context.ContextGetAuthenticatedAccount(r)

	var input struct {
		MaxPerTransaction string              `json:"max_per_transaction"`
		DailyLimit        string              `json:"daily_limit"`
		Validator         validator.Validator `json:"-"`
	}

	err := request.DecodeJSON(w, r, &input)
	if err != nil {
		h.ErrHandler.BadRequest(w, r, err)
		return
	}

	maxPerTransaction, maxErr := money.New(input.MaxPerTransaction)
	dailyLimit, dailyErr := money.New(input.DailyLimit)

	input.Validator.Check(maxErr == nil, "Max per transaction must be a decimal value")
	input.Validator.Check(dailyErr == nil, "Daily limit must be a decimal value")

	if maxErr == nil {
		input.Validator.Check(!maxPerTransaction.IsZero() && !maxPerTransaction.IsNegative(), "Max per transaction must be greater than zero")
		input.Validator.Check(!maxPerTransaction.GreaterThan(money.MaxPayout), "Max per transaction cannot exceed "+money.MaxPayout.String())
	}
	if dailyErr == nil {
		input.Validator.Check(!dailyLimit.IsZero() && !dailyLimit.IsNegative(), "Daily limit must be greater than zero")
	}
	if maxErr == nil && dailyErr == nil {
		input.Validator.Check(!maxPerTransaction.GreaterThan(dailyLimit), "Max per transaction cannot exceed the daily limit")
	}

	if input.Validator.HasErrors() {
		h.ErrHandler.FailedValidation(w, r, input.Validator.Errors)
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

	err = h.SubAccountRepo.UpdateLimits(sub.ID, maxPerTransaction, dailyLimit)
	if err != nil {
		h.ErrHandler.ServerError(w, r, err)
		return
	}

	sub.MaxPerTransaction = maxPerTransaction
	sub.DailyLimit = dailyLimit

	message := "Limits updated successfully"
	jsonOk(h.ErrHandler, w, r, newWalletResponseData(sub), message)
}

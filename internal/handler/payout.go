package handler

import (
	"net/http"
	"time"

	"github.com/trocopix/trocopix/internal/context"
	"github.com/trocopix/trocopix/internal/errHandler"
	"github.com/trocopix/trocopix/internal/helper"
	"github.com/trocopix/trocopix/internal/models"
	"github.com/trocopix/trocopix/internal/money"
	"github.com/trocopix/trocopix/internal/payout"
	"github.com/trocopix/trocopix/internal/pixkey"
	"github.com/trocopix/trocopix/internal/repository"
	"github.com/trocopix/trocopix/internal/request"
	"github.com/trocopix/trocopix/internal/response"
	"github.com/trocopix/trocopix/internal/validator"
)

type PayoutResponseData struct {
	ID          string     `json:"id"`
	PixKey      string     `json:"pix_key"`
	KeyType     string     `json:"key_type"`
	Amount      string     `json:"amount"`
	Status      string     `json:"status"`
	GatewayTxID string     `json:"gateway_tx_id,omitempty"`
	LastError   string     `json:"last_error,omitempty"`
	RetryCount  int        `json:"retry_count"`
	Source      string     `json:"source"`
	Description string     `json:"description,omitempty"`
	DebitedAt   *time.Time `json:"debited_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	ProcessedAt *time.Time `json:"processed_at,omitempty"`
}

type PayoutHandler struct {
	Orchestrator    *payout.Orchestrator
	SubAccountRepo  repository.SubAccountRepository
	TransactionRepo repository.TransactionRepository
	AccountLogRepo  repository.AccountLogRepository
	ErrHandler      *errHandler.ErrorHandler
	Helper          *helper.HelperRepository
}

func NewPayoutHandler(handler *PayoutHandler) *PayoutHandler {
	return &PayoutHandler{
		Orchestrator:    handler.Orchestrator,
		SubAccountRepo:  handler.SubAccountRepo,
		TransactionRepo: handler.TransactionRepo,
		AccountLogRepo:  handler.AccountLogRepo,
		ErrHandler:      handler.ErrHandler,
		Helper:          handler.Helper,
	}
}

func newPayoutResponseData(transaction *models.PixTransaction) *PayoutResponseData {
	data := &PayoutResponseData{
		ID:          transaction.ID,
		PixKey:      transaction.PixKey,
		KeyType:     string(transaction.KeyType),
		Amount:      transaction.Amount.String(),
		Status:      transaction.Status,
		GatewayTxID: transaction.GatewayTxID.String,
		LastError:   transaction.LastError.String,
		RetryCount:  transaction.RetryCount,
		Source:      transaction.Source,
		Description: transaction.Description.String,
		CreatedAt:   transaction.CreatedAt,
	}

	if transaction.DebitedAt.Valid {
		t := transaction.DebitedAt.Time
		data.DebitedAt = &t
	}
	if transaction.ProcessedAt.Valid {
		t := transaction.ProcessedAt.Time
		data.ProcessedAt = &t
	}

	return data
}

type payoutInput struct {
	PixKey      string              `json:"pix_key"`
	KeyType     string              `json:"key_type"`
	AmountPaid  string              `json:"amount_paid"`
	AmountOwed  string              `json:"amount_owed"`
	Description string              `json:"description"`
	Validator   validator.Validator `json:"-"`
}

// parseChange validates the paid/owed pair and computes the change due.
// The boolean result reports whether validation passed; errors have
// already been written to the response when it is false.
func (h *PayoutHandler) parseChange(w http.ResponseWriter, r *http.Request, input *payoutInput) (money.Money, bool) {
	paid, paidErr := money.New(input.AmountPaid)
	owed, owedErr := money.New(input.AmountOwed)

	input.Validator.Check(validator.NotBlank(input.PixKey), "Pix key is required")
	input.Validator.Check(paidErr == nil, "Amount paid must be a decimal value")
	input.Validator.Check(owedErr == nil, "Amount owed must be a decimal value")

	if paidErr == nil {
		input.Validator.Check(!paid.IsNegative(), "Amount paid cannot be negative")
	}
	if owedErr == nil {
		input.Validator.Check(!owed.IsNegative(), "Amount owed cannot be negative")
	}

	if input.Validator.HasErrors() {
		h.ErrHandler.FailedValidation(w, r, input.Validator.Errors)
		return money.Money{}, false
	}

	change, err := payout.ComputeChange(paid, owed)
	if err != nil {
		respondPayoutError(h.ErrHandler, w, r, err)
		return money.Money{}, false
	}

	return change, true
}

// HandlePayoutInitiate computes the change due from what the customer
// paid and starts a payout for it. Zero change is a successful no-op:
// nothing is recorded and nothing is sent to the bank.
func (h *PayoutHandler) HandlePayoutInitiate(w http.ResponseWriter, r *http.Request) {
	account := context.ContextGetAuthenticatedAccount(r)

	var input payoutInput

	err := request.DecodeJSON(w, r, &input)
	if err != nil {
		h.ErrHandler.BadRequest(w, r, err)
		return
	}

	change, ok := h.parseChange(w, r, &input)
	if !ok {
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
		Source:       models.TxSourceWeb,
	})
	if err != nil {
		respondPayoutError(h.ErrHandler, w, r, err)
		return
	}

	h.logPayoutAction(r, account.ID, transaction.ID, models.AccountLogPayoutInitiatedDescription)

	message := "Payout " + transaction.Status
	err = response.JSONCreatedResponse(w, newPayoutResponseData(transaction), message)
	if err != nil {
		h.ErrHandler.ServerError(w, r, err)
	}
}

func (h *PayoutHandler) HandlePayoutDetails(w http.ResponseWriter, r *http.Request) {
	account := context.ContextGetAuthenticatedAccount(r)
	transactionID := r.PathValue("id")

	if !h.authorizePayoutAccess(w, r, account, transactionID) {
		return
	}

	transaction, err := h.Orchestrator.GetStatus(r.Context(), transactionID)
	if err != nil {
		respondPayoutError(h.ErrHandler, w, r, err)
		return
	}

	message := "Payout fetched successfully"
	jsonOk(h.ErrHandler, w, r, newPayoutResponseData(transaction), message)
}

func (h *PayoutHandler) HandlePayoutList(w http.ResponseWriter, r *http.Request) {
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

	transactions, err := h.TransactionRepo.ListBySubAccount(sub.ID)
	if err != nil {
		h.ErrHandler.ServerError(w, r, err)
		return
	}

	data := make([]*PayoutResponseData, len(transactions))
	for i := range transactions {
		data[i] = newPayoutResponseData(&transactions[i])
	}

	message := "Payouts fetched successfully"
	jsonOk(h.ErrHandler, w, r, data, message)
}

func (h *PayoutHandler) HandlePayoutCancel(w http.ResponseWriter, r *http.Request) {
	account := context.ContextGetAuthenticatedAccount(r)
	transactionID := r.PathValue("id")

	var input struct {
		Reason string `json:"reason"`
	}

	// The body is optional; a missing reason is fine.
	_ = request.DecodeJSON(w, r, &input)

	if !h.authorizePayoutAccess(w, r, account, transactionID) {
		return
	}

	result, err := h.Orchestrator.Cancel(r.Context(), transactionID, input.Reason)
	if err != nil {
		respondPayoutError(h.ErrHandler, w, r, err)
		return
	}

	h.logPayoutAction(r, account.ID, transactionID, models.AccountLogPayoutCancelledDescription)

	message := "Payout cancelled"
	if result.UpstreamFailed {
		message = "Payout cancelled locally; the bank-side cancellation did not go through and will be reconciled"
	}

	jsonOk(h.ErrHandler, w, r, newPayoutResponseData(result.Transaction), message)
}

func (h *PayoutHandler) HandlePayoutRetry(w http.ResponseWriter, r *http.Request) {
	account := context.ContextGetAuthenticatedAccount(r)
	transactionID := r.PathValue("id")

	if !h.authorizePayoutAccess(w, r, account, transactionID) {
		return
	}

	transaction, err := h.Orchestrator.Retry(r.Context(), transactionID)
	if err != nil {
		respondPayoutError(h.ErrHandler, w, r, err)
		return
	}

	message := "Payout " + transaction.Status
	jsonOk(h.ErrHandler, w, r, newPayoutResponseData(transaction), message)
}

// authorizePayoutAccess verifies the transaction exists and belongs to
// the authenticated merchant. It writes the error response itself and
// reports whether the caller may proceed.
func (h *PayoutHandler) authorizePayoutAccess(w http.ResponseWriter, r *http.Request, account *models.Account, transactionID string) bool {
	transaction, found, err := h.TransactionRepo.GetOne(transactionID)
	if err != nil {
		h.ErrHandler.ServerError(w, r, err)
		return false
	}
	if !found {
		h.ErrHandler.NotFound(w, r)
		return false
	}

	if transaction.AccountID != account.ID {
		message := "Access denied"
		response.JSONErrorResponse(w, nil, message, http.StatusForbidden, nil)
		return false
	}

	return true
}

func (h *PayoutHandler) logPayoutAction(r *http.Request, accountID, transactionID, description string) {
	h.Helper.BackgroundTask(r, func() error {
		_, err := h.AccountLogRepo.Insert(&models.AccountLog{
			AccountID:   accountID,
			Entity:      models.AccountLogTransactionEntity,
			EntityID:    transactionID,
			Description: description,
		})
		return err
	})
}

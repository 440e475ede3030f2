package handler

import (
	"net/http"
	"time"

	"github.com/trocopix/trocopix/internal/config"
	"github.com/trocopix/trocopix/internal/errHandler"
	"github.com/trocopix/trocopix/internal/helper"
	"github.com/trocopix/trocopix/internal/models"
	"github.com/trocopix/trocopix/internal/repository"
	"github.com/trocopix/trocopix/internal/request"
	"github.com/trocopix/trocopix/internal/response"
	"github.com/trocopix/trocopix/internal/validator"

	"github.com/cradoe/gopass"
	"github.com/pascaldekloe/jwt"
)

type AuthHandler struct {
	DB         repository.Database
	Config     *config.Config
	Helper     *helper.HelperRepository
	ErrHandler *errHandler.ErrorHandler
}

func NewAuthHandler(handler *AuthHandler) *AuthHandler {
	return &AuthHandler{
		DB:         handler.DB,
		Config:     handler.Config,
		Helper:     handler.Helper,
		ErrHandler: handler.ErrHandler,
	}
}

// Merchant registration creates the account and its wallet inside one
// database transaction so a failure at any point leaves no partial
// record behind.
func (h *AuthHandler) HandleAuthRegister(w http.ResponseWriter, r *http.Request) {
	var input struct {
		BusinessName string              `json:"business_name"`
		TaxID        string              `json:"tax_id"`
		Email        string              `json:"email"`
		Phone        string              `json:"phone"`
		Password     string              `json:"password"`
		Validator    validator.Validator `json:"-"`
	}

	err := request.DecodeJSON(w, r, &input)
	if err != nil {
		h.ErrHandler.BadRequest(w, r, err)
		return
	}

	_, errs := gopass.Validate(input.Password)
	if errs != nil {
		h.ErrHandler.FailedValidation(w, r, errs)
		return
	}

	_, found, err := h.DB.Account().GetByEmail(input.Email)
	if err != nil {
		h.ErrHandler.ServerError(w, r, err)
		return
	}

	input.Validator.Check(validator.NotBlank(input.Email), "Email is required")
	input.Validator.Check(validator.IsEmail(input.Email), "Must be a valid email address")
	input.Validator.Check(!found, "Email is already in use")

	input.Validator.Check(validator.NotBlank(input.BusinessName), "Business name is required")
	input.Validator.Check(validator.MinRunes(input.BusinessName, 3), "Business name is too short")

	input.Validator.Check(validator.NotBlank(input.TaxID), "Tax id is required")
	input.Validator.Check(validator.Matches(input.TaxID, validator.RgxTaxID), "Tax id must be a CPF or CNPJ")

	if input.Validator.HasErrors() {
		h.ErrHandler.FailedValidation(w, r, input.Validator.Errors)
		return
	}

	hashedPassword, err := gopass.Hash(input.Password)
	if err != nil {
		h.ErrHandler.ServerError(w, r, err)
		return
	}

	tx, err := h.DB.BeginTx(r.Context(), nil)
	if err != nil {
		h.ErrHandler.ServerError(w, r, err)
		return
	}

	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	account := &models.Account{
		BusinessName:   input.BusinessName,
		TaxID:          input.TaxID,
		Email:          input.Email,
		Phone:          nullablePhone(input.Phone),
		HashedPassword: hashedPassword,
	}

	accountID, err := h.DB.Account().Insert(account, tx)
	if err != nil {
		h.ErrHandler.ServerError(w, r, err)
		return
	}

	_, err = h.DB.SubAccount().Insert(&models.SubAccount{AccountID: accountID}, tx)
	if err != nil {
		h.ErrHandler.ServerError(w, r, err)
		return
	}

	if err = tx.Commit(); err != nil {
		h.ErrHandler.ServerError(w, r, err)
		return
	}

	h.Helper.BackgroundTask(r, func() error {
		_, err := h.DB.AccountLog().Insert(&models.AccountLog{
			AccountID:   accountID,
			Entity:      models.AccountLogAccountEntity,
			EntityID:    accountID,
			Description: models.AccountLogRegisteredDescription,
		})
		return err
	})

	message := "Account created successfully"
	data := map[string]string{
		"account_id": accountID,
	}

	err = response.JSONCreatedResponse(w, data, message)
	if err != nil {
		h.ErrHandler.ServerError(w, r, err)
	}
}

func (h *AuthHandler) HandleAuthLogin(w http.ResponseWriter, r *http.Request) {
	var input struct {
		Email     string              `json:"email"`
		Password  string              `json:"password"`
		Validator validator.Validator `json:"-"`
	}

	err := request.DecodeJSON(w, r, &input)
	if err != nil {
		h.ErrHandler.BadRequest(w, r, err)
		return
	}

	account, found, err := h.DB.Account().GetByEmail(input.Email)
	if err != nil {
		h.ErrHandler.ServerError(w, r, err)
		return
	}

	input.Validator.Check(validator.NotBlank(input.Email), "Email is required")
	input.Validator.Check(validator.IsEmail(input.Email), "Must be a valid email address")
	input.Validator.Check(found, "Incorrect email/password")

	if found {
		passwordMatches, err := gopass.ComparePasswordAndHash(input.Password, account.HashedPassword)
		if err != nil {
			h.ErrHandler.ServerError(w, r, err)
			return
		}

		input.Validator.Check(validator.NotBlank(input.Password), "Password is required")
		input.Validator.Check(passwordMatches, "Incorrect email/password")
	}

	if input.Validator.HasErrors() {
		h.ErrHandler.FailedValidation(w, r, input.Validator.Errors)
		return
	}

	if account.Status != models.AccountActiveStatus {
		message := "Account has been deactivated. Please contact support"
		response.JSONErrorResponse(w, nil, message, http.StatusForbidden, nil)
		return
	}

	var claims jwt.Claims
	claims.Subject = account.ID

	expiry := time.Now().Add(24 * time.Hour)
	claims.Issued = jwt.NewNumericTime(time.Now())
	claims.NotBefore = jwt.NewNumericTime(time.Now())
	claims.Expires = jwt.NewNumericTime(expiry)

	claims.Issuer = h.Config.BaseURL
	claims.Audiences = []string{h.Config.BaseURL}

	jwtBytes, err := claims.HMACSign(jwt.HS256, []byte(h.Config.Jwt.SecretKey))
	if err != nil {
		h.ErrHandler.ServerError(w, r, err)
		return
	}

	data := map[string]string{
		"auth_token":   string(jwtBytes),
		"token_expiry": expiry.Format(time.RFC3339),
	}
	message := "Login successful"
	err = response.JSONOkResponse(w, data, message, nil)
	if err != nil {
		h.ErrHandler.ServerError(w, r, err)
	}
}

package app

import (
	"net/http"

	"github.com/trocopix/trocopix/internal/handler"
	"github.com/trocopix/trocopix/internal/middleware"
)

func (app *Application) routes() http.Handler {
	mux := http.NewServeMux()

	middlewareRepo := middleware.New(app.ErrorHandler, app.Logger, app.DB.Account(), &app.Config)

	healthHandler := handler.NewHealthCheckHandler(app.ErrorHandler)

	authHandler := handler.NewAuthHandler(&handler.AuthHandler{
		DB:         app.DB,
		Config:     &app.Config,
		Helper:     app.Helper,
		ErrHandler: app.ErrorHandler,
	})

	walletHandler := handler.NewWalletHandler(&handler.WalletHandler{
		SubAccountRepo: app.DB.SubAccount(),
		ErrHandler:     app.ErrorHandler,
		Helper:         app.Helper,
	})

	payoutHandler := handler.NewPayoutHandler(&handler.PayoutHandler{
		Orchestrator:    app.Orchestrator,
		SubAccountRepo:  app.DB.SubAccount(),
		TransactionRepo: app.DB.Transaction(),
		AccountLogRepo:  app.DB.AccountLog(),
		ErrHandler:      app.ErrorHandler,
		Helper:          app.Helper,
	})

	deviceHandler := handler.NewDeviceHandler(&handler.DeviceHandler{
		AccountRepo:    app.DB.Account(),
		SubAccountRepo: app.DB.SubAccount(),
		Cache:          app.Cache,
		Orchestrator:   app.Orchestrator,
		ErrHandler:     app.ErrorHandler,
	})

	mux.HandleFunc("GET /status", healthHandler.HandleHealthCheck)

	mux.HandleFunc("POST /auth/register", authHandler.HandleAuthRegister)
	mux.HandleFunc("POST /auth/login", authHandler.HandleAuthLogin)

	requireAuth := middlewareRepo.RequireAuthenticatedAccount

	mux.Handle("GET /wallet", requireAuth(http.HandlerFunc(walletHandler.HandleWalletDetails)))
	mux.Handle("POST /wallet/credit", requireAuth(http.HandlerFunc(walletHandler.HandleWalletCredit)))
	mux.Handle("PATCH /wallet/limits", requireAuth(http.HandlerFunc(walletHandler.HandleWalletLimitsUpdate)))

	mux.Handle("POST /payouts", requireAuth(http.HandlerFunc(payoutHandler.HandlePayoutInitiate)))
	mux.Handle("GET /payouts", requireAuth(http.HandlerFunc(payoutHandler.HandlePayoutList)))
	mux.Handle("GET /payouts/{id}", requireAuth(http.HandlerFunc(payoutHandler.HandlePayoutDetails)))
	mux.Handle("POST /payouts/{id}/cancel", requireAuth(http.HandlerFunc(payoutHandler.HandlePayoutCancel)))
	mux.Handle("POST /payouts/{id}/retry", requireAuth(http.HandlerFunc(payoutHandler.HandlePayoutRetry)))

	// Device requests authenticate with a device key header, not a JWT.
	mux.HandleFunc("POST /device/payouts", deviceHandler.HandleDevicePayout)

	return middlewareRepo.LogAccess(middlewareRepo.RecoverPanic(middlewareRepo.Authenticate(mux)))
}

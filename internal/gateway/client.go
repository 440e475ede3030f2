package gateway

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
)

const defaultTimeout = 10 * time.Second

// tokenSlack renews the cached token slightly before its real expiry so
// an in-flight request never carries a token that dies mid-call.
const tokenSlack = 30 * time.Second

type Config struct {
	BaseURL      string
	ClientID     string
	ClientSecret string

	// Mutual TLS material, provisioned out-of-band. All three paths may
	// be empty in development, in which case a plain client is used.
	CertFile string
	KeyFile  string
	CAFile   string

	Timeout time.Duration
}

// BankClient talks to the bank's PIX payout API over mutual TLS.
type BankClient struct {
	config     Config
	httpClient *http.Client

	mu          sync.Mutex
	token       string
	tokenExpiry time.Time
}

func NewBankClient(config Config) (*BankClient, error) {
	if config.Timeout == 0 {
		config.Timeout = defaultTimeout
	}

	transport := http.DefaultTransport

	if config.CertFile != "" && config.KeyFile != "" {
		cert, err := tls.LoadX509KeyPair(config.CertFile, config.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("loading client certificate: %w", err)
		}

		tlsConfig := &tls.Config{
			Certificates: []tls.Certificate{cert},
			MinVersion:   tls.VersionTLS12,
		}

		if config.CAFile != "" {
			caPEM, err := os.ReadFile(config.CAFile)
			if err != nil {
				return nil, fmt.Errorf("loading CA bundle: %w", err)
			}

			pool := x509.NewCertPool()
			if !pool.AppendCertsFromPEM(caPEM) {
				return nil, fmt.Errorf("no certificates parsed from %s", config.CAFile)
			}
			tlsConfig.RootCAs = pool
		}

		transport = &http.Transport{TLSClientConfig: tlsConfig}
	}

	return &BankClient{
		config: config,
		httpClient: &http.Client{
			Transport: transport,
			Timeout:   config.Timeout,
		},
	}, nil
}

// authenticate returns a cached bearer token, fetching a fresh one when
// the cache is empty or near expiry. The mutex makes the refresh
// single-flight: concurrent callers wait instead of each hitting the
// token endpoint.
func (c *BankClient) authenticate(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token != "" && time.Now().Add(tokenSlack).Before(c.tokenExpiry) {
		return c.token, nil
	}

	body := bytes.NewBufferString("grant_type=client_credentials")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.BaseURL+"/oauth/token", body)
	if err != nil {
		return "", err
	}
	req.SetBasicAuth(c.config.ClientID, c.config.ClientSecret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrAuth, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: token endpoint returned status %d", ErrAuth, resp.StatusCode)
	}

	var tokenResp struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&tokenResp); err != nil {
		return "", fmt.Errorf("%w: malformed token response: %v", ErrAuth, err)
	}
	if tokenResp.AccessToken == "" {
		return "", fmt.Errorf("%w: empty access token", ErrAuth)
	}

	c.token = tokenResp.AccessToken
	c.tokenExpiry = time.Now().Add(time.Duration(tokenResp.ExpiresIn) * time.Second)

	return c.token, nil
}

func (c *BankClient) SubmitPayout(ctx context.Context, submitReq *SubmitRequest) (*SubmitResult, error) {
	token, err := c.authenticate(ctx)
	if err != nil {
		return nil, err
	}

	payload := map[string]any{
		"pix_key":     submitReq.PixKey,
		"key_type":    submitReq.KeyType,
		"amount":      submitReq.Amount.String(),
		"description": submitReq.Description,
		"debtor":      submitReq.Debtor,
	}

	jsonBody, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.BaseURL+"/pix/payouts", bytes.NewReader(jsonBody))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Idempotency-Key", uuid.NewString())

	// A failure here, or while reading the body below, is ambiguous: the
	// request may have reached the bank. The raw error is returned as-is
	// so callers can tell it apart from a confirmed *Error rejection.
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return nil, &Error{
			Message:    errorMessage(respBody),
			HTTPStatus: resp.StatusCode,
		}
	}

	var result struct {
		TransactionID string `json:"transaction_id"`
		QRCode        string `json:"qr_code"`
	}
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, &Error{Message: "malformed payout response", HTTPStatus: resp.StatusCode}
	}
	if result.TransactionID == "" {
		return nil, &Error{Message: "payout response missing transaction id", HTTPStatus: resp.StatusCode}
	}

	return &SubmitResult{
		GatewayTxID: result.TransactionID,
		QRCode:      result.QRCode,
	}, nil
}

func (c *BankClient) CheckStatus(ctx context.Context, gatewayTxID string) (ProviderStatus, error) {
	token, err := c.authenticate(ctx)
	if err != nil {
		return StatusUnknown, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.config.BaseURL+"/pix/payouts/"+gatewayTxID, nil)
	if err != nil {
		return StatusUnknown, err
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return StatusUnknown, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return StatusUnknown, err
	}

	if resp.StatusCode != http.StatusOK {
		return StatusUnknown, &Error{
			Message:    errorMessage(respBody),
			HTTPStatus: resp.StatusCode,
		}
	}

	var result struct {
		Status string `json:"status"`
	}
	if err := json.Unmarshal(respBody, &result); err != nil {
		return StatusUnknown, &Error{Message: "malformed status response", HTTPStatus: resp.StatusCode}
	}

	return mapProviderStatus(result.Status), nil
}

func (c *BankClient) Cancel(ctx context.Context, gatewayTxID, reason string) error {
	token, err := c.authenticate(ctx)
	if err != nil {
		return err
	}

	jsonBody, err := json.Marshal(map[string]string{"reason": reason})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.BaseURL+"/pix/payouts/"+gatewayTxID+"/cancel", bytes.NewReader(jsonBody))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		respBody, _ := io.ReadAll(resp.Body)
		return &Error{
			Message:    errorMessage(respBody),
			HTTPStatus: resp.StatusCode,
		}
	}

	return nil
}

// mapProviderStatus folds the bank's status vocabulary into the internal
// enum. The Portuguese values follow the Bacen PIX status names.
func mapProviderStatus(status string) ProviderStatus {
	switch status {
	case "CONCLUIDA", "SETTLED":
		return StatusSettled
	case "REMOVIDA_PELO_USUARIO_RECEBEDOR", "REMOVED_BY_RECEIVER":
		return StatusRemovedByReceiver
	default:
		return StatusUnknown
	}
}

func errorMessage(body []byte) string {
	var payload struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &payload); err == nil && payload.Message != "" {
		return payload.Message
	}

	if len(body) > 0 {
		return string(body)
	}
	return "request rejected by gateway"
}

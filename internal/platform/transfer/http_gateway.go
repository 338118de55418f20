package transfer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/crowdfund-ledger/internal/config"
	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"
)

const (
	transfersPath         = "/transfers"
	idempotencyKeyHeader  = "Idempotency-Key"
	maxErrorBodyBytes     = 4096
	defaultRejectionError = "transfer rejected"
)

type transferRequest struct {
	Recipient      string          `json:"recipient"`
	Amount         decimal.Decimal `json:"amount"`
	IdempotencyKey string          `json:"idempotency_key"`
}

type transferResponse struct {
	TransferHandle string `json:"transfer_handle"`
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// HTTPGateway talks to the rail over HTTP. Calls are rate limited so a large
// refund fan-out does not trip the rail's own throttling.
type HTTPGateway struct {
	baseURL string
	apiKey  string
	client  *http.Client
	limiter *rate.Limiter
	logger  *slog.Logger
}

// NewHTTPGateway builds a gateway from config. A nil client uses http.DefaultClient;
// per-call deadlines come from the caller's context.
func NewHTTPGateway(logger *slog.Logger, cfg *config.TransferGatewayConfig, client *http.Client) *HTTPGateway {
	if client == nil {
		client = http.DefaultClient
	}

	limit := rate.Inf
	if cfg.RateLimit > 0 {
		limit = rate.Limit(cfg.RateLimit)
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}

	return &HTTPGateway{
		baseURL: strings.TrimRight(cfg.URL, "/"),
		apiKey:  cfg.APIKey,
		client:  client,
		limiter: rate.NewLimiter(limit, burst),
		logger:  logger,
	}
}

// Send posts the transfer and returns the rail's transfer handle.
func (g *HTTPGateway) Send(ctx context.Context, req Request) (string, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return "", &RetryableError{Err: fmt.Errorf("rate limiter: %w", err)}
	}

	body, err := json.Marshal(transferRequest{
		Recipient:      req.Recipient,
		Amount:         req.Amount,
		IdempotencyKey: req.IdempotencyKey,
	})
	if err != nil {
		return "", &PermanentError{Message: fmt.Sprintf("failed to encode transfer: %v", err)}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+transfersPath, bytes.NewReader(body))
	if err != nil {
		return "", &PermanentError{Message: fmt.Sprintf("failed to build transfer request: %v", err)}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set(idempotencyKeyHeader, req.IdempotencyKey)
	if g.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+g.apiKey)
	}

	resp, err := g.client.Do(httpReq)
	if err != nil {
		g.logger.Warn("Transfer request failed",
			"recipient", req.Recipient,
			"idempotency_key", req.IdempotencyKey,
			"error", err,
		)
		return "", &RetryableError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		var out transferResponse
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			// The rail accepted the transfer; resending with the same key is safe.
			return "", &RetryableError{StatusCode: resp.StatusCode, Err: fmt.Errorf("failed to decode transfer response: %w", err)}
		}
		if out.TransferHandle == "" {
			return "", &RetryableError{StatusCode: resp.StatusCode, Err: errors.New("transfer response carried no handle")}
		}
		return out.TransferHandle, nil
	}

	rejection := readRejection(resp.Body)
	if classifyStatus(resp.StatusCode) {
		return "", &RetryableError{StatusCode: resp.StatusCode, Err: errors.New(rejection.Message)}
	}

	return "", &PermanentError{
		StatusCode: resp.StatusCode,
		Code:       rejection.Code,
		Message:    rejection.Message,
	}
}

func readRejection(body io.Reader) errorResponse {
	raw, _ := io.ReadAll(io.LimitReader(body, maxErrorBodyBytes))

	var rejection errorResponse
	if err := json.Unmarshal(raw, &rejection); err != nil || rejection.Message == "" {
		rejection.Message = strings.TrimSpace(string(raw))
	}
	if rejection.Message == "" {
		rejection.Message = defaultRejectionError
	}
	return rejection
}

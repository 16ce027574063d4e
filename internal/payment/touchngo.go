package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/smartgate/server/internal/smartgate/types"
)

type TouchNGoConfig struct {
	BaseURL    string
	APIKey     string
	MerchantID string
	TerminalID string
	Currency   string
	Mock       bool
	Timeout    time.Duration
}

// TouchNGo is a Touch 'n Go eWallet client. In mock mode, or for zero
// amounts, charges succeed locally with a generated reference.
type TouchNGo struct {
	cfg    TouchNGoConfig
	client *http.Client
	logger *slog.Logger
}

func NewTouchNGo(cfg TouchNGoConfig, logger *slog.Logger) *TouchNGo {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.Currency == "" {
		cfg.Currency = "MYR"
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if logger == nil {
		logger = slog.Default()
	}
	return &TouchNGo{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		logger: logger,
	}
}

func (t *TouchNGo) Name() string { return types.SourceTouchNGo }

type chargeBody struct {
	Amount      float64           `json:"amount"`
	Currency    string            `json:"currency"`
	Reference   string            `json:"reference"`
	Description string            `json:"description"`
	MerchantID  string            `json:"merchant_id"`
	TerminalID  string            `json:"terminal_id"`
	Metadata    map[string]string `json:"metadata"`
}

type chargeReply struct {
	TransactionID string `json:"transaction_id"`
	TxnID         string `json:"txnId"`
	Status        string `json:"status"`
	Currency      string `json:"currency"`
}

func (t *TouchNGo) Charge(ctx context.Context, req ChargeRequest) (Receipt, error) {
	currency := req.Currency
	if currency == "" {
		currency = t.cfg.Currency
	}

	if t.cfg.Mock || req.Amount <= 0 {
		ref := mockReference()
		t.logger.Info("touchngo mock charge",
			"reference", req.Reference, "amount", req.Amount.String(), "txn", ref)
		return Receipt{Reference: ref, Status: "succeeded", Currency: currency}, nil
	}

	body, err := json.Marshal(chargeBody{
		Amount:      req.Amount.Float(),
		Currency:    currency,
		Reference:   req.Reference,
		Description: req.Description,
		MerchantID:  t.cfg.MerchantID,
		TerminalID:  t.cfg.TerminalID,
		Metadata:    req.Metadata,
	})
	if err != nil {
		return Receipt{}, fmt.Errorf("touchngo: encode charge: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, t.cfg.Timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, t.cfg.BaseURL+"/charges", bytes.NewReader(body))
	if err != nil {
		return Receipt{}, fmt.Errorf("touchngo: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+t.cfg.APIKey)

	resp, err := t.client.Do(httpReq)
	if err != nil {
		return Receipt{}, fmt.Errorf("touchngo: charge %s: %w", req.Reference, err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Receipt{}, fmt.Errorf("touchngo: charge %s: http %d: %s", req.Reference, resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	var reply chargeReply
	if err := json.Unmarshal(raw, &reply); err != nil {
		return Receipt{}, fmt.Errorf("touchngo: decode reply: %w", err)
	}

	ref := reply.TransactionID
	if ref == "" {
		ref = reply.TxnID
	}
	if ref == "" {
		ref = mockReference()
	}
	status := strings.ToLower(reply.Status)
	if status == "" {
		status = "succeeded"
	}
	if reply.Currency != "" {
		currency = reply.Currency
	}

	t.logger.Info("touchngo charge completed", "reference", req.Reference, "txn", ref, "status", status)

	if status != "succeeded" && status != "success" {
		return Receipt{Reference: ref, Status: status, Currency: currency},
			fmt.Errorf("touchngo: charge %s %s: %w", req.Reference, status, ErrDeclined)
	}
	return Receipt{Reference: ref, Status: status, Currency: currency}, nil
}

func mockReference() string {
	hex := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))
	return "TNG-" + hex[:10]
}

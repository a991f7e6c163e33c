package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"naira-wallet-bot-go/internal/models"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// Error is a failed provider call. Message is safe to show to the user.
type Error struct {
	Op         string
	Message    string
	StatusCode int
}

func (e *Error) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s failed (%d): %s", e.Op, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s failed: %s", e.Op, e.Message)
}

// Service is a Flutterwave v3 client for account resolution and NGN payouts.
// Calls are never retried; a timeout is reported like any other failure.
type Service struct {
	client          *http.Client
	baseURL         string
	secretKey       string
	narration       string
	verifyTimeout   time.Duration
	transferTimeout time.Duration

	group   singleflight.Group
	mu      sync.RWMutex
	banks   []models.Bank
	bankTTL time.Duration
	banksAt time.Time
}

func NewService(cfg models.GatewayConfig, businessName string, client *http.Client) *Service {
	if client == nil {
		client = &http.Client{}
	}
	return &Service{
		client:          client,
		baseURL:         strings.TrimRight(cfg.BaseURL, "/"),
		secretKey:       cfg.SecretKey,
		narration:       fmt.Sprintf("Withdrawal from %s", businessName),
		verifyTimeout:   cfg.VerifyTimeout,
		transferTimeout: cfg.TransferTimeout,
		bankTTL:         6 * time.Hour,
	}
}

// Configured reports whether a secret key is set.
func (s *Service) Configured() bool {
	return s.secretKey != ""
}

type envelope struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func (s *Service) do(ctx context.Context, op, method, path string, timeout time.Duration, body, out interface{}) error {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return &Error{Op: op, Message: "could not encode request"}
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.baseURL+path, reader)
	if err != nil {
		return &Error{Op: op, Message: err.Error()}
	}
	req.Header.Set("Authorization", "Bearer "+s.secretKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		zap.L().Warn("Payment gateway request failed", zap.String("op", op), zap.Error(err))
		return &Error{Op: op, Message: "payment provider unreachable, please try again later"}
	}
	defer resp.Body.Close()

	var env envelope
	decodeErr := json.NewDecoder(io.LimitReader(resp.Body, 4<<20)).Decode(&env)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 || env.Status == "error" {
		msg := env.Message
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		zap.L().Warn("Payment gateway rejected request",
			zap.String("op", op),
			zap.Int("status_code", resp.StatusCode),
			zap.String("message", msg))
		return &Error{Op: op, Message: msg, StatusCode: resp.StatusCode}
	}
	if decodeErr != nil {
		return &Error{Op: op, Message: "unreadable provider response", StatusCode: resp.StatusCode}
	}
	if out != nil {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return &Error{Op: op, Message: "unexpected provider response", StatusCode: resp.StatusCode}
		}
	}
	return nil
}

// VerifyAccount resolves the holder name of a bank account.
func (s *Service) VerifyAccount(ctx context.Context, accountNumber, bankCode string) (*models.AccountInfo, error) {
	var data struct {
		AccountNumber string `json:"account_number"`
		AccountName   string `json:"account_name"`
	}
	body := map[string]string{
		"account_number": accountNumber,
		"account_bank":   bankCode,
	}
	if err := s.do(ctx, "account verification", http.MethodPost, "/accounts/resolve", s.verifyTimeout, body, &data); err != nil {
		return nil, err
	}
	if data.AccountName == "" {
		return nil, &Error{Op: "account verification", Message: "account name not returned"}
	}
	if data.AccountNumber == "" {
		data.AccountNumber = accountNumber
	}
	return &models.AccountInfo{
		AccountNumber: data.AccountNumber,
		AccountName:   data.AccountName,
		BankCode:      bankCode,
	}, nil
}

type transferData struct {
	Id              json.Number     `json:"id"`
	Reference       string          `json:"reference"`
	Status          string          `json:"status"`
	Amount          decimal.Decimal `json:"amount"`
	Fee             decimal.Decimal `json:"fee"`
	BankName        string          `json:"bank_name"`
	CompleteMessage string          `json:"complete_message"`
	CreatedAt       string          `json:"created_at"`
}

// Transfer submits an NGN payout. The provider takes whole naira only, so an
// amount with kobo is refused rather than rounded.
func (s *Service) Transfer(ctx context.Context, req models.TransferRequest) (*models.TransferResult, error) {
	if !req.Amount.IsPositive() || !req.Amount.Equal(req.Amount.Truncate(0)) {
		return nil, &Error{Op: "transfer", Message: fmt.Sprintf("amount %s is not a whole naira amount", req.Amount)}
	}
	narration := req.Narration
	if narration == "" {
		narration = s.narration
	}
	body := map[string]interface{}{
		"account_bank":     req.BankCode,
		"account_number":   req.AccountNumber,
		"amount":           req.Amount.IntPart(),
		"narration":        narration,
		"currency":         "NGN",
		"reference":        req.Reference,
		"beneficiary_name": req.BeneficiaryName,
	}

	var data transferData
	if err := s.do(ctx, "transfer", http.MethodPost, "/transfers", s.transferTimeout, body, &data); err != nil {
		return nil, err
	}
	if data.Id.String() == "" {
		return nil, &Error{Op: "transfer", Message: "transfer id not returned"}
	}

	zap.L().Info("Transfer submitted",
		zap.String("transfer_id", data.Id.String()),
		zap.String("reference", data.Reference),
		zap.String("status", data.Status))

	ref := data.Reference
	if ref == "" {
		ref = req.Reference
	}
	return &models.TransferResult{
		TransferId: data.Id.String(),
		Reference:  ref,
		Status:     data.Status,
	}, nil
}

// CheckStatus fetches the provider's current view of a transfer.
func (s *Service) CheckStatus(ctx context.Context, transferId string) (*models.TransferStatus, error) {
	var data transferData
	if err := s.do(ctx, "status check", http.MethodGet, "/transfers/"+url.PathEscape(transferId), s.verifyTimeout, nil, &data); err != nil {
		return nil, err
	}

	status := &models.TransferStatus{
		TransferId: data.Id.String(),
		Reference:  data.Reference,
		Status:     data.Status,
		Amount:     data.Amount,
		Fee:        data.Fee,
		BankName:   data.BankName,
		Message:    data.CompleteMessage,
	}
	if status.TransferId == "" {
		status.TransferId = transferId
	}
	if t, err := time.Parse(time.RFC3339, data.CreatedAt); err == nil {
		status.CreatedAt = t
	}
	return status, nil
}

// ListBanks returns Nigerian banks sorted by name. Failures fall back to a
// short built-in list so bank linking keeps working.
func (s *Service) ListBanks(ctx context.Context) []models.Bank {
	s.mu.RLock()
	if len(s.banks) > 0 && time.Since(s.banksAt) < s.bankTTL {
		banks := append([]models.Bank(nil), s.banks...)
		s.mu.RUnlock()
		return banks
	}
	s.mu.RUnlock()

	v, err, _ := s.group.Do("banks", func() (interface{}, error) {
		return s.fetchBanks(context.WithoutCancel(ctx))
	})
	if err != nil {
		zap.L().Warn("Failed to fetch banks, using fallback list", zap.Error(err))
		return FallbackBanks()
	}

	banks := v.([]models.Bank)
	s.mu.Lock()
	s.banks = banks
	s.banksAt = time.Now()
	s.mu.Unlock()

	zap.L().Info("Loaded banks", zap.Int("count", len(banks)))
	return append([]models.Bank(nil), banks...)
}

func (s *Service) fetchBanks(ctx context.Context) ([]models.Bank, error) {
	var data []struct {
		Id   json.Number `json:"id"`
		Code string      `json:"code"`
		Name string      `json:"name"`
	}
	if err := s.do(ctx, "bank list", http.MethodGet, "/banks/NG", s.verifyTimeout, nil, &data); err != nil {
		return nil, err
	}

	banks := make([]models.Bank, 0, len(data))
	for _, b := range data {
		if b.Code == "" || b.Name == "" {
			continue
		}
		banks = append(banks, models.Bank{Code: b.Code, Name: b.Name})
	}
	if len(banks) == 0 {
		return nil, &Error{Op: "bank list", Message: "provider returned no banks"}
	}
	sort.Slice(banks, func(i, j int) bool { return banks[i].Name < banks[j].Name })
	return banks, nil
}

// FindBank looks a code up in banks.
func FindBank(banks []models.Bank, code string) (models.Bank, bool) {
	for _, b := range banks {
		if b.Code == code {
			return b, true
		}
	}
	return models.Bank{}, false
}

func FallbackBanks() []models.Bank {
	return []models.Bank{
		{Code: "044", Name: "Access Bank"},
		{Code: "011", Name: "First Bank of Nigeria"},
		{Code: "058", Name: "Guaranty Trust Bank (GTB)"},
		{Code: "033", Name: "United Bank for Africa (UBA)"},
		{Code: "057", Name: "Zenith Bank"},
		{Code: "221", Name: "Stanbic IBTC Bank"},
		{Code: "070", Name: "Fidelity Bank"},
		{Code: "032", Name: "Union Bank"},
		{Code: "076", Name: "Polaris Bank"},
		{Code: "035", Name: "Wema Bank"},
	}
}

package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/nazeru/quickmart-checkout-go/internal/order/domain"
)

const Path = "/payments"

type wireRequest struct {
	Method         domain.PaymentMethod `json:"payment_method"`
	Amount         decimal.Decimal      `json:"amount"`
	CardNumber     string               `json:"card_number,omitempty"`
	CardExpiry     string               `json:"card_expiry,omitempty"`
	CardCVV        string               `json:"card_cvv,omitempty"`
	CardHolderName string               `json:"card_holder_name,omitempty"`
}

type wireResult struct {
	Payment domain.Payment `json:"payment"`
	Reason  string         `json:"reason,omitempty"`
}

// Handler serves p on POST /payments. A declined payment is answered with
// 402 and the decline reason.
func Handler(p Processor) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeJSON(w, http.StatusMethodNotAllowed, map[string]any{"error": "method not allowed"})
			return
		}
		var req wireRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid json"})
			return
		}
		method, err := domain.ParsePaymentMethod(string(req.Method))
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": err.Error()})
			return
		}
		res, err := p.Process(r.Context(), Request{
			Method:         method,
			Amount:         req.Amount,
			CardNumber:     req.CardNumber,
			CardExpiry:     req.CardExpiry,
			CardCVV:        req.CardCVV,
			CardHolderName: req.CardHolderName,
		})
		if err != nil {
			writeJSON(w, http.StatusBadGateway, map[string]any{"error": err.Error()})
			return
		}
		code := http.StatusOK
		if !res.Succeeded() {
			code = http.StatusPaymentRequired
		}
		writeJSON(w, code, wireResult{Payment: res.Payment, Reason: res.Reason})
	})
}

// HTTPProcessor forwards payments to a remote payment-service.
type HTTPProcessor struct {
	baseURL string
	client  *http.Client
}

func NewHTTPProcessor(baseURL string, timeout time.Duration) *HTTPProcessor {
	return &HTTPProcessor{baseURL: strings.TrimRight(baseURL, "/"), client: &http.Client{Timeout: timeout}}
}

func (p *HTTPProcessor) Process(ctx context.Context, req Request) (Result, error) {
	data, err := json.Marshal(wireRequest{
		Method:         req.Method,
		Amount:         req.Amount,
		CardNumber:     req.CardNumber,
		CardExpiry:     req.CardExpiry,
		CardCVV:        req.CardCVV,
		CardHolderName: req.CardHolderName,
	})
	if err != nil {
		return Result{}, err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+Path, bytes.NewReader(data))
	if err != nil {
		return Result{}, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	resp, err := p.client.Do(httpReq)
	if err != nil {
		return Result{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusPaymentRequired {
		return Result{}, fmt.Errorf("payment-service status %d", resp.StatusCode)
	}
	var out wireResult
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return Result{}, fmt.Errorf("decode payment result: %w", err)
	}
	if resp.StatusCode == http.StatusPaymentRequired && out.Payment.Status == domain.PaymentStatusCompleted {
		out.Payment.Status = domain.PaymentStatusFailed
	}
	return Result{Payment: out.Payment, Reason: out.Reason}, nil
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

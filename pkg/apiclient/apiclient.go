// Package apiclient is a small HTTP client for the checkout API used by the
// CLI and the bench runner. It signs its own HS256 tokens with the shared
// development secret.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Client struct {
	BaseURL string
	Secret  []byte
	HTTP    *http.Client
}

func New(baseURL, secret string, timeout time.Duration) *Client {
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Secret:  []byte(secret),
		HTTP:    &http.Client{Timeout: timeout},
	}
}

type Response struct {
	StatusCode int
	Body       []byte
}

func (r Response) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// Message returns the "message" field of an error body.
func (r Response) Message() string {
	var payload struct {
		Message string `json:"message"`
	}
	_ = json.Unmarshal(r.Body, &payload)
	return payload.Message
}

// Order is the subset of the order body the tools look at.
type Order struct {
	ID          int64           `json:"order_id"`
	OrderNumber string          `json:"order_number"`
	Status      string          `json:"status"`
	FinalAmount decimal.Decimal `json:"final_amount"`
}

func (c *Client) Token(userID int64) (string, error) {
	claims := jwt.MapClaims{
		"sub": strconv.FormatInt(userID, 10),
		"iat": time.Now().Unix(),
		"exp": time.Now().Add(time.Hour).Unix(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.Secret)
}

func (c *Client) do(ctx context.Context, method, path string, userID int64, payload any, headers map[string]string) (Response, error) {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return Response{}, err
		}
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return Response{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	if userID != 0 {
		tok, err := c.Token(userID)
		if err != nil {
			return Response{}, err
		}
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return Response{}, err
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return Response{}, err
	}
	return Response{StatusCode: resp.StatusCode, Body: data}, nil
}

func (c *Client) AddToCart(ctx context.Context, userID, productID int64, qty int) (Response, error) {
	return c.do(ctx, http.MethodPost, "/api/cart/add", userID, map[string]any{"product_id": productID, "quantity": qty}, nil)
}

func (c *Client) ClearCart(ctx context.Context, userID int64) (Response, error) {
	return c.do(ctx, http.MethodDelete, "/api/cart/clear", userID, nil, nil)
}

// Checkout posts an order with a fresh Idempotency-Key.
func (c *Client) Checkout(ctx context.Context, userID int64, paymentMethod string) (Response, error) {
	body := map[string]any{
		"shipping_address":  "12 MG Road",
		"shipping_city":     "Pune",
		"shipping_zip_code": "411001",
		"payment_method":    paymentMethod,
	}
	return c.do(ctx, http.MethodPost, "/api/orders", userID, body, map[string]string{"Idempotency-Key": uuid.NewString()})
}

func (c *Client) GetOrder(ctx context.Context, userID, orderID int64) (Order, error) {
	resp, err := c.do(ctx, http.MethodGet, "/api/orders/"+strconv.FormatInt(orderID, 10), userID, nil, nil)
	if err != nil {
		return Order{}, err
	}
	if !resp.OK() {
		return Order{}, fmt.Errorf("status %d: %s", resp.StatusCode, resp.Message())
	}
	return DecodeOrder(resp)
}

func DecodeOrder(resp Response) (Order, error) {
	var o Order
	err := json.Unmarshal(resp.Body, &o)
	return o, err
}

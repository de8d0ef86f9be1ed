package infra

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

type CreatePaymentRequest struct {
	OrderID        uint64
	Amount         decimal.Decimal
	Currency       string
	PaymentMethod  string
	ReturnURL      string
	IdempotencyKey string
}

type CreateRefundRequest struct {
	PaymentExternalID string
	Amount            decimal.Decimal
	Currency          string
	IdempotencyKey    string
}

type RemotePayment struct {
	ExternalID      string
	Status          string
	ConfirmationURL string
}

type RemoteRefund struct {
	ExternalID        string
	PaymentExternalID string
	Status            string
}

type amount struct {
	Value    string `json:"value"`
	Currency string `json:"currency"`
}

type paymentBody struct {
	ID           string `json:"id"`
	Status       string `json:"status"`
	Confirmation *struct {
		Type            string `json:"type"`
		ConfirmationURL string `json:"confirmation_url"`
	} `json:"confirmation,omitempty"`
}

type refundBody struct {
	ID        string `json:"id"`
	PaymentID string `json:"payment_id"`
	Status    string `json:"status"`
}

// PaymentGatewayClient talks to a redirect-confirmation payment gateway over
// JSON/HTTP with basic auth and an Idempotence-Key header on every write.
type PaymentGatewayClient struct {
	baseURL    string
	shopID     string
	secretKey  string
	httpClient *http.Client
}

func NewPaymentGatewayClient(baseURL, shopID, secretKey string, timeout time.Duration) *PaymentGatewayClient {
	return &PaymentGatewayClient{
		baseURL:    baseURL,
		shopID:     shopID,
		secretKey:  secretKey,
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (c *PaymentGatewayClient) CreatePayment(ctx context.Context, req CreatePaymentRequest) (*RemotePayment, error) {
	payload := map[string]any{
		"amount":  amount{Value: req.Amount.StringFixed(2), Currency: req.Currency},
		"capture": true,
		"confirmation": map[string]string{
			"type":       "redirect",
			"return_url": req.ReturnURL,
		},
		"description": fmt.Sprintf("Order #%d", req.OrderID),
		"metadata":    map[string]string{"order_id": strconv.FormatUint(req.OrderID, 10)},
	}
	if req.PaymentMethod != "" {
		payload["payment_method_data"] = map[string]string{"type": req.PaymentMethod}
	}

	var body paymentBody
	if err := c.do(ctx, http.MethodPost, "/payments", req.IdempotencyKey, payload, &body); err != nil {
		return nil, err
	}
	return body.toRemote(), nil
}

func (c *PaymentGatewayClient) GetPayment(ctx context.Context, externalID string) (*RemotePayment, error) {
	var body paymentBody
	if err := c.do(ctx, http.MethodGet, "/payments/"+url.PathEscape(externalID), "", nil, &body); err != nil {
		return nil, err
	}
	return body.toRemote(), nil
}

func (c *PaymentGatewayClient) CreateRefund(ctx context.Context, req CreateRefundRequest) (*RemoteRefund, error) {
	payload := map[string]any{
		"payment_id": req.PaymentExternalID,
		"amount":     amount{Value: req.Amount.StringFixed(2), Currency: req.Currency},
	}

	var body refundBody
	if err := c.do(ctx, http.MethodPost, "/refunds", req.IdempotencyKey, payload, &body); err != nil {
		return nil, err
	}
	return &RemoteRefund{ExternalID: body.ID, PaymentExternalID: body.PaymentID, Status: body.Status}, nil
}

func (b paymentBody) toRemote() *RemotePayment {
	p := &RemotePayment{ExternalID: b.ID, Status: b.Status}
	if b.Confirmation != nil {
		p.ConfirmationURL = b.Confirmation.ConfirmationURL
	}
	return p
}

func (c *PaymentGatewayClient) do(ctx context.Context, method, path, idemKey string, in, out any) error {
	var reader *bytes.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.SetBasicAuth(c.shopID, c.secretKey)
	req.Header.Set("Content-Type", "application/json")
	if idemKey != "" {
		req.Header.Set("Idempotence-Key", idemKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("payment gateway returned status %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode gateway response: %w", err)
	}
	return nil
}

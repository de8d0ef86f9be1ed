package infra

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPaymentGatewayClient_CreatePayment(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/payments", r.URL.Path)
		assert.Equal(t, "idem-1", r.Header.Get("Idempotence-Key"))
		user, pass, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "shop", user)
		assert.Equal(t, "secret", pass)

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, map[string]any{"value": "25.50", "currency": "RUB"}, body["amount"])
		assert.Equal(t, map[string]any{"order_id": "42"}, body["metadata"])

		_, _ = w.Write([]byte(`{"id":"pay-42","status":"pending","confirmation":{"type":"redirect","confirmation_url":"https://pay.example/confirm"}}`))
	}))
	defer srv.Close()

	c := NewPaymentGatewayClient(srv.URL, "shop", "secret", time.Second)
	p, err := c.CreatePayment(context.Background(), CreatePaymentRequest{
		OrderID:        42,
		Amount:         decimal.RequireFromString("25.5"),
		Currency:       "RUB",
		ReturnURL:      "https://shop.example/return",
		IdempotencyKey: "idem-1",
	})

	require.NoError(t, err)
	assert.Equal(t, "pay-42", p.ExternalID)
	assert.Equal(t, "pending", p.Status)
	assert.Equal(t, "https://pay.example/confirm", p.ConfirmationURL)
}

func TestPaymentGatewayClient_Errors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/payments/slow" {
			time.Sleep(200 * time.Millisecond)
		}
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := NewPaymentGatewayClient(srv.URL, "shop", "secret", 50*time.Millisecond)

	_, err := c.GetPayment(context.Background(), "pay-1")
	assert.ErrorContains(t, err, "status 503")

	_, err = c.GetPayment(context.Background(), "slow")
	assert.Error(t, err)
}

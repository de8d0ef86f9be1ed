package http

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"card-order-service/internal/controllers/http/middleware"
	"card-order-service/internal/domain"
	"card-order-service/internal/infra/signature"
	"card-order-service/internal/logging"
	"card-order-service/internal/mocks"
	"card-order-service/internal/repository/memory"
	"card-order-service/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const (
	testJWTSecret     = "jwt-test-secret"
	testWebhookSecret = "webhook-test-secret"
)

type testServer struct {
	router   *gin.Engine
	store    *memory.Store
	gateway  *mocks.MockPaymentGateway
	verifier *signature.HMACVerifier
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := memory.NewStore()
	store.PutCard(domain.StudyCard{ID: 1, Title: "Kanji N5", Price: decimal.RequireFromString("12.50"), Quantity: 5, Active: true})
	store.PutCard(domain.StudyCard{ID: 2, Title: "Organic Chemistry", Price: decimal.RequireFromString("3.99"), Quantity: 2, Active: true})

	pub := new(mocks.MockPublisher)
	pub.On("Publish", mock.Anything, mock.Anything, mock.Anything).Return(nil).Maybe()
	gw := new(mocks.MockPaymentGateway)
	verifier := signature.NewHMACVerifier(testWebhookSecret)

	orders := services.NewOrderService(store, pub)
	payments := services.NewPaymentService(store, gw, pub, verifier, services.PaymentConfig{Currency: "RUB", GatewayTimeout: time.Second})
	h := NewHandler(orders, payments, middleware.NewAuth(testJWTSecret, ""))

	return &testServer{
		router:   NewRouter(h, logging.New("test")),
		store:    store,
		gateway:  gw,
		verifier: verifier,
	}
}

func bearer(t *testing.T, userID uint64, roles ...string) string {
	t.Helper()
	tok, err := middleware.IssueToken(testJWTSecret, "", userID, roles, time.Minute)
	require.NoError(t, err)
	return "Bearer " + tok
}

func (s *testServer) do(method, path, auth string, body any) *httptest.ResponseRecorder {
	var rdr io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		rdr = bytes.NewBufferString(b)
	default:
		raw, _ := json.Marshal(b)
		rdr = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, rdr)
	req.Header.Set("Content-Type", "application/json")
	if auth != "" {
		req.Header.Set("Authorization", auth)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func orderBody(lines ...[2]int) map[string]any {
	items := make([]map[string]int, len(lines))
	for i, l := range lines {
		items[i] = map[string]int{"item_id": l[0], "quantity": l[1]}
	}
	return map[string]any{
		"items":            items,
		"shipping_address": "221B Baker Street",
		"payment_method":   "bank_card",
		"shipping_method":  "courier",
	}
}

func TestHandler_CreateOrder(t *testing.T) {
	tests := []struct {
		name           string
		auth           bool
		body           any
		expectedStatus int
		errorContains  string
	}{
		{name: "created", auth: true, body: orderBody([2]int{1, 3}, [2]int{2, 2}), expectedStatus: http.StatusCreated},
		{name: "no token", body: orderBody([2]int{1, 1}), expectedStatus: http.StatusUnauthorized},
		{name: "insufficient stock", auth: true, body: orderBody([2]int{1, 6}), expectedStatus: http.StatusBadRequest, errorContains: "Kanji N5"},
		{name: "unknown card", auth: true, body: orderBody([2]int{9, 1}), expectedStatus: http.StatusNotFound},
		{name: "malformed json", auth: true, body: `{"items":`, expectedStatus: http.StatusBadRequest},
		{name: "zero quantity", auth: true, body: orderBody([2]int{1, 0}), expectedStatus: http.StatusBadRequest},
		{name: "no items", auth: true, body: orderBody(), expectedStatus: http.StatusBadRequest},
		{name: "quantity above request limit", auth: true, body: orderBody([2]int{1, 20000}), expectedStatus: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t)
			auth := ""
			if tt.auth {
				auth = bearer(t, 7)
			}

			w := s.do(http.MethodPost, "/orders", auth, tt.body)

			assert.Equal(t, tt.expectedStatus, w.Code, w.Body.String())
			if tt.errorContains != "" {
				assert.Contains(t, decode(t, w)["error"], tt.errorContains)
			}
			if tt.expectedStatus == http.StatusCreated {
				got := decode(t, w)
				assert.Equal(t, "pending", got["status"])
				assert.Equal(t, "45.48", got["totalAmount"])
				assert.Len(t, got["items"], 2)
			}
		})
	}
}

func TestHandler_OrderLifecycle(t *testing.T) {
	s := newTestServer(t)
	owner := bearer(t, 7)
	stranger := bearer(t, 8)
	admin := bearer(t, 1, domain.RoleAdmin)

	w := s.do(http.MethodPost, "/orders", owner, orderBody([2]int{1, 3}))
	require.Equal(t, http.StatusCreated, w.Code)
	id := uint64(decode(t, w)["id"].(float64))
	path := fmt.Sprintf("/orders/%d", id)

	assert.Equal(t, http.StatusOK, s.do(http.MethodGet, path, owner, nil).Code)
	assert.Equal(t, http.StatusOK, s.do(http.MethodGet, path, admin, nil).Code)
	assert.Equal(t, http.StatusForbidden, s.do(http.MethodGet, path, stranger, nil).Code)
	assert.Equal(t, http.StatusNotFound, s.do(http.MethodGet, "/orders/999", admin, nil).Code)
	assert.Equal(t, http.StatusBadRequest, s.do(http.MethodGet, "/orders/abc", admin, nil).Code)

	assert.Equal(t, http.StatusForbidden, s.do(http.MethodPatch, path+"/status", owner, map[string]string{"status": "processing"}).Code)
	assert.Equal(t, http.StatusBadRequest, s.do(http.MethodPatch, path+"/status", admin, map[string]string{"status": "lost"}).Code)
	assert.Equal(t, http.StatusBadRequest, s.do(http.MethodPatch, path+"/status", admin, map[string]string{"status": "delivered"}).Code)

	w = s.do(http.MethodPatch, path+"/status", admin, map[string]string{"status": "processing"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "processing", decode(t, w)["status"])

	assert.Equal(t, http.StatusForbidden, s.do(http.MethodPost, path+"/cancel", stranger, nil).Code)
	w = s.do(http.MethodPost, path+"/cancel", owner, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "cancelled", decode(t, w)["status"])

	card, _ := s.store.Card(1)
	assert.Equal(t, int64(5), card.Quantity)

	assert.Equal(t, http.StatusBadRequest, s.do(http.MethodPatch, path+"/status", admin, map[string]string{"status": "processing"}).Code)
}

func TestHandler_InitiatePayment_GatewayDown(t *testing.T) {
	s := newTestServer(t)
	owner := bearer(t, 7)
	w := s.do(http.MethodPost, "/orders", owner, orderBody([2]int{2, 1}))
	require.Equal(t, http.StatusCreated, w.Code)
	id := decode(t, w)["id"]

	s.gateway.On("CreatePayment", mock.Anything, mock.Anything).Return(nil, fmt.Errorf("dial tcp 10.0.0.1:443: i/o timeout"))

	w = s.do(http.MethodPost, "/payments", owner, map[string]any{"order_id": id, "amount": "3.99", "payment_method": "bank_card"})

	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.NotContains(t, w.Body.String(), "10.0.0.1")
	assert.Equal(t, 0, s.store.PaymentCount())
}

func TestHandler_PaymentWebhook(t *testing.T) {
	s := newTestServer(t)
	body := []byte(`{"type":"notification","event":"payment.succeeded","object":{"id":"pay-unknown","status":"succeeded"}}`)

	send := func(raw []byte, sig string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/payments/webhook", bytes.NewReader(raw))
		req.Header.Set(signature.Header, sig)
		w := httptest.NewRecorder()
		s.router.ServeHTTP(w, req)
		return w
	}

	w := send(body, s.verifier.SignHex(body))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "unknown", decode(t, w)["outcome"])

	assert.Equal(t, http.StatusUnauthorized, send(body, "sha256=00").Code)

	bad := []byte(`not json`)
	assert.Equal(t, http.StatusBadRequest, send(bad, s.verifier.SignHex(bad)).Code)
}

func TestHandler_Healthz(t *testing.T) {
	s := newTestServer(t)

	w := s.do(http.MethodGet, "/healthz", "", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get(middleware.RequestIDHeader))
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err      error
		expected int
	}{
		{fmt.Errorf("%w: x", domain.ErrValidation), http.StatusBadRequest},
		{fmt.Errorf("%w: %w", domain.ErrOrderCreationFailed, domain.ErrInsufficientStock), http.StatusBadRequest},
		{fmt.Errorf("%w: deadlock", domain.ErrOrderCreationFailed), http.StatusInternalServerError},
		{domain.ErrInvalidStatusValue, http.StatusBadRequest},
		{domain.ErrNotFound, http.StatusNotFound},
		{domain.ErrForbidden, http.StatusForbidden},
		{domain.ErrUnauthorized, http.StatusUnauthorized},
		{domain.ErrPaymentConflict, http.StatusConflict},
		{domain.ErrGatewayUnavailable, http.StatusBadGateway},
		{io.ErrUnexpectedEOF, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			assert.Equal(t, tt.expected, statusFor(tt.err))
		})
	}
}

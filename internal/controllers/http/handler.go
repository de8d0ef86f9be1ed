package http

import (
	"net/http"
	"strconv"

	"card-order-service/internal/controllers/http/middleware"
	"card-order-service/internal/domain"
	"card-order-service/internal/infra/signature"
	"card-order-service/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const maxWebhookBody = 1 << 20

type Handler struct {
	orders   *services.OrderService
	payments *services.PaymentService
	auth     *middleware.Auth
}

func NewHandler(orders *services.OrderService, payments *services.PaymentService, auth *middleware.Auth) *Handler {
	return &Handler{orders: orders, payments: payments, auth: auth}
}

func (h *Handler) RegisterRoutes(r *gin.Engine) {
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// the gateway authenticates with its body signature, not a bearer token
	r.POST("/payments/webhook", h.PaymentWebhook)

	authed := r.Group("/", h.auth.Require())
	{
		authed.POST("/orders", h.CreateOrder)
		authed.GET("/orders/:id", h.GetOrder)
		authed.PATCH("/orders/:id/status", h.UpdateOrderStatus)
		authed.POST("/orders/:id/cancel", h.CancelOrder)
		authed.POST("/payments", h.InitiatePayment)
		authed.POST("/payments/:id/refund", h.RefundPayment)
	}
}

func (h *Handler) CreateOrder(c *gin.Context) {
	var req CreateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	p, ok := principal(c)
	if !ok {
		return
	}

	order, err := h.orders.CreateOrder(c.Request.Context(), p, services.CreateOrderInput{
		Items:           req.lines(),
		ShippingAddress: req.ShippingAddress,
		PaymentMethod:   req.PaymentMethod,
		ShippingMethod:  req.ShippingMethod,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, order)
}

func (h *Handler) GetOrder(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	p, ok := principal(c)
	if !ok {
		return
	}

	details, err := h.orders.GetOrder(c.Request.Context(), p, id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, details)
}

func (h *Handler) UpdateOrderStatus(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req UpdateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	p, ok := principal(c)
	if !ok {
		return
	}

	order, err := h.orders.SetStatus(c.Request.Context(), p, id, req.Status)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

func (h *Handler) CancelOrder(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	p, ok := principal(c)
	if !ok {
		return
	}

	order, err := h.orders.CancelOrder(c.Request.Context(), p, id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

func (h *Handler) InitiatePayment(c *gin.Context) {
	var req InitiatePaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	p, ok := principal(c)
	if !ok {
		return
	}

	res, err := h.payments.InitiatePayment(c.Request.Context(), p, services.InitiatePaymentInput{
		OrderID:       req.OrderID,
		Amount:        req.Amount,
		PaymentMethod: req.PaymentMethod,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, res)
}

func (h *Handler) RefundPayment(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	p, ok := principal(c)
	if !ok {
		return
	}

	payment, err := h.payments.RequestRefund(c.Request.Context(), p, id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, payment)
}

func (h *Handler) PaymentWebhook(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxWebhookBody)
	body, err := c.GetRawData()
	if err != nil {
		writeError(c, domain.ErrBadRequest)
		return
	}

	outcome, err := h.payments.HandleWebhook(c.Request.Context(), body, c.GetHeader(signature.Header))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, WebhookAckResponse{Status: "ok", Outcome: string(outcome)})
}

func pathID(c *gin.Context) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "id must be a positive integer"})
		return 0, false
	}
	return id, true
}

func principal(c *gin.Context) (domain.Principal, bool) {
	p, ok := middleware.PrincipalFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": domain.ErrUnauthorized.Error()})
	}
	return p, ok
}

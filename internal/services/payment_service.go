package services

import (
	"context"
	"fmt"
	"time"

	"card-order-service/internal/domain"
	"card-order-service/internal/infra"
	rabbit "card-order-service/internal/infra/rabbitmq"
	"card-order-service/internal/logging"
	"card-order-service/internal/metrics"
	"card-order-service/internal/repository"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type PaymentConfig struct {
	Currency       string
	ReturnURL      string
	GatewayTimeout time.Duration
	// pending payments older than SweepAge are polled from the gateway
	SweepAge   time.Duration
	SweepBatch int
}

type PaymentService struct {
	uow       repository.UnitOfWork
	gateway   infra.PaymentGatewayInterface
	publisher rabbit.PublisherInterface
	verifier  SignatureVerifier
	marker    EventMarker
	cache     OrderCache
	cfg       PaymentConfig
	newKey    func() string
	now       func() time.Time
}

func NewPaymentService(uow repository.UnitOfWork, gw infra.PaymentGatewayInterface, pub rabbit.PublisherInterface, verifier SignatureVerifier, cfg PaymentConfig) *PaymentService {
	if cfg.GatewayTimeout <= 0 {
		cfg.GatewayTimeout = 10 * time.Second
	}
	if cfg.SweepBatch <= 0 {
		cfg.SweepBatch = 50
	}
	return &PaymentService{
		uow:       uow,
		gateway:   gw,
		publisher: pub,
		verifier:  verifier,
		cache:     nopCache{},
		cfg:       cfg,
		newKey:    uuid.NewString,
		now:       time.Now,
	}
}

func (s *PaymentService) SetCache(c OrderCache) {
	if c != nil {
		s.cache = c
	}
}

func (s *PaymentService) SetEventMarker(m EventMarker) {
	s.marker = m
}

type InitiatePaymentInput struct {
	OrderID       uint64
	Amount        decimal.Decimal
	PaymentMethod string
}

type PaymentResult struct {
	Payment         *domain.Payment `json:"payment"`
	ConfirmationURL string          `json:"confirmation_url"`
}

// InitiatePayment creates the remote payment first and only then opens the
// local transaction that records it.
func (s *PaymentService) InitiatePayment(ctx context.Context, p domain.Principal, in InitiatePaymentInput) (*PaymentResult, error) {
	if in.OrderID == 0 {
		return nil, fmt.Errorf("%w: order_id is required", domain.ErrValidation)
	}
	if !in.Amount.IsPositive() {
		return nil, fmt.Errorf("%w: amount must be positive", domain.ErrValidation)
	}

	err := s.uow.Do(ctx, func(ctx context.Context, repos repository.Repositories) error {
		o, err := repos.Orders().FindByID(ctx, in.OrderID)
		if err != nil {
			return err
		}
		if o == nil {
			return fmt.Errorf("%w: order %d", domain.ErrNotFound, in.OrderID)
		}
		if !o.OwnedBy(p) {
			return fmt.Errorf("%w: order %d belongs to another user", domain.ErrForbidden, o.ID)
		}
		if o.Status != domain.StatusPending && o.Status != domain.StatusProcessing {
			return fmt.Errorf("%w: order %d is %s", domain.ErrInvalidTransition, o.ID, o.Status)
		}
		if !in.Amount.Round(2).Equal(o.TotalAmount) {
			return fmt.Errorf("%w: amount %s does not match order total %s",
				domain.ErrValidation, in.Amount.StringFixed(2), o.TotalAmount.StringFixed(2))
		}
		return ensureNoActivePayment(ctx, repos, o.ID)
	})
	if err != nil {
		return nil, err
	}

	key := s.newKey()
	gwCtx, cancel := context.WithTimeout(ctx, s.cfg.GatewayTimeout)
	remote, err := s.gateway.CreatePayment(gwCtx, infra.CreatePaymentRequest{
		OrderID:        in.OrderID,
		Amount:         in.Amount.Round(2),
		Currency:       s.cfg.Currency,
		PaymentMethod:  in.PaymentMethod,
		ReturnURL:      s.cfg.ReturnURL,
		IdempotencyKey: key,
	})
	cancel()
	metrics.GatewayCalls.WithLabelValues("create_payment", metrics.Result(err)).Inc()
	if err != nil {
		logging.FromCtx(ctx).Error("gateway create payment failed", "order_id", in.OrderID, "idempotency_key", key, "err", err)
		return nil, fmt.Errorf("%w: %v", domain.ErrGatewayUnavailable, err)
	}
	// webhooks are matched by external id, so a payment without one is unreachable
	if remote.ExternalID == "" {
		logging.FromCtx(ctx).Error("gateway returned payment without id", "order_id", in.OrderID, "idempotency_key", key)
		return nil, fmt.Errorf("%w: gateway returned no payment id", domain.ErrGatewayUnavailable)
	}

	status := domain.PaymentPending
	if remote.Status != "" {
		if status, err = domain.ParsePaymentStatus(remote.Status); err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrGatewayUnavailable, err)
		}
	}

	payment := &domain.Payment{
		OrderID:         in.OrderID,
		ExternalID:      remote.ExternalID,
		Amount:          in.Amount.Round(2),
		Status:          status,
		IdempotencyKey:  key,
		ConfirmationURL: remote.ConfirmationURL,
		LastEvent:       "payment.created",
	}
	err = s.uow.Do(ctx, func(ctx context.Context, repos repository.Repositories) error {
		// a concurrent request may have won while the gateway call was in flight
		if err := ensureNoActivePayment(ctx, repos, in.OrderID); err != nil {
			return err
		}
		return repos.Payments().Create(ctx, payment)
	})
	if err != nil {
		logging.FromCtx(ctx).Error("payment not recorded", "order_id", in.OrderID, "external_id", remote.ExternalID, "err", err)
		return nil, err
	}

	s.cache.Invalidate(ctx, in.OrderID)
	logging.FromCtx(ctx).Info("payment initiated", "order_id", in.OrderID, "payment_id", payment.ID, "external_id", payment.ExternalID, "status", payment.Status)
	s.publishPayment(ctx, payment, "initiate")

	return &PaymentResult{Payment: payment, ConfirmationURL: remote.ConfirmationURL}, nil
}

func ensureNoActivePayment(ctx context.Context, repos repository.Repositories, orderID uint64) error {
	existing, err := repos.Payments().FindByOrderID(ctx, orderID)
	if err != nil {
		return err
	}
	for i := range existing {
		if existing[i].Active() {
			return fmt.Errorf("%w: payment %d is %s", domain.ErrPaymentConflict, existing[i].ID, existing[i].Status)
		}
	}
	return nil
}

// RequestRefund asks the gateway to refund a captured payment and records the
// refund as in flight. The final refund status arrives by webhook.
func (s *PaymentService) RequestRefund(ctx context.Context, p domain.Principal, paymentID uint64) (*domain.Payment, error) {
	if !p.IsAdmin() {
		return nil, fmt.Errorf("%w: admin role required to refund", domain.ErrForbidden)
	}

	var payment *domain.Payment
	err := s.uow.Do(ctx, func(ctx context.Context, repos repository.Repositories) error {
		pay, err := repos.Payments().FindByID(ctx, paymentID)
		if err != nil {
			return err
		}
		if pay == nil {
			return fmt.Errorf("%w: payment %d", domain.ErrNotFound, paymentID)
		}
		if !pay.Refundable() {
			return fmt.Errorf("%w: payment %d is not refundable", domain.ErrInvalidTransition, pay.ID)
		}
		payment = pay
		return nil
	})
	if err != nil {
		return nil, err
	}

	key := s.newKey()
	gwCtx, cancel := context.WithTimeout(ctx, s.cfg.GatewayTimeout)
	remote, err := s.gateway.CreateRefund(gwCtx, infra.CreateRefundRequest{
		PaymentExternalID: payment.ExternalID,
		Amount:            payment.Amount,
		Currency:          s.cfg.Currency,
		IdempotencyKey:    key,
	})
	cancel()
	metrics.GatewayCalls.WithLabelValues("create_refund", metrics.Result(err)).Inc()
	if err != nil {
		logging.FromCtx(ctx).Error("gateway refund failed", "payment_id", paymentID, "idempotency_key", key, "err", err)
		return nil, fmt.Errorf("%w: %v", domain.ErrGatewayUnavailable, err)
	}
	if remote.ExternalID == "" {
		logging.FromCtx(ctx).Error("gateway returned refund without id", "payment_id", paymentID, "idempotency_key", key)
		return nil, fmt.Errorf("%w: gateway returned no refund id", domain.ErrGatewayUnavailable)
	}

	refundStatus := domain.PaymentPending
	if remote.Status != "" {
		if refundStatus, err = domain.ParsePaymentStatus(remote.Status); err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrGatewayUnavailable, err)
		}
	}

	err = s.uow.Do(ctx, func(ctx context.Context, repos repository.Repositories) error {
		pay, err := repos.Payments().FindByExternalIDForUpdate(ctx, payment.ExternalID)
		if err != nil {
			return err
		}
		if pay == nil {
			return fmt.Errorf("%w: payment %d", domain.ErrNotFound, paymentID)
		}
		// the refund webhook can beat us here; it already recorded this refund
		if pay.RefundExternalID != nil && *pay.RefundExternalID == remote.ExternalID {
			payment = pay
			return nil
		}
		if !pay.Refundable() {
			return fmt.Errorf("%w: payment %d is not refundable", domain.ErrInvalidTransition, pay.ID)
		}
		refundID := remote.ExternalID
		pay.RefundStatus = &refundStatus
		pay.RefundExternalID = &refundID
		pay.LastEvent = "refund.requested"
		if err := repos.Payments().Update(ctx, pay); err != nil {
			return err
		}
		payment = pay
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.cache.Invalidate(ctx, payment.OrderID)
	logging.FromCtx(ctx).Info("refund requested", "payment_id", payment.ID, "refund_external_id", remote.ExternalID, "refund_status", refundStatus)
	s.publishPayment(ctx, payment, "refund")
	return payment, nil
}

func (s *PaymentService) publishPayment(ctx context.Context, p *domain.Payment, source string) {
	evt := domain.PaymentStatusChangedEvent{
		PaymentID:    p.ID,
		OrderID:      p.OrderID,
		ExternalID:   p.ExternalID,
		Status:       p.Status,
		RefundStatus: p.RefundStatus,
		Source:       source,
		ChangedAt:    s.now().UTC(),
	}
	if err := s.publisher.Publish(ctx, domain.EventPaymentStatusChanged, evt); err != nil {
		logging.FromCtx(ctx).Warn("failed to publish event", "pattern", domain.EventPaymentStatusChanged, "err", err)
	}
}

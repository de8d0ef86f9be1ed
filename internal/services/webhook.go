package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"card-order-service/internal/domain"
	"card-order-service/internal/logging"
	"card-order-service/internal/metrics"
	"card-order-service/internal/repository"
)

type WebhookOutcome string

const (
	OutcomeApplied   WebhookOutcome = "applied"
	OutcomeDuplicate WebhookOutcome = "duplicate"
	OutcomeStale     WebhookOutcome = "stale"
	OutcomeUnknown   WebhookOutcome = "unknown"
	OutcomeIgnored   WebhookOutcome = "ignored"
)

type webhookEnvelope struct {
	Type   string `json:"type"`
	Event  string `json:"event"`
	Object struct {
		ID        string `json:"id"`
		Status    string `json:"status"`
		PaymentID string `json:"payment_id"`
	} `json:"object"`
}

type eventTarget int

const (
	targetPayment eventTarget = iota
	targetRefund
)

type gatewayEvent struct {
	name   string
	target eventTarget
	status domain.PaymentStatus
	// lookupID finds the local payment; refundID is set for refund events.
	lookupID string
	refundID string
}

var webhookEvents = map[string]struct {
	target eventTarget
	status domain.PaymentStatus
}{
	"payment.succeeded":           {targetPayment, domain.PaymentSucceeded},
	"payment.canceled":            {targetPayment, domain.PaymentCanceled},
	"payment.waiting_for_capture": {targetPayment, domain.PaymentWaitingForCapture},
	"refund.succeeded":            {targetRefund, domain.PaymentSucceeded},
}

func (e gatewayEvent) key() string {
	id := e.lookupID
	if e.target == targetRefund {
		id = e.refundID
	}
	return e.name + ":" + id
}

// HandleWebhook verifies and applies one gateway notification. Any nil error
// means the gateway should get its acknowledgment, including for unknown,
// duplicate and stale events.
func (s *PaymentService) HandleWebhook(ctx context.Context, body []byte, signature string) (WebhookOutcome, error) {
	if s.verifier == nil || !s.verifier.Verify(body, signature) {
		metrics.PaymentStatusUpdates.WithLabelValues("webhook", "", "rejected").Inc()
		return "", fmt.Errorf("%w: invalid webhook signature", domain.ErrUnauthorized)
	}

	evt, known, err := parseWebhook(body)
	if err != nil {
		metrics.PaymentStatusUpdates.WithLabelValues("webhook", "", "malformed").Inc()
		return "", err
	}
	if !known {
		logging.FromCtx(ctx).Info("webhook event ignored", "event", evt.name)
		metrics.PaymentStatusUpdates.WithLabelValues("webhook", evt.name, string(OutcomeIgnored)).Inc()
		return OutcomeIgnored, nil
	}

	if s.marker != nil {
		seen, err := s.marker.Seen(ctx, evt.key())
		if err != nil {
			logging.FromCtx(ctx).Warn("event marker lookup failed", "key", evt.key(), "err", err)
		} else if seen {
			metrics.PaymentStatusUpdates.WithLabelValues("webhook", evt.name, string(OutcomeDuplicate)).Inc()
			return OutcomeDuplicate, nil
		}
	}

	outcome, err := s.apply(ctx, evt, "webhook")
	if err != nil {
		return "", err
	}
	if s.marker != nil && outcome != OutcomeUnknown {
		if err := s.marker.Mark(ctx, evt.key()); err != nil {
			logging.FromCtx(ctx).Warn("event marker write failed", "key", evt.key(), "err", err)
		}
	}
	return outcome, nil
}

func parseWebhook(body []byte) (gatewayEvent, bool, error) {
	var env webhookEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return gatewayEvent{}, false, fmt.Errorf("%w: webhook body: %v", domain.ErrBadRequest, err)
	}
	name := strings.TrimSpace(env.Event)
	if name == "" {
		return gatewayEvent{}, false, fmt.Errorf("%w: webhook event is required", domain.ErrBadRequest)
	}
	if env.Object.ID == "" {
		return gatewayEvent{}, false, fmt.Errorf("%w: webhook object.id is required", domain.ErrBadRequest)
	}

	m, ok := webhookEvents[name]
	if !ok {
		return gatewayEvent{name: name}, false, nil
	}
	evt := gatewayEvent{name: name, target: m.target, status: m.status, lookupID: env.Object.ID}
	if m.target == targetRefund {
		evt.refundID = env.Object.ID
		if env.Object.PaymentID != "" {
			evt.lookupID = env.Object.PaymentID
		}
	}
	return evt, true, nil
}

// apply records evt under a row lock on the payment. Status only moves
// forward by rank; anything else is reported as duplicate or stale.
func (s *PaymentService) apply(ctx context.Context, evt gatewayEvent, source string) (WebhookOutcome, error) {
	var (
		outcome  = OutcomeApplied
		payment  *domain.Payment
		advanced bool
		previous domain.PaymentStatus
	)
	err := s.uow.Do(ctx, func(ctx context.Context, repos repository.Repositories) error {
		pay, err := repos.Payments().FindByExternalIDForUpdate(ctx, evt.lookupID)
		if err != nil {
			return err
		}
		if pay == nil && evt.target == targetRefund && evt.refundID != evt.lookupID {
			if pay, err = repos.Payments().FindByExternalIDForUpdate(ctx, evt.refundID); err != nil {
				return err
			}
		}
		if pay == nil {
			outcome = OutcomeUnknown
			return nil
		}
		previous = pay.Status

		switch evt.target {
		case targetPayment:
			if pay.Status == evt.status {
				outcome = OutcomeDuplicate
				return nil
			}
			if !pay.Status.Advances(evt.status) {
				outcome = OutcomeStale
				return nil
			}
			pay.Status = evt.status
		case targetRefund:
			if pay.RefundStatus != nil && *pay.RefundStatus == evt.status {
				outcome = OutcomeDuplicate
				return nil
			}
			if !pay.RefundAdvances(evt.status) {
				outcome = OutcomeStale
				return nil
			}
			st := evt.status
			pay.RefundStatus = &st
			if pay.RefundExternalID == nil {
				id := evt.refundID
				pay.RefundExternalID = &id
			}
		}
		pay.LastEvent = evt.name
		if err := repos.Payments().Update(ctx, pay); err != nil {
			return err
		}
		payment = pay

		if evt.target == targetPayment && evt.status == domain.PaymentSucceeded {
			advanced, err = repos.Orders().UpdateStatusIf(ctx, pay.OrderID, domain.StatusPending, domain.StatusProcessing)
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		metrics.PaymentStatusUpdates.WithLabelValues(source, evt.name, "error").Inc()
		logging.FromCtx(ctx).Error("gateway event not applied", "source", source, "event", evt.name, "external_id", evt.lookupID, "err", err)
		return "", err
	}

	metrics.PaymentStatusUpdates.WithLabelValues(source, evt.name, string(outcome)).Inc()
	log := logging.FromCtx(ctx).With("source", source, "event", evt.name, "external_id", evt.lookupID, "outcome", outcome)
	switch outcome {
	case OutcomeApplied:
		log.Info("payment status updated", "payment_id", payment.ID, "from", previous, "to", payment.Status)
	case OutcomeStale:
		log.Warn("stale gateway event discarded", "current", previous)
	default:
		log.Info("gateway event acknowledged without change")
	}
	if payment == nil {
		return outcome, nil
	}

	s.cache.Invalidate(ctx, payment.OrderID)
	s.publishPayment(ctx, payment, source)
	if advanced {
		metrics.OrderTransitions.WithLabelValues(string(domain.StatusPending), string(domain.StatusProcessing)).Inc()
		changed := domain.OrderStatusChangedEvent{
			OrderID:   payment.OrderID,
			From:      domain.StatusPending,
			To:        domain.StatusProcessing,
			ChangedAt: s.now().UTC(),
		}
		if err := s.publisher.Publish(ctx, domain.EventOrderStatusChanged, changed); err != nil {
			log.Warn("failed to publish event", "pattern", domain.EventOrderStatusChanged, "err", err)
		}
	}
	return outcome, nil
}

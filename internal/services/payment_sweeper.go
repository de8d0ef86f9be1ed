package services

import (
	"context"
	"time"

	"card-order-service/internal/domain"
	"card-order-service/internal/logging"
	"card-order-service/internal/metrics"
	"card-order-service/internal/repository"
)

// SweepPending polls the gateway for payments that stayed pending longer
// than the configured age and feeds the reported status through the same
// path as webhooks. It returns how many payments changed.
func (s *PaymentService) SweepPending(ctx context.Context) (int, error) {
	var stale []domain.Payment
	before := s.now().Add(-s.cfg.SweepAge)
	err := s.uow.Do(ctx, func(ctx context.Context, repos repository.Repositories) error {
		var err error
		stale, err = repos.Payments().FindPendingCreatedBefore(ctx, before, s.cfg.SweepBatch)
		return err
	})
	if err != nil {
		return 0, err
	}

	log := logging.FromCtx(ctx).With("job", "payment_sweeper")
	applied := 0
	for _, p := range stale {
		if ctx.Err() != nil {
			return applied, ctx.Err()
		}

		gwCtx, cancel := context.WithTimeout(ctx, s.cfg.GatewayTimeout)
		remote, err := s.gateway.GetPayment(gwCtx, p.ExternalID)
		cancel()
		metrics.GatewayCalls.WithLabelValues("get_payment", metrics.Result(err)).Inc()
		if err != nil {
			log.Warn("gateway poll failed", "payment_id", p.ID, "external_id", p.ExternalID, "err", err)
			continue
		}

		status, err := domain.ParsePaymentStatus(remote.Status)
		if err != nil {
			log.Warn("gateway reported unknown status", "payment_id", p.ID, "status", remote.Status)
			continue
		}
		if status == domain.PaymentPending {
			continue
		}

		outcome, err := s.apply(ctx, gatewayEvent{
			name:     "payment." + string(status),
			target:   targetPayment,
			status:   status,
			lookupID: p.ExternalID,
		}, "sweeper")
		if err != nil {
			return applied, err
		}
		if outcome == OutcomeApplied {
			applied++
		}
	}
	return applied, nil
}

// RunSweeper calls SweepPending every interval until ctx is done.
func (s *PaymentService) RunSweeper(ctx context.Context, interval time.Duration) error {
	log := logging.FromCtx(ctx).With("job", "payment_sweeper")
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			n, err := s.SweepPending(ctx)
			if err != nil && ctx.Err() == nil {
				log.Error("sweep failed", "err", err)
				continue
			}
			if n > 0 {
				log.Info("sweep reconciled payments", "count", n)
			}
		}
	}
}

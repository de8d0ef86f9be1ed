package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"card-order-service/internal/domain"
	rabbit "card-order-service/internal/infra/rabbitmq"
	"card-order-service/internal/logging"
	"card-order-service/internal/metrics"
	"card-order-service/internal/repository"
)

type OrderService struct {
	uow       repository.UnitOfWork
	publisher rabbit.PublisherInterface
	cache     OrderCache
	now       func() time.Time
}

func NewOrderService(uow repository.UnitOfWork, pub rabbit.PublisherInterface) *OrderService {
	return &OrderService{
		uow:       uow,
		publisher: pub,
		cache:     nopCache{},
		now:       time.Now,
	}
}

func (s *OrderService) SetCache(c OrderCache) {
	if c != nil {
		s.cache = c
	}
}

type CreateOrderInput struct {
	Items           []domain.OrderLine
	ShippingAddress string
	PaymentMethod   string
	ShippingMethod  string
}

// CreateOrder prices the requested lines, writes the order with its items and
// reserves stock for every line inside one unit of work.
func (s *OrderService) CreateOrder(ctx context.Context, p domain.Principal, in CreateOrderInput) (*domain.Order, error) {
	lines, err := validateCreateOrder(in)
	if err != nil {
		metrics.OrderCreateFailures.WithLabelValues("validation").Inc()
		return nil, err
	}

	shipping := domain.ShippingDetails{
		Address:        strings.TrimSpace(in.ShippingAddress),
		ShippingMethod: strings.TrimSpace(in.ShippingMethod),
		PaymentMethod:  strings.TrimSpace(in.PaymentMethod),
	}

	var order *domain.Order
	err = s.uow.Do(ctx, func(ctx context.Context, repos repository.Repositories) error {
		ids := make([]uint64, len(lines))
		for i, l := range lines {
			ids[i] = l.StudyCardID
		}
		cards, err := repos.Stock().FindByIDs(ctx, ids)
		if err != nil {
			return err
		}

		items := make([]domain.OrderItem, 0, len(lines))
		for _, l := range lines {
			card, ok := cards[l.StudyCardID]
			if !ok {
				return fmt.Errorf("%w: study card %d", domain.ErrNotFound, l.StudyCardID)
			}
			if !card.Active {
				return fmt.Errorf("%w: study card %d (%s)", domain.ErrItemUnavailable, card.ID, card.Title)
			}
			if l.Quantity > card.Quantity {
				return fmt.Errorf("%w: study card %d (%s): requested %d, available %d",
					domain.ErrInsufficientStock, card.ID, card.Title, l.Quantity, card.Quantity)
			}
			items = append(items, domain.OrderItem{
				StudyCardID: card.ID,
				Quantity:    l.Quantity,
				UnitPrice:   card.Price.Round(2),
			})
		}

		order = domain.NewOrder(p.UserID, shipping, items)
		if err := repos.Orders().Create(ctx, order); err != nil {
			return err
		}

		// the read above is advisory; the conditional decrement decides
		for _, l := range lines {
			if err := repos.Stock().Reserve(ctx, l.StudyCardID, l.Quantity); err != nil {
				if errors.Is(err, domain.ErrInsufficientStock) {
					return fmt.Errorf("%w: %w", domain.ErrOrderCreationFailed, err)
				}
				return err
			}
		}
		return nil
	})
	if err != nil {
		metrics.OrderCreateFailures.WithLabelValues(failureReason(err)).Inc()
		if isOrderRuleError(err) {
			return nil, err
		}
		logging.FromCtx(ctx).Error("order creation aborted", "user_id", p.UserID, "err", err)
		return nil, fmt.Errorf("%w: %v", domain.ErrOrderCreationFailed, err)
	}

	metrics.OrdersCreated.Inc()
	logging.FromCtx(ctx).Info("order created", "order_id", order.ID, "user_id", p.UserID, "total", order.TotalAmount.StringFixed(2))

	s.publish(ctx, domain.EventOrderCreated, domain.OrderCreatedEvent{
		OrderID:     order.ID,
		UserID:      order.UserID,
		TotalAmount: order.TotalAmount,
		Items:       lines,
		CreatedAt:   order.CreatedAt,
	})
	return order, nil
}

// validateCreateOrder checks required fields and merges repeated card ids so
// each card is reserved once. Lines come back sorted by card id so concurrent
// orders lock stock rows in the same order.
func validateCreateOrder(in CreateOrderInput) ([]domain.OrderLine, error) {
	if len(in.Items) == 0 {
		return nil, fmt.Errorf("%w: items must not be empty", domain.ErrValidation)
	}
	if strings.TrimSpace(in.ShippingAddress) == "" {
		return nil, fmt.Errorf("%w: shipping_address is required", domain.ErrValidation)
	}
	if strings.TrimSpace(in.PaymentMethod) == "" {
		return nil, fmt.Errorf("%w: payment_method is required", domain.ErrValidation)
	}
	if strings.TrimSpace(in.ShippingMethod) == "" {
		return nil, fmt.Errorf("%w: shipping_method is required", domain.ErrValidation)
	}

	merged := make([]domain.OrderLine, 0, len(in.Items))
	index := make(map[uint64]int, len(in.Items))
	for i, it := range in.Items {
		if it.StudyCardID == 0 {
			return nil, fmt.Errorf("%w: items[%d].item_id is required", domain.ErrValidation, i)
		}
		if it.Quantity <= 0 {
			return nil, fmt.Errorf("%w: items[%d].quantity must be positive", domain.ErrValidation, i)
		}
		if j, ok := index[it.StudyCardID]; ok {
			if merged[j].Quantity > math.MaxInt64-it.Quantity {
				return nil, fmt.Errorf("%w: items[%d].quantity is too large", domain.ErrValidation, i)
			}
			merged[j].Quantity += it.Quantity
			continue
		}
		index[it.StudyCardID] = len(merged)
		merged = append(merged, it)
	}
	sort.Slice(merged, func(a, b int) bool { return merged[a].StudyCardID < merged[b].StudyCardID })
	return merged, nil
}

func isOrderRuleError(err error) bool {
	for _, target := range []error{
		domain.ErrValidation,
		domain.ErrNotFound,
		domain.ErrItemUnavailable,
		domain.ErrInsufficientStock,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

func failureReason(err error) string {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return "not_found"
	case errors.Is(err, domain.ErrItemUnavailable):
		return "unavailable"
	case errors.Is(err, domain.ErrInsufficientStock):
		return "insufficient_stock"
	}
	return "aborted"
}

// GetOrder returns the order with its items and payments to its owner or an
// admin.
func (s *OrderService) GetOrder(ctx context.Context, p domain.Principal, id uint64) (*domain.OrderDetails, error) {
	if d, ok := s.cache.Get(ctx, id); ok {
		if !d.Order.OwnedBy(p) && !p.IsAdmin() {
			return nil, fmt.Errorf("%w: order %d", domain.ErrForbidden, id)
		}
		return d, nil
	}
	version, cacheable := s.cache.Version(ctx, id)

	var details *domain.OrderDetails
	err := s.uow.Do(ctx, func(ctx context.Context, repos repository.Repositories) error {
		o, err := repos.Orders().FindByID(ctx, id)
		if err != nil {
			return err
		}
		if o == nil {
			return fmt.Errorf("%w: order %d", domain.ErrNotFound, id)
		}
		payments, err := repos.Payments().FindByOrderID(ctx, id)
		if err != nil {
			return err
		}
		details = &domain.OrderDetails{Order: *o, Payments: payments}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if !details.Order.OwnedBy(p) && !p.IsAdmin() {
		return nil, fmt.Errorf("%w: order %d", domain.ErrForbidden, id)
	}

	if cacheable {
		s.cache.Set(ctx, details, version)
	}
	return details, nil
}

// SetStatus is the admin entry point to the lifecycle state machine.
func (s *OrderService) SetStatus(ctx context.Context, p domain.Principal, id uint64, status string) (*domain.Order, error) {
	if !p.IsAdmin() {
		return nil, fmt.Errorf("%w: admin role required to set order status", domain.ErrForbidden)
	}
	target, err := domain.ParseOrderStatus(status)
	if err != nil {
		return nil, err
	}
	return s.transition(ctx, p, id, target, nil)
}

// CancelOrder lets the owner cancel a pending or processing order.
func (s *OrderService) CancelOrder(ctx context.Context, p domain.Principal, id uint64) (*domain.Order, error) {
	return s.transition(ctx, p, id, domain.StatusCancelled, func(o *domain.Order) error {
		if !o.OwnedBy(p) {
			return fmt.Errorf("%w: order %d belongs to another user", domain.ErrForbidden, o.ID)
		}
		return nil
	})
}

// transition applies one state machine move. Moving to cancelled returns
// every item's quantity to the ledger in the same unit of work.
func (s *OrderService) transition(ctx context.Context, actor domain.Principal, id uint64, target domain.OrderStatus, authorize func(*domain.Order) error) (*domain.Order, error) {
	var (
		order    *domain.Order
		from     domain.OrderStatus
		released int64
	)
	err := s.uow.Do(ctx, func(ctx context.Context, repos repository.Repositories) error {
		o, err := repos.Orders().FindByID(ctx, id)
		if err != nil {
			return err
		}
		if o == nil {
			return fmt.Errorf("%w: order %d", domain.ErrNotFound, id)
		}
		if authorize != nil {
			if err := authorize(o); err != nil {
				return err
			}
		}
		if o.Status.Terminal() {
			return fmt.Errorf("%w: order %d is already %s", domain.ErrInvalidTransition, o.ID, o.Status)
		}
		if !o.Status.CanTransitionTo(target) {
			return fmt.Errorf("%w: order %d cannot move from %s to %s", domain.ErrInvalidTransition, o.ID, o.Status, target)
		}

		if target == domain.StatusCancelled && o.Status.Cancellable() {
			for _, it := range o.Items {
				if err := repos.Stock().Release(ctx, it.StudyCardID, it.Quantity); err != nil {
					return err
				}
				released += it.Quantity
			}
		}

		ok, err := repos.Orders().UpdateStatusIf(ctx, o.ID, o.Status, target)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: order %d was changed concurrently", domain.ErrInvalidTransition, o.ID)
		}

		from = o.Status
		o.Status = target
		order = o
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.cache.Invalidate(ctx, order.ID)
	metrics.OrderTransitions.WithLabelValues(string(from), string(target)).Inc()
	if released > 0 {
		metrics.StockReleased.Add(float64(released))
	}
	logging.FromCtx(ctx).Info("order status changed", "order_id", order.ID, "from", from, "to", target, "by", actor.UserID, "released_units", released)

	s.publish(ctx, domain.EventOrderStatusChanged, domain.OrderStatusChangedEvent{
		OrderID:   order.ID,
		From:      from,
		To:        target,
		ChangedBy: actor.UserID,
		ChangedAt: s.now().UTC(),
	})
	return order, nil
}

// publish is best effort: the state change is already committed.
func (s *OrderService) publish(ctx context.Context, pattern string, evt any) {
	if err := s.publisher.Publish(ctx, pattern, evt); err != nil {
		logging.FromCtx(ctx).Warn("failed to publish event", "pattern", pattern, "err", err)
	}
}

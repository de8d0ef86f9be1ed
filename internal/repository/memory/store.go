// Package memory is an in-process implementation of the repositories and
// unit of work. Do runs one unit at a time and restores a snapshot when fn
// fails, which gives the same all-or-nothing behaviour as the gorm backend.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"card-order-service/internal/domain"
	"card-order-service/internal/repository"
)

type Store struct {
	mu  sync.Mutex
	now func() time.Time

	cards    map[uint64]domain.StudyCard
	orders   map[uint64]domain.Order
	payments map[uint64]domain.Payment

	nextOrderID   uint64
	nextItemID    uint64
	nextPaymentID uint64
}

func NewStore() *Store {
	return &Store{
		now:      time.Now,
		cards:    map[uint64]domain.StudyCard{},
		orders:   map[uint64]domain.Order{},
		payments: map[uint64]domain.Payment{},
	}
}

// SetClock overrides the timestamp source used for created/updated columns.
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// PutCard seeds or replaces a study card outside any unit of work.
func (s *Store) PutCard(card domain.StudyCard) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cards[card.ID] = card
}

func (s *Store) Card(id uint64) (domain.StudyCard, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.cards[id]
	return c, ok
}

func (s *Store) Order(id uint64) (domain.Order, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if ok {
		o.Items = append([]domain.OrderItem(nil), o.Items...)
	}
	return o, ok
}

func (s *Store) OrderCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.orders)
}

func (s *Store) Payment(id uint64) (domain.Payment, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.payments[id]
	return clonePayment(p), ok
}

// PutPayment seeds a payment outside any unit of work.
func (s *Store) PutPayment(p domain.Payment) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.ID == 0 {
		s.nextPaymentID++
		p.ID = s.nextPaymentID
	} else if p.ID > s.nextPaymentID {
		s.nextPaymentID = p.ID
	}
	s.payments[p.ID] = clonePayment(p)
}

func (s *Store) PaymentCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.payments)
}

func (s *Store) Do(ctx context.Context, fn func(ctx context.Context, repos repository.Repositories) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	snap := s.snapshot()
	if err := fn(ctx, txRepos{s: s}); err != nil {
		s.restore(snap)
		return err
	}
	return nil
}

type snapshot struct {
	cards    map[uint64]domain.StudyCard
	orders   map[uint64]domain.Order
	payments map[uint64]domain.Payment
	ids      [3]uint64
}

func (s *Store) snapshot() snapshot {
	snap := snapshot{
		cards:    make(map[uint64]domain.StudyCard, len(s.cards)),
		orders:   make(map[uint64]domain.Order, len(s.orders)),
		payments: make(map[uint64]domain.Payment, len(s.payments)),
		ids:      [3]uint64{s.nextOrderID, s.nextItemID, s.nextPaymentID},
	}
	for k, v := range s.cards {
		snap.cards[k] = v
	}
	for k, v := range s.orders {
		snap.orders[k] = v
	}
	for k, v := range s.payments {
		snap.payments[k] = clonePayment(v)
	}
	return snap
}

func (s *Store) restore(snap snapshot) {
	s.cards = snap.cards
	s.orders = snap.orders
	s.payments = snap.payments
	s.nextOrderID, s.nextItemID, s.nextPaymentID = snap.ids[0], snap.ids[1], snap.ids[2]
}

func clonePayment(p domain.Payment) domain.Payment {
	if p.RefundStatus != nil {
		st := *p.RefundStatus
		p.RefundStatus = &st
	}
	if p.RefundExternalID != nil {
		id := *p.RefundExternalID
		p.RefundExternalID = &id
	}
	return p
}

type txRepos struct {
	s *Store
}

func (r txRepos) Orders() repository.OrderRepository     { return orderRepo(r) }
func (r txRepos) Stock() repository.StockRepository      { return stockRepo(r) }
func (r txRepos) Payments() repository.PaymentRepository { return paymentRepo(r) }

type orderRepo struct{ s *Store }

func (r orderRepo) Create(_ context.Context, order *domain.Order) error {
	now := r.s.now()
	r.s.nextOrderID++
	order.ID = r.s.nextOrderID
	order.CreatedAt, order.UpdatedAt = now, now
	for i := range order.Items {
		r.s.nextItemID++
		order.Items[i].ID = r.s.nextItemID
		order.Items[i].OrderID = order.ID
		order.Items[i].CreatedAt = now
	}

	stored := *order
	stored.Items = append([]domain.OrderItem(nil), order.Items...)
	r.s.orders[order.ID] = stored
	return nil
}

func (r orderRepo) FindByID(_ context.Context, id uint64) (*domain.Order, error) {
	o, ok := r.s.orders[id]
	if !ok {
		return nil, nil
	}
	o.Items = append([]domain.OrderItem(nil), o.Items...)
	return &o, nil
}

func (r orderRepo) UpdateStatusIf(_ context.Context, id uint64, from, to domain.OrderStatus) (bool, error) {
	o, ok := r.s.orders[id]
	if !ok || o.Status != from {
		return false, nil
	}
	o.Status = to
	o.UpdatedAt = r.s.now()
	r.s.orders[id] = o
	return true, nil
}

type stockRepo struct{ s *Store }

func (r stockRepo) FindByIDs(_ context.Context, ids []uint64) (map[uint64]*domain.StudyCard, error) {
	out := make(map[uint64]*domain.StudyCard, len(ids))
	for _, id := range ids {
		if c, ok := r.s.cards[id]; ok {
			card := c
			out[id] = &card
		}
	}
	return out, nil
}

func (r stockRepo) Reserve(_ context.Context, id uint64, qty int64) error {
	if qty <= 0 {
		return fmt.Errorf("%w: reserve quantity %d for study card %d", domain.ErrValidation, qty, id)
	}
	c, ok := r.s.cards[id]
	if !ok || c.Quantity < qty {
		return fmt.Errorf("%w: study card %d", domain.ErrInsufficientStock, id)
	}
	c.Quantity -= qty
	r.s.cards[id] = c
	return nil
}

func (r stockRepo) Release(_ context.Context, id uint64, qty int64) error {
	if qty <= 0 {
		return fmt.Errorf("%w: release quantity %d for study card %d", domain.ErrValidation, qty, id)
	}
	c, ok := r.s.cards[id]
	if !ok {
		return fmt.Errorf("%w: study card %d", domain.ErrNotFound, id)
	}
	c.Quantity += qty
	r.s.cards[id] = c
	return nil
}

type paymentRepo struct{ s *Store }

func (r paymentRepo) Create(_ context.Context, p *domain.Payment) error {
	for _, existing := range r.s.payments {
		if existing.ExternalID == p.ExternalID {
			return fmt.Errorf("duplicate external id %q", p.ExternalID)
		}
	}
	now := r.s.now()
	r.s.nextPaymentID++
	p.ID = r.s.nextPaymentID
	p.CreatedAt, p.UpdatedAt = now, now
	r.s.payments[p.ID] = clonePayment(*p)
	return nil
}

func (r paymentRepo) FindByID(_ context.Context, id uint64) (*domain.Payment, error) {
	p, ok := r.s.payments[id]
	if !ok {
		return nil, nil
	}
	p = clonePayment(p)
	return &p, nil
}

func (r paymentRepo) FindByOrderID(_ context.Context, orderID uint64) ([]domain.Payment, error) {
	var out []domain.Payment
	for _, p := range r.s.payments {
		if p.OrderID == orderID {
			out = append(out, clonePayment(p))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// FindByExternalIDForUpdate needs no row lock here: Do already serialises.
func (r paymentRepo) FindByExternalIDForUpdate(_ context.Context, externalID string) (*domain.Payment, error) {
	for _, p := range r.s.payments {
		if p.ExternalID == externalID || (p.RefundExternalID != nil && *p.RefundExternalID == externalID) {
			p = clonePayment(p)
			return &p, nil
		}
	}
	return nil, nil
}

func (r paymentRepo) FindPendingCreatedBefore(_ context.Context, before time.Time, limit int) ([]domain.Payment, error) {
	var out []domain.Payment
	for _, p := range r.s.payments {
		if p.Status == domain.PaymentPending && p.CreatedAt.Before(before) {
			out = append(out, clonePayment(p))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r paymentRepo) Update(_ context.Context, p *domain.Payment) error {
	existing, ok := r.s.payments[p.ID]
	if !ok {
		return fmt.Errorf("%w: payment %d", domain.ErrNotFound, p.ID)
	}
	existing.Status = p.Status
	existing.RefundStatus = p.RefundStatus
	existing.RefundExternalID = p.RefundExternalID
	existing.LastEvent = p.LastEvent
	existing.UpdatedAt = r.s.now()
	r.s.payments[p.ID] = clonePayment(existing)
	return nil
}

var _ repository.UnitOfWork = (*Store)(nil)

package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type PaymentStatus string

const (
	PaymentPending           PaymentStatus = "pending"
	PaymentWaitingForCapture PaymentStatus = "waiting_for_capture"
	PaymentSucceeded         PaymentStatus = "succeeded"
	PaymentCanceled          PaymentStatus = "canceled"
)

func ParsePaymentStatus(s string) (PaymentStatus, error) {
	switch st := PaymentStatus(strings.ToLower(strings.TrimSpace(s))); st {
	case PaymentPending, PaymentWaitingForCapture, PaymentSucceeded, PaymentCanceled:
		return st, nil
	}
	return "", fmt.Errorf("%w: payment status %q", ErrInvalidStatusValue, s)
}

// rank orders payment statuses along the gateway lifecycle. succeeded and
// canceled share the top rank: once either is recorded nothing moves it.
func (s PaymentStatus) rank() int {
	switch s {
	case PaymentPending:
		return 1
	case PaymentWaitingForCapture:
		return 2
	case PaymentSucceeded, PaymentCanceled:
		return 3
	}
	return 0
}

func (s PaymentStatus) Terminal() bool {
	return s.rank() == 3
}

// Advances reports whether moving from s to next goes strictly forward.
// Equal statuses are a duplicate delivery, lower ones are stale.
func (s PaymentStatus) Advances(next PaymentStatus) bool {
	return next.rank() > s.rank()
}

type Payment struct {
	ID               uint64          `json:"id" gorm:"primaryKey;autoIncrement"`
	OrderID          uint64          `json:"orderId" gorm:"not null;index"`
	ExternalID       string          `json:"externalId" gorm:"type:varchar(64);not null;uniqueIndex"`
	Amount           decimal.Decimal `json:"amount" gorm:"type:decimal(10,2);not null"`
	Status           PaymentStatus   `json:"status" gorm:"type:varchar(32);not null;index"`
	RefundStatus     *PaymentStatus  `json:"refundStatus" gorm:"type:varchar(32)"`
	RefundExternalID *string         `json:"refundExternalId,omitempty" gorm:"type:varchar(64);index"`
	IdempotencyKey   string          `json:"-" gorm:"type:varchar(64);not null"`
	ConfirmationURL  string          `json:"confirmationUrl,omitempty" gorm:"type:varchar(1024)"`
	LastEvent        string          `json:"lastEvent,omitempty" gorm:"type:varchar(64)"`
	CreatedAt        time.Time       `json:"createdAt" gorm:"autoCreateTime"`
	UpdatedAt        time.Time       `json:"updatedAt" gorm:"autoUpdateTime"`
}

// Active is true for a payment that still holds money for its order: not
// canceled and not refunded.
func (p *Payment) Active() bool {
	if p.Status == PaymentCanceled {
		return false
	}
	return p.RefundStatus == nil || *p.RefundStatus != PaymentSucceeded
}

// Refundable is true for a captured payment with no refund in flight or done.
func (p *Payment) Refundable() bool {
	if p.Status != PaymentSucceeded {
		return false
	}
	return p.RefundStatus == nil || *p.RefundStatus == PaymentCanceled
}

// RefundAdvances is Advances for the nullable refund status.
func (p *Payment) RefundAdvances(next PaymentStatus) bool {
	if p.RefundStatus == nil {
		return true
	}
	return p.RefundStatus.Advances(next)
}

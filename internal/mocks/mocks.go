package mocks

import (
	"context"

	"card-order-service/internal/infra"

	"github.com/stretchr/testify/mock"
)

type MockPaymentGateway struct {
	mock.Mock
}

type MockPublisher struct {
	mock.Mock
}

type MockEventMarker struct {
	mock.Mock
}

func (m *MockPublisher) Publish(ctx context.Context, routingKey string, data any) error {
	args := m.Called(ctx, routingKey, data)
	return args.Error(0)
}

func (m *MockPaymentGateway) CreatePayment(ctx context.Context, req infra.CreatePaymentRequest) (*infra.RemotePayment, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*infra.RemotePayment), args.Error(1)
}

func (m *MockPaymentGateway) GetPayment(ctx context.Context, externalID string) (*infra.RemotePayment, error) {
	args := m.Called(ctx, externalID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*infra.RemotePayment), args.Error(1)
}

func (m *MockPaymentGateway) CreateRefund(ctx context.Context, req infra.CreateRefundRequest) (*infra.RemoteRefund, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*infra.RemoteRefund), args.Error(1)
}

func (m *MockEventMarker) Seen(ctx context.Context, key string) (bool, error) {
	args := m.Called(ctx, key)
	return args.Bool(0), args.Error(1)
}

func (m *MockEventMarker) Mark(ctx context.Context, key string) error {
	args := m.Called(ctx, key)
	return args.Error(0)
}

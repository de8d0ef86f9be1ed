package infra

import "context"

type PaymentGatewayInterface interface {
	CreatePayment(ctx context.Context, req CreatePaymentRequest) (*RemotePayment, error)
	GetPayment(ctx context.Context, externalID string) (*RemotePayment, error)
	CreateRefund(ctx context.Context, req CreateRefundRequest) (*RemoteRefund, error)
}

var _ PaymentGatewayInterface = (*PaymentGatewayClient)(nil)

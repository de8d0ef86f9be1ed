package domain

import "errors"

var (
	ErrValidation          = errors.New("validation error")
	ErrNotFound            = errors.New("not found")
	ErrForbidden           = errors.New("forbidden")
	ErrUnauthorized        = errors.New("unauthorized")
	ErrBadRequest          = errors.New("bad request")
	ErrItemUnavailable     = errors.New("item unavailable")
	ErrInsufficientStock   = errors.New("insufficient stock")
	ErrInvalidTransition   = errors.New("invalid status transition")
	ErrInvalidStatusValue  = errors.New("invalid status value")
	ErrOrderCreationFailed = errors.New("order creation failed")
	ErrPaymentConflict     = errors.New("order already has an active payment")
	ErrGatewayUnavailable  = errors.New("payment gateway unavailable")
)

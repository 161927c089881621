package service

import "errors"

var (
	ErrValidation              = errors.New("invalid request")
	ErrGatewayNotSupported     = errors.New("gateway is not supported")
	ErrCallbackRejected        = errors.New("webhook rejected")
	ErrMissingBookingReference = errors.New("payment cannot be attributed to a booking")
	ErrStatusConflict          = errors.New("conflicting terminal status for transaction")
	ErrIntentNotFound          = errors.New("payment not found")
	ErrConfirmFailed           = errors.New("booking confirmation failed")
)

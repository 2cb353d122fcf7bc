package service

import "errors"

var (
	ErrInvalidRequest      = errors.New("invalid request")
	ErrOrderNotFound       = errors.New("order not found")
	ErrDisputeNotFound     = errors.New("dispute not found")
	ErrInvalidStatus       = errors.New("invalid status")
	ErrProviderUnsupported = errors.New("provider is not supported")
	ErrEventRejected       = errors.New("event rejected")
	ErrChargebackOpen      = errors.New("chargeback is open")
)

package domain

import "errors"

var (
	ErrNotFound              = errors.New("not found")
	ErrDataUnavailable       = errors.New("market data unavailable")
	ErrValidationExpired     = errors.New("opportunity expired during validation")
	ErrOrderRejected         = errors.New("order rejected by exchange")
	ErrOrderTimeout          = errors.New("order placement timed out")
	ErrInsufficientLiquidity = errors.New("insufficient liquidity")
	ErrExchangeDegraded      = errors.New("exchange circuit breaker open")
	ErrLockHeld              = errors.New("lock already held")
)

package models

import "errors"

var (
	ErrInvalidAmount         = errors.New("amount must be positive")
	ErrNegativeRate          = errors.New("rate must not be negative")
	ErrZeroDuration          = errors.New("duration must be greater than zero")
	ErrInvalidTransition     = errors.New("illegal status transition")
	ErrInsufficientRemaining = errors.New("amount exceeds remaining balance")
)

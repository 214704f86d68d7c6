package intents

import "errors"

var (
	ErrNotFound           = errors.New("payment intent not found")
	ErrStateConflict      = errors.New("payment intent state changed concurrently")
	ErrIllegalTransition  = errors.New("illegal payment intent transition")
	ErrDuplicateReference = errors.New("provider reference already assigned")
	ErrInvalidIntent      = errors.New("invalid payment intent")
)

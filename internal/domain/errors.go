package domain

import "errors"

var (
	// Configuration errors (fatal: the run cannot produce trustworthy numbers)
	ErrNegativeDecimals = errors.New("decimal places must not be negative")
	ErrInvalidTolerance = errors.New("tolerance must not be negative")
	ErrInvalidWindow    = errors.New("window must be positive")
	ErrBusinessHours    = errors.New("business hours open must precede close")

	// Input errors
	ErrNoRecords = errors.New("no records to reconcile")
)

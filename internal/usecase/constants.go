package usecase

import "time"

const (
	// DefaultTolerance is the absolute difference under which two monetary
	// values are considered equal.
	DefaultTolerance = "0.005"

	// DefaultDecimals applies when a currency has no configured precision.
	DefaultDecimals = 2

	// DefaultMADThreshold is the spike sensitivity k; larger is less
	// sensitive.
	DefaultMADThreshold = 6.0

	// DefaultBurstWindow is the same-user gap below which transactions are
	// a burst.
	DefaultBurstWindow = time.Second

	// DefaultRapidWindow bounds repeated identical manual deductions.
	DefaultRapidWindow = 60 * time.Second
)

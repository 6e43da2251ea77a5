package ramp

import (
	"errors"
	"time"
)

// Validation errors. Their text is shown to the operator as is.
var (
	ErrInitialNotBelowFinal = errors.New("Initial memory must be less than final memory")
	ErrNonPositiveDuration  = errors.New("Duration must be greater than 0")
	ErrNegativeWait         = errors.New("Initial wait time cannot be negative")
	ErrNegativeInitial      = errors.New("Initial memory cannot be negative")
)

// Params describes a ramp from InitialMB to FinalMB over DurationSeconds,
// started after InitialWaitSeconds.
type Params struct {
	InitialMB          int
	FinalMB            int
	DurationSeconds    int
	InitialWaitSeconds int
}

// Validate returns the first violated constraint, or nil.
func (p Params) Validate() error {
	switch {
	case p.InitialMB >= p.FinalMB:
		return ErrInitialNotBelowFinal
	case p.DurationSeconds <= 0:
		return ErrNonPositiveDuration
	case p.InitialWaitSeconds < 0:
		return ErrNegativeWait
	case p.InitialMB < 0:
		return ErrNegativeInitial
	}
	return nil
}

// Rate is the ramp slope in MB per second.
func (p Params) Rate() float64 {
	return float64(p.FinalMB-p.InitialMB) / float64(p.DurationSeconds)
}

func (p Params) duration() time.Duration {
	return time.Duration(p.DurationSeconds) * time.Second
}

func (p Params) initialWait() time.Duration {
	return time.Duration(p.InitialWaitSeconds) * time.Second
}

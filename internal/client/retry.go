package client

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Policy controls the exponential backoff applied to transient pull failures.
type Policy struct {
	InitialInterval     time.Duration
	Multiplier          float64
	RandomizationFactor float64
	MaxInterval         time.Duration
	// MaxElapsedTime bounds the total time spent retrying one pull.
	MaxElapsedTime time.Duration
	// MaxRetries additionally caps the number of retries; 0 means no cap.
	MaxRetries uint64
}

// DefaultPolicy returns the standard exponential backoff settings.
func DefaultPolicy() Policy {
	return Policy{
		InitialInterval:     backoff.DefaultInitialInterval,
		Multiplier:          backoff.DefaultMultiplier,
		RandomizationFactor: backoff.DefaultRandomizationFactor,
		MaxInterval:         backoff.DefaultMaxInterval,
		MaxElapsedTime:      backoff.DefaultMaxElapsedTime,
	}
}

// withDefaults fills unset durations and multiplier. RandomizationFactor is
// kept as given since zero is a meaningful (deterministic) setting.
func (p Policy) withDefaults() Policy {
	if p == (Policy{}) {
		return DefaultPolicy()
	}
	def := DefaultPolicy()
	if p.InitialInterval <= 0 {
		p.InitialInterval = def.InitialInterval
	}
	if p.Multiplier < 1 {
		p.Multiplier = def.Multiplier
	}
	if p.MaxInterval <= 0 {
		p.MaxInterval = def.MaxInterval
	}
	if p.MaxElapsedTime <= 0 {
		p.MaxElapsedTime = def.MaxElapsedTime
	}
	return p
}

func (p Policy) backOff(ctx context.Context) backoff.BackOff {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = p.InitialInterval
	eb.Multiplier = p.Multiplier
	eb.RandomizationFactor = p.RandomizationFactor
	eb.MaxInterval = p.MaxInterval
	eb.MaxElapsedTime = p.MaxElapsedTime
	eb.Reset()

	var b backoff.BackOff = eb
	if p.MaxRetries > 0 {
		b = backoff.WithMaxRetries(b, p.MaxRetries)
	}
	return backoff.WithContext(b, ctx)
}

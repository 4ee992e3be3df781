// Package pace decides how long the lookup runner waits between registry
// requests. Lookups are strictly sequential; a Pacer only spaces them out.
package pace

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"github.com/gyeh/npi-enrich/internal/config"
)

// Pacer blocks between two consecutive requests. completed is the number of
// requests finished so far (>= 1). Wait returns ctx.Err() if ctx ends first.
type Pacer interface {
	Wait(ctx context.Context, completed int) error
}

// Fixed waits the same delay after every request.
type Fixed struct {
	Delay time.Duration
}

func (p Fixed) Wait(ctx context.Context, _ int) error {
	return sleep(ctx, p.Delay)
}

// None never waits.
type None struct{}

func (None) Wait(ctx context.Context, _ int) error {
	return ctx.Err()
}

// Exponential doubles the delay after every request, starting at Base and
// capped at Max (no cap when Max is zero).
type Exponential struct {
	Base time.Duration
	Max  time.Duration
}

func (p Exponential) Wait(ctx context.Context, completed int) error {
	return sleep(ctx, p.Delay(completed))
}

// Delay returns the wait after the given number of completed requests.
func (p Exponential) Delay(completed int) time.Duration {
	if p.Base <= 0 {
		return 0
	}
	d := p.Base
	for i := 1; i < completed; i++ {
		d *= 2
		if p.Max > 0 && d >= p.Max {
			return p.Max
		}
		if d <= 0 {
			return p.Max
		}
	}
	if p.Max > 0 && d > p.Max {
		return p.Max
	}
	return d
}

// Limiter spaces requests with a token bucket of burst 1. The first Wait of
// a run (completed == 1) reserves the token for the request that just
// finished, so the second request always waits a full interval.
type Limiter struct {
	limiter *rate.Limiter
}

// NewLimiter allows perSecond requests per second.
func NewLimiter(perSecond float64) *Limiter {
	return &Limiter{limiter: rate.NewLimiter(rate.Limit(perSecond), 1)}
}

func (p *Limiter) Wait(ctx context.Context, completed int) error {
	if completed <= 1 {
		p.limiter.Allow()
	}
	return p.limiter.Wait(ctx)
}

// FromConfig builds the Pacer selected by cfg.Pacing.
func FromConfig(cfg config.Config) (Pacer, error) {
	switch cfg.Pacing {
	case config.PacingFixed, "":
		return Fixed{Delay: cfg.LookupDelay}, nil
	case config.PacingNone:
		return None{}, nil
	case config.PacingExponential:
		return Exponential{Base: cfg.LookupDelay, Max: cfg.PacingMaxDelay}, nil
	case config.PacingRate:
		if cfg.RatePerSecond <= 0 {
			return nil, fmt.Errorf("rate pacing needs a positive rate, got %v", cfg.RatePerSecond)
		}
		return NewLimiter(cfg.RatePerSecond), nil
	default:
		return nil, fmt.Errorf("unknown pacing strategy %q", cfg.Pacing)
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

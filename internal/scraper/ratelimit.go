package scraper

import (
	"context"
	"math/rand"
	"time"

	"golang.org/x/time/rate"
)

// Pacer spaces out catalog requests. A token bucket enforces the sustained
// ceiling, and a randomized human-looking delay sits on top so fetches do not
// arrive on a metronome.
type Pacer struct {
	limiter  *rate.Limiter
	minDelay time.Duration
	maxDelay time.Duration
}

func NewPacer(requestsPerSecond float64, burst int, minDelay, maxDelay time.Duration) *Pacer {
	if requestsPerSecond <= 0 {
		requestsPerSecond = 1
	}
	if burst < 1 {
		burst = 1
	}
	if maxDelay < minDelay {
		maxDelay = minDelay
	}
	return &Pacer{
		limiter:  rate.NewLimiter(rate.Limit(requestsPerSecond), burst),
		minDelay: minDelay,
		maxDelay: maxDelay,
	}
}

// Wait blocks until the next request may go out or ctx is cancelled.
func (p *Pacer) Wait(ctx context.Context) error {
	if err := p.limiter.Wait(ctx); err != nil {
		return err
	}
	delay := p.minDelay
	if p.maxDelay > p.minDelay {
		delay += time.Duration(rand.Int63n(int64(p.maxDelay - p.minDelay)))
	}
	if delay <= 0 {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(delay):
		return nil
	}
}

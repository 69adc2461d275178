// Package ratelimit spaces out fetches to the same host with a token bucket
// per hostname.
package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/JakeFAU/menu-scraper/internal/metrics"
	"github.com/JakeFAU/menu-scraper/internal/scrape"
)

// Limiter manages per-host rate limits.
type Limiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	rps      rate.Limit
	burst    int
}

// Config holds rate limiter configuration.
type Config struct {
	// RPS is the sustained request rate per host. Zero or less disables limiting.
	RPS   float64
	Burst int
}

// New creates a new Limiter.
func New(cfg Config) *Limiter {
	r := rate.Limit(cfg.RPS)
	if cfg.RPS <= 0 {
		r = rate.Inf
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	return &Limiter{
		limiters: make(map[string]*rate.Limiter),
		rps:      r,
		burst:    burst,
	}
}

// Wait blocks until a token is available for the host of rawURL.
func (l *Limiter) Wait(ctx context.Context, rawURL string) error {
	host := metrics.SanitizeSite(rawURL)

	l.mu.Lock()
	limiter, ok := l.limiters[host]
	if !ok {
		limiter = rate.NewLimiter(l.rps, l.burst)
		l.limiters[host] = limiter
	}
	l.mu.Unlock()

	start := time.Now()
	if err := limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}
	// Tokens that were already available return in well under a millisecond.
	if waited := time.Since(start); waited > time.Millisecond {
		metrics.ObserveRateLimitDelay(host, waited)
	}
	return nil
}

// Fetcher waits on the Limiter before every fetch.
type Fetcher struct {
	next    scrape.Fetcher
	limiter *Limiter
}

var _ scrape.Fetcher = (*Fetcher)(nil)

// Wrap decorates next with limiter. A nil limiter returns next unchanged.
func Wrap(next scrape.Fetcher, limiter *Limiter) scrape.Fetcher {
	if limiter == nil {
		return next
	}
	return &Fetcher{next: next, limiter: limiter}
}

// Fetch waits for the target's host and then delegates. A canceled wait is
// reported as a fetch failure since nothing was retrieved.
func (f *Fetcher) Fetch(ctx context.Context, url string) (scrape.Page, error) {
	if err := f.limiter.Wait(ctx, url); err != nil {
		return nil, err
	}
	return f.next.Fetch(ctx, url)
}

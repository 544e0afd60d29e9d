// Package retrylimit paces and retries Discord REST calls. Rate limit and
// server errors slow the shared limiter down; successes speed it back up.
//
//	lim := retrylimit.NewAdaptiveLimiter(5, 1, 20, 1, 0.5)
//	err := retrylimit.Discord(ctx, lim, 3, log, func() error {
//	    _, err := s.ChannelMessageSendEmbed(channelID, embed)
//	    return err
//	})
package retrylimit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"net/http"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/lmittmann/tint"
	"golang.org/x/time/rate"
)

// quietPeriod is how long after the last failure the limiter stays at
// its reduced rate.
const quietPeriod = 10 * time.Second

// AdaptiveLimiter is a token bucket whose rate grows by stepUp after
// successes and shrinks by the stepDown factor after failures, within
// [min, max]. It is shared by every sender that talks to the same API.
type AdaptiveLimiter struct {
	mu        sync.RWMutex
	limiter   *rate.Limiter
	min, max  rate.Limit
	stepUp    rate.Limit
	stepDown  float64
	lastError time.Time
}

// NewAdaptiveLimiter starts at initial requests per second. Rates below
// one are raised to one.
func NewAdaptiveLimiter(initial, min, max, stepUp rate.Limit, stepDown float64) *AdaptiveLimiter {
	initial = max1(initial)
	return &AdaptiveLimiter{
		limiter:  rate.NewLimiter(initial, burst(initial)),
		min:      max1(min),
		max:      max,
		stepUp:   stepUp,
		stepDown: stepDown,
	}
}

func max1(l rate.Limit) rate.Limit {
	if l < 1 {
		return 1
	}
	return l
}

func burst(l rate.Limit) int {
	if b := int(l); b > 1 {
		return b
	}
	return 1
}

// Wait blocks until a request may be sent.
func (a *AdaptiveLimiter) Wait(ctx context.Context) error {
	return a.limiter.Wait(ctx)
}

// Success raises the rate unless a failure happened recently.
func (a *AdaptiveLimiter) Success() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if time.Since(a.lastError) > quietPeriod {
		a.set(a.limiter.Limit() + a.stepUp)
	}
}

// RateLimited lowers the rate after a 429 or 5xx response.
func (a *AdaptiveLimiter) RateLimited() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.lastError = time.Now()
	a.set(rate.Limit(float64(a.limiter.Limit()) * a.stepDown))
}

// CurrentLimit returns the current requests per second.
func (a *AdaptiveLimiter) CurrentLimit() float64 {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return float64(a.limiter.Limit())
}

// CurrentBurst returns the current bucket size.
func (a *AdaptiveLimiter) CurrentBurst() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.limiter.Burst()
}

func (a *AdaptiveLimiter) set(l rate.Limit) {
	l = min(max(l, a.min), a.max)
	if l != a.limiter.Limit() {
		a.limiter.SetLimit(l)
		a.limiter.SetBurst(burst(l))
	}
}

// FatalError stops retrying immediately.
type FatalError struct {
	Err error
}

func (f *FatalError) Error() string { return f.Err.Error() }
func (f *FatalError) Unwrap() error { return f.Err }

// Policy controls the backoff between attempts.
type Policy struct {
	MaxAttempts    int
	InitialDelay   time.Duration
	MaxDelay       time.Duration
	RateLimitDelay time.Duration // minimum wait after a 429
	Multiplier     float64
	Jitter         bool
	Logger         *slog.Logger
}

func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:    5,
		InitialDelay:   500 * time.Millisecond,
		MaxDelay:       10 * time.Second,
		RateLimitDelay: 100 * time.Millisecond,
		Multiplier:     2,
		Jitter:         true,
	}
}

// Do calls fn until it succeeds, returns a *FatalError, the context ends
// or the attempts run out. lim may be nil.
func Do(ctx context.Context, lim *AdaptiveLimiter, p Policy, fn func() error) error {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 1
	}
	log := p.Logger
	if log == nil {
		log = slog.Default()
	}

	delay := p.InitialDelay
	var last error
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if lim != nil {
			if err := lim.Wait(ctx); err != nil {
				return err
			}
		}

		last = fn()
		if last == nil {
			if lim != nil {
				lim.Success()
			}
			if attempt > 1 {
				log.Debug("retry succeeded", "attempts", attempt)
			}
			return nil
		}
		if isFatal(last) || attempt == p.MaxAttempts {
			break
		}

		wait, backoff := delay, true
		switch {
		case isRateLimited(last):
			if lim != nil {
				lim.RateLimited()
			}
			wait, backoff = max(p.RateLimitDelay, retryAfter(last)), false
			log.Warn("rate limited", "attempt", attempt, "wait", wait)
		case isServerError(last):
			if lim != nil {
				lim.RateLimited()
			}
			log.Warn("server error, retrying", "attempt", attempt, "wait", wait, tint.Err(last))
		default:
			log.Warn("request failed, retrying", "attempt", attempt, "wait", wait, tint.Err(last))
		}
		if backoff && p.Jitter {
			wait = jitter(wait)
		}

		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}

		if backoff {
			delay = min(time.Duration(float64(delay)*p.Multiplier), p.MaxDelay)
		}
	}

	var fatal *FatalError
	if errors.As(last, &fatal) {
		return fatal.Err
	}
	if p.MaxAttempts > 1 {
		return fmt.Errorf("gave up after %d attempts: %w", p.MaxAttempts, last)
	}
	return last
}

// Discord runs fn under the default policy with maxAttempts, failing fast
// on 4xx responses such as missing permissions or unknown channels.
func Discord(ctx context.Context, lim *AdaptiveLimiter, maxAttempts int, log *slog.Logger, fn func() error) error {
	p := DefaultPolicy()
	p.MaxAttempts = maxAttempts
	p.Logger = log
	return Do(ctx, lim, p, func() error {
		err := fn()
		if err != nil && IsClientError(err) {
			return &FatalError{Err: err}
		}
		return err
	})
}

// jitter adds up to 25% to d.
func jitter(d time.Duration) time.Duration {
	if d < 4 {
		return d
	}
	return d + time.Duration(rand.Int63n(int64(d/4)))
}

func isFatal(err error) bool {
	var fatal *FatalError
	return errors.As(err, &fatal)
}

func statusCode(err error) int {
	var rl *discordgo.RateLimitError
	if errors.As(err, &rl) {
		return http.StatusTooManyRequests
	}
	var rest *discordgo.RESTError
	if errors.As(err, &rest) && rest.Response != nil {
		return rest.Response.StatusCode
	}
	return 0
}

func retryAfter(err error) time.Duration {
	var rl *discordgo.RateLimitError
	if errors.As(err, &rl) && rl.RateLimit != nil && rl.TooManyRequests != nil {
		return rl.RetryAfter
	}
	return 0
}

func isRateLimited(err error) bool {
	return statusCode(err) == http.StatusTooManyRequests
}

func isServerError(err error) bool {
	code := statusCode(err)
	return code >= 500 && code < 600
}

// IsClientError reports whether err is a 4xx response other than 429.
func IsClientError(err error) bool {
	code := statusCode(err)
	return code >= 400 && code < 500 && code != http.StatusTooManyRequests
}

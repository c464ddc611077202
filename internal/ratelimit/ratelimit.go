// Package ratelimit implements the RateLimiter (C5): a sliding-window
// attempt counter with lockout, guarding ProfileRegistry.Authenticate
// against brute-force password guessing.
//
// No direct teacher analog exists - Picocrypt-NG has no authentication
// concept at all - so this is built in Picocrypt-NG's idiom for small
// concurrent state: a mutex-guarded struct with short critical sections,
// the same shape internal/app/state.go uses to guard its own State.
package ratelimit

import (
	"sync"
	"time"

	"phantomvault/internal/config"
	"phantomvault/internal/errs"
)

// record tracks one identifier's current window.
type record struct {
	windowStart  time.Time
	attemptCount int
	locked       bool
	lockoutUntil time.Time
}

// Info is the read-only snapshot returned by Info().
type Info struct {
	Identifier   string
	AttemptCount int
	Locked       bool
	LockoutUntil time.Time
}

// Limiter is a sliding-window rate limiter, one independent window per
// identifier (normally a profile id).
type Limiter struct {
	mu     sync.Mutex
	policy config.RateLimitPolicy
	onFail func(identifier string) // CRITICAL audit hook for the fail-open path
	now    func() time.Time

	records map[string]*record
}

// New builds a Limiter from policy. onCritical, if non-nil, is invoked
// synchronously whenever internal state forces a fail-open decision, a
// deliberate availability-over-strictness trade-off.
func New(policy config.RateLimitPolicy, onCritical func(identifier string)) *Limiter {
	return &Limiter{
		policy:  policy,
		onFail:  onCritical,
		now:     time.Now,
		records: make(map[string]*record),
	}
}

// Check reports whether identifier may proceed. It does not itself count as
// an attempt - callers record outcomes separately via RecordFailure/Reset -
// so repeatedly calling Check without ever failing or succeeding never
// advances the window.
func (l *Limiter) Check(identifier string) (err error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	// Fail open on an internal panic (e.g. corrupted record state) rather
	// than locking every profile out for a bug in this package - the same
	// deliberate availability-over-strictness trade-off New documents.
	defer func() {
		if p := recover(); p != nil {
			err = nil
			if l.onFail != nil {
				l.onFail(identifier)
			}
		}
	}()

	rec, ok := l.records[identifier]
	if !ok {
		return nil
	}

	now := l.now()
	if rec.locked {
		if now.Before(rec.lockoutUntil) {
			return errs.ErrRateLimited
		}
		// Lockout window has elapsed: clear the locked state and reset the
		// counter and window here, before the next attempt is recorded.
		rec.locked = false
		rec.attemptCount = 0
		rec.windowStart = now
	}

	return nil
}

// RecordFailure counts one failed attempt against identifier, rolling the
// window forward or triggering a lockout once the policy's threshold is
// crossed.
func (l *Limiter) RecordFailure(identifier string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	rec, ok := l.records[identifier]
	if !ok {
		rec = &record{windowStart: now}
		l.records[identifier] = rec
	}

	if rec.locked && now.Before(rec.lockoutUntil) {
		return // already locked; nothing new to compute
	}

	if now.Sub(rec.windowStart) > l.policy.Window {
		rec.windowStart = now
		rec.attemptCount = 0
		rec.locked = false
	}

	rec.attemptCount++
	if rec.attemptCount >= l.policy.MaxAttempts {
		rec.locked = true
		rec.lockoutUntil = now.Add(l.policy.LockoutDuration)
	}
}

// Reset clears identifier's window entirely, used after a successful
// authentication.
func (l *Limiter) Reset(identifier string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.records, identifier)
}

// Info returns a snapshot of identifier's current window state.
func (l *Limiter) Info(identifier string) Info {
	l.mu.Lock()
	defer l.mu.Unlock()

	rec, ok := l.records[identifier]
	if !ok {
		return Info{Identifier: identifier}
	}
	return Info{
		Identifier:   identifier,
		AttemptCount: rec.attemptCount,
		Locked:       rec.locked,
		LockoutUntil: rec.lockoutUntil,
	}
}

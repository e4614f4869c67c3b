// Copyright (C) 2025 Lurelab (engineering@lurelab.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package llmsafety wraps every LLM call in a resilience layer: per-module
// circuit breakers, hard timeouts, pre-call jitter, a process-wide
// concurrency bound, and synchronous fallbacks. Consumers never see an LLM
// error; they see their fallback value.
package llmsafety

import (
	"log/slog"
	"sync"
	"time"
)

// BreakerState is the classic closed/open/half-open triple.
type BreakerState int

const (
	StateClosed BreakerState = iota
	StateOpen
	StateHalfOpen
)

func (s BreakerState) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	}
	return "unknown"
}

const (
	breakerMaxFailures = 3
	breakerWindow      = 60 * time.Second
	breakerCooldown    = 60 * time.Second
)

// CircuitBreaker trips open after breakerMaxFailures failures inside a
// rolling breakerWindow. After breakerCooldown it admits a single half-open
// probe; the probe's outcome decides between closed and another full
// cooldown. Safe for concurrent use.
type CircuitBreaker struct {
	name  string
	clock Clock

	mu            sync.Mutex
	state         BreakerState
	failures      []time.Time
	openedAt      time.Time
	probeInFlight bool
}

func NewCircuitBreaker(name string, clock Clock) *CircuitBreaker {
	return &CircuitBreaker{name: name, clock: clock, state: StateClosed}
}

// Allow reports whether a call may proceed right now. In half-open state
// only one probe is admitted at a time.
func (b *CircuitBreaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.clock.Now()
	switch b.state {
	case StateClosed:
		return true
	case StateOpen:
		if now.Sub(b.openedAt) < breakerCooldown {
			return false
		}
		b.state = StateHalfOpen
		b.probeInFlight = true
		slog.Info("circuit breaker half-open, admitting probe", "breaker", b.name)
		return true
	case StateHalfOpen:
		if b.probeInFlight {
			return false
		}
		b.probeInFlight = true
		return true
	}
	return false
}

// RecordSuccess closes the breaker from half-open and trims the failure
// window in closed state.
func (b *CircuitBreaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == StateHalfOpen {
		slog.Info("circuit breaker closed after successful probe", "breaker", b.name)
	}
	b.state = StateClosed
	b.probeInFlight = false
	b.failures = b.failures[:0]
}

// RecordFailure counts one failure. A half-open probe failure reopens
// immediately; in closed state the rolling window decides the trip.
func (b *CircuitBreaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.clock.Now()
	if b.state == StateHalfOpen {
		b.state = StateOpen
		b.openedAt = now
		b.probeInFlight = false
		slog.Warn("circuit breaker reopened after failed probe", "breaker", b.name)
		return
	}

	// Drop failures that aged out of the rolling window.
	kept := b.failures[:0]
	for _, t := range b.failures {
		if now.Sub(t) <= breakerWindow {
			kept = append(kept, t)
		}
	}
	b.failures = append(kept, now)

	if len(b.failures) >= breakerMaxFailures {
		b.state = StateOpen
		b.openedAt = now
		b.failures = b.failures[:0]
		slog.Warn("circuit breaker tripped", "breaker", b.name, "cooldown", breakerCooldown)
	}
}

// State returns the current state, promoting open to half-open if the
// cooldown has elapsed.
func (b *CircuitBreaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == StateOpen && b.clock.Now().Sub(b.openedAt) >= breakerCooldown {
		return StateHalfOpen
	}
	return b.state
}

// ForceOpen trips the breaker for a full cooldown starting now. Used by the
// LLM kill-switch and by tests.
func (b *CircuitBreaker) ForceOpen() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = StateOpen
	b.openedAt = b.clock.Now()
	b.probeInFlight = false
}

// Copyright (C) 2025 Lurelab (engineering@lurelab.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package llmsafety

import (
	"context"
	"log/slog"
	"math/rand"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"
)

// Module names the three logical LLM consumers. Each gets its own breaker
// and timeout; a flaky extractor must not disable classification.
type Module string

const (
	ModuleClassifier Module = "classifier"
	ModuleGenerator  Module = "generator"
	ModuleExtractor  Module = "extractor"
)

var moduleTimeouts = map[Module]time.Duration{
	ModuleClassifier: 800 * time.Millisecond,
	ModuleGenerator:  1200 * time.Millisecond,
	ModuleExtractor:  800 * time.Millisecond,
}

const (
	jitterMin = 10 * time.Millisecond
	jitterMax = 30 * time.Millisecond
)

// Fabric holds the process-global breakers and the LLM concurrency bound.
type Fabric struct {
	clock    Clock
	breakers map[Module]*CircuitBreaker
	sem      *semaphore.Weighted
	disabled atomic.Bool

	// jitter and sleep are injectable so tests don't pay real wall time.
	jitter func() time.Duration
	sleep  func(time.Duration)
}

// New builds a Fabric with one breaker per module and a semaphore sized to
// the upstream concurrency budget.
func New(clock Clock, maxConcurrent int64) *Fabric {
	if maxConcurrent <= 0 {
		maxConcurrent = 8
	}
	f := &Fabric{
		clock:    clock,
		breakers: make(map[Module]*CircuitBreaker),
		sem:      semaphore.NewWeighted(maxConcurrent),
		jitter: func() time.Duration {
			return jitterMin + time.Duration(rand.Int63n(int64(jitterMax-jitterMin)))
		},
		sleep: time.Sleep,
	}
	for _, m := range []Module{ModuleClassifier, ModuleGenerator, ModuleExtractor} {
		f.breakers[m] = NewCircuitBreaker(string(m), clock)
	}
	return f
}

// Breaker exposes a module's breaker (ops kill-switch, tests).
func (f *Fabric) Breaker(m Module) *CircuitBreaker { return f.breakers[m] }

// Timeout returns the call budget for a module.
func Timeout(m Module) time.Duration {
	if d, ok := moduleTimeouts[m]; ok {
		return d
	}
	return 800 * time.Millisecond
}

// SafeCall runs fn under module's breaker, timeout, and the global
// concurrency bound, returning fallback synchronously on any failure path.
// The 10-30ms jitter is slept before the timeout starts, so the timeout
// budget covers only the remote work.
func SafeCall[T any](ctx context.Context, f *Fabric, m Module, fn func(context.Context) (T, error), fallback T) T {
	if f.disabled.Load() {
		return fallback
	}
	breaker := f.breakers[m]
	if breaker == nil || !breaker.Allow() {
		slog.Warn("llm call skipped, breaker open", "module", m)
		return fallback
	}

	if !f.sem.TryAcquire(1) {
		// Saturated upstream: fall back to templates rather than queue.
		slog.Warn("llm call skipped, concurrency budget saturated", "module", m)
		return fallback
	}
	defer f.sem.Release(1)

	f.sleep(f.jitter())

	callCtx, cancel := context.WithTimeout(ctx, Timeout(m))
	defer cancel()

	type outcome struct {
		val T
		err error
	}
	done := make(chan outcome, 1)
	start := f.clock.Now()
	go func() {
		v, err := fn(callCtx)
		done <- outcome{v, err}
	}()

	select {
	case out := <-done:
		elapsed := f.clock.Now().Sub(start)
		if out.err != nil {
			breaker.RecordFailure()
			slog.Warn("llm call failed, using fallback",
				"module", m, "error", out.err, "elapsedMs", elapsed.Milliseconds())
			return fallback
		}
		breaker.RecordSuccess()
		slog.Debug("llm call succeeded", "module", m, "elapsedMs", elapsed.Milliseconds())
		return out.val
	case <-callCtx.Done():
		breaker.RecordFailure()
		slog.Warn("llm call timed out, using fallback", "module", m, "timeout", Timeout(m))
		return fallback
	}
}

// Available reports whether a module would admit a call right now.
func (f *Fabric) Available(m Module) bool {
	if f.disabled.Load() {
		return false
	}
	b := f.breakers[m]
	return b != nil && b.State() != StateOpen
}

// DisableAll is the master kill-switch, used when LLM_ENABLED=false or the
// provider credential is absent. Unlike a tripped breaker it never recovers.
func (f *Fabric) DisableAll() { f.disabled.Store(true) }

// Copyright (C) 2025 Lurelab (engineering@lurelab.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package callback delivers the finalization report to the configured
// consumer.
//
// Delivery runs outside the request path: up to three POST attempts with
// exponential jittered backoff, then durable parking in the retry queue. A
// recovery pass drains the queue on startup. The consumer is expected to be
// idempotent on sessionId.
package callback

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand"
	"net/http"
	"sync"
	"time"

	"github.com/lurelab/scamlure/datatypes"
	"github.com/lurelab/scamlure/observability"
)

const (
	maxAttempts    = 3
	attemptTimeout = 3 * time.Second
	// backoffJitterFrac spreads each backoff by up to ±20%.
	backoffJitterFrac = 0.2
)

// backoffBase yields 1s, 2s, 4s for attempts 1..3.
func backoffBase(attempt int) time.Duration {
	return time.Duration(1<<(attempt-1)) * time.Second
}

// Dispatcher posts finalization payloads asynchronously. A zero URL puts the
// service in development mode: payloads go straight to the retry queue for
// inspection, no network I/O happens.
type Dispatcher struct {
	url    string
	client *http.Client
	queue  *Queue
	logger *slog.Logger

	wg sync.WaitGroup

	// sleep and jitter are injectable for tests.
	sleep  func(time.Duration)
	jitter func() float64
}

func NewDispatcher(url string, queue *Queue, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		url:    url,
		client: &http.Client{Timeout: attemptTimeout},
		queue:  queue,
		logger: logger,
		sleep:  time.Sleep,
		jitter: rand.Float64,
	}
}

// Dispatch schedules one asynchronous delivery and returns immediately.
func (d *Dispatcher) Dispatch(payload datatypes.FinalCallbackPayload) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.deliver(payload)
	}()
}

// Wait blocks until all scheduled deliveries have settled. Used on shutdown
// and in tests.
func (d *Dispatcher) Wait() { d.wg.Wait() }

// RecoverQueued drains the retry queue and re-dispatches every parked
// payload. Call once on startup.
func (d *Dispatcher) RecoverQueued() {
	if d.queue == nil || d.url == "" {
		return
	}
	entries, err := d.queue.Drain()
	if err != nil {
		d.logger.Error("failed to drain the callback retry queue", "error", err.Error())
	}
	if len(entries) == 0 {
		return
	}
	d.logger.Info("re-dispatching parked callbacks", "count", len(entries))
	for _, e := range entries {
		d.Dispatch(e.Payload)
	}
}

func (d *Dispatcher) deliver(payload datatypes.FinalCallbackPayload) {
	if d.url == "" {
		d.park(payload, "no callback URL configured")
		return
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if attempt > 1 {
			d.sleep(d.backoff(attempt - 1))
		}
		if err := d.post(payload); err != nil {
			lastErr = err
			observability.ObserveCallbackAttempt("failure")
			d.logger.Warn("callback attempt failed",
				"sessionId", payload.SessionID,
				"attempt", attempt,
				"error", err.Error())
			continue
		}
		observability.ObserveCallbackAttempt("success")
		d.logger.Info("callback delivered",
			"sessionId", payload.SessionID, "attempt", attempt)
		return
	}

	d.logger.Error("callback delivery exhausted, parking payload",
		"sessionId", payload.SessionID, "error", lastErr.Error())
	d.park(payload, "delivery exhausted")
}

func (d *Dispatcher) post(payload datatypes.FinalCallbackPayload) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal callback payload: %w", err)
	}

	resp, err := d.client.Post(d.url, "application/json", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("callback POST failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("callback consumer returned status %d", resp.StatusCode)
	}
	return nil
}

func (d *Dispatcher) park(payload datatypes.FinalCallbackPayload, why string) {
	if d.queue == nil {
		d.logger.Error("callback payload dropped, no retry queue configured",
			"sessionId", payload.SessionID)
		return
	}
	entry, err := d.queue.Append(payload)
	if err != nil {
		d.logger.Error("failed to park callback payload",
			"sessionId", payload.SessionID, "error", err.Error())
		return
	}
	observability.ObserveCallbackAttempt("queued")
	d.logger.Info("callback payload parked for retry",
		"sessionId", payload.SessionID, "entryId", entry.ID, "reason", why)
}

// backoff returns the base delay for the given completed attempt count,
// spread by ±20% jitter.
func (d *Dispatcher) backoff(completed int) time.Duration {
	base := backoffBase(completed)
	spread := 1 + backoffJitterFrac*(2*d.jitter()-1)
	return time.Duration(float64(base) * spread)
}

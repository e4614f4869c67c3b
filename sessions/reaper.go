// Copyright (C) 2025 Lurelab (engineering@lurelab.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package sessions

import (
	"time"

	"github.com/lurelab/scamlure/datatypes"
)

// StartReaper launches the idle scanner. Sessions silent past the idle
// timeout are finalized with the forced status. Safe to call once; stop with
// StopReaper.
func (m *Manager) StartReaper() {
	m.reapOnce.Do(func() {
		go m.reapLoop()
	})
}

// StopReaper halts the scanner. Idempotent.
func (m *Manager) StopReaper() {
	m.stopOnce.Do(func() {
		close(m.done)
	})
}

func (m *Manager) reapLoop() {
	ticker := time.NewTicker(m.reapInterval)
	defer ticker.Stop()

	m.logger.Info("idle reaper started",
		"interval", m.reapInterval.String(),
		"idleTimeout", m.idleTimeout.String())

	for {
		select {
		case <-m.done:
			m.logger.Info("idle reaper stopped")
			return
		case <-ticker.C:
			m.reapIdle()
		}
	}
}

// reapIdle finalizes every session whose last activity is older than the
// idle timeout.
func (m *Manager) reapIdle() {
	now := m.clock.Now()

	m.mu.RLock()
	entries := make([]*sessionEntry, 0, len(m.sessions))
	for _, e := range m.sessions {
		entries = append(entries, e)
	}
	m.mu.RUnlock()

	for _, e := range entries {
		e.mu.Lock()
		s := e.s
		if s.State != datatypes.StateFinalized && now.Sub(s.LastActivityAt) >= m.idleTimeout {
			m.logger.Info("reaping idle session",
				"sessionId", s.SessionID,
				"idleSeconds", int(now.Sub(s.LastActivityAt).Seconds()))
			m.finalize(s, statusFinal, reasonIdle, now)
		}
		e.mu.Unlock()
	}
}

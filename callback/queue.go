// Copyright (C) 2025 Lurelab (engineering@lurelab.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package callback

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/lurelab/scamlure/datatypes"
	"github.com/lurelab/scamlure/observability"
)

// Entry is one queued payload awaiting redelivery. Entries are written as
// single JSON lines.
type Entry struct {
	ID       string                         `json:"id"`
	QueuedAt int64                          `json:"queuedAt"`
	Payload  datatypes.FinalCallbackPayload `json:"payload"`
}

// Queue is the durable retry queue: an append-only line-JSON file. It is the
// only persisted state in the service.
type Queue struct {
	mu   sync.Mutex
	path string
}

func NewQueue(path string) *Queue {
	return &Queue{path: path}
}

// Append durably records a payload for later redelivery.
func (q *Queue) Append(payload datatypes.FinalCallbackPayload) (Entry, error) {
	entry := Entry{
		ID:       uuid.NewString(),
		QueuedAt: time.Now().UnixMilli(),
		Payload:  payload,
	}
	line, err := json.Marshal(entry)
	if err != nil {
		return Entry{}, fmt.Errorf("failed to marshal queue entry: %w", err)
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	f, err := os.OpenFile(q.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return Entry{}, fmt.Errorf("failed to open retry queue %s: %w", q.path, err)
	}
	defer f.Close()

	if _, err := f.Write(append(line, '\n')); err != nil {
		return Entry{}, fmt.Errorf("failed to append to retry queue: %w", err)
	}
	if err := f.Sync(); err != nil {
		return Entry{}, fmt.Errorf("failed to sync retry queue: %w", err)
	}
	observability.SetCallbackQueueDepth(q.depthLocked())
	return entry, nil
}

// Drain atomically reads every entry and truncates the file. Corrupt lines
// are skipped, not fatal.
func (q *Queue) Drain() ([]Entry, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	f, err := os.Open(q.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open retry queue %s: %w", q.path, err)
	}

	var entries []Entry
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		var e Entry
		if err := json.Unmarshal(scanner.Bytes(), &e); err != nil {
			continue
		}
		entries = append(entries, e)
	}
	scanErr := scanner.Err()
	f.Close()
	if scanErr != nil {
		return entries, fmt.Errorf("failed to scan retry queue: %w", scanErr)
	}

	if err := os.Truncate(q.path, 0); err != nil {
		return entries, fmt.Errorf("failed to truncate retry queue: %w", err)
	}
	observability.SetCallbackQueueDepth(0)
	return entries, nil
}

// Depth counts queued entries. Used by tests and the stats surface.
func (q *Queue) Depth() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.depthLocked()
}

func (q *Queue) depthLocked() int {
	f, err := os.Open(q.path)
	if err != nil {
		return 0
	}
	defer f.Close()

	n := 0
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		if len(scanner.Bytes()) > 0 {
			n++
		}
	}
	return n
}

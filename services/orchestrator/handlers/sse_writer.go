// Copyright (C) 2025 Pizza Alchemy (engineering@pizzaalchemy.com)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/PizzaAlchemy/AlchemyChat/services/orchestrator/datatypes"
)

// SSEWriter writes server-sent events with an integrity hash chain.
//
// Every event hashes its own content and carries the previous event's hash,
// so a client can detect dropped or reordered events after the fact.
// Keepalive comments are not events and do not participate in the chain.
type SSEWriter interface {
	// WriteEvent writes a fully-specified event. Id, CreatedAt, Hash and
	// PrevHash are populated by the writer.
	WriteEvent(event datatypes.StreamEvent) error

	// WriteStatus emits a status event (e.g. "Thinking...").
	WriteStatus(message string) error

	// WriteToken emits one response fragment.
	WriteToken(content string) error

	// WriteError emits a terminal error event.
	WriteError(errMsg string) error

	// WriteDone emits the terminal done event carrying the full response
	// and the updated conversation history.
	WriteDone(response string, history []datatypes.Message) error

	// WriteKeepAlive emits an SSE comment to hold the connection open.
	WriteKeepAlive() error
}

// sseWriter is the production SSEWriter. Thread-safe: the heartbeat
// goroutine and the token loop write concurrently.
type sseWriter struct {
	writer   http.ResponseWriter
	flusher  http.Flusher
	prevHash string
	mu       sync.Mutex
}

// NewSSEWriter wraps a ResponseWriter. The caller must set SSE headers
// first via SetSSEHeaders.
func NewSSEWriter(w http.ResponseWriter) (SSEWriter, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("ResponseWriter does not support http.Flusher")
	}
	return &sseWriter{
		writer:  w,
		flusher: flusher,
	}, nil
}

func (w *sseWriter) WriteEvent(event datatypes.StreamEvent) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	event.Id = uuid.New().String()
	event.CreatedAt = time.Now().UnixMilli()
	event.PrevHash = w.prevHash
	event.Hash = computeEventHash(event)
	w.prevHash = event.Hash

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	if _, err := fmt.Fprintf(w.writer, "event: %s\ndata: %s\n\n", event.Type, data); err != nil {
		return fmt.Errorf("write event: %w", err)
	}
	w.flusher.Flush()
	return nil
}

// computeEventHash hashes every content field. History is JSON-serialized
// so the done event's payload is covered too.
func computeEventHash(event datatypes.StreamEvent) string {
	historyJSON := ""
	if len(event.History) > 0 {
		if data, err := json.Marshal(event.History); err == nil {
			historyJSON = string(data)
		}
	}

	hashInput := fmt.Sprintf("%s|%s|%d|%s|%s|%s|%s",
		event.Id,
		event.Type,
		event.CreatedAt,
		event.PrevHash,
		event.Content,
		event.Error,
		historyJSON,
	)

	hash := sha256.Sum256([]byte(hashInput))
	return hex.EncodeToString(hash[:])
}

func (w *sseWriter) WriteStatus(message string) error {
	return w.WriteEvent(datatypes.StreamEvent{
		Type:    datatypes.StreamEventStatus,
		Content: message,
	})
}

func (w *sseWriter) WriteToken(content string) error {
	return w.WriteEvent(datatypes.StreamEvent{
		Type:    datatypes.StreamEventToken,
		Content: content,
	})
}

func (w *sseWriter) WriteError(errMsg string) error {
	return w.WriteEvent(datatypes.StreamEvent{
		Type:  datatypes.StreamEventError,
		Error: errMsg,
	})
}

func (w *sseWriter) WriteDone(response string, history []datatypes.Message) error {
	return w.WriteEvent(datatypes.StreamEvent{
		Type:    datatypes.StreamEventDone,
		Content: response,
		History: history,
	})
}

// WriteKeepAlive writes the ": ping" comment. Comments are invisible to
// EventSource clients and keep proxies from closing an idle stream.
func (w *sseWriter) WriteKeepAlive() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if _, err := fmt.Fprint(w.writer, ": ping\n\n"); err != nil {
		return fmt.Errorf("write keepalive: %w", err)
	}
	w.flusher.Flush()
	return nil
}

// SetSSEHeaders sets the response headers required for server-sent events.
func SetSSEHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
}

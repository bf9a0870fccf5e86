// Copyright (C) 2025 Pizza Alchemy (engineering@pizzaalchemy.com)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package llm

import (
	"context"
	"fmt"

	"github.com/PizzaAlchemy/AlchemyChat/services/orchestrator/datatypes"
)

// =============================================================================
// Stream Event Types
// =============================================================================

// StreamEventType identifies the kind of event emitted during streaming.
type StreamEventType string

const (
	// StreamEventToken is a content fragment from the model.
	StreamEventToken StreamEventType = "token"

	// StreamEventDone signals the end of the stream.
	StreamEventDone StreamEventType = "done"

	// StreamEventError signals a backend-reported failure mid-stream.
	StreamEventError StreamEventType = "error"
)

// StreamEvent is a single event delivered to a StreamCallback.
type StreamEvent struct {
	Type    StreamEventType
	Content string
	Err     error
}

// StreamCallback receives stream events in arrival order. Returning a
// non-nil error aborts the stream.
type StreamCallback func(event StreamEvent) error

// =============================================================================
// Stream Processing
// =============================================================================

// StreamConfig bounds stream processing.
type StreamConfig struct {
	// MaxResponseBytes caps the accumulated response size. 0 means no cap.
	MaxResponseBytes int
}

// DefaultStreamConfig returns the standard stream limits.
func DefaultStreamConfig() StreamConfig {
	return StreamConfig{
		MaxResponseBytes: 1 << 20, // 1MB
	}
}

// ollamaStreamChunk is one NDJSON line from the Ollama /api/chat stream.
type ollamaStreamChunk struct {
	Message datatypes.Message `json:"message"`
	Done    bool              `json:"done"`
	Error   string            `json:"error,omitempty"`
}

// DefaultStreamProcessor turns raw backend chunks into StreamEvents and
// tracks the accumulated response length against the configured cap.
type DefaultStreamProcessor struct {
	cfg        StreamConfig
	totalBytes int
}

// NewDefaultStreamProcessor creates a processor with the given config.
// The second parameter is reserved for a metrics hook and may be nil.
func NewDefaultStreamProcessor(cfg StreamConfig, _ any) *DefaultStreamProcessor {
	return &DefaultStreamProcessor{cfg: cfg}
}

// ProcessChunk handles one decoded chunk. It returns done=true when the
// stream has ended, either normally or because of a chunk-level error.
func (p *DefaultStreamProcessor) ProcessChunk(ctx context.Context, chunk *ollamaStreamChunk, callback StreamCallback) (bool, error) {
	if err := ctx.Err(); err != nil {
		return true, err
	}

	if chunk.Error != "" {
		chunkErr := fmt.Errorf("backend stream error: %s", chunk.Error)
		_ = callback(StreamEvent{Type: StreamEventError, Err: chunkErr})
		return true, chunkErr
	}

	if chunk.Message.Content != "" {
		p.totalBytes += len(chunk.Message.Content)
		if p.cfg.MaxResponseBytes > 0 && p.totalBytes > p.cfg.MaxResponseBytes {
			overErr := fmt.Errorf("stream exceeded response cap of %d bytes", p.cfg.MaxResponseBytes)
			_ = callback(StreamEvent{Type: StreamEventError, Err: overErr})
			return true, overErr
		}
		if err := callback(StreamEvent{Type: StreamEventToken, Content: chunk.Message.Content}); err != nil {
			return true, fmt.Errorf("stream callback aborted: %w", err)
		}
	}

	if chunk.Done {
		if err := callback(StreamEvent{Type: StreamEventDone}); err != nil {
			return true, fmt.Errorf("stream callback aborted on done: %w", err)
		}
		return true, nil
	}
	return false, nil
}

// Copyright (C) 2025 Pizza Alchemy (engineering@pizzaalchemy.com)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package datatypes provides data structures for the orchestrator service.
//
// This file contains request and response types for the chat endpoints.
// For Weaviate schema and query types, see weaviate_schemas.go and
// weaviate_query.go.
package datatypes

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

// =============================================================================
// Limits
// =============================================================================

const (
	// MaxMessageContentBytes is the maximum size of a single message content.
	// Byte length, not rune count: oversized payloads are rejected before they
	// reach the model.
	MaxMessageContentBytes = 32 * 1024 // 32KB

	// MaxMessagesPerRequest is the maximum number of history messages in a
	// request.
	MaxMessagesPerRequest = 100
)

// Message roles understood by every LLM backend we route to.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// =============================================================================
// Shared Validator Instance
// =============================================================================

// chatValidate is the validator instance for chat datatypes.
// Initialized in init() with custom validators.
var chatValidate *validator.Validate

func init() {
	chatValidate = validator.New()
	_ = chatValidate.RegisterValidation("maxbytes", validateMaxBytes)
}

// validateMaxBytes reports whether a string field fits in
// MaxMessageContentBytes.
func validateMaxBytes(fl validator.FieldLevel) bool {
	content := fl.Field().String()
	return len(content) <= MaxMessageContentBytes
}

// =============================================================================
// Chat Types
// =============================================================================

// Message is a single conversation turn.
//
// Role is one of RoleUser, RoleAssistant or RoleSystem. A system turn in
// client-held history has exactly one meaning: it carries the running
// conversation summary (see the conversation package). The waiter persona is
// never stored in client history; it is injected server-side on every
// generation.
type Message struct {
	Role    string `json:"role" validate:"required,oneof=user assistant system"`
	Content string `json:"content" validate:"required,maxbytes"`
}

// ChatRequest represents a chat request body for POST /v1/chat and
// POST /v1/chat/stream.
//
// # Fields
//
//   - RequestID: Required. Unique identifier for this request (UUID v4).
//     Used for tracing and log correlation.
//   - Timestamp: Required. Unix timestamp in milliseconds (UTC).
//   - Message: Required. The new customer message, max 32KB.
//   - History: Optional. Prior conversation turns as returned by the previous
//     response. Opaque to clients: either raw user/assistant turns or a single
//     system summary turn. 0-100 elements.
//   - MaxTokens: Optional. Generation cap, defaulted server-side.
//   - Temperature: Optional. Sampling temperature, defaulted server-side.
//
// # Validation
//
// Uses go-playground/validator:
//   - RequestID: required, must be valid UUID v4
//   - Timestamp: required, must be > 0
//   - Message: required, max 32768 bytes
//   - History: 0-100 elements, each element validated
type ChatRequest struct {
	RequestID   string    `json:"request_id" validate:"required,uuid4"`
	Timestamp   int64     `json:"timestamp" validate:"required,gt=0"`
	Message     string    `json:"message" validate:"required,maxbytes"`
	History     []Message `json:"history" validate:"omitempty,max=100,dive"`
	MaxTokens   int       `json:"max_tokens" validate:"omitempty,gte=0,lte=8192"`
	Temperature float64   `json:"temperature" validate:"omitempty,gte=0,lte=2"`
}

// EnsureDefaults applies server-side defaults to optional fields.
func (r *ChatRequest) EnsureDefaults() {
	if r.Timestamp == 0 {
		r.Timestamp = time.Now().UnixMilli()
	}
	if r.MaxTokens == 0 {
		r.MaxTokens = 1024
	}
	if r.Temperature == 0 {
		r.Temperature = 0.7
	}
}

// Validate validates the request using the shared validator instance.
func (r *ChatRequest) Validate() error {
	if err := chatValidate.Struct(r); err != nil {
		return fmt.Errorf("chat request validation failed: %w", err)
	}
	if len(r.History) > MaxMessagesPerRequest {
		return fmt.Errorf("history exceeds %d messages", MaxMessagesPerRequest)
	}
	return nil
}

// ChatResponse is the reply body for POST /v1/chat.
//
// History is the updated conversation state the client must echo back on the
// next request. ContextUsed reports whether any knowledge-base context was
// attached to the turn.
type ChatResponse struct {
	RequestID   string    `json:"request_id"`
	Response    string    `json:"response"`
	History     []Message `json:"history"`
	ContextUsed bool      `json:"context_used"`
	DurationMs  int64     `json:"duration_ms"`
}

// =============================================================================
// Streaming Types
// =============================================================================

// Stream event types emitted on the SSE channel.
const (
	StreamEventStatus = "status"
	StreamEventToken  = "token"
	StreamEventDone   = "done"
	StreamEventError  = "error"
)

// StreamEvent is a single SSE payload on POST /v1/chat/stream.
//
// Token events carry Content fragments whose in-order concatenation equals
// the full response. The final done event repeats the full response and
// carries the updated History.
//
// Id, CreatedAt, Hash and PrevHash are populated by the SSE writer: each
// event hashes its own content and links to the previous event's hash, so a
// client can verify the stream arrived complete and unmodified.
type StreamEvent struct {
	Id        string    `json:"id,omitempty"`
	Type      string    `json:"type"`
	Content   string    `json:"content,omitempty"`
	History   []Message `json:"history,omitempty"`
	Error     string    `json:"error,omitempty"`
	CreatedAt int64     `json:"created_at"`
	Hash      string    `json:"hash,omitempty"`
	PrevHash  string    `json:"prev_hash,omitempty"`
}

// IngestRequest is the body for POST /v1/knowledge/documents.
//
// Exactly one of Path or Content must be set. Path points at a markdown
// knowledge file on the server filesystem; Content is inline markdown.
type IngestRequest struct {
	Path    string `json:"path" validate:"omitempty,max=4096"`
	Content string `json:"content" validate:"omitempty"`
	Source  string `json:"source" validate:"omitempty,max=256"`
}

// Validate validates the request using the shared validator instance.
func (r *IngestRequest) Validate() error {
	if err := chatValidate.Struct(r); err != nil {
		return fmt.Errorf("ingest request validation failed: %w", err)
	}
	if (r.Path == "") == (r.Content == "") {
		return fmt.Errorf("exactly one of path or content must be provided")
	}
	return nil
}

// Copyright (C) 2025 Pizza Alchemy (engineering@pizzaalchemy.com)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package llm provides clients for language-generation backends.
package llm

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/PizzaAlchemy/AlchemyChat/services/orchestrator/datatypes"
)

type GenerationParams struct {
	Temperature *float32 `json:"temperature"`
	TopK        *int     `json:"top_k"`
	TopP        *float32 `json:"top_p"`
	MaxTokens   *int     `json:"max_tokens"`
	Stop        []string `json:"stop"`
}

// LLMClient defines the standard interface for any LLM backend.
//
// Generate is single-prompt completion (used by the summarizer), Chat is a
// full-message-list exchange, and ChatStream delivers the same exchange as
// an ordered token stream through the callback. Fragment concatenation
// always equals the Chat result for the same inputs.
type LLMClient interface {
	Generate(ctx context.Context, prompt string, params GenerationParams) (string, error)
	Chat(ctx context.Context, messages []datatypes.Message, params GenerationParams) (string, error)
	ChatStream(ctx context.Context, messages []datatypes.Message, params GenerationParams, callback StreamCallback) error
}

// GenerateFunc adapts a client's Generate into the single-function shape the
// conversation summarizer consumes.
type GenerateFunc func(ctx context.Context, prompt string, maxTokens int) (string, error)

// GenerateFuncFrom builds a GenerateFunc bound to the given client.
func GenerateFuncFrom(client LLMClient) GenerateFunc {
	return func(ctx context.Context, prompt string, maxTokens int) (string, error) {
		params := GenerationParams{}
		if maxTokens > 0 {
			params.MaxTokens = &maxTokens
		}
		return client.Generate(ctx, prompt, params)
	}
}

// NewClientFromEnv constructs the backend selected by LLM_BACKEND
// ("ollama" or "openai"; default ollama).
func NewClientFromEnv() (LLMClient, error) {
	backend := strings.ToLower(os.Getenv("LLM_BACKEND"))
	switch backend {
	case "", "ollama":
		return NewOllamaClient()
	case "openai":
		return NewOpenAIClient()
	default:
		return nil, fmt.Errorf("unknown LLM_BACKEND %q (want ollama or openai)", backend)
	}
}

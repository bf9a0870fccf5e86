// Copyright (C) 2025 Pizza Alchemy (engineering@pizzaalchemy.com)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package conversation owns the history state machine: the per-request
// decision between carrying a raw transcript and compressing it into a
// rolling summary.
package conversation

import (
	"context"
	"fmt"
	"strings"

	"github.com/PizzaAlchemy/AlchemyChat/services/llm"
)

// Summarizer folds a new interaction into a rolling conversation summary.
//
// The contract is merge, not append: implementations must produce a fresh
// summary of previousSummary plus newInteraction, so the summary stays small
// under unbounded conversation length.
type Summarizer interface {
	Summarize(ctx context.Context, previousSummary, newInteraction string) (string, error)
}

// summaryPromptTemplate instructs the model to rewrite rather than extend.
const summaryPromptTemplate = `You are a conversation archivist for a restaurant ordering assistant.
Merge the previous summary and the new interaction into one short summary.
Keep customer preferences, order details and open questions. Rewrite from
scratch; do not copy the previous summary verbatim and do not append to it.

Previous summary:
%s

New interaction:
%s

New summary:`

// LLMSummarizer implements Summarizer on top of a generation function.
type LLMSummarizer struct {
	generate  llm.GenerateFunc
	maxTokens int
}

// NewLLMSummarizer builds a summarizer bound to the given generate function.
func NewLLMSummarizer(generate llm.GenerateFunc) *LLMSummarizer {
	return &LLMSummarizer{generate: generate, maxTokens: 256}
}

// Summarize implements the Summarizer interface.
func (s *LLMSummarizer) Summarize(ctx context.Context, previousSummary, newInteraction string) (string, error) {
	prev := previousSummary
	if strings.TrimSpace(prev) == "" {
		prev = "(none)"
	}
	prompt := fmt.Sprintf(summaryPromptTemplate, prev, newInteraction)

	summary, err := s.generate(ctx, prompt, s.maxTokens)
	if err != nil {
		return "", fmt.Errorf("summary generation failed: %w", err)
	}
	return strings.TrimSpace(summary), nil
}

var _ Summarizer = (*LLMSummarizer)(nil)

// Copyright (C) 2025 Pizza Alchemy (engineering@pizzaalchemy.com)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package retrieval

import (
	"context"
	"log/slog"

	"github.com/PizzaAlchemy/AlchemyChat/services/orchestrator/datatypes"
	"github.com/PizzaAlchemy/AlchemyChat/services/orchestrator/knowledge"
)

// Assembler composes the context block injected ahead of a customer turn.
//
// Semantic retrieval runs first when configured; an empty semantic result
// falls back unconditionally to keyword retrieval, which is the guaranteed
// baseline regardless of whether semantic search is enabled.
type Assembler struct {
	store    *knowledge.Store
	semantic *SemanticRetriever // nil when vector search is not configured
	cfg      Config
}

// NewAssembler builds an assembler. semantic may be nil.
func NewAssembler(store *knowledge.Store, semantic *SemanticRetriever, cfg Config) *Assembler {
	return &Assembler{store: store, semantic: semantic, cfg: cfg}
}

// SemanticEnabled reports whether the semantic path is configured.
func (a *Assembler) SemanticEnabled() bool {
	return a.semantic != nil
}

// Context sources reported by Assemble.
const (
	SourceSemantic = "semantic"
	SourceKeyword  = "keyword"
	SourceNone     = "none"
)

// Assemble returns the knowledge context for a query plus which path
// produced it, or "" when nothing relevant exists. History feeds the keyword
// path so follow-up questions keep matching the previously named dish.
func (a *Assembler) Assemble(ctx context.Context, query string, history []datatypes.Message) (string, string) {
	if a.semantic != nil {
		intent := ClassifyIntent(query)
		if intent != "" {
			slog.Debug("Detected query intent", "intent", intent)
		}
		if kbContext := a.semantic.RetrieveContext(ctx, query, a.cfg.TopK, a.cfg.MinScore, intent); kbContext != "" {
			return kbContext, SourceSemantic
		}
	}
	if kbContext := KeywordContext(a.store.Get(), query, history); kbContext != "" {
		return kbContext, SourceKeyword
	}
	return "", SourceNone
}

// ComposePrompt wraps the customer text with a context block. With no
// context the text passes through unmodified.
func ComposePrompt(query, kbContext string) string {
	if kbContext == "" {
		return query
	}
	return "Context from Knowledge Base:\n" + kbContext + "\n\nCustomer: " + query
}

// Copyright (C) 2025 Pizza Alchemy (engineering@pizzaalchemy.com)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package retrieval

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

var tracer = otel.Tracer("alchemychat.retrieval")

// SemanticRetriever runs embedding-based search over the vector index.
//
// It never propagates failure to its caller: an embed or index error
// degrades to a substring fallback over the same store, and a failed
// fallback yields an empty result. Emptiness is a normal outcome; the
// assembler covers it with keyword retrieval.
type SemanticRetriever struct {
	embedder EmbeddingProvider
	index    VectorIndex
	cfg      Config
}

// NewSemanticRetriever wires an embedder and index together.
func NewSemanticRetriever(embedder EmbeddingProvider, index VectorIndex, cfg Config) *SemanticRetriever {
	return &SemanticRetriever{embedder: embedder, index: index, cfg: cfg}
}

// Search returns up to topK snippets ordered by descending relevance.
// Scores are cosine certainty in [0,1]; degraded-mode hits all carry the
// constant placeholder score so min-score filtering stays predictable.
func (s *SemanticRetriever) Search(ctx context.Context, query string, topK int, categoryFilter string) []Snippet {
	ctx, span := tracer.Start(ctx, "SemanticRetriever.Search")
	defer span.End()
	span.SetAttributes(
		attribute.Int("retrieval.top_k", topK),
		attribute.String("retrieval.category_filter", categoryFilter),
	)

	vector, err := s.embedder.Embed(ctx, query)
	if err != nil {
		slog.Warn("Query embedding failed, using degraded text search", "error", err)
		span.SetAttributes(attribute.Bool("retrieval.degraded", true))
		return s.degradedSearch(ctx, query)
	}

	snippets, err := s.index.Query(ctx, vector, topK, categoryFilter)
	if err != nil {
		slog.Warn("Vector index query failed, using degraded text search", "error", err)
		span.SetAttributes(attribute.Bool("retrieval.degraded", true))
		return s.degradedSearch(ctx, query)
	}

	span.SetAttributes(attribute.Int("retrieval.results", len(snippets)))
	return snippets
}

// degradedSearch is the substring fallback: query words OR'd over the store,
// every hit scored at the configured placeholder.
func (s *SemanticRetriever) degradedSearch(ctx context.Context, query string) []Snippet {
	words := strings.Fields(strings.ToLower(query))
	snippets, err := s.index.FallbackTextSearch(ctx, words, s.cfg.FallbackLimit)
	if err != nil {
		slog.Warn("Degraded text search also failed, returning no snippets", "error", err)
		return nil
	}
	for i := range snippets {
		snippets[i].Score = s.cfg.DegradedScore
	}
	return snippets
}

// RetrieveContext renders a context block from search results, dropping
// snippets below minScore. Returns "" when nothing qualifies.
//
// Block shape:
//
//	=== RELEVANT INFORMATION ===
//	[CATEGORY - subcategory] (relevance: 0.NN)
//	<snippet text>
func (s *SemanticRetriever) RetrieveContext(ctx context.Context, query string, topK int, minScore float64, categoryFilter string) string {
	results := s.Search(ctx, query, topK, categoryFilter)
	if len(results) == 0 {
		return ""
	}

	var parts []string
	for _, doc := range results {
		if doc.Score < minScore {
			continue
		}
		header := "[" + strings.ToUpper(doc.Category)
		if doc.Subcategory != "" {
			header += " - " + doc.Subcategory
		}
		header += fmt.Sprintf("] (relevance: %.2f)", doc.Score)

		parts = append(parts, header, doc.Text, "")
	}
	if len(parts) == 0 {
		return ""
	}

	parts = append([]string{"=== RELEVANT INFORMATION ==="}, parts...)
	return strings.Join(parts, "\n")
}

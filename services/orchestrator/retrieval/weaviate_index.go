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

	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/filters"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/graphql"
	"github.com/weaviate/weaviate/entities/models"

	"github.com/PizzaAlchemy/AlchemyChat/services/orchestrator/datatypes"
)

// Snippet is one scored unit of retrieved knowledge.
type Snippet struct {
	Category    string
	Subcategory string
	Text        string
	Score       float64
}

// VectorIndex is the contract the semantic retriever needs from a vector
// store: a scored ANN query and an unscored substring fallback for when the
// ANN path is unavailable.
type VectorIndex interface {
	Query(ctx context.Context, vector []float32, topK int, categoryFilter string) ([]Snippet, error)
	FallbackTextSearch(ctx context.Context, words []string, limit int) ([]Snippet, error)
}

// WeaviateIndex implements VectorIndex over the KnowledgeChunk class.
type WeaviateIndex struct {
	client *weaviate.Client
}

// NewWeaviateIndex wraps an existing Weaviate client.
func NewWeaviateIndex(client *weaviate.Client) *WeaviateIndex {
	return &WeaviateIndex{client: client}
}

var chunkFields = []graphql.Field{
	{Name: "text"},
	{Name: "category"},
	{Name: "subcategory"},
	{Name: "_additional", Fields: []graphql.Field{
		{Name: "certainty"},
	}},
}

// Query implements VectorIndex using nearVector search.
//
// Certainty is requested instead of distance because it is always in [0,1]
// regardless of the index's distance metric, which is what the min-score
// filter downstream expects.
func (w *WeaviateIndex) Query(ctx context.Context, vector []float32, topK int, categoryFilter string) ([]Snippet, error) {
	nearVector := w.client.GraphQL().NearVectorArgBuilder().
		WithVector(vector)

	query := w.client.GraphQL().Get().
		WithClassName(datatypes.KnowledgeChunkClass).
		WithFields(chunkFields...).
		WithNearVector(nearVector).
		WithLimit(topK)

	if categoryFilter != "" {
		query = query.WithWhere(filters.Where().
			WithPath([]string{"category"}).
			WithOperator(filters.Equal).
			WithValueString(categoryFilter))
	}

	result, err := query.Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("weaviate nearVector query failed: %w", err)
	}
	return parseChunkResults(result, 0)
}

// FallbackTextSearch implements VectorIndex with a case-insensitive Like
// match OR'd across the query words. Scores are left at zero; the caller
// synthesizes a placeholder.
func (w *WeaviateIndex) FallbackTextSearch(ctx context.Context, words []string, limit int) ([]Snippet, error) {
	if len(words) == 0 {
		return nil, nil
	}

	operands := make([]*filters.WhereBuilder, 0, len(words))
	for _, word := range words {
		operands = append(operands, filters.Where().
			WithPath([]string{"text"}).
			WithOperator(filters.Like).
			WithValueText("*"+word+"*"))
	}

	where := operands[0]
	if len(operands) > 1 {
		where = filters.Where().
			WithOperator(filters.Or).
			WithOperands(operands)
	}

	result, err := w.client.GraphQL().Get().
		WithClassName(datatypes.KnowledgeChunkClass).
		WithFields(chunkFields...).
		WithWhere(where).
		WithLimit(limit).
		Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("weaviate fallback text search failed: %w", err)
	}
	return parseChunkResults(result, 0)
}

// parseChunkResults converts a GraphQL response into snippets. defaultScore
// is used for rows without a certainty value.
func parseChunkResults(result *models.GraphQLResponse, defaultScore float64) ([]Snippet, error) {
	parsed, err := datatypes.ParseGraphQLResponse[datatypes.KnowledgeChunkQueryResponse](result)
	if err != nil {
		return nil, fmt.Errorf("failed to parse knowledge chunk results: %w", err)
	}

	snippets := make([]Snippet, 0, len(parsed.Get.KnowledgeChunk))
	for _, chunk := range parsed.Get.KnowledgeChunk {
		score := defaultScore
		if chunk.Additional.Certainty != nil {
			score = *chunk.Additional.Certainty
		}
		snippets = append(snippets, Snippet{
			Category:    chunk.Category,
			Subcategory: chunk.Subcategory,
			Text:        chunk.Text,
			Score:       score,
		})
	}
	slog.Debug("Parsed knowledge chunk results", "count", len(snippets))
	return snippets, nil
}

var _ VectorIndex = (*WeaviateIndex)(nil)

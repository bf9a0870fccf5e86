// Copyright (C) 2025 Pizza Alchemy (engineering@pizzaalchemy.com)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package datatypes

import (
	"encoding/json"
	"fmt"

	"github.com/weaviate/weaviate/entities/models"
)

// =============================================================================
// Generic GraphQL Response Parser
// =============================================================================

// ParseGraphQLResponse parses a Weaviate GraphQL response into the target type.
//
// # Description
//
// This generic function encapsulates the marshal/unmarshal pattern required to
// convert Weaviate's dynamic response (map[string]models.JSONObject) into a
// strongly-typed Go struct. The target type T must have json tags matching
// the expected response shape.
//
// # Example
//
//	resp, err := client.GraphQL().Get().WithClassName("KnowledgeChunk").Do(ctx)
//	if err != nil { ... }
//
//	parsed, err := ParseGraphQLResponse[KnowledgeChunkQueryResponse](resp)
//	if err != nil { ... }
//
//	for _, c := range parsed.Get.KnowledgeChunk {
//	    fmt.Println(c.Category, c.Text)
//	}
//
// # Limitations
//
//   - Requires the target type to exactly match the expected response structure.
//   - Type mismatches will result in zero values, not errors.
func ParseGraphQLResponse[T any](resp *models.GraphQLResponse) (*T, error) {
	if resp == nil {
		return nil, fmt.Errorf("nil GraphQL response")
	}

	respBytes, err := json.Marshal(resp.Data)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal GraphQL response data: %w", err)
	}

	var result T
	if err := json.Unmarshal(respBytes, &result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal into target type: %w", err)
	}

	return &result, nil
}

// =============================================================================
// KnowledgeChunk Response Types
// =============================================================================

// KnowledgeChunkQueryResponse represents the response from querying the
// KnowledgeChunk class.
type KnowledgeChunkQueryResponse struct {
	Get struct {
		KnowledgeChunk []KnowledgeChunkResult `json:"KnowledgeChunk"`
	} `json:"Get"`
}

// KnowledgeChunkResult represents a single knowledge chunk from a query.
//
// Certainty is only populated on nearVector queries; keyword fallback paths
// leave it nil.
type KnowledgeChunkResult struct {
	Text        string `json:"text"`
	Category    string `json:"category"`
	Subcategory string `json:"subcategory"`
	Source      string `json:"source"`
	ChunkIndex  int    `json:"chunk_index"`
	Additional  struct {
		ID        string   `json:"id"`
		Certainty *float64 `json:"certainty"`
	} `json:"_additional"`
}

// KnowledgeChunkAggregateResponse represents a group-by-category aggregate
// over the KnowledgeChunk class, used by the document listing endpoint.
type KnowledgeChunkAggregateResponse struct {
	Aggregate struct {
		KnowledgeChunk []struct {
			GroupedBy struct {
				Value string `json:"value"`
			} `json:"groupedBy"`
			Meta struct {
				Count int `json:"count"`
			} `json:"meta"`
		} `json:"KnowledgeChunk"`
	} `json:"Aggregate"`
}

// KnowledgeChunkProperties is the property payload for a KnowledgeChunk
// insert.
type KnowledgeChunkProperties struct {
	Text        string `json:"text"`
	Category    string `json:"category"`
	Subcategory string `json:"subcategory"`
	Source      string `json:"source"`
	ChunkIndex  int    `json:"chunk_index"`
	IngestedAt  int64  `json:"ingested_at"`
}

// ToMap converts the properties to the map form the batch API expects.
func (p *KnowledgeChunkProperties) ToMap() map[string]any {
	return map[string]any{
		"text":        p.Text,
		"category":    p.Category,
		"subcategory": p.Subcategory,
		"source":      p.Source,
		"chunk_index": p.ChunkIndex,
		"ingested_at": p.IngestedAt,
	}
}

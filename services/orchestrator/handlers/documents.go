// Copyright (C) 2025 Pizza Alchemy (engineering@pizzaalchemy.com)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"context"
	"crypto/sha256"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-openapi/strfmt"
	"github.com/google/uuid"
	"github.com/tmc/langchaingo/textsplitter"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/graphql"
	"github.com/weaviate/weaviate/entities/models"

	"github.com/PizzaAlchemy/AlchemyChat/services/orchestrator/datatypes"
	"github.com/PizzaAlchemy/AlchemyChat/services/orchestrator/retrieval"
)

const (
	chunkSize    = 1000
	chunkOverlap = chunkSize / 10
)

var markdownSeparators = []string{
	"\n# ", "\n## ", "\n### ", "\n#### ", "\n##### ", "\n###### ",
	"\n\n", "\n", " ", "",
}

// KnowledgeChunk is one parsed piece of a knowledge document, tagged with
// the category taxonomy the intent classifier filters on.
type KnowledgeChunk struct {
	Category    string
	Subcategory string
	Text        string
}

// normalizeCategory maps a markdown header onto the intent taxonomy. The
// stored category must match the classifier's labels exactly or category-
// filtered semantic search silently returns nothing.
func normalizeCategory(header string) string {
	h := strings.ToLower(header)
	switch {
	case strings.Contains(h, "deal"), strings.Contains(h, "combo"), strings.Contains(h, "offer"):
		return retrieval.IntentDeals
	case strings.Contains(h, "appetizer"), strings.Contains(h, "starter"):
		return retrieval.IntentAppetizers
	case strings.Contains(h, "menu"):
		return retrieval.IntentPizzaMenu
	default:
		return retrieval.IntentGeneralInfo
	}
}

// ParseKnowledgeMarkdown splits a markdown knowledge file into chunks.
//
// `# ` headers open a category, `## ` headers a subcategory; body lines
// accumulate into the current chunk and flush on the next header. Buffers
// larger than chunkSize are re-split with a recursive character splitter so
// no single chunk blows past the embedding model's useful context.
func ParseKnowledgeMarkdown(content string) ([]KnowledgeChunk, error) {
	splitter := textsplitter.NewRecursiveCharacter(
		textsplitter.WithChunkSize(chunkSize),
		textsplitter.WithChunkOverlap(chunkOverlap),
		textsplitter.WithSeparators(markdownSeparators),
	)

	var (
		chunks      []KnowledgeChunk
		buffer      []string
		category    = retrieval.IntentGeneralInfo
		subcategory string
	)

	flush := func() error {
		if len(buffer) == 0 {
			return nil
		}
		text := strings.Join(buffer, "\n")
		buffer = nil
		if strings.TrimSpace(text) == "" {
			return nil
		}
		if len(text) <= chunkSize {
			chunks = append(chunks, KnowledgeChunk{Category: category, Subcategory: subcategory, Text: text})
			return nil
		}
		parts, err := splitter.SplitText(text)
		if err != nil {
			return fmt.Errorf("failed to split oversize buffer: %w", err)
		}
		for _, part := range parts {
			chunks = append(chunks, KnowledgeChunk{Category: category, Subcategory: subcategory, Text: part})
		}
		return nil
	}

	for _, line := range strings.Split(content, "\n") {
		stripped := strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(stripped, "# "):
			if err := flush(); err != nil {
				return nil, err
			}
			category = normalizeCategory(strings.TrimSpace(strings.TrimLeft(stripped, "#")))
			subcategory = ""
		case strings.HasPrefix(stripped, "## "):
			if err := flush(); err != nil {
				return nil, err
			}
			subcategory = strings.TrimSpace(strings.TrimLeft(stripped, "#"))
		default:
			if stripped != "" {
				buffer = append(buffer, stripped)
			}
		}
	}
	if err := flush(); err != nil {
		return nil, err
	}
	return chunks, nil
}

// RunIngestion parses, embeds and batch-inserts a knowledge document.
// Returns the number of chunks stored.
func RunIngestion(ctx context.Context, client *weaviate.Client,
	embedder retrieval.EmbeddingProvider, content, source string) (int, error) {

	chunks, err := ParseKnowledgeMarkdown(content)
	if err != nil {
		return 0, err
	}
	if len(chunks) == 0 {
		slog.Warn("No chunks produced from knowledge document", "source", source)
		return 0, nil
	}
	slog.Info("Parsed knowledge document", "source", source, "chunk_count", len(chunks))

	texts := make([]string, len(chunks))
	for i, chunk := range chunks {
		texts[i] = chunk.Text
	}
	vectors, err := embedder.BatchEmbed(ctx, texts)
	if err != nil {
		return 0, fmt.Errorf("failed to embed knowledge chunks: %w", err)
	}

	objects := make([]*models.Object, len(chunks))
	now := time.Now().UnixMilli()
	for i, chunk := range chunks {
		// Deterministic ID from content so re-ingesting the same file
		// updates in place instead of duplicating.
		hash := sha256.Sum256([]byte(chunk.Text))
		chunkUUID, _ := uuid.FromBytes(hash[:16])

		props := datatypes.KnowledgeChunkProperties{
			Text:        chunk.Text,
			Category:    chunk.Category,
			Subcategory: chunk.Subcategory,
			Source:      source,
			ChunkIndex:  i,
			IngestedAt:  now,
		}
		objects[i] = &models.Object{
			Class:      datatypes.KnowledgeChunkClass,
			ID:         strfmt.UUID(chunkUUID.String()),
			Vector:     vectors[i],
			Properties: props.ToMap(),
		}
	}

	resp, err := client.Batch().ObjectsBatcher().WithObjects(objects...).Do(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to batch insert knowledge chunks: %w", err)
	}

	stored := 0
	for _, item := range resp {
		if item.Result != nil && item.Result.Status != nil && *item.Result.Status == "SUCCESS" {
			stored++
			continue
		}
		if item.Result != nil && item.Result.Errors != nil {
			for _, errItem := range item.Result.Errors.Error {
				slog.Warn("Weaviate batch item failed", "source", source, "error", errItem.Message)
			}
		}
	}
	slog.Info("Stored knowledge chunks", "source", source, "stored", stored)
	return stored, nil
}

// HandleIngestDocument serves POST /v1/knowledge/documents.
func HandleIngestDocument(client *weaviate.Client, embedder retrieval.EmbeddingProvider) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req datatypes.IngestRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}
		if err := req.Validate(); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		content := req.Content
		source := req.Source
		if req.Path != "" {
			data, err := os.ReadFile(req.Path)
			if err != nil {
				slog.Error("Failed to read knowledge file", "path", req.Path, "error", err)
				c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read knowledge file"})
				return
			}
			content = string(data)
			if source == "" {
				source = req.Path
			}
		}
		if source == "" {
			source = "inline"
		}

		stored, err := RunIngestion(c.Request.Context(), client, embedder, content, source)
		if err != nil {
			slog.Error("Knowledge ingestion failed", "source", source, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "success", "chunks": stored, "source": source})
	}
}

// HandleListDocuments serves GET /v1/knowledge/documents: ingested chunk
// counts grouped by category.
func HandleListDocuments(client *weaviate.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		agg, err := client.GraphQL().Aggregate().
			WithClassName(datatypes.KnowledgeChunkClass).
			WithGroupBy("category").
			WithFields(
				graphql.Field{
					Name:   "groupedBy",
					Fields: []graphql.Field{{Name: "value"}},
				},
				graphql.Field{
					Name:   "meta",
					Fields: []graphql.Field{{Name: "count"}},
				},
			).
			Do(c.Request.Context())
		if err != nil {
			slog.Error("Failed to aggregate knowledge chunks", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to query knowledge chunks"})
			return
		}

		parsed, err := datatypes.ParseGraphQLResponse[datatypes.KnowledgeChunkAggregateResponse](agg)
		if err != nil {
			slog.Error("Failed to parse aggregate response", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to parse aggregate response"})
			return
		}

		categories := make(map[string]int)
		for _, group := range parsed.Aggregate.KnowledgeChunk {
			categories[group.GroupedBy.Value] = group.Meta.Count
		}
		c.JSON(http.StatusOK, gin.H{"categories": categories})
	}
}

// HandleDeleteDocuments serves DELETE /v1/knowledge/documents: wipes the
// knowledge class and recreates the empty schema for re-ingestion.
func HandleDeleteDocuments(client *weaviate.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		slog.Warn("Received request to delete all knowledge chunks")
		if err := client.Schema().ClassDeleter().
			WithClassName(datatypes.KnowledgeChunkClass).
			Do(c.Request.Context()); err != nil {
			slog.Error("Failed to delete knowledge class", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete knowledge chunks"})
			return
		}
		datatypes.EnsureWeaviateSchema(client)
		c.JSON(http.StatusOK, gin.H{"status": "success", "message": "knowledge base cleared"})
	}
}

// Copyright (C) 2025 Pizza Alchemy (engineering@pizzaalchemy.com)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package retrieval

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

// EmbeddingProvider converts text into a fixed-length vector.
type EmbeddingProvider interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	BatchEmbed(ctx context.Context, texts []string) ([][]float32, error)
}

// HTTPEmbedder calls the embedding sidecar's /embed and /batch_embed
// endpoints.
type HTTPEmbedder struct {
	httpClient *http.Client
	embedURL   string
	batchURL   string
}

type embeddingRequest struct {
	Text string `json:"text"`
}

type embeddingResponse struct {
	Embedding []float32 `json:"embedding"`
}

type batchEmbeddingRequest struct {
	Texts []string `json:"texts"`
}

type batchEmbeddingResponse struct {
	Vectors [][]float32 `json:"vectors"`
}

// NewHTTPEmbedderFromEnv builds an embedder from EMBEDDING_SERVICE_URL.
// Returns nil (no error) when the variable is unset so the caller can run
// without semantic search.
func NewHTTPEmbedderFromEnv() *HTTPEmbedder {
	embedURL := os.Getenv("EMBEDDING_SERVICE_URL")
	if embedURL == "" {
		return nil
	}
	return NewHTTPEmbedder(embedURL)
}

// NewHTTPEmbedder builds an embedder for the given /embed endpoint URL.
func NewHTTPEmbedder(embedURL string) *HTTPEmbedder {
	base := strings.TrimSuffix(embedURL, "/embed")
	return &HTTPEmbedder{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		embedURL:   embedURL,
		batchURL:   base + "/batch_embed",
	}
}

// Embed implements EmbeddingProvider.
func (e *HTTPEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	var resp embeddingResponse
	if err := e.post(ctx, e.embedURL, embeddingRequest{Text: text}, &resp); err != nil {
		return nil, err
	}
	if len(resp.Embedding) == 0 {
		return nil, fmt.Errorf("embedding service returned an empty vector")
	}
	return resp.Embedding, nil
}

// BatchEmbed implements EmbeddingProvider. Used on the ingestion path where
// one round trip per chunk would be too slow.
func (e *HTTPEmbedder) BatchEmbed(ctx context.Context, texts []string) ([][]float32, error) {
	var resp batchEmbeddingResponse
	if err := e.post(ctx, e.batchURL, batchEmbeddingRequest{Texts: texts}, &resp); err != nil {
		return nil, err
	}
	if len(resp.Vectors) != len(texts) {
		return nil, fmt.Errorf("embedding service returned %d vectors for %d texts",
			len(resp.Vectors), len(texts))
	}
	return resp.Vectors, nil
}

func (e *HTTPEmbedder) post(ctx context.Context, url string, payload any, out any) error {
	reqBody, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal embedding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(reqBody))
	if err != nil {
		return fmt.Errorf("failed to create embedding request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Cache-Control", "no-cache, no-store, must-revalidate")

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to reach embedding service: %w", err)
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read embedding response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("embedding service returned status %d: %s", resp.StatusCode, string(bodyBytes))
	}
	if err := json.Unmarshal(bodyBytes, out); err != nil {
		return fmt.Errorf("failed to parse embedding response: %w", err)
	}
	return nil
}

var _ EmbeddingProvider = (*HTTPEmbedder)(nil)

// Copyright (C) 2025 Pizza Alchemy (engineering@pizzaalchemy.com)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package retrieval decides what knowledge is injected into a prompt.
//
// Two retrieval paths exist: deterministic keyword matching against the
// in-process knowledge base (keyword.go) and semantic vector search against
// Weaviate (semantic.go, weaviate_index.go). The assembler (assembler.go)
// prefers the semantic path and falls back to keywords, so keyword retrieval
// is the guaranteed baseline.
package retrieval

import (
	"os"
	"strconv"
)

// Config holds the semantic retrieval knobs.
type Config struct {
	// TopK is how many snippets a context query asks for.
	TopK int

	// MinScore drops snippets below this relevance before rendering.
	MinScore float64

	// DegradedScore is the placeholder relevance assigned to substring
	// fallback hits so min-score filtering stays predictable.
	DegradedScore float64

	// FallbackLimit caps the number of degraded-search hits.
	FallbackLimit int
}

// DefaultConfig returns the retrieval defaults, overridable via environment.
func DefaultConfig() Config {
	return Config{
		TopK:          getEnvInt("RETRIEVAL_TOP_K", 5),
		MinScore:      getEnvFloat("RETRIEVAL_MIN_SCORE", 0.3),
		DegradedScore: 0.5,
		FallbackLimit: getEnvInt("RETRIEVAL_FALLBACK_LIMIT", 5),
	}
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

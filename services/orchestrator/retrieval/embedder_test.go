// Copyright (C) 2025 Pizza Alchemy (engineering@pizzaalchemy.com)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package retrieval

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestHTTPEmbedder_Embed(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/embed" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		var req struct {
			Text string `json:"text"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("bad request body: %v", err)
		}
		if req.Text != "pizza deals" {
			t.Errorf("text = %q", req.Text)
		}
		fmt.Fprint(w, `{"embedding":[0.1,0.2,0.3]}`)
	}))
	defer server.Close()

	e := NewHTTPEmbedder(server.URL + "/embed")
	vec, err := e.Embed(context.Background(), "pizza deals")
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if len(vec) != 3 || vec[0] != 0.1 {
		t.Errorf("vector = %v", vec)
	}
}

func TestHTTPEmbedder_EmbedEmptyVector(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"embedding":[]}`)
	}))
	defer server.Close()

	e := NewHTTPEmbedder(server.URL + "/embed")
	if _, err := e.Embed(context.Background(), "q"); err == nil {
		t.Error("empty vector should be an error")
	}
}

func TestHTTPEmbedder_BatchEmbed(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/batch_embed" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		fmt.Fprint(w, `{"vectors":[[0.1],[0.2]]}`)
	}))
	defer server.Close()

	e := NewHTTPEmbedder(server.URL + "/embed")
	vecs, err := e.BatchEmbed(context.Background(), []string{"a", "b"})
	if err != nil {
		t.Fatalf("BatchEmbed: %v", err)
	}
	if len(vecs) != 2 {
		t.Errorf("got %d vectors", len(vecs))
	}
}

func TestHTTPEmbedder_BatchEmbedCountMismatch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"vectors":[[0.1]]}`)
	}))
	defer server.Close()

	e := NewHTTPEmbedder(server.URL + "/embed")
	if _, err := e.BatchEmbed(context.Background(), []string{"a", "b"}); err == nil {
		t.Error("vector count mismatch should be an error")
	}
}

func TestHTTPEmbedder_ErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "model loading", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	e := NewHTTPEmbedder(server.URL + "/embed")
	if _, err := e.Embed(context.Background(), "q"); err == nil {
		t.Error("non-200 status should be an error")
	}
}

func TestNewHTTPEmbedderFromEnv_Unset(t *testing.T) {
	t.Setenv("EMBEDDING_SERVICE_URL", "")
	if e := NewHTTPEmbedderFromEnv(); e != nil {
		t.Error("unset env should disable the embedder")
	}
}

func TestDefaultConfig_EnvOverrides(t *testing.T) {
	t.Setenv("RETRIEVAL_TOP_K", "7")
	t.Setenv("RETRIEVAL_MIN_SCORE", "0.6")

	cfg := DefaultConfig()
	if cfg.TopK != 7 {
		t.Errorf("TopK = %d, want 7", cfg.TopK)
	}
	if cfg.MinScore != 0.6 {
		t.Errorf("MinScore = %v, want 0.6", cfg.MinScore)
	}
	if cfg.DegradedScore != 0.5 {
		t.Errorf("DegradedScore = %v, want 0.5", cfg.DegradedScore)
	}
}

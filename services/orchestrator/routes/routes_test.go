// Copyright (C) 2025 Pizza Alchemy (engineering@pizzaalchemy.com)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package routes

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/PizzaAlchemy/AlchemyChat/services/llm"
	"github.com/PizzaAlchemy/AlchemyChat/services/orchestrator/conversation"
	"github.com/PizzaAlchemy/AlchemyChat/services/orchestrator/datatypes"
	"github.com/PizzaAlchemy/AlchemyChat/services/orchestrator/knowledge"
	"github.com/PizzaAlchemy/AlchemyChat/services/orchestrator/retrieval"
	"github.com/PizzaAlchemy/AlchemyChat/services/orchestrator/services"
)

// ============================================================================
// Test Setup
// ============================================================================

func init() {
	// Set Gin to test mode to reduce noise in test output
	gin.SetMode(gin.TestMode)
}

// mockLLMClient is a minimal mock for llm.LLMClient
type mockLLMClient struct{}

func (m *mockLLMClient) Generate(_ context.Context, _ string, _ llm.GenerationParams) (string, error) {
	return "mock response", nil
}

func (m *mockLLMClient) Chat(_ context.Context, _ []datatypes.Message, _ llm.GenerationParams) (string, error) {
	return "mock chat response", nil
}

func (m *mockLLMClient) ChatStream(_ context.Context, _ []datatypes.Message, _ llm.GenerationParams, callback llm.StreamCallback) error {
	_ = callback(llm.StreamEvent{Type: llm.StreamEventToken, Content: "mock stream"})
	return callback(llm.StreamEvent{Type: llm.StreamEventDone})
}

type noopSummarizer struct{}

func (noopSummarizer) Summarize(_ context.Context, _, interaction string) (string, error) {
	return "summary", nil
}

func newTestChatService() *services.ChatService {
	store := knowledge.NewStore(knowledge.DefaultBase())
	cfg := retrieval.Config{TopK: 5, MinScore: 0.3, DegradedScore: 0.5, FallbackLimit: 5}
	machine := conversation.NewStateMachine(noopSummarizer{},
		func() string { return "persona" }, conversation.Config{RawTurnLimit: 4})
	return services.NewChatService(&mockLLMClient{},
		retrieval.NewAssembler(store, nil, cfg), machine, nil)
}

// ============================================================================
// SetupRoutes Tests
// ============================================================================

func TestSetupRoutes_WithoutWeaviateClient(t *testing.T) {
	router := gin.New()

	// Should not panic when weaviate client and embedder are nil
	SetupRoutes(router, newTestChatService(), nil, nil, func() bool { return false })

	coreRoutes := []struct {
		method string
		path   string
	}{
		{"GET", "/health"},
		{"GET", "/metrics"},
		{"POST", "/v1/chat"},
		{"POST", "/v1/chat/stream"},
		{"POST", "/v1/knowledge/documents"},
		{"GET", "/v1/knowledge/documents"},
		{"DELETE", "/v1/knowledge/documents"},
	}

	routes := router.Routes()
	for _, expected := range coreRoutes {
		found := false
		for _, r := range routes {
			if r.Method == expected.method && r.Path == expected.path {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("route %s %s not registered", expected.method, expected.path)
		}
	}
}

func TestKnowledgeRoutes_UnavailableWithoutWeaviate(t *testing.T) {
	router := gin.New()
	SetupRoutes(router, newTestChatService(), nil, nil, func() bool { return false })

	for _, method := range []string{http.MethodPost, http.MethodGet, http.MethodDelete} {
		req := httptest.NewRequest(method, "/v1/knowledge/documents", nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		if rec.Code != http.StatusServiceUnavailable {
			t.Errorf("%s /v1/knowledge/documents = %d, want 503", method, rec.Code)
		}
	}
}

func TestHealthRoute(t *testing.T) {
	router := gin.New()
	SetupRoutes(router, newTestChatService(), nil, nil, func() bool { return false })

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("health = %d, want 200", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, `"status":"healthy"`) || !strings.Contains(body, `"semantic_search":false`) {
		t.Errorf("unexpected health body: %s", body)
	}
}

func TestCORSPreflight(t *testing.T) {
	router := gin.New()
	SetupRoutes(router, newTestChatService(), nil, nil, func() bool { return false })

	req := httptest.NewRequest(http.MethodOptions, "/v1/chat", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Errorf("preflight = %d, want 204", rec.Code)
	}
	if rec.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Error("missing CORS allow-origin header")
	}
}

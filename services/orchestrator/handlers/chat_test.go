// Copyright (C) 2025 Pizza Alchemy (engineering@pizzaalchemy.com)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PizzaAlchemy/AlchemyChat/services/llm"
	"github.com/PizzaAlchemy/AlchemyChat/services/orchestrator/conversation"
	"github.com/PizzaAlchemy/AlchemyChat/services/orchestrator/datatypes"
	"github.com/PizzaAlchemy/AlchemyChat/services/orchestrator/knowledge"
	"github.com/PizzaAlchemy/AlchemyChat/services/orchestrator/retrieval"
	"github.com/PizzaAlchemy/AlchemyChat/services/orchestrator/services"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// ============================================================================
// Test Setup
// ============================================================================

// scriptedLLM streams its tokens, or fails every call with err.
type scriptedLLM struct {
	response string
	tokens   []string
	err      error
}

func (s *scriptedLLM) Generate(_ context.Context, _ string, _ llm.GenerationParams) (string, error) {
	return s.response, s.err
}

func (s *scriptedLLM) Chat(_ context.Context, _ []datatypes.Message, _ llm.GenerationParams) (string, error) {
	return s.response, s.err
}

func (s *scriptedLLM) ChatStream(_ context.Context, _ []datatypes.Message,
	_ llm.GenerationParams, callback llm.StreamCallback) error {
	if s.err != nil {
		return s.err
	}
	for _, tok := range s.tokens {
		if err := callback(llm.StreamEvent{Type: llm.StreamEventToken, Content: tok}); err != nil {
			return err
		}
	}
	return callback(llm.StreamEvent{Type: llm.StreamEventDone})
}

type echoSummarizer struct{}

func (echoSummarizer) Summarize(_ context.Context, prev, interaction string) (string, error) {
	return "summary of: " + interaction, nil
}

func newChatService(client llm.LLMClient) *services.ChatService {
	store := knowledge.NewStore(knowledge.DefaultBase())
	cfg := retrieval.Config{TopK: 5, MinScore: 0.3, DegradedScore: 0.5, FallbackLimit: 5}
	machine := conversation.NewStateMachine(echoSummarizer{},
		func() string { return "You are Daniel Siddiqui, the friendly waiter." },
		conversation.Config{RawTurnLimit: 4})
	return services.NewChatService(client, retrieval.NewAssembler(store, nil, cfg), machine, nil)
}

func postJSON(t *testing.T, router *gin.Engine, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	payload, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func chatRequestBody(message string) datatypes.ChatRequest {
	return datatypes.ChatRequest{
		RequestID: uuid.New().String(),
		Timestamp: 1756500000000,
		Message:   message,
	}
}

// ============================================================================
// HandleChat Tests
// ============================================================================

func TestHandleChat_Success(t *testing.T) {
	router := gin.New()
	router.POST("/v1/chat", HandleChat(newChatService(&scriptedLLM{response: "We have a Family Deal."})))

	rec := postJSON(t, router, "/v1/chat", chatRequestBody("any pizza deals?"))

	require.Equal(t, http.StatusOK, rec.Code)
	var resp datatypes.ChatResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "We have a Family Deal.", resp.Response)
	assert.True(t, resp.ContextUsed)
	require.Len(t, resp.History, 2)
	assert.Equal(t, datatypes.RoleUser, resp.History[0].Role)
	assert.Equal(t, datatypes.RoleAssistant, resp.History[1].Role)
}

func TestHandleChat_InvalidBody(t *testing.T) {
	router := gin.New()
	router.POST("/v1/chat", HandleChat(newChatService(&scriptedLLM{})))

	req := httptest.NewRequest(http.MethodPost, "/v1/chat", strings.NewReader("{not json"))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleChat_ValidationFailure(t *testing.T) {
	router := gin.New()
	router.POST("/v1/chat", HandleChat(newChatService(&scriptedLLM{})))

	body := chatRequestBody("hi")
	body.RequestID = "not-a-uuid"
	rec := postJSON(t, router, "/v1/chat", body)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleChat_BackendFailureStillReturns200(t *testing.T) {
	router := gin.New()
	router.POST("/v1/chat", HandleChat(newChatService(&scriptedLLM{err: errors.New("backend down")})))

	rec := postJSON(t, router, "/v1/chat", chatRequestBody("hello there deals"))

	// The apology is a normal response; the client keeps its history.
	require.Equal(t, http.StatusOK, rec.Code)
	var resp datatypes.ChatResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Contains(t, resp.Response, "I'm sorry")
	assert.Contains(t, resp.Response, "backend down")
	assert.Len(t, resp.History, 2)
}

func TestHandleChat_HistoryRoundTrip(t *testing.T) {
	svc := newChatService(&scriptedLLM{response: "Noted."})
	router := gin.New()
	router.POST("/v1/chat", HandleChat(svc))

	// First turn.
	rec := postJSON(t, router, "/v1/chat", chatRequestBody("hi"))
	require.Equal(t, http.StatusOK, rec.Code)
	var first datatypes.ChatResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &first))
	require.Len(t, first.History, 2)

	// Second turn echoes history back.
	body := chatRequestBody("what was that?")
	body.History = first.History
	rec = postJSON(t, router, "/v1/chat", body)
	require.Equal(t, http.StatusOK, rec.Code)
	var second datatypes.ChatResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &second))
	assert.Len(t, second.History, 4)
}

// ============================================================================
// HandleChatStream Tests
// ============================================================================

func TestHandleChatStream_EventSequence(t *testing.T) {
	router := gin.New()
	router.POST("/v1/chat/stream", HandleChatStream(newChatService(
		&scriptedLLM{tokens: []string{"We ", "have ", "deals!"}})))

	rec := postJSON(t, router, "/v1/chat/stream", chatRequestBody("any pizza deals?"))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))

	events := parseSSEEvents(t, rec.Body.String())
	require.NotEmpty(t, events)

	assert.Equal(t, datatypes.StreamEventStatus, events[0].Type)

	var tokens []string
	for _, event := range events {
		if event.Type == datatypes.StreamEventToken {
			tokens = append(tokens, event.Content)
		}
	}
	last := events[len(events)-1]
	require.Equal(t, datatypes.StreamEventDone, last.Type)
	assert.Equal(t, last.Content, strings.Join(tokens, ""),
		"done content must equal concatenated tokens")
	assert.NotEmpty(t, last.History)
}

func TestHandleChatStream_BackendFailure(t *testing.T) {
	router := gin.New()
	router.POST("/v1/chat/stream", HandleChatStream(newChatService(
		&scriptedLLM{err: errors.New("model crashed")})))

	rec := postJSON(t, router, "/v1/chat/stream", chatRequestBody("hello deals"))

	require.Equal(t, http.StatusOK, rec.Code)
	events := parseSSEEvents(t, rec.Body.String())
	require.NotEmpty(t, events)

	last := events[len(events)-1]
	require.Equal(t, datatypes.StreamEventDone, last.Type)
	assert.Contains(t, last.Content, "I'm sorry")
	assert.Contains(t, last.Content, "model crashed")
	// History still advances so the client stays in sync.
	assert.Len(t, last.History, 2)
}

func TestHandleChatStream_ValidationFailure(t *testing.T) {
	router := gin.New()
	router.POST("/v1/chat/stream", HandleChatStream(newChatService(&scriptedLLM{})))

	body := chatRequestBody("")
	rec := postJSON(t, router, "/v1/chat/stream", body)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleChatStream_HashChainIntact(t *testing.T) {
	router := gin.New()
	router.POST("/v1/chat/stream", HandleChatStream(newChatService(
		&scriptedLLM{tokens: []string{"a", "b", "c"}})))

	rec := postJSON(t, router, "/v1/chat/stream", chatRequestBody("hi"))

	events := parseSSEEvents(t, rec.Body.String())
	require.Greater(t, len(events), 1)
	for i := 1; i < len(events); i++ {
		assert.Equal(t, events[i-1].Hash, events[i].PrevHash, "chain broken at event %d", i)
	}
}

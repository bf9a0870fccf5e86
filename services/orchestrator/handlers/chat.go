// Copyright (C) 2025 Pizza Alchemy (engineering@pizzaalchemy.com)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package handlers contains the HTTP handlers for the orchestrator service.
package handlers

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel"

	"github.com/PizzaAlchemy/AlchemyChat/services/llm"
	"github.com/PizzaAlchemy/AlchemyChat/services/orchestrator/datatypes"
	"github.com/PizzaAlchemy/AlchemyChat/services/orchestrator/observability"
	"github.com/PizzaAlchemy/AlchemyChat/services/orchestrator/services"
)

var tracer = otel.Tracer("alchemychat.handlers")

// HandleChat serves POST /v1/chat: one full turn, response returned in a
// single JSON body.
//
// Steps:
//  1. Bind and validate the request.
//  2. Run the turn through the chat service (retrieval, history planning,
//     generation, history finalization).
//  3. Return the response plus the updated history for the client to echo
//     back on its next call.
func HandleChat(chatService *services.ChatService) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := tracer.Start(c.Request.Context(), "HandleChat")
		defer span.End()
		start := time.Now()

		var req datatypes.ChatRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			slog.Warn("Invalid chat request body", "error", err)
			recordRequestError(observability.EndpointChat, observability.ErrorCodeValidation)
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}
		req.EnsureDefaults()
		if err := req.Validate(); err != nil {
			slog.Warn("Chat request failed validation", "error", err)
			recordRequestError(observability.EndpointChat, observability.ErrorCodeValidation)
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		params := generationParams(&req)
		result := chatService.Respond(ctx, req.Message, req.History, params, nil)

		if observability.DefaultMetrics != nil {
			observability.DefaultMetrics.RecordRequest(observability.EndpointChat, !result.GenerationFailed)
		}
		slog.Info("Chat turn completed",
			"request_id", req.RequestID,
			"mode", result.Mode,
			"context_used", result.ContextUsed,
			"duration_ms", time.Since(start).Milliseconds())

		c.JSON(http.StatusOK, datatypes.ChatResponse{
			RequestID:   req.RequestID,
			Response:    result.Response,
			History:     result.History,
			ContextUsed: result.ContextUsed,
			DurationMs:  time.Since(start).Milliseconds(),
		})
	}
}

// generationParams maps request knobs onto backend parameters.
func generationParams(req *datatypes.ChatRequest) llm.GenerationParams {
	temp := float32(req.Temperature)
	maxTokens := req.MaxTokens
	return llm.GenerationParams{
		Temperature: &temp,
		MaxTokens:   &maxTokens,
	}
}

func recordRequestError(endpoint observability.Endpoint, code observability.ErrorCode) {
	if observability.DefaultMetrics != nil {
		observability.DefaultMetrics.RecordError(endpoint, code)
	}
}

// Copyright (C) 2025 Pizza Alchemy (engineering@pizzaalchemy.com)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/PizzaAlchemy/AlchemyChat/services/orchestrator/datatypes"
	"github.com/PizzaAlchemy/AlchemyChat/services/orchestrator/observability"
	"github.com/PizzaAlchemy/AlchemyChat/services/orchestrator/services"
)

// keepAliveInterval is how often an idle stream gets a comment ping.
// 15s stays under the 30s idle timeout of common reverse proxies.
const keepAliveInterval = 15 * time.Second

// HandleChatStream serves POST /v1/chat/stream over server-sent events.
//
// Event sequence: one status event, token events as fragments arrive, then a
// terminal done event carrying the full response and updated history. A
// backend failure surfaces as a token carrying the apology followed by a
// normal done event, so clients need no special error path to keep their
// history in sync.
func HandleChatStream(chatService *services.ChatService) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := tracer.Start(c.Request.Context(), "HandleChatStream")
		defer span.End()
		start := time.Now()

		var req datatypes.ChatRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			slog.Warn("Invalid stream request body", "error", err)
			recordRequestError(observability.EndpointChatStream, observability.ErrorCodeValidation)
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}
		req.EnsureDefaults()
		if err := req.Validate(); err != nil {
			slog.Warn("Stream request failed validation", "error", err)
			recordRequestError(observability.EndpointChatStream, observability.ErrorCodeValidation)
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		SetSSEHeaders(c.Writer)
		writer, err := NewSSEWriter(c.Writer)
		if err != nil {
			slog.Error("Streaming not supported by response writer", "error", err)
			recordRequestError(observability.EndpointChatStream, observability.ErrorCodeStreamInit)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "streaming not supported"})
			return
		}

		metrics := observability.DefaultMetrics
		if metrics != nil {
			metrics.StreamStarted(observability.EndpointChatStream)
			defer metrics.StreamEnded(observability.EndpointChatStream)
		}

		if err := writer.WriteStatus("Thinking..."); err != nil {
			slog.Warn("Failed to write status event", "error", err)
			return
		}

		// Heartbeat until the turn finishes.
		heartbeatCtx, stopHeartbeat := context.WithCancel(ctx)
		go runKeepAlive(heartbeatCtx, writer, metrics)

		firstToken := true
		result := chatService.Respond(ctx, req.Message, req.History, generationParams(&req),
			func(fragment string) error {
				if firstToken {
					firstToken = false
					if metrics != nil {
						metrics.RecordTimeToFirstToken(observability.EndpointChatStream,
							time.Since(start).Seconds())
					}
				}
				return writer.WriteToken(fragment)
			})
		stopHeartbeat()

		if err := writer.WriteDone(result.Response, result.History); err != nil {
			slog.Warn("Failed to write done event, client likely disconnected",
				"request_id", req.RequestID, "error", err)
		}

		if metrics != nil {
			metrics.RecordRequest(observability.EndpointChatStream, !result.GenerationFailed)
			metrics.RecordStreamDuration(observability.EndpointChatStream,
				time.Since(start).Seconds(), !result.GenerationFailed)
		}
		slog.Info("Chat stream completed",
			"request_id", req.RequestID,
			"mode", result.Mode,
			"context_used", result.ContextUsed,
			"duration_ms", time.Since(start).Milliseconds())
	}
}

// runKeepAlive pings the stream until ctx is cancelled.
func runKeepAlive(ctx context.Context, writer SSEWriter, metrics *observability.ChatMetrics) {
	ticker := time.NewTicker(keepAliveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := writer.WriteKeepAlive(); err != nil {
				slog.Debug("Keepalive write failed, stopping heartbeat", "error", err)
				return
			}
			if metrics != nil {
				metrics.RecordKeepAlive(observability.EndpointChatStream)
			}
		}
	}
}

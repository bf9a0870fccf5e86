// Copyright (C) 2025 Pizza Alchemy (engineering@pizzaalchemy.com)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package routes

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"

	"github.com/PizzaAlchemy/AlchemyChat/services/orchestrator/handlers"
	"github.com/PizzaAlchemy/AlchemyChat/services/orchestrator/retrieval"
	"github.com/PizzaAlchemy/AlchemyChat/services/orchestrator/services"
)

func SetupRoutes(router *gin.Engine, chatService *services.ChatService,
	client *weaviate.Client, embedder retrieval.EmbeddingProvider,
	semanticEnabled func() bool) {

	router.Use(corsMiddleware())

	router.GET("/health", handlers.HandleHealth(semanticEnabled))
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// API version 1 group
	v1 := router.Group("/v1")
	{
		v1.POST("/chat", handlers.HandleChat(chatService))
		v1.POST("/chat/stream", handlers.HandleChatStream(chatService))

		knowledge := v1.Group("/knowledge")
		{
			if client != nil && embedder != nil {
				knowledge.POST("/documents", handlers.HandleIngestDocument(client, embedder))
			} else {
				knowledge.POST("/documents", knowledgeUnavailable)
			}
			if client != nil {
				knowledge.GET("/documents", handlers.HandleListDocuments(client))
				knowledge.DELETE("/documents", handlers.HandleDeleteDocuments(client))
			} else {
				knowledge.GET("/documents", knowledgeUnavailable)
				knowledge.DELETE("/documents", knowledgeUnavailable)
			}
		}
	}
}

// knowledgeUnavailable answers knowledge-base routes when the service runs
// in lightweight mode without Weaviate or the embedding sidecar.
func knowledgeUnavailable(c *gin.Context) {
	c.JSON(http.StatusServiceUnavailable, gin.H{
		"error": "knowledge base is not configured on this deployment",
	})
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

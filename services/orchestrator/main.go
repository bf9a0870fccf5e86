// Copyright (C) 2025 Pizza Alchemy (engineering@pizzaalchemy.com)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"context"
	"log"
	"log/slog"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/PizzaAlchemy/AlchemyChat/services/llm"
	"github.com/PizzaAlchemy/AlchemyChat/services/orchestrator/conversation"
	"github.com/PizzaAlchemy/AlchemyChat/services/orchestrator/datatypes"
	"github.com/PizzaAlchemy/AlchemyChat/services/orchestrator/knowledge"
	"github.com/PizzaAlchemy/AlchemyChat/services/orchestrator/observability"
	"github.com/PizzaAlchemy/AlchemyChat/services/orchestrator/retrieval"
	"github.com/PizzaAlchemy/AlchemyChat/services/orchestrator/routes"
	"github.com/PizzaAlchemy/AlchemyChat/services/orchestrator/services"

	// --- OpenTelemetry imports ---
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"google.golang.org/grpc"
)

func initTracer() (func(context.Context), error) {
	ctx := context.Background()

	otelEndpoint := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
	if otelEndpoint == "" {
		// No collector deployed; keep the no-op global tracer.
		slog.Info("OTEL_EXPORTER_OTLP_ENDPOINT not set, tracing disabled")
		return func(context.Context) {}, nil
	}
	conn, err := grpc.NewClient(otelEndpoint,
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, err
	}
	traceExporter, err := otlptracegrpc.New(ctx, otlptracegrpc.WithGRPCConn(conn))
	if err != nil {
		return nil, err
	}
	res, err := resource.New(ctx,
		resource.WithAttributes(semconv.ServiceNameKey.String("alchemychat-orchestrator")))
	if err != nil {
		return nil, err
	}
	bsp := sdktrace.NewBatchSpanProcessor(traceExporter)
	traceProvider := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithResource(res),
		sdktrace.WithSpanProcessor(bsp))
	otel.SetTracerProvider(traceProvider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.
		TraceContext{}, propagation.Baggage{}))

	return func(ctx context.Context) {
		ctx, cancel := context.WithTimeout(ctx, time.Second*5)
		defer cancel()
		if err := traceExporter.Shutdown(ctx); err != nil {
			slog.Error("failed to shutdown OTLP exporter", "error", err)
		}
	}, nil
}

// setupWeaviate connects to Weaviate when WEAVIATE_SERVICE_URL is set and
// valid. Returns nil otherwise; the service then answers from the structured
// knowledge base only.
func setupWeaviate() *weaviate.Client {
	weaviateURL := strings.Trim(os.Getenv("WEAVIATE_SERVICE_URL"), "\"' ")
	if weaviateURL == "" || !strings.Contains(weaviateURL, "http") {
		slog.Info("WEAVIATE_SERVICE_URL not set. Running in keyword-only mode.")
		return nil
	}

	parsedURL, err := url.Parse(weaviateURL)
	if err != nil || parsedURL.Scheme == "" || parsedURL.Host == "" {
		slog.Warn("WEAVIATE_SERVICE_URL is invalid. Running in keyword-only mode.",
			"url", weaviateURL, "error", err)
		return nil
	}

	client, err := weaviate.NewClient(weaviate.Config{
		Host:   parsedURL.Host,
		Scheme: parsedURL.Scheme,
	})
	if err != nil {
		slog.Error("Failed to create Weaviate client", "error", err)
		return nil
	}
	datatypes.EnsureWeaviateSchema(client)
	return client
}

func main() {
	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using process environment")
	}

	port := os.Getenv("ORCHESTRATOR_PORT")
	if port == "" {
		port = "12210"
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cleanup, err := initTracer()
	if err != nil {
		log.Fatalf("failed to setup the OTLP tracer: %v", err)
	}
	defer cleanup(context.Background())

	// --- Knowledge base ---
	kbPath := os.Getenv("KB_PATH")
	if kbPath == "" {
		kbPath = "config/knowledge_base.json"
	}
	base, err := knowledge.Load(kbPath)
	if err != nil {
		slog.Warn("Failed to load knowledge base file, using built-in defaults",
			"path", kbPath, "error", err)
	}
	store := knowledge.NewStore(base)

	watchCtx, stopWatch := context.WithCancel(context.Background())
	defer stopWatch()
	go func() {
		if err := store.Watch(watchCtx, kbPath); err != nil {
			slog.Warn("Knowledge base watcher stopped", "path", kbPath, "error", err)
		}
	}()

	persona, err := knowledge.LoadPersona(os.Getenv("SYSTEM_PROMPT_PATH"), base)
	if err != nil {
		slog.Warn("Failed to load persona file, using built-in persona", "error", err)
	}

	// --- LLM backend ---
	log.Println("Configuring the LLM Client")
	llmClient, err := llm.NewClientFromEnv()
	if err != nil {
		log.Fatalf("Failed to initialize LLM client: %v", err)
	}

	// --- Retrieval ---
	retrievalCfg := retrieval.DefaultConfig()
	weaviateClient := setupWeaviate()
	embedder := retrieval.NewHTTPEmbedderFromEnv()

	var semantic *retrieval.SemanticRetriever
	if weaviateClient != nil && embedder != nil {
		semantic = retrieval.NewSemanticRetriever(embedder,
			retrieval.NewWeaviateIndex(weaviateClient), retrievalCfg)
		slog.Info("Semantic retrieval enabled")
	} else {
		slog.Info("Semantic retrieval disabled, using keyword retrieval only")
	}
	assembler := retrieval.NewAssembler(store, semantic, retrievalCfg)

	// --- Conversation pipeline ---
	summarizer := conversation.NewLLMSummarizer(llm.GenerateFuncFrom(llmClient))
	stateMachine := conversation.NewStateMachine(summarizer, func() string {
		return persona
	}, conversation.DefaultHistoryConfig())

	metrics := observability.InitMetrics()
	chatService := services.NewChatService(llmClient, assembler, stateMachine, metrics)

	// --- HTTP surface ---
	router := gin.Default()
	router.Use(otelgin.Middleware("alchemychat-orchestrator"))

	var embedderProvider retrieval.EmbeddingProvider
	if embedder != nil {
		embedderProvider = embedder
	}
	routes.SetupRoutes(router, chatService, weaviateClient, embedderProvider,
		assembler.SemanticEnabled)

	log.Println("Starting the orchestrator server on port ", port)
	if err := router.Run(":" + port); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}

// Copyright (C) 2025 Pizza Alchemy (engineering@pizzaalchemy.com)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package services holds the request-level orchestration logic shared by the
// HTTP handlers.
package services

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/PizzaAlchemy/AlchemyChat/services/llm"
	"github.com/PizzaAlchemy/AlchemyChat/services/orchestrator/conversation"
	"github.com/PizzaAlchemy/AlchemyChat/services/orchestrator/datatypes"
	"github.com/PizzaAlchemy/AlchemyChat/services/orchestrator/observability"
	"github.com/PizzaAlchemy/AlchemyChat/services/orchestrator/retrieval"
)

var tracer = otel.Tracer("alchemychat.services")

// TurnResult is the outcome of one chat turn.
//
// Response is always usable text: a backend failure is folded into an
// apology rather than surfaced as an error, and History is updated either
// way so the conversation survives the failure.
type TurnResult struct {
	Response         string
	History          []datatypes.Message
	ContextUsed      bool
	Mode             conversation.Mode
	GenerationFailed bool
}

// FragmentFunc receives response fragments in order. Concatenating every
// fragment yields exactly TurnResult.Response.
type FragmentFunc func(fragment string) error

// ChatService runs the full turn pipeline: retrieve context, plan history
// mode, generate, finalize history.
type ChatService struct {
	llmClient llm.LLMClient
	assembler *retrieval.Assembler
	history   *conversation.StateMachine
	metrics   *observability.ChatMetrics
}

// NewChatService wires the pipeline. metrics may be nil (tests).
func NewChatService(client llm.LLMClient, assembler *retrieval.Assembler,
	history *conversation.StateMachine, metrics *observability.ChatMetrics) *ChatService {
	return &ChatService{
		llmClient: client,
		assembler: assembler,
		history:   history,
		metrics:   metrics,
	}
}

// Respond handles one customer turn.
//
// onFragment may be nil for non-streaming callers; when set it is invoked
// for every fragment before Respond returns, so a caller can forward partial
// output while generation is still running. Respond never returns an error
// for backend failures: the stream gets one apology fragment carrying the
// error detail, the apology becomes the recorded response, and the history
// update still happens.
func (s *ChatService) Respond(ctx context.Context, userText string,
	history []datatypes.Message, params llm.GenerationParams, onFragment FragmentFunc) *TurnResult {

	ctx, span := tracer.Start(ctx, "ChatService.Respond")
	defer span.End()

	wasSummarized := conversation.IsSummarized(history)
	plan := s.history.Plan(ctx, history)

	kbContext, source := s.assembler.Assemble(ctx, userText, history)
	if s.metrics != nil {
		s.metrics.RecordRetrieval(observability.RetrievalSource(source))
	}
	span.SetAttributes(
		attribute.String("chat.mode", string(plan.Mode)),
		attribute.String("chat.context_source", source),
	)

	sentUserContent := retrieval.ComposePrompt(userText, kbContext)
	messages := append(plan.Messages, datatypes.Message{
		Role:    datatypes.RoleUser,
		Content: sentUserContent,
	})

	response, genErr := s.generate(ctx, messages, params, onFragment)
	failed := genErr != nil
	if failed {
		slog.Error("Generation backend failed, returning apology", "error", genErr)
		span.RecordError(genErr)
		if s.metrics != nil {
			s.metrics.RecordError(observability.EndpointChat, observability.ErrorCodeBackend)
		}
		response = apologyFor(genErr)
		if onFragment != nil {
			if err := onFragment(response); err != nil {
				slog.Warn("Failed to deliver apology fragment", "error", err)
			}
		}
	}

	updated := s.history.Finalize(ctx, plan, userText, sentUserContent, response)
	if plan.Mode == conversation.ModeSummarized && !wasSummarized {
		span.AddEvent("history_compressed", trace.WithAttributes(
			attribute.Int("chat.raw_turns", len(history)),
		))
		if s.metrics != nil {
			s.metrics.RecordSummaryCompression()
		}
	}

	return &TurnResult{
		Response:         response,
		History:          updated,
		ContextUsed:      kbContext != "",
		Mode:             plan.Mode,
		GenerationFailed: failed,
	}
}

// generate runs the backend call, streaming when a fragment callback is
// present. The streamed fragments are accumulated so the returned text
// always equals their concatenation.
func (s *ChatService) generate(ctx context.Context, messages []datatypes.Message,
	params llm.GenerationParams, onFragment FragmentFunc) (string, error) {

	if onFragment == nil {
		return s.llmClient.Chat(ctx, messages, params)
	}

	var full []byte
	err := s.llmClient.ChatStream(ctx, messages, params, func(event llm.StreamEvent) error {
		switch event.Type {
		case llm.StreamEventToken:
			full = append(full, event.Content...)
			return onFragment(event.Content)
		case llm.StreamEventError:
			return event.Err
		default:
			return nil
		}
	})
	if err != nil {
		return "", err
	}
	return string(full), nil
}

// apologyFor renders the user-facing failure message. The error detail is
// included so support can correlate a screenshot with the logs.
func apologyFor(err error) string {
	return fmt.Sprintf("I'm sorry, I ran into a problem answering that (%v). Please try again in a moment.", err)
}

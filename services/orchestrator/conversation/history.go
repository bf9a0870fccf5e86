// Copyright (C) 2025 Pizza Alchemy (engineering@pizzaalchemy.com)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package conversation

import (
	"context"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/PizzaAlchemy/AlchemyChat/services/orchestrator/datatypes"
)

var tracer = otel.Tracer("alchemychat.conversation")

// Mode is the observable conversation state.
type Mode string

const (
	// ModeRaw carries the verbatim user/assistant transcript.
	ModeRaw Mode = "raw"

	// ModeSummarized carries a single rolling summary turn. Terminal:
	// a summarized conversation never reverts to raw.
	ModeSummarized Mode = "summarized"
)

// SummaryPrefix labels the summary when it is placed into a generation
// message list.
const SummaryPrefix = "Previous Conversation Summary: "

// Summarizer failure markers. On a hard failure the interaction text is
// deliberately NOT appended, so repeated failures cannot grow the summary
// without bound.
const (
	unsummarizedMarker = "\n[Unsummarized Interaction]"
	newInteractionTag  = "\n[New Interaction]: "
	truncateLimit      = 100
)

// Config holds the history state machine knobs.
type Config struct {
	// RawTurnLimit is the raw turn count at which the next request
	// compresses the transcript. 4 turns = 2 full exchanges.
	RawTurnLimit int
}

// DefaultHistoryConfig returns the defaults, overridable via environment.
func DefaultHistoryConfig() Config {
	limit := 4
	if v := os.Getenv("HISTORY_RAW_TURN_LIMIT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	return Config{RawTurnLimit: limit}
}

// IsSummarized reports whether caller-supplied history is in summarized
// mode.
//
// Mode is inferred, never stored: the presence of ANY system-role turn means
// summarized, because raw client histories hold only user/assistant turns
// (the persona is injected server-side per request, not echoed to clients).
// The convention is deliberate but fragile, so every mode decision goes
// through this single predicate.
func IsSummarized(history []datatypes.Message) bool {
	for _, turn := range history {
		if turn.Role == datatypes.RoleSystem {
			return true
		}
	}
	return false
}

// TurnPlan is the state machine's per-request output: the message prefix to
// generate against, plus what Finalize needs to fold the exchange back in.
type TurnPlan struct {
	Mode Mode

	// Messages is the generation prefix. The contextualized user turn is
	// appended by the caller after context assembly.
	Messages []datatypes.Message

	prevSummary string
	rawHistory  []datatypes.Message
	compressing bool
}

// StateMachine decides, per request, whether conversation state stays a raw
// transcript or collapses into a rolling summary.
//
// Value semantics throughout: history comes in as a snapshot and goes out as
// a new slice; no stage mutates caller-owned state.
type StateMachine struct {
	summarizer Summarizer
	persona    func() string
	cfg        Config
}

// NewStateMachine builds a state machine. persona is called per request so
// a knowledge-base reload can change the waiter's introduction.
func NewStateMachine(summarizer Summarizer, persona func() string, cfg Config) *StateMachine {
	return &StateMachine{summarizer: summarizer, persona: persona, cfg: cfg}
}

// Plan inspects incoming history and produces the generation prefix.
//
// Raw history below the turn limit passes through behind the persona turn.
// Raw history at or over the limit triggers the compression transition: the
// whole transcript is summarized first, and generation runs against
// {persona, summary} instead of the transcript. Summarized history stays
// summarized.
func (m *StateMachine) Plan(ctx context.Context, history []datatypes.Message) *TurnPlan {
	ctx, span := tracer.Start(ctx, "StateMachine.Plan")
	defer span.End()
	span.SetAttributes(attribute.Int("history.turns", len(history)))

	personaTurn := datatypes.Message{Role: datatypes.RoleSystem, Content: m.persona()}

	if IsSummarized(history) {
		existing := extractSummary(history)
		span.SetAttributes(attribute.String("history.mode", string(ModeSummarized)))
		return &TurnPlan{
			Mode: ModeSummarized,
			Messages: []datatypes.Message{
				personaTurn,
				{Role: datatypes.RoleSystem, Content: SummaryPrefix + existing},
			},
			prevSummary: existing,
		}
	}

	if len(history) >= m.cfg.RawTurnLimit {
		// Transition: compress the transcript before generating.
		transcript := renderTranscript(history)
		initial := m.summarizeOrDegrade(ctx, "", transcript)
		slog.Info("Compressing raw conversation history",
			"turns", len(history), "summary_len", len(initial))
		span.SetAttributes(
			attribute.String("history.mode", string(ModeSummarized)),
			attribute.Bool("history.transition", true),
		)
		return &TurnPlan{
			Mode: ModeSummarized,
			Messages: []datatypes.Message{
				personaTurn,
				{Role: datatypes.RoleSystem, Content: SummaryPrefix + initial},
			},
			prevSummary: initial,
			compressing: true,
		}
	}

	span.SetAttributes(attribute.String("history.mode", string(ModeRaw)))
	messages := make([]datatypes.Message, 0, len(history)+1)
	messages = append(messages, personaTurn)
	messages = append(messages, history...)
	return &TurnPlan{
		Mode:       ModeRaw,
		Messages:   messages,
		rawHistory: history,
	}
}

// Finalize folds the finished exchange into the outgoing history.
//
// sentUserContent is the user turn as it was sent to the model (possibly
// wrapped with knowledge context); userText is the bare customer text used
// for summaries. In raw mode both new turns are appended; in summarized mode
// the exchange is merged into the rolling summary and the outgoing history
// is a single system turn.
func (m *StateMachine) Finalize(ctx context.Context, plan *TurnPlan, userText, sentUserContent, answer string) []datatypes.Message {
	ctx, span := tracer.Start(ctx, "StateMachine.Finalize")
	defer span.End()
	span.SetAttributes(attribute.String("history.mode", string(plan.Mode)))

	if plan.Mode == ModeRaw {
		updated := make([]datatypes.Message, 0, len(plan.rawHistory)+2)
		updated = append(updated, plan.rawHistory...)
		updated = append(updated,
			datatypes.Message{Role: datatypes.RoleUser, Content: sentUserContent},
			datatypes.Message{Role: datatypes.RoleAssistant, Content: answer},
		)
		return updated
	}

	interaction := "User: " + userText + "\nAssistant: " + answer
	final := m.summarizeOrDegrade(ctx, plan.prevSummary, interaction)
	return []datatypes.Message{{Role: datatypes.RoleSystem, Content: final}}
}

// summarizeOrDegrade applies the summarizer failure policy: an empty result
// degrades to previous + truncated interaction, a hard failure degrades to
// previous + a fixed marker.
func (m *StateMachine) summarizeOrDegrade(ctx context.Context, previousSummary, newInteraction string) string {
	summary, err := m.summarizer.Summarize(ctx, previousSummary, newInteraction)
	if err != nil {
		slog.Warn("Summarizer call failed, appending marker instead", "error", err)
		return previousSummary + unsummarizedMarker
	}
	if strings.TrimSpace(summary) == "" {
		slog.Warn("Summarizer returned empty summary, appending truncated interaction")
		return previousSummary + newInteractionTag + truncateRunes(newInteraction, truncateLimit)
	}
	return summary
}

// extractSummary pulls the rolling summary out of summarized history: the
// first system turn's content, minus the prefix if a caller echoed it back.
func extractSummary(history []datatypes.Message) string {
	for _, turn := range history {
		if turn.Role == datatypes.RoleSystem {
			return strings.TrimPrefix(turn.Content, SummaryPrefix)
		}
	}
	return ""
}

// renderTranscript renders raw turns one per line as "<Role>: <content>".
func renderTranscript(history []datatypes.Message) string {
	lines := make([]string, 0, len(history))
	for _, turn := range history {
		role := turn.Role
		if role != "" {
			role = strings.ToUpper(role[:1]) + role[1:]
		}
		lines = append(lines, role+": "+turn.Content)
	}
	return strings.Join(lines, "\n")
}

func truncateRunes(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}

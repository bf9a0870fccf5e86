// Copyright (C) 2025 Pizza Alchemy (engineering@pizzaalchemy.com)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package conversation

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/PizzaAlchemy/AlchemyChat/services/orchestrator/datatypes"
)

// ============================================================================
// Test Doubles
// ============================================================================

type stubSummarizer struct {
	summary string
	err     error

	gotPrevious    string
	gotInteraction string
	calls          int
}

func (s *stubSummarizer) Summarize(_ context.Context, previousSummary, newInteraction string) (string, error) {
	s.calls++
	s.gotPrevious = previousSummary
	s.gotInteraction = newInteraction
	return s.summary, s.err
}

const testPersona = "You are Daniel Siddiqui, the friendly waiter at Pizza Alchemy."

func newTestMachine(s Summarizer) *StateMachine {
	return NewStateMachine(s, func() string { return testPersona }, Config{RawTurnLimit: 4})
}

func fourTurns() []datatypes.Message {
	return []datatypes.Message{
		{Role: datatypes.RoleUser, Content: "hi"},
		{Role: datatypes.RoleAssistant, Content: "hello"},
		{Role: datatypes.RoleUser, Content: "menu?"},
		{Role: datatypes.RoleAssistant, Content: "here's our menu"},
	}
}

// ============================================================================
// Mode Inference
// ============================================================================

func TestIsSummarized(t *testing.T) {
	if IsSummarized(nil) {
		t.Error("empty history must be raw")
	}
	if IsSummarized(fourTurns()) {
		t.Error("user/assistant turns must be raw")
	}
	summarized := []datatypes.Message{{Role: datatypes.RoleSystem, Content: "a summary"}}
	if !IsSummarized(summarized) {
		t.Error("system turn must mean summarized")
	}
}

// ============================================================================
// Plan
// ============================================================================

func TestPlan_RawUnderLimit(t *testing.T) {
	sum := &stubSummarizer{}
	m := newTestMachine(sum)
	history := fourTurns()[:2]

	plan := m.Plan(context.Background(), history)

	if plan.Mode != ModeRaw {
		t.Fatalf("expected raw mode, got %q", plan.Mode)
	}
	if sum.calls != 0 {
		t.Errorf("summarizer must not run under the limit, ran %d times", sum.calls)
	}
	if len(plan.Messages) != 3 {
		t.Fatalf("expected persona + 2 turns, got %d messages", len(plan.Messages))
	}
	if plan.Messages[0].Role != datatypes.RoleSystem || plan.Messages[0].Content != testPersona {
		t.Errorf("first message must be the persona, got %+v", plan.Messages[0])
	}
	if plan.Messages[1] != history[0] || plan.Messages[2] != history[1] {
		t.Errorf("history turns not passed through: %+v", plan.Messages[1:])
	}
}

func TestPlan_CompressesAtLimit(t *testing.T) {
	sum := &stubSummarizer{summary: "Customer greeted and asked for the menu."}
	m := newTestMachine(sum)

	plan := m.Plan(context.Background(), fourTurns())

	if plan.Mode != ModeSummarized {
		t.Fatalf("expected summarized mode at the turn limit, got %q", plan.Mode)
	}
	if sum.calls != 1 {
		t.Fatalf("expected one summarizer call, got %d", sum.calls)
	}
	wantTranscript := "User: hi\nAssistant: hello\nUser: menu?\nAssistant: here's our menu"
	if sum.gotInteraction != wantTranscript {
		t.Errorf("transcript = %q, want %q", sum.gotInteraction, wantTranscript)
	}
	if sum.gotPrevious != "" {
		t.Errorf("initial compression must pass an empty previous summary, got %q", sum.gotPrevious)
	}
	if len(plan.Messages) != 2 {
		t.Fatalf("expected persona + summary, got %d messages", len(plan.Messages))
	}
	want := SummaryPrefix + "Customer greeted and asked for the menu."
	if plan.Messages[1].Content != want {
		t.Errorf("summary turn = %q, want %q", plan.Messages[1].Content, want)
	}
}

func TestPlan_SummarizedStaysSummarized(t *testing.T) {
	sum := &stubSummarizer{summary: "should not be used by Plan"}
	m := newTestMachine(sum)
	history := []datatypes.Message{{Role: datatypes.RoleSystem, Content: "running summary"}}

	plan := m.Plan(context.Background(), history)

	if plan.Mode != ModeSummarized {
		t.Fatalf("expected summarized mode, got %q", plan.Mode)
	}
	if sum.calls != 0 {
		t.Errorf("Plan must not re-summarize existing summaries, ran %d times", sum.calls)
	}
	if plan.Messages[1].Content != SummaryPrefix+"running summary" {
		t.Errorf("summary turn = %q", plan.Messages[1].Content)
	}
}

func TestPlan_StripsEchoedPrefix(t *testing.T) {
	m := newTestMachine(&stubSummarizer{})
	history := []datatypes.Message{
		{Role: datatypes.RoleSystem, Content: SummaryPrefix + "running summary"},
	}

	plan := m.Plan(context.Background(), history)

	// The prefix must not stack when a client echoes it back.
	if plan.Messages[1].Content != SummaryPrefix+"running summary" {
		t.Errorf("prefix stacked: %q", plan.Messages[1].Content)
	}
}

// ============================================================================
// Finalize
// ============================================================================

func TestFinalize_RawAppendsExchange(t *testing.T) {
	m := newTestMachine(&stubSummarizer{})
	history := fourTurns()[:2]
	plan := m.Plan(context.Background(), history)

	updated := m.Finalize(context.Background(), plan,
		"any deals?", "Context from Knowledge Base:\n...\n\nCustomer: any deals?", "We have a Family Deal.")

	if len(updated) != 4 {
		t.Fatalf("expected 4 turns, got %d", len(updated))
	}
	// The contextualized content is what goes into raw history, matching
	// what the model actually saw.
	if updated[2].Role != datatypes.RoleUser || !strings.Contains(updated[2].Content, "Context from Knowledge Base:") {
		t.Errorf("user turn should carry the sent content, got %+v", updated[2])
	}
	if updated[3].Role != datatypes.RoleAssistant || updated[3].Content != "We have a Family Deal." {
		t.Errorf("assistant turn wrong: %+v", updated[3])
	}
}

func TestFinalize_DoesNotMutateInput(t *testing.T) {
	m := newTestMachine(&stubSummarizer{})
	history := fourTurns()[:2]
	snapshot := append([]datatypes.Message(nil), history...)
	plan := m.Plan(context.Background(), history)

	_ = m.Finalize(context.Background(), plan, "q", "q", "a")

	for i := range history {
		if history[i] != snapshot[i] {
			t.Fatalf("input history mutated at %d: %+v", i, history[i])
		}
	}
}

func TestFinalize_SummarizedFoldsExchange(t *testing.T) {
	sum := &stubSummarizer{summary: "Customer ordered a Family Deal."}
	m := newTestMachine(sum)
	history := []datatypes.Message{{Role: datatypes.RoleSystem, Content: "running summary"}}
	plan := m.Plan(context.Background(), history)

	updated := m.Finalize(context.Background(), plan,
		"I'll take the family deal", "contextualized content", "Great choice!")

	if len(updated) != 1 || updated[0].Role != datatypes.RoleSystem {
		t.Fatalf("summarized history must be one system turn, got %+v", updated)
	}
	if updated[0].Content != "Customer ordered a Family Deal." {
		t.Errorf("summary = %q", updated[0].Content)
	}
	// Summaries fold the bare customer text, not the contextualized turn.
	wantInteraction := "User: I'll take the family deal\nAssistant: Great choice!"
	if sum.gotInteraction != wantInteraction {
		t.Errorf("interaction = %q, want %q", sum.gotInteraction, wantInteraction)
	}
	if sum.gotPrevious != "running summary" {
		t.Errorf("previous summary = %q", sum.gotPrevious)
	}
}

// A summarized conversation never reverts to raw, whatever the summarizer
// does.
func TestFinalize_SummarizedNeverReverts(t *testing.T) {
	cases := []struct {
		name string
		sum  *stubSummarizer
	}{
		{"summarizer ok", &stubSummarizer{summary: "fresh"}},
		{"summarizer error", &stubSummarizer{err: errors.New("model down")}},
		{"summarizer empty", &stubSummarizer{summary: "   "}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			m := newTestMachine(tc.sum)
			history := []datatypes.Message{{Role: datatypes.RoleSystem, Content: "prev"}}
			plan := m.Plan(context.Background(), history)

			updated := m.Finalize(context.Background(), plan, "q", "q", "a")

			if !IsSummarized(updated) {
				t.Errorf("history reverted to raw: %+v", updated)
			}
		})
	}
}

// ============================================================================
// Summarizer Failure Policy
// ============================================================================

func TestFinalize_SummarizerErrorAppendsMarker(t *testing.T) {
	sum := &stubSummarizer{err: errors.New("model down")}
	m := newTestMachine(sum)
	history := []datatypes.Message{{Role: datatypes.RoleSystem, Content: "prev summary"}}
	plan := m.Plan(context.Background(), history)

	updated := m.Finalize(context.Background(), plan, "q", "q", "a")

	want := "prev summary\n[Unsummarized Interaction]"
	if updated[0].Content != want {
		t.Errorf("content = %q, want %q", updated[0].Content, want)
	}
}

func TestFinalize_EmptySummaryAppendsTruncatedInteraction(t *testing.T) {
	sum := &stubSummarizer{summary: ""}
	m := newTestMachine(sum)
	history := []datatypes.Message{{Role: datatypes.RoleSystem, Content: "prev"}}
	plan := m.Plan(context.Background(), history)

	longAnswer := strings.Repeat("x", 300)
	updated := m.Finalize(context.Background(), plan, "q", "q", longAnswer)

	content := updated[0].Content
	if !strings.HasPrefix(content, "prev\n[New Interaction]: User: q\nAssistant: x") {
		t.Errorf("unexpected degraded content: %q", content)
	}
	appended := strings.TrimPrefix(content, "prev\n[New Interaction]: ")
	if n := len([]rune(appended)); n != 100 {
		t.Errorf("appended interaction should be truncated to 100 runes, got %d", n)
	}
}

func TestTruncateRunes_MultibyteSafe(t *testing.T) {
	s := strings.Repeat("é", 150)
	got := truncateRunes(s, 100)
	if n := len([]rune(got)); n != 100 {
		t.Errorf("got %d runes, want 100", n)
	}
	if !strings.HasPrefix(s, got) {
		t.Error("truncation must be a prefix")
	}
}

// ============================================================================
// Config
// ============================================================================

func TestDefaultHistoryConfig(t *testing.T) {
	t.Setenv("HISTORY_RAW_TURN_LIMIT", "")
	if cfg := DefaultHistoryConfig(); cfg.RawTurnLimit != 4 {
		t.Errorf("default limit = %d, want 4", cfg.RawTurnLimit)
	}

	t.Setenv("HISTORY_RAW_TURN_LIMIT", "8")
	if cfg := DefaultHistoryConfig(); cfg.RawTurnLimit != 8 {
		t.Errorf("env override limit = %d, want 8", cfg.RawTurnLimit)
	}

	t.Setenv("HISTORY_RAW_TURN_LIMIT", "not-a-number")
	if cfg := DefaultHistoryConfig(); cfg.RawTurnLimit != 4 {
		t.Errorf("bad env value should keep default, got %d", cfg.RawTurnLimit)
	}
}

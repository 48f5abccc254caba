package filter

import (
	"strings"
	"testing"
	"time"

	"ex-chatflow/pkg/chatflow"
)

// TestCompileRejectsInvalidExpressions verifies parse and type errors surface at compile time.
func TestCompileRejectsInvalidExpressions(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		expr string
	}{
		{name: "syntax error", expr: `kind ==`},
		{name: "unknown variable", expr: `author == "me"`},
		{name: "type mismatch", expr: `ts_ms == "yesterday"`},
	}

	for _, testCase := range tests {
		testCase := testCase
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			if _, err := Compile(testCase.expr); err == nil {
				t.Fatalf("Compile(%q) succeeded, want error", testCase.expr)
			}
		})
	}
}

// TestPredicateMatch verifies interaction fields are exposed to expressions.
func TestPredicateMatch(t *testing.T) {
	t.Parallel()

	createdAt := time.Date(2026, 6, 1, 10, 0, 0, 0, time.UTC)
	interaction := chatflow.Interaction{
		ID:        "m1",
		Kind:      chatflow.KindChat,
		ContextID: "ctx",
		ProfileID: "p1",
		Role:      chatflow.RoleAssistant,
		Content:   "Deploy finished",
		CreatedAt: createdAt,
	}

	tests := []struct {
		name string
		expr string
		want bool
	}{
		{name: "empty accepts", expr: "  ", want: true},
		{name: "kind and role", expr: `kind == "chat" && role == "assistant"`, want: true},
		{name: "content contains", expr: `content.contains("Deploy")`, want: true},
		{name: "context mismatch", expr: `context_id == "other"`, want: false},
		{name: "profile", expr: `profile_id == "p1"`, want: true},
		{name: "timestamp compare", expr: `created_at < timestamp("2026-06-02T00:00:00Z")`, want: true},
		{name: "relative window", expr: `now_ms - ts_ms <= 60000`, want: true},
		{name: "relative window exceeded", expr: `now_ms - ts_ms < 60000`, want: false},
	}

	for _, testCase := range tests {
		testCase := testCase
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			predicate, err := Compile(testCase.expr)
			if err != nil {
				t.Fatalf("compile: %v", err)
			}
			if predicate.Enabled() {
				predicate.now = func() time.Time { return createdAt.Add(time.Minute) }
			}

			got, err := predicate.Match(interaction)
			if err != nil {
				t.Fatalf("match: %v", err)
			}
			if got != testCase.want {
				t.Fatalf("Match(%q) = %v, want %v", testCase.expr, got, testCase.want)
			}
		})
	}
}

// TestPredicateNonBoolResult verifies non-boolean expressions fail at evaluation.
func TestPredicateNonBoolResult(t *testing.T) {
	t.Parallel()

	predicate, err := Compile(`content`)
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	_, err = predicate.Match(chatflow.Interaction{ID: "m1", Content: "hello"})
	if err == nil || !strings.Contains(err.Error(), "want bool") {
		t.Fatalf("match error = %v, want non-bool result error", err)
	}
}

// Package filter compiles CEL expressions into interaction predicates.
//
// Expressions see these variables:
//
//	id, kind, context_id, profile_id, role, content  string
//	created_at                                       timestamp
//	ts_ms, now_ms                                    int (Unix milliseconds)
//
// Example: kind == "chat" && content.contains("deploy") && now_ms - ts_ms < 3600000
package filter

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/cel-go/cel"

	"ex-chatflow/pkg/chatflow"
)

// Predicate is a compiled interaction filter. The zero value accepts everything.
type Predicate struct {
	expr    string
	program cel.Program
	now     func() time.Time
}

// Compile parses and type-checks expr. An empty expression accepts everything.
func Compile(expr string) (Predicate, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return Predicate{}, nil
	}

	env, err := cel.NewEnv(
		cel.Variable("id", cel.StringType),
		cel.Variable("kind", cel.StringType),
		cel.Variable("context_id", cel.StringType),
		cel.Variable("profile_id", cel.StringType),
		cel.Variable("role", cel.StringType),
		cel.Variable("content", cel.StringType),
		cel.Variable("created_at", cel.TimestampType),
		cel.Variable("ts_ms", cel.IntType),
		cel.Variable("now_ms", cel.IntType),
	)
	if err != nil {
		return Predicate{}, fmt.Errorf("compile filter: environment: %w", err)
	}
	parsed, issues := env.Parse(expr)
	if issues != nil && issues.Err() != nil {
		return Predicate{}, fmt.Errorf("compile filter %q: %w", expr, issues.Err())
	}
	checked, issues := env.Check(parsed)
	if issues != nil && issues.Err() != nil {
		return Predicate{}, fmt.Errorf("compile filter %q: %w", expr, issues.Err())
	}
	program, err := env.Program(checked)
	if err != nil {
		return Predicate{}, fmt.Errorf("compile filter %q: %w", expr, err)
	}

	return Predicate{expr: expr, program: program, now: time.Now}, nil
}

// Enabled reports whether the predicate filters anything.
func (p Predicate) Enabled() bool {
	return p.program != nil
}

// String returns the source expression.
func (p Predicate) String() string {
	return p.expr
}

// Match evaluates the predicate against one interaction.
//
// Evaluation errors and non-boolean results are returned as errors rather than
// treated as a mismatch.
func (p Predicate) Match(interaction chatflow.Interaction) (bool, error) {
	if p.program == nil {
		return true, nil
	}

	out, _, err := p.program.Eval(map[string]any{
		"id":         interaction.ID,
		"kind":       string(interaction.Kind),
		"context_id": interaction.ContextID,
		"profile_id": interaction.ProfileID,
		"role":       string(interaction.Role),
		"content":    interaction.Content,
		"created_at": interaction.CreatedAt,
		"ts_ms":      interaction.CreatedAt.UnixMilli(),
		"now_ms":     p.now().UnixMilli(),
	})
	if err != nil {
		return false, fmt.Errorf("evaluate filter %q on %s: %w", p.expr, interaction.ID, err)
	}
	matched, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("evaluate filter %q on %s: result is %T, want bool", p.expr, interaction.ID, out.Value())
	}

	return matched, nil
}

package chatflow

import (
	"fmt"
	"math"
	"time"
)

// Timestamps are stored as Unix nanoseconds, which bounds the usable range.
var (
	minTime = time.Unix(0, math.MinInt64)
	maxTime = time.Unix(0, math.MaxInt64)
)

func timeInRange(t time.Time) bool {
	return !t.Before(minTime) && !t.After(maxTime)
}

// Kind classifies an interaction node in the conversation tree.
type Kind string

const (
	// KindChat is a single chat turn. Chat turns are leaves.
	KindChat Kind = "chat"
	// KindContext groups chat turns into one conversation thread.
	KindContext Kind = "context"
	// KindRoot is a top-level container such as a workspace.
	KindRoot Kind = "root"
)

// Validate checks whether the kind is supported.
func (k Kind) Validate() error {
	switch k {
	case KindChat, KindContext, KindRoot:
		return nil
	default:
		return fmt.Errorf("validate kind: unsupported kind %q", k)
	}
}

// IsLeaf reports whether nodes of this kind page through siblings when tracing back.
func (k Kind) IsLeaf() bool {
	return k == KindChat
}

// Role identifies who authored a chat turn.
type Role string

const (
	// RoleUser marks a user-authored turn.
	RoleUser Role = "user"
	// RoleAssistant marks an assistant-authored turn.
	RoleAssistant Role = "assistant"
	// RoleSystem marks instructions injected by the client.
	RoleSystem Role = "system"
)

// Interaction is one node of the backward-time-ordered conversation store.
type Interaction struct {
	// ID uniquely identifies the interaction.
	ID string `json:"id"`
	// Kind classifies the node.
	Kind Kind `json:"kind"`
	// ContextID references the containing node; empty for top-level nodes.
	ContextID string `json:"context_id,omitempty"`
	// ProfileID scopes the interaction to one assistant profile.
	ProfileID string `json:"profile_id,omitempty"`
	// Role is the author role for chat turns.
	Role Role `json:"role,omitempty"`
	// Content is the turn text or container title.
	Content string `json:"content,omitempty"`
	// CreatedAt orders interactions; pagination moves strictly backward over it.
	CreatedAt time.Time `json:"created_at"`
}

// Validate checks mandatory interaction fields.
func (i Interaction) Validate() error {
	if i.ID == "" {
		return fmt.Errorf("validate interaction: missing id: %w", ErrInvalidInteraction)
	}
	if err := i.Kind.Validate(); err != nil {
		return fmt.Errorf("validate interaction %s: %w: %w", i.ID, ErrInvalidInteraction, err)
	}
	if i.CreatedAt.IsZero() {
		return fmt.Errorf("validate interaction %s: missing created_at: %w", i.ID, ErrInvalidInteraction)
	}
	if !timeInRange(i.CreatedAt) {
		return fmt.Errorf("validate interaction %s: created_at %s out of range: %w",
			i.ID, i.CreatedAt.Format(time.RFC3339), ErrInvalidInteraction)
	}
	if i.ContextID == i.ID {
		return fmt.Errorf("validate interaction %s: self-referencing context: %w", i.ID, ErrInvalidInteraction)
	}

	return nil
}

// ScopePath returns the hub path that watchers of this interaction subscribe to:
// [profileID, threadID], where threadID is the context or, for top-level nodes,
// the interaction itself.
func (i Interaction) ScopePath() []string {
	thread := i.ContextID
	if thread == "" {
		thread = i.ID
	}

	return []string{i.ProfileID, thread}
}

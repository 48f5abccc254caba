package chatflow

import (
	"fmt"
	"strings"
	"time"
)

// Profile is one assistant persona configured in the client.
type Profile struct {
	// ID uniquely identifies the profile.
	ID string `json:"id"`
	// Name is the display name.
	Name string `json:"name"`
	// Model names the backing model.
	Model string `json:"model,omitempty"`
	// SystemPrompt is prepended to every conversation.
	SystemPrompt string `json:"system_prompt,omitempty"`
	// UpdatedAt records the last persisted change.
	UpdatedAt time.Time `json:"updated_at"`
}

// Validate checks mandatory profile fields.
func (p Profile) Validate() error {
	if strings.TrimSpace(p.ID) == "" {
		return fmt.Errorf("validate profile: missing id: %w", ErrInvalidProfile)
	}
	if strings.TrimSpace(p.Name) == "" {
		return fmt.Errorf("validate profile %s: missing name: %w", p.ID, ErrInvalidProfile)
	}

	return nil
}

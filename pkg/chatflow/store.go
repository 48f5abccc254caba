package chatflow

import (
	"context"
	"fmt"
	"time"
)

// Order is the time direction of a page request.
type Order string

const (
	// OrderDesc returns newest first.
	OrderDesc Order = "desc"
	// OrderAsc returns oldest first.
	OrderAsc Order = "asc"
)

// PageQuery selects one page of interactions.
type PageQuery struct {
	// ContextID restricts results to children of one context. Empty means all.
	ContextID string
	// Before is an exclusive upper bound on CreatedAt.
	Before time.Time
	// Limit caps the number of returned interactions.
	Limit int
	// Order sets the time direction of the page.
	Order Order
}

// Validate checks query bounds.
func (q PageQuery) Validate() error {
	if q.Limit <= 0 {
		return fmt.Errorf("validate page query: limit must be positive, got %d", q.Limit)
	}
	if q.Before.IsZero() {
		return fmt.Errorf("validate page query: missing before cursor")
	}
	if !timeInRange(q.Before) {
		return fmt.Errorf("validate page query: before cursor %s out of range", q.Before.Format(time.RFC3339))
	}
	switch q.Order {
	case OrderDesc, OrderAsc:
	default:
		return fmt.Errorf("validate page query: unsupported order %q", q.Order)
	}

	return nil
}

// Pager is the paging collaborator behind streaming pagination.
type Pager interface {
	// Page returns up to q.Limit interactions created strictly before q.Before.
	Page(ctx context.Context, q PageQuery) ([]Interaction, error)
	// Parent returns the context node containing id.
	//
	// When id has no parent, found is false and err is nil.
	Parent(ctx context.Context, id string) (parent Interaction, found bool, err error)
}

// PagerFuncs adapts plain functions to Pager.
type PagerFuncs struct {
	PageFunc   func(ctx context.Context, q PageQuery) ([]Interaction, error)
	ParentFunc func(ctx context.Context, id string) (Interaction, bool, error)
}

// Page implements Pager.
func (p PagerFuncs) Page(ctx context.Context, q PageQuery) ([]Interaction, error) {
	if p.PageFunc == nil {
		return nil, nil
	}

	return p.PageFunc(ctx, q)
}

// Parent implements Pager.
func (p PagerFuncs) Parent(ctx context.Context, id string) (Interaction, bool, error) {
	if p.ParentFunc == nil {
		return Interaction{}, false, nil
	}

	return p.ParentFunc(ctx, id)
}

// InteractionStore is the persistent backing store for interactions.
//
// Implementations must be concurrency-safe.
type InteractionStore interface {
	Pager
	// Interaction returns one interaction by id.
	//
	// When no entry exists, found is false and err is nil.
	Interaction(ctx context.Context, id string) (interaction Interaction, found bool, err error)
	// AppendInteraction persists a new interaction.
	AppendInteraction(ctx context.Context, interaction Interaction) error
}

// ProfileStore is the persistent backing store for profiles.
type ProfileStore interface {
	// Profile returns one profile by id.
	//
	// When no entry exists, found is false and err is nil.
	Profile(ctx context.Context, id string) (profile Profile, found bool, err error)
	// SaveProfile inserts or replaces a profile.
	SaveProfile(ctx context.Context, profile Profile) error
}

// SettingStore is the persistent backing store for client settings.
type SettingStore interface {
	// Setting returns one setting value.
	//
	// When no entry exists, found is false and err is nil.
	Setting(ctx context.Context, key string) (value string, found bool, err error)
	// SaveSetting inserts or replaces a setting value.
	SaveSetting(ctx context.Context, key string, value string) error
}

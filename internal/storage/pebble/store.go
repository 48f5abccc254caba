package pebblestore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/pebble"
	lru "github.com/hashicorp/golang-lru"

	"ex-chatflow/pkg/chatflow"
)

// FsyncMode defines durability behavior for write operations.
type FsyncMode int

const (
	FsyncModeUnspecified FsyncMode = iota
	// FsyncModeAlways requests a WAL fsync on each committed batch.
	FsyncModeAlways
	// FsyncModeInterval lets Pebble coalesce WAL syncs within FsyncInterval.
	FsyncModeInterval
	// FsyncModeNever never forces WAL syncs from the application.
	FsyncModeNever
)

const (
	defaultFsyncInterval = 5 * time.Millisecond
	defaultItemCacheSize = 4096
)

// ParseFsyncMode maps a config string to a FsyncMode.
func ParseFsyncMode(raw string) (FsyncMode, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "":
		return FsyncModeUnspecified, nil
	case "always":
		return FsyncModeAlways, nil
	case "interval":
		return FsyncModeInterval, nil
	case "never":
		return FsyncModeNever, nil
	default:
		return FsyncModeUnspecified, fmt.Errorf("parse fsync mode: unsupported value %q", raw)
	}
}

// Options configures the Pebble store.
type Options struct {
	// DataDir is the path to the Pebble database directory.
	DataDir string
	// Fsync determines when to sync the WAL.
	Fsync FsyncMode
	// FsyncInterval controls group-commit when Fsync is FsyncModeInterval.
	FsyncInterval time.Duration
	// ItemCacheSize bounds the decoded-interaction cache. Zero selects a default.
	ItemCacheSize int
	// PebbleOptions allows advanced tuning of Pebble. If nil, defaults are used.
	PebbleOptions *pebble.Options
	// Logger receives store diagnostics. If nil, slog.Default is used.
	Logger *slog.Logger
}

// Store implements chatflow.InteractionStore, chatflow.ProfileStore and
// chatflow.SettingStore over one Pebble database.
type Store struct {
	db        *pebble.DB
	writeSync bool
	items     *lru.Cache
	logger    *slog.Logger

	closeOnce sync.Once
	closeErr  error
}

var (
	_ chatflow.InteractionStore = (*Store)(nil)
	_ chatflow.ProfileStore     = (*Store)(nil)
	_ chatflow.SettingStore     = (*Store)(nil)
)

// Open creates or opens a store with the provided options.
func Open(opts Options) (*Store, error) {
	if opts.DataDir == "" {
		return nil, errors.New("pebblestore: Options.DataDir is required")
	}

	po := opts.PebbleOptions
	if po == nil {
		po = &pebble.Options{}
	}
	switch opts.Fsync {
	case FsyncModeAlways, FsyncModeNever:
	case FsyncModeInterval:
		interval := opts.FsyncInterval
		if interval <= 0 {
			interval = defaultFsyncInterval
		}
		po.WALMinSyncInterval = func() time.Duration { return interval }
	default:
		po.WALMinSyncInterval = func() time.Duration { return defaultFsyncInterval }
	}

	cacheSize := opts.ItemCacheSize
	if cacheSize <= 0 {
		cacheSize = defaultItemCacheSize
	}
	items, err := lru.New(cacheSize)
	if err != nil {
		return nil, fmt.Errorf("pebblestore: item cache: %w", err)
	}

	db, err := pebble.Open(opts.DataDir, po)
	if err != nil {
		return nil, fmt.Errorf("pebblestore: open %s: %w", opts.DataDir, err)
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Store{
		db:        db,
		writeSync: opts.Fsync == FsyncModeAlways,
		items:     items,
		logger:    logger,
	}, nil
}

// Close closes the underlying database. Later calls return the first result.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	s.closeOnce.Do(func() {
		s.items.Purge()
		s.closeErr = s.db.Close()
	})

	return s.closeErr
}

// AppendInteraction persists a new interaction together with its time indexes.
//
// A non-empty ContextID must name a stored interaction created strictly before
// this one, so every parent chain moves backward in time and ends.
func (s *Store) AppendInteraction(ctx context.Context, interaction chatflow.Interaction) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("append interaction: %w", err)
	}
	if err := interaction.Validate(); err != nil {
		return fmt.Errorf("append interaction: %w", err)
	}
	if strings.IndexByte(interaction.ContextID, contextSeparator) >= 0 {
		return fmt.Errorf("append interaction %s: context id contains NUL: %w", interaction.ID, chatflow.ErrInvalidInteraction)
	}

	_, found, err := s.Interaction(ctx, interaction.ID)
	if err != nil {
		return fmt.Errorf("append interaction %s: %w", interaction.ID, err)
	}
	if found {
		return fmt.Errorf("append interaction %s: id already exists: %w", interaction.ID, chatflow.ErrInvalidInteraction)
	}
	if err := s.checkContext(ctx, interaction); err != nil {
		return err
	}

	encoded, err := json.Marshal(interaction)
	if err != nil {
		return fmt.Errorf("append interaction %s: encode: %w", interaction.ID, err)
	}

	batch := s.db.NewBatch()
	defer batch.Close()

	id := []byte(interaction.ID)
	if err := batch.Set(itemKey(interaction.ID), encoded, nil); err != nil {
		return fmt.Errorf("append interaction %s: %w", interaction.ID, err)
	}
	if err := batch.Set(indexKey(indexPrefix(""), interaction.CreatedAt, interaction.ID), id, nil); err != nil {
		return fmt.Errorf("append interaction %s: time index: %w", interaction.ID, err)
	}
	if interaction.ContextID != "" {
		key := indexKey(indexPrefix(interaction.ContextID), interaction.CreatedAt, interaction.ID)
		if err := batch.Set(key, id, nil); err != nil {
			return fmt.Errorf("append interaction %s: context index: %w", interaction.ID, err)
		}
	}
	if err := s.commit(batch); err != nil {
		return fmt.Errorf("append interaction %s: %w", interaction.ID, err)
	}

	s.items.Add(interaction.ID, interaction)

	return nil
}

func (s *Store) checkContext(ctx context.Context, interaction chatflow.Interaction) error {
	if interaction.ContextID == "" {
		return nil
	}

	parent, found, err := s.Interaction(ctx, interaction.ContextID)
	if err != nil {
		return fmt.Errorf("append interaction %s: %w", interaction.ID, err)
	}
	if !found {
		return fmt.Errorf("append interaction %s: context %s not found: %w",
			interaction.ID, interaction.ContextID, chatflow.ErrInvalidInteraction)
	}
	if !parent.CreatedAt.Before(interaction.CreatedAt) {
		return fmt.Errorf("append interaction %s: context %s is not older: %w",
			interaction.ID, interaction.ContextID, chatflow.ErrInvalidInteraction)
	}

	return nil
}

// Interaction returns one interaction by id.
func (s *Store) Interaction(ctx context.Context, id string) (chatflow.Interaction, bool, error) {
	if err := ctx.Err(); err != nil {
		return chatflow.Interaction{}, false, fmt.Errorf("load interaction %s: %w", id, err)
	}
	if cached, ok := s.items.Get(id); ok {
		return cached.(chatflow.Interaction), true, nil
	}

	var interaction chatflow.Interaction
	found, err := s.getJSON(itemKey(id), &interaction)
	if err != nil || !found {
		if err != nil {
			err = fmt.Errorf("load interaction %s: %w", id, err)
		}
		return chatflow.Interaction{}, false, err
	}
	s.items.Add(id, interaction)

	return interaction, true, nil
}

// Page returns up to q.Limit interactions created strictly before q.Before.
//
// The page always holds the newest matching interactions; q.Order only sets
// the order in which they are returned.
func (s *Store) Page(ctx context.Context, q chatflow.PageQuery) ([]chatflow.Interaction, error) {
	if err := q.Validate(); err != nil {
		return nil, fmt.Errorf("page interactions: %w", err)
	}

	prefix := indexPrefix(q.ContextID)
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: indexBound(prefix, q.Before),
	})
	if err != nil {
		return nil, fmt.Errorf("page interactions: new iterator: %w", err)
	}
	defer iter.Close()

	page := make([]chatflow.Interaction, 0, q.Limit)
	for valid := iter.Last(); valid && len(page) < q.Limit; valid = iter.Prev() {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("page interactions: %w", err)
		}

		id := string(iter.Value())
		interaction, found, err := s.Interaction(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("page interactions: %w", err)
		}
		if !found {
			s.logger.WarnContext(ctx, "dangling interaction index entry", "id", id, "context_id", q.ContextID)
			continue
		}
		page = append(page, interaction)
	}
	if err := iter.Error(); err != nil {
		return nil, fmt.Errorf("page interactions: iterate: %w", err)
	}

	if q.Order == chatflow.OrderAsc {
		for left, right := 0, len(page)-1; left < right; left, right = left+1, right-1 {
			page[left], page[right] = page[right], page[left]
		}
	}

	return page, nil
}

// Parent returns the context node containing id.
func (s *Store) Parent(ctx context.Context, id string) (chatflow.Interaction, bool, error) {
	child, found, err := s.Interaction(ctx, id)
	if err != nil {
		return chatflow.Interaction{}, false, fmt.Errorf("load parent of %s: %w", id, err)
	}
	if !found || child.ContextID == "" {
		return chatflow.Interaction{}, false, nil
	}

	parent, found, err := s.Interaction(ctx, child.ContextID)
	if err != nil {
		return chatflow.Interaction{}, false, fmt.Errorf("load parent of %s: %w", id, err)
	}

	return parent, found, nil
}

// Profile returns one profile by id.
func (s *Store) Profile(ctx context.Context, id string) (chatflow.Profile, bool, error) {
	if err := ctx.Err(); err != nil {
		return chatflow.Profile{}, false, fmt.Errorf("load profile %s: %w", id, err)
	}

	var profile chatflow.Profile
	found, err := s.getJSON(profileKey(id), &profile)
	if err != nil {
		return chatflow.Profile{}, false, fmt.Errorf("load profile %s: %w", id, err)
	}

	return profile, found, nil
}

// SaveProfile inserts or replaces a profile.
func (s *Store) SaveProfile(ctx context.Context, profile chatflow.Profile) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("save profile: %w", err)
	}
	if err := profile.Validate(); err != nil {
		return fmt.Errorf("save profile: %w", err)
	}

	encoded, err := json.Marshal(profile)
	if err != nil {
		return fmt.Errorf("save profile %s: encode: %w", profile.ID, err)
	}
	if err := s.set(profileKey(profile.ID), encoded); err != nil {
		return fmt.Errorf("save profile %s: %w", profile.ID, err)
	}

	return nil
}

// Setting returns one setting value.
func (s *Store) Setting(ctx context.Context, key string) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, fmt.Errorf("load setting %s: %w", key, err)
	}

	raw, found, err := s.get(settingKey(key))
	if err != nil {
		return "", false, fmt.Errorf("load setting %s: %w", key, err)
	}

	return string(raw), found, nil
}

// SaveSetting inserts or replaces a setting value.
func (s *Store) SaveSetting(ctx context.Context, key string, value string) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("save setting %s: %w", key, err)
	}
	if key == "" {
		return fmt.Errorf("save setting: empty key")
	}
	if err := s.set(settingKey(key), []byte(value)); err != nil {
		return fmt.Errorf("save setting %s: %w", key, err)
	}

	return nil
}

// get copies the value stored at key.
func (s *Store) get(key []byte) ([]byte, bool, error) {
	value, closer, err := s.db.Get(key)
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	defer closer.Close()

	return append([]byte(nil), value...), true, nil
}

func (s *Store) getJSON(key []byte, target any) (bool, error) {
	raw, found, err := s.get(key)
	if err != nil || !found {
		return false, err
	}
	if err := json.Unmarshal(raw, target); err != nil {
		return false, fmt.Errorf("decode %q: %w", key, err)
	}

	return true, nil
}

func (s *Store) set(key, value []byte) error {
	batch := s.db.NewBatch()
	defer batch.Close()

	if err := batch.Set(key, value, nil); err != nil {
		return err
	}

	return s.commit(batch)
}

// commit applies batch with the configured fsync policy.
func (s *Store) commit(batch *pebble.Batch) error {
	syncMode := pebble.NoSync
	if s.writeSync {
		syncMode = pebble.Sync
	}

	return batch.Commit(syncMode)
}

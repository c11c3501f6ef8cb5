// Package storage persists the budget state as a single versioned JSON blob
// over a pluggable key/value store.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"budgetapp/internal/core"
	"budgetapp/internal/log"
)

// StorageKey is the key the state blob lives under in every BlobStore.
const StorageKey = "budgetapp:data:v1"

// UnreadableSuffix is appended to the state key to keep a copy of a blob
// that failed to decode, before defaults are written over it.
const UnreadableSuffix = ".unreadable"

// Gateway loads, migrates and saves the whole BudgetState.
type Gateway struct {
	store  BlobStore
	key    string
	logger *log.Logger
	now    func() time.Time
}

type GatewayOption func(*Gateway)

// WithClock overrides the time source used for default states.
func WithClock(now func() time.Time) GatewayOption {
	return func(g *Gateway) { g.now = now }
}

// WithKey overrides StorageKey.
func WithKey(key string) GatewayOption {
	return func(g *Gateway) { g.key = key }
}

func NewGateway(store BlobStore, logger *log.Logger, opts ...GatewayOption) *Gateway {
	if logger == nil {
		logger = log.Discard()
	}
	g := &Gateway{
		store:  store,
		key:    StorageKey,
		logger: logger.WithComponent(log.ComponentStorage),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Load returns the persisted state migrated to the current version. It never
// fails: a missing or unreadable blob yields a default state. A blob that
// does not decode is copied under key+UnreadableSuffix first.
func (g *Gateway) Load(ctx context.Context) core.BudgetState {
	now := g.now()
	data, err := g.store.Get(ctx, g.key)
	if errors.Is(err, ErrNotFound) {
		g.logger.DebugContext(ctx, "No persisted state, using defaults")
		return core.DefaultState(now)
	}
	if err != nil {
		g.logger.ErrorContext(ctx, "Failed to read state, using defaults",
			log.NewFields().WithOperation(log.OpLoad).WithError(err, log.ErrorTypeDatabase).ToSlice()...)
		return core.DefaultState(now)
	}

	state, err := Decode(data, now)
	if err != nil {
		backup := g.key + UnreadableSuffix
		g.logger.WarnContext(ctx, "Unreadable state, using defaults",
			append(log.NewFields().WithOperation(log.OpMigrate).WithError(err, log.ErrorTypeDecode).ToSlice(),
				"backup_key", backup)...)
		if perr := g.store.Put(ctx, backup, data); perr != nil {
			g.logger.ErrorContext(ctx, "Failed to keep a copy of unreadable state",
				log.NewFields().WithOperation(log.OpSave).WithError(perr, log.ErrorTypeDatabase).ToSlice()...)
		}
		return core.DefaultState(now)
	}

	g.logger.DebugContext(ctx, "State loaded",
		log.FieldVersion, state.Version,
		log.FieldMonth, state.CurrentMonth.String(),
		"months", len(state.Months),
		"accounts", len(state.Accounts))
	return state
}

// Encode serializes the state as stored.
func Encode(state core.BudgetState) ([]byte, error) {
	state.Version = core.CurrentVersion
	data, err := json.Marshal(state)
	if err != nil {
		return nil, fmt.Errorf("encode state: %w", err)
	}
	return data, nil
}

// Save writes the full state in one Put.
func (g *Gateway) Save(ctx context.Context, state core.BudgetState) error {
	data, err := Encode(state)
	if err != nil {
		return err
	}
	if err := g.store.Put(ctx, g.key, data); err != nil {
		return fmt.Errorf("save state: %w", err)
	}
	return nil
}

// Clear removes the persisted blob.
func (g *Gateway) Clear(ctx context.Context) error {
	if err := g.store.Delete(ctx, g.key); err != nil {
		return fmt.Errorf("clear state: %w", err)
	}
	g.logger.InfoContext(ctx, "Persisted state cleared")
	return nil
}

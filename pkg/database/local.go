package database

import (
	"context"
	"fmt"

	"github.com/goccy/go-json"
)

// LocalStorage is a key/value store kept next to the records and never
// synced. Values are stored as JSON, so only JSON-safe values round-trip.
type LocalStorage struct {
	db *Database
}

// Get returns the decoded value for key and whether it was present.
func (l *LocalStorage) Get(ctx context.Context, key string) (any, bool, error) {
	var v any
	ok, err := l.GetInto(ctx, key, &v)
	if err != nil || !ok {
		return nil, ok, err
	}
	return v, true, nil
}

// GetInto decodes the value for key into dst.
func (l *LocalStorage) GetInto(ctx context.Context, key string, dst any) (bool, error) {
	s, err := l.db.adapter.GetLocal(ctx, key)
	if err != nil {
		return false, fmt.Errorf("failed to get local %q: %w", key, err)
	}
	if s == nil {
		return false, nil
	}
	if err := json.Unmarshal([]byte(*s), dst); err != nil {
		return false, fmt.Errorf("failed to decode local %q: %w", key, err)
	}
	return true, nil
}

// Set stores value under key.
func (l *LocalStorage) Set(ctx context.Context, key string, value any) error {
	b, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode local %q: %w", key, err)
	}
	if err := l.db.adapter.SetLocal(ctx, key, string(b)); err != nil {
		return fmt.Errorf("failed to set local %q: %w", key, err)
	}
	return nil
}

// Remove deletes key.
func (l *LocalStorage) Remove(ctx context.Context, key string) error {
	if err := l.db.adapter.RemoveLocal(ctx, key); err != nil {
		return fmt.Errorf("failed to remove local %q: %w", key, err)
	}
	return nil
}

package archive

import (
	"context"
	"encoding/json"
	"errors"
)

var (
	ErrNotConfigured = errors.New("archive store not configured")
	ErrNotFound      = errors.New("archived object not found")
)

// Store keeps generated feedback documents
type Store interface {
	StoreJSON(ctx context.Context, objectKey string, payload json.RawMessage) error
	LoadJSON(ctx context.Context, objectKey string) (json.RawMessage, error)
	Close() error
}

type NoopStore struct{}

func NewNoopStore() *NoopStore {
	return &NoopStore{}
}

func (s *NoopStore) StoreJSON(_ context.Context, _ string, _ json.RawMessage) error {
	return ErrNotConfigured
}

func (s *NoopStore) LoadJSON(_ context.Context, _ string) (json.RawMessage, error) {
	return nil, ErrNotConfigured
}

func (s *NoopStore) Close() error {
	return nil
}

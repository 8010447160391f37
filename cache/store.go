package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	apierrors "github.com/Sakib25800/framer-salesforce-api/errors"
)

const defaultNotFoundMessage = "data not found"

// Store is a typed namespace over a Backend. Every key is built from the
// namespace's template and every value is checked against its schema on the
// way in and on the way out.
type Store[T any] struct {
	backend Backend
	key     *KeyTemplate
	schema  *Schema
}

// NewStore creates a namespace bound to backend.
func NewStore[T any](backend Backend, key *KeyTemplate, schema *Schema) *Store[T] {
	return &Store[T]{
		backend: backend,
		key:     key,
		schema:  schema,
	}
}

// Template returns the namespace key template.
func (s *Store[T]) Template() *KeyTemplate {
	return s.key
}

// Key builds the full key for params.
func (s *Store[T]) Key(params Params) (string, error) {
	return s.key.Build(params)
}

// Get returns the value at params. found is false when the key is absent or
// expired. A stored value that fails the schema yields a validation error.
func (s *Store[T]) Get(ctx context.Context, params Params) (value T, found bool, err error) {
	key, err := s.key.Build(params)
	if err != nil {
		return value, false, err
	}

	raw, err := s.backend.Get(ctx, key)
	if errors.Is(err, ErrNotFound) {
		return value, false, nil
	}
	if err != nil {
		return value, false, fmt.Errorf("failed to read %s: %w", s.key.Pattern(), err)
	}

	value, err = s.decode(raw)
	if err != nil {
		return value, false, err
	}

	return value, true, nil
}

// GetOrThrow is like Get but reports absence as a not-found error carrying
// message, or "data not found" when message is empty.
func (s *Store[T]) GetOrThrow(ctx context.Context, params Params, message string) (T, error) {
	value, found, err := s.Get(ctx, params)
	if err != nil {
		return value, err
	}

	if !found {
		if message == "" {
			message = defaultNotFoundMessage
		}
		return value, apierrors.NewNotFound(message)
	}

	return value, nil
}

// GetOrCreate returns the stored value or writes def and returns it. The
// read and the write are separate operations; concurrent callers may both
// write and the last write wins.
func (s *Store[T]) GetOrCreate(ctx context.Context, params Params, def T, ttl time.Duration) (T, error) {
	value, found, err := s.Get(ctx, params)
	if err != nil {
		return value, err
	}
	if found {
		return value, nil
	}

	if err := s.Put(ctx, params, def, ttl); err != nil {
		return def, err
	}

	return def, nil
}

// Put validates value against the schema and writes it. ttl of NoTTL keeps
// the entry until it is deleted.
func (s *Store[T]) Put(ctx context.Context, params Params, value T, ttl time.Duration) error {
	key, err := s.key.Build(params)
	if err != nil {
		return err
	}

	raw, err := json.Marshal(value)
	if err != nil {
		return apierrors.NewValidation("failed to encode "+s.schema.Name(), err)
	}

	if err := s.schema.Validate(raw); err != nil {
		return apierrors.NewValidation("refusing to store invalid "+s.schema.Name(), err)
	}

	if err := s.backend.Set(ctx, key, raw, ttl); err != nil {
		return fmt.Errorf("failed to write %s: %w", s.key.Pattern(), err)
	}

	return nil
}

// ListKeys returns the keys matching the prefix built from the leading
// template params. An empty params lists the whole namespace.
func (s *Store[T]) ListKeys(ctx context.Context, params Params) ([]string, error) {
	prefix, err := s.key.Prefix(params)
	if err != nil {
		return nil, err
	}

	keys, err := s.backend.Keys(ctx, prefix)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", s.key.Pattern(), err)
	}

	return keys, nil
}

// Delete removes the value at params. Missing keys are ignored.
func (s *Store[T]) Delete(ctx context.Context, params Params) error {
	key, err := s.key.Build(params)
	if err != nil {
		return err
	}

	return s.DeleteKey(ctx, key)
}

// DeleteKey removes a key returned by ListKeys.
func (s *Store[T]) DeleteKey(ctx context.Context, key string) error {
	if _, err := s.key.Parse(key); err != nil {
		return err
	}

	if err := s.backend.Delete(ctx, key); err != nil {
		return fmt.Errorf("failed to delete from %s: %w", s.key.Pattern(), err)
	}

	return nil
}

// Take reads and removes the value at params in one backend operation so
// that at most one caller observes it.
func (s *Store[T]) Take(ctx context.Context, params Params) (value T, found bool, err error) {
	key, err := s.key.Build(params)
	if err != nil {
		return value, false, err
	}

	raw, err := s.backend.Take(ctx, key)
	if errors.Is(err, ErrNotFound) {
		return value, false, nil
	}
	if err != nil {
		return value, false, fmt.Errorf("failed to take %s: %w", s.key.Pattern(), err)
	}

	value, err = s.decode(raw)
	if err != nil {
		return value, false, err
	}

	return value, true, nil
}

func (s *Store[T]) decode(raw []byte) (T, error) {
	var value T

	if err := s.schema.Validate(raw); err != nil {
		return value, apierrors.NewValidation("stored "+s.schema.Name()+" is invalid", err)
	}

	if err := json.Unmarshal(raw, &value); err != nil {
		return value, apierrors.NewValidation("failed to decode "+s.schema.Name(), err)
	}

	return value, nil
}

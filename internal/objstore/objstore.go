// Copyright (c) 2026 Keymaster Team
// Regvault - device registry backup and restore
// This source code is licensed under the MIT license found in the LICENSE file.

// Package objstore is the snapshot storage layer: a JSON document store
// scoped to a run prefix on top of a pluggable blob backend (S3, GCS, a local
// directory or memory).
package objstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrNotFound is returned by Get when the key does not exist.
var ErrNotFound = errors.New("object not found")

// Backend is a flat blob store addressed by full keys. Implementations must
// be safe for concurrent use.
type Backend interface {
	Write(ctx context.Context, key string, body []byte) error
	// Read returns ErrNotFound (possibly wrapped) for a missing key.
	Read(ctx context.Context, key string) ([]byte, error)
	// List returns every key starting with prefix, in any order.
	List(ctx context.Context, prefix string) ([]string, error)
	// Location describes the backend for logs, e.g. "s3://bucket".
	Location() string
}

// Store reads and writes JSON documents under one run prefix.
type Store struct {
	backend Backend
	prefix  string
}

// New returns a store over backend rooted at prefix ("2024/05/01"). Leading
// and trailing slashes of prefix are ignored.
func New(backend Backend, prefix string) *Store {
	return &Store{backend: backend, prefix: strings.Trim(prefix, "/")}
}

// Prefix is the run prefix of the store.
func (s *Store) Prefix() string { return s.prefix }

// Location describes backend and prefix, for logs.
func (s *Store) Location() string {
	if s.prefix == "" {
		return s.backend.Location()
	}
	return s.backend.Location() + "/" + s.prefix
}

// WithPrefix returns a store over the same backend rooted at prefix.
func (s *Store) WithPrefix(prefix string) *Store {
	return New(s.backend, prefix)
}

func (s *Store) fullKey(key string) string {
	if s.prefix == "" {
		return key
	}
	return s.prefix + "/" + key
}

// Put serializes v as indented JSON and stores it at key.
func (s *Store) Put(ctx context.Context, key string, v any) error {
	body, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return s.PutRaw(ctx, key, body)
}

// PutRaw stores an already encoded document at key.
func (s *Store) PutRaw(ctx context.Context, key string, body []byte) error {
	if err := s.backend.Write(ctx, s.fullKey(key), body); err != nil {
		return fmt.Errorf("put %s: %w", s.fullKey(key), err)
	}
	return nil
}

// Get loads the document at key into v.
func (s *Store) Get(ctx context.Context, key string, v any) error {
	body, err := s.GetRaw(ctx, key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("decode %s: %w", s.fullKey(key), err)
	}
	return nil
}

// GetRaw returns the stored bytes of key.
func (s *Store) GetRaw(ctx context.Context, key string) ([]byte, error) {
	body, err := s.backend.Read(ctx, s.fullKey(key))
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", s.fullKey(key), err)
	}
	return body, nil
}

// Keys lists the keys under prefix, relative to the run prefix and sorted.
func (s *Store) Keys(ctx context.Context, prefix string) ([]string, error) {
	full, err := s.backend.List(ctx, s.fullKey(prefix))
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", s.fullKey(prefix), err)
	}
	keys := make([]string, 0, len(full))
	root := ""
	if s.prefix != "" {
		root = s.prefix + "/"
	}
	for _, k := range full {
		keys = append(keys, strings.TrimPrefix(k, root))
	}
	sort.Strings(keys)
	return keys, nil
}

// ListAndMap decodes every document under prefix as T and applies fn to it
// with its key relative to the run prefix, returning the results in key
// order. The first error stops the walk.
func ListAndMap[T, R any](ctx context.Context, s *Store, prefix string, fn func(ctx context.Context, key string, doc T) (R, error)) ([]R, error) {
	keys, err := s.Keys(ctx, prefix)
	if err != nil {
		return nil, err
	}
	results := make([]R, 0, len(keys))
	for _, key := range keys {
		var doc T
		if err := s.Get(ctx, key, &doc); err != nil {
			return results, err
		}
		r, err := fn(ctx, key, doc)
		if err != nil {
			return results, fmt.Errorf("%s: %w", key, err)
		}
		results = append(results, r)
	}
	return results, nil
}

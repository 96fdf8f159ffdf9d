// Copyright (c) 2026 Keymaster Team
// Regvault - device registry backup and restore
// This source code is licensed under the MIT license found in the LICENSE file.

package core

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/klauspost/compress/zstd"

	"github.com/toeirei/regvault/internal/model"
	"github.com/toeirei/regvault/internal/objstore"
	"github.com/toeirei/regvault/util/mapst"
	"github.com/toeirei/regvault/util/slicest"
)

// Archive packs every document under the store's run prefix into a bundle
// and writes it Zstandard-compressed to w.
func Archive(ctx context.Context, store *objstore.Store, w io.Writer) (*model.Bundle, error) {
	keys, err := store.Keys(ctx, "")
	if err != nil {
		return nil, err
	}
	if len(keys) == 0 {
		return nil, fmt.Errorf("no snapshot documents under %s", store.Location())
	}
	bundle := &model.Bundle{
		SchemaVersion: model.BundleSchemaVersion,
		Prefix:        store.Prefix(),
		CreatedAt:     time.Now().UTC(),
		Documents:     make(map[string]json.RawMessage, len(keys)),
	}
	for _, key := range keys {
		body, err := store.GetRaw(ctx, key)
		if err != nil {
			return nil, err
		}
		if !json.Valid(body) {
			return nil, fmt.Errorf("document %s is not valid JSON", key)
		}
		bundle.Documents[key] = body
	}

	zw, err := zstd.NewWriter(w)
	if err != nil {
		return nil, fmt.Errorf("create zstd writer: %w", err)
	}
	enc := json.NewEncoder(zw)
	enc.SetIndent("", "  ")
	if err := enc.Encode(bundle); err != nil {
		_ = zw.Close()
		return nil, fmt.Errorf("encode archive: %w", err)
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("flush archive: %w", err)
	}
	return bundle, nil
}

// ReadArchive decodes a bundle written by Archive.
func ReadArchive(r io.Reader) (*model.Bundle, error) {
	zr, err := zstd.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("create zstd reader: %w", err)
	}
	defer zr.Close()
	var bundle model.Bundle
	if err := json.NewDecoder(zr).Decode(&bundle); err != nil {
		return nil, fmt.Errorf("decode archive: %w", err)
	}
	if bundle.SchemaVersion > model.BundleSchemaVersion {
		return nil, fmt.Errorf("archive schema version %d is newer than supported version %d", bundle.SchemaVersion, model.BundleSchemaVersion)
	}
	return &bundle, nil
}

// Unarchive uploads every document of the archive read from r into store,
// under the store's prefix. The bundle is returned for reporting.
func Unarchive(ctx context.Context, r io.Reader, store *objstore.Store) (*model.Bundle, error) {
	bundle, err := ReadArchive(r)
	if err != nil {
		return nil, err
	}
	for _, key := range mapst.SortedKeys(bundle.Documents) {
		if strings.HasPrefix(key, "/") || strings.Contains(key, "..") {
			return nil, fmt.Errorf("archive contains invalid key %q", key)
		}
		if err := store.PutRaw(ctx, key, bundle.Documents[key]); err != nil {
			return nil, err
		}
	}
	return bundle, nil
}

// Inspect summarizes the snapshot under the store's run prefix.
func Inspect(ctx context.Context, store *objstore.Store) (*model.SnapshotSummary, error) {
	summary := &model.SnapshotSummary{
		Prefix: store.Prefix(),
		Counts: make(map[model.Kind]int, len(model.Kinds)),
	}
	for _, kind := range model.Kinds {
		keys, err := store.Keys(ctx, kind.Prefix())
		if err != nil {
			return nil, err
		}
		summary.Counts[kind] = len(keys)
	}

	var principals model.PrincipalAssignments
	if err := store.Get(ctx, model.PrincipalAssignmentsKey, &principals); err != nil {
		return nil, err
	}
	summary.PrincipalAssignments = mapst.Reduce(principals, 0, func(_ string, arns []string, n int) int { return n + len(arns) })

	var policies model.PolicyAssignments
	if err := store.Get(ctx, model.PolicyAssignmentsKey, &policies); err != nil {
		return nil, err
	}
	summary.PolicyAssignments = mapst.Reduce(policies, 0, func(_ string, refs []model.PolicyRef, n int) int { return n + len(refs) })

	var groups []model.ThingGroup
	if err := store.Get(ctx, model.ThingGroupsKey, &groups); err != nil {
		return nil, err
	}
	roots := slicest.Filter(groups, func(g model.ThingGroup) bool { return g.Parent() == "" })
	summary.RootGroups = slicest.Map(roots, func(g model.ThingGroup) string { return g.ThingGroupName })
	return summary, nil
}

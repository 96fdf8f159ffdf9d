// Copyright (c) 2026 Keymaster Team
// Regvault - device registry backup and restore
// This source code is licensed under the MIT license found in the LICENSE file.

package mapst

import (
	"cmp"
	"slices"
)

// Keys returns the keys of m in map order.
func Keys[K comparable, V any, M ~map[K]V](m M) []K {
	result := make([]K, 0, len(m))
	for k := range m {
		result = append(result, k)
	}
	return result
}

// SortedKeys returns the keys of m in ascending order.
func SortedKeys[K cmp.Ordered, V any, M ~map[K]V](m M) []K {
	keys := Keys(m)
	slices.Sort(keys)
	return keys
}

// Reduce folds every entry of m into init.
func Reduce[K comparable, V any, M ~map[K]V, R any](m M, init R, fn func(K, V, R) R) R {
	for k, v := range m {
		init = fn(k, v, init)
	}
	return init
}

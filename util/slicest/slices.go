// Copyright (c) 2026 Keymaster Team
// Regvault - device registry backup and restore
// This source code is licensed under the MIT license found in the LICENSE file.

package slicest

// Conversion

func ToMap[T any, K comparable, V any, S ~[]T](s S, fn func(T) (K, V)) map[K]V {
	result := make(map[K]V, len(s))
	for _, t := range s {
		k, v := fn(t)
		result[k] = v
	}
	return result
}

// Map

func Map[T, U any, S ~[]T](s S, fn func(T) U) []U {
	result := make([]U, len(s))
	for i, v := range s {
		result[i] = fn(v)
	}
	return result
}

// Filter

// Filter returns the elements of s for which fn is true, in order.
func Filter[T any, S ~[]T](s S, fn func(T) bool) S {
	var result S
	for _, t := range s {
		if fn(t) {
			result = append(result, t)
		}
	}
	return result
}

// Search

func ContainsFunc[T any, S ~[]T](s S, fn func(T) bool) bool {
	for _, t := range s {
		if fn(t) {
			return true
		}
	}
	return false
}

func Contains[T comparable, S ~[]T](s S, v T) bool {
	return ContainsFunc(s, func(t T) bool { return t == v })
}

package slicest

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMapAndFilter(t *testing.T) {
	in := []int{1, 2, 3, 4}
	assert.Equal(t, []int{10, 20, 30, 40}, Map(in, func(i int) int { return i * 10 }))
	assert.Equal(t, []int{2, 4}, Filter(in, func(i int) bool { return i%2 == 0 }))
	assert.Empty(t, Map([]int(nil), func(i int) int { return i }))
}

func TestContainsAndToMap(t *testing.T) {
	s := []string{"a", "bb"}
	assert.True(t, Contains(s, "bb"))
	assert.False(t, Contains(s, "c"))
	assert.True(t, ContainsFunc(s, func(v string) bool { return len(v) == 2 }))
	assert.Equal(t, map[string]int{"a": 1, "bb": 2}, ToMap(s, func(v string) (string, int) { return v, len(v) }))
}

package internal

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestOrderedSetAdd tests that insertion order is kept and duplicates are dropped
func TestOrderedSetAdd(t *testing.T) {
	set := NewOrderedSet("c", "a")
	assert.True(t, set.Add("b"))
	assert.False(t, set.Add("a"))

	assert.Equal(t, 3, set.Size())
	assert.Equal(t, []string{"c", "a", "b"}, set.Values())
	assert.True(t, set.Contains("b"))
	assert.False(t, set.Contains("z"))
}

// TestOrderedSetValuesIsCopy tests that callers cannot mutate the set through Values
func TestOrderedSetValuesIsCopy(t *testing.T) {
	set := NewOrderedSet(1, 2)
	values := set.Values()
	values[0] = 99

	assert.Equal(t, []int{1, 2}, set.Values())
}

// TestSortedKeys tests deterministic key extraction
func TestSortedKeys(t *testing.T) {
	m := map[string]int{"b": 2, "a": 1, "c": 3}
	assert.Equal(t, []string{"a", "b", "c"}, SortedKeys(m))
	assert.Empty(t, SortedKeys(map[string]int(nil)))
}

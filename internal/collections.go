package internal

import (
	"cmp"
	"slices"
)

// OrderedSet is a set that remembers insertion order. Iteration via Values
// returns items in the order they were first added.
type OrderedSet[T comparable] struct {
	index map[T]struct{}
	items []T
}

// NewOrderedSet creates a set holding items, duplicates dropped.
func NewOrderedSet[T comparable](items ...T) *OrderedSet[T] {
	s := &OrderedSet[T]{index: make(map[T]struct{}, len(items))}
	s.AddAll(items...)
	return s
}

// Add inserts an item and reports whether it was new.
func (s *OrderedSet[T]) Add(item T) bool {
	if _, exists := s.index[item]; exists {
		return false
	}
	s.index[item] = struct{}{}
	s.items = append(s.items, item)
	return true
}

// AddAll inserts every item in order.
func (s *OrderedSet[T]) AddAll(items ...T) {
	for _, item := range items {
		s.Add(item)
	}
}

// Contains checks if an item exists in the set.
func (s *OrderedSet[T]) Contains(item T) bool {
	_, exists := s.index[item]
	return exists
}

// Size returns the number of items in the set.
func (s *OrderedSet[T]) Size() int {
	return len(s.items)
}

// Values returns a copy of the items in insertion order.
func (s *OrderedSet[T]) Values() []T {
	return slices.Clone(s.items)
}

// SortedKeys extracts all keys from a map in ascending order.
func SortedKeys[K cmp.Ordered, V any](m map[K]V) []K {
	keys := make([]K, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	slices.Sort(keys)
	return keys
}

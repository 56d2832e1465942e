package setscore

// Set is an unordered collection of items.
type Set[T comparable] map[T]struct{}

// NewSet builds a set from items.
func NewSet[T comparable](items ...T) Set[T] {
	s := make(Set[T], len(items))
	for _, item := range items {
		s[item] = struct{}{}
	}
	return s
}

// Contains reports whether item is in s.
func (s Set[T]) Contains(item T) bool {
	_, ok := s[item]
	return ok
}

// Equal reports whether s and o hold the same items.
func (s Set[T]) Equal(o Set[T]) bool {
	if len(s) != len(o) {
		return false
	}
	for item := range s {
		if !o.Contains(item) {
			return false
		}
	}
	return true
}

// IntersectionSize counts the items present in both sets.
func (s Set[T]) IntersectionSize(o Set[T]) int {
	if len(o) < len(s) {
		s, o = o, s
	}
	n := 0
	for item := range s {
		if o.Contains(item) {
			n++
		}
	}
	return n
}

// Labeled is a set annotated with a label. Unlabelled data uses one
// constant label, typically the empty string.
type Labeled[T comparable] struct {
	Items Set[T]
	Label string
}

// Unlabeled wraps plain sets with the empty label.
func Unlabeled[T comparable](sets ...Set[T]) []Labeled[T] {
	out := make([]Labeled[T], len(sets))
	for i, s := range sets {
		out[i] = Labeled[T]{Items: s}
	}
	return out
}

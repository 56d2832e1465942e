// Package align pairs the elements of two collections greedily by
// similarity.
//
// Every left/right combination is scored once. Pairs are then taken best
// first: the highest remaining score wins, equal scores go to the lower left
// index and then the lower right index. A taken pair retires its row when
// the alignment is functional, its column when it is inverse-functional, and
// only itself otherwise.
package align

import (
	"slices"
	"sort"
)

// Score is a similarity value compared lexicographically, element by
// element. A shorter score that is a prefix of a longer one ranks below it.
// A single-element score behaves as a plain number.
type Score []float64

// Compare returns -1, 0 or +1 as s ranks below, equal to or above o.
func (s Score) Compare(o Score) int {
	return slices.Compare(s, o)
}

// Matcher scores a left and a right element. ok=false means the two cannot
// be matched at all.
type Matcher[L, R any] func(left L, right R) (score Score, ok bool)

// Options controls which elements may take part in more than one pair.
type Options struct {
	// Functional lets each left element match at most one right element.
	Functional bool
	// InverseFunctional lets each right element match at most one left element.
	InverseFunctional bool
	// EmitUnaligned appends a one-sided pair for every element left unmatched.
	EmitUnaligned bool
}

// Pair is one aligned pair. For an unaligned element only one side is set.
type Pair[L, R any] struct {
	Left     L
	Right    R
	HasLeft  bool
	HasRight bool
	Score    Score
}

// Matched reports whether both sides are present.
func (p Pair[L, R]) Matched() bool {
	return p.HasLeft && p.HasRight
}

type cell struct {
	row, col int
	score    Score
}

// Align computes the greedy alignment of left and right. The result lists
// matched pairs in selection order, followed (with EmitUnaligned) by the
// unmatched left elements and then the unmatched right elements, each in
// input order.
func Align[L, R any](left []L, right []R, match Matcher[L, R], opts Options) []Pair[L, R] {
	cells := make([]cell, 0, len(left)*len(right))
	for i := range left {
		for j := range right {
			if score, ok := match(left[i], right[j]); ok {
				cells = append(cells, cell{row: i, col: j, score: score})
			}
		}
	}

	sort.SliceStable(cells, func(a, b int) bool {
		return cells[a].score.Compare(cells[b].score) > 0
	})

	rowUsed := make([]bool, len(left))
	colUsed := make([]bool, len(right))
	var pairs []Pair[L, R]

	for _, c := range cells {
		if opts.Functional && rowUsed[c.row] {
			continue
		}
		if opts.InverseFunctional && colUsed[c.col] {
			continue
		}
		rowUsed[c.row] = true
		colUsed[c.col] = true
		pairs = append(pairs, Pair[L, R]{
			Left:     left[c.row],
			Right:    right[c.col],
			HasLeft:  true,
			HasRight: true,
			Score:    c.score,
		})
	}

	if !opts.EmitUnaligned {
		return pairs
	}

	for i, used := range rowUsed {
		if !used {
			pairs = append(pairs, Pair[L, R]{Left: left[i], HasLeft: true})
		}
	}
	for j, used := range colUsed {
		if !used {
			pairs = append(pairs, Pair[L, R]{Right: right[j], HasRight: true})
		}
	}

	return pairs
}

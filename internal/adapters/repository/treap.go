package repository

import (
	"github.com/okian/playrank/internal/domain/model"
	"github.com/okian/playrank/internal/domain/ranking"
)

// Size-augmented treap ordered by ranking.Less. In-order traversal yields the
// leaderboard best first; subtree sizes give O(log n) rank lookups.

type node struct {
	entry model.Entry
	prio  uint64
	left  *node
	right *node
	size  int
}

func nsize(n *node) int {
	if n == nil {
		return 0
	}
	return n.size
}

func fix(n *node) {
	if n != nil {
		n.size = 1 + nsize(n.left) + nsize(n.right)
	}
}

func rotateRight(y *node) *node {
	x := y.left
	y.left = x.right
	x.right = y
	fix(y)
	fix(x)
	return x
}

func rotateLeft(x *node) *node {
	y := x.right
	x.right = y.left
	y.left = x
	fix(x)
	fix(y)
	return y
}

func insert(n *node, e model.Entry, prio uint64) *node {
	if n == nil {
		return &node{entry: e, prio: prio, size: 1}
	}
	if ranking.Less(e, n.entry) {
		n.left = insert(n.left, e, prio)
		if n.left.prio > n.prio {
			n = rotateRight(n)
		}
	} else {
		n.right = insert(n.right, e, prio)
		if n.right.prio > n.prio {
			n = rotateLeft(n)
		}
	}
	fix(n)
	return n
}

// remove deletes the node holding exactly e (same sort key).
func remove(n *node, e model.Entry) *node {
	if n == nil {
		return nil
	}
	switch {
	case ranking.Less(e, n.entry):
		n.left = remove(n.left, e)
	case ranking.Less(n.entry, e):
		n.right = remove(n.right, e)
	default:
		if n.left == nil {
			return n.right
		}
		if n.right == nil {
			return n.left
		}
		if n.left.prio > n.right.prio {
			n = rotateRight(n)
			n.right = remove(n.right, e)
		} else {
			n = rotateLeft(n)
			n.left = remove(n.left, e)
		}
	}
	fix(n)
	return n
}

// rankOf returns the 1-based position of e, or 0 if it is not in the tree.
func rankOf(n *node, e model.Entry) int {
	before := 0
	for n != nil {
		switch {
		case ranking.Less(e, n.entry):
			n = n.left
		case ranking.Less(n.entry, e):
			before += nsize(n.left) + 1
			n = n.right
		default:
			return before + nsize(n.left) + 1
		}
	}
	return 0
}

// collect appends up to limit entries in rank order. limit < 0 means all.
func collect(n *node, limit int, out *[]model.Entry) {
	if n == nil || (limit >= 0 && len(*out) >= limit) {
		return
	}
	collect(n.left, limit, out)
	if limit < 0 || len(*out) < limit {
		*out = append(*out, n.entry)
	}
	collect(n.right, limit, out)
}

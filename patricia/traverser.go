/*
 * Author: Markus Stenberg <fingon@iki.fi>
 *
 * Copyright (c) 2019 Markus Stenberg
 *
 * Created:       Fri Mar 15 09:12:20 2019 mstenber
 * Last modified: Tue Mar 19 11:05:41 2019 mstenber
 * Edit time:     94 min
 *
 */

package patricia

import (
	"github.com/fingon/go-logtrie/util"
)

type traverserFrame struct {
	n node

	// index of the child of n we moved down to
	index int

	// length of the key when n was the current node
	keyLength int
}

// traverser is the cursor primitive: a stack of parent frames plus
// the current node, and the full key of the current node.
type traverser struct {
	base  *treeBase
	stack []traverserFrame
	cur   node
	key   []byte
}

func (self *traverser) reset(root node) {
	self.stack = self.stack[:0]
	self.cur = root
	self.key = append(self.key[:0], root.keySequence()...)
}

// copyTo makes dst identical to self without sharing the stack or
// key.
func (self *traverser) copyTo(dst *traverser) {
	dst.base = self.base
	dst.stack = append(dst.stack[:0], self.stack...)
	dst.cur = self.cur
	dst.key = append(dst.key[:0], self.key...)
}

func (self *traverser) canMoveDown() bool {
	return self.cur.childCount() > 0
}

func (self *traverser) moveDown(i int) {
	ref := self.cur.childAt(i)
	child := self.base.child(self.cur, i)
	self.stack = append(self.stack, traverserFrame{n: self.cur, index: i, keyLength: len(self.key)})
	self.key = append(self.key, ref.b)
	self.key = append(self.key, child.keySequence()...)
	self.cur = child
}

func (self *traverser) canMoveUp() bool {
	return len(self.stack) > 0
}

func (self *traverser) moveUp() int {
	f := self.stack[len(self.stack)-1]
	self.stack = self.stack[:len(self.stack)-1]
	self.cur = f.n
	self.key = self.key[:f.keyLength]
	return f.index
}

func (self *traverser) canMoveRight() bool {
	if len(self.stack) == 0 {
		return false
	}
	f := &self.stack[len(self.stack)-1]
	return f.index+1 < f.n.childCount()
}

func (self *traverser) moveRight() {
	self.moveDown(self.moveUp() + 1)
}

func (self *traverser) canMoveLeft() bool {
	return len(self.stack) > 0 && self.stack[len(self.stack)-1].index > 0
}

func (self *traverser) moveLeft() {
	self.moveDown(self.moveUp() - 1)
}

func (self *traverser) diveLeft() {
	for self.canMoveDown() {
		self.moveDown(0)
	}
}

func (self *traverser) diveRight() {
	for self.canMoveDown() {
		self.moveDown(self.cur.childCount() - 1)
	}
}

// next moves to the next node in preorder.
func (self *traverser) next() bool {
	if self.canMoveDown() {
		self.moveDown(0)
		return true
	}
	for {
		if self.canMoveRight() {
			self.moveRight()
			return true
		}
		if !self.canMoveUp() {
			return false
		}
		self.moveUp()
	}
}

// prev moves to the previous node in preorder.
func (self *traverser) prev() bool {
	if self.canMoveLeft() {
		self.moveLeft()
		self.diveRight()
		return true
	}
	if self.canMoveUp() {
		self.moveUp()
		return true
	}
	return false
}

func (self *traverser) nextValue() bool {
	for self.next() {
		if self.cur.hasValue() {
			return true
		}
	}
	return false
}

func (self *traverser) prevValue() bool {
	for self.prev() {
		if self.cur.hasValue() {
			return true
		}
	}
	return false
}

// first moves to the smallest key.
func (self *traverser) first(root node) bool {
	self.reset(root)
	return self.cur.hasValue() || self.nextValue()
}

// last moves to the largest key.
func (self *traverser) last(root node) bool {
	self.reset(root)
	self.diveRight()
	return self.cur.hasValue()
}

// leftmostValue moves to the smallest key within the current
// subtree; in a valid tree only an empty root has none.
func (self *traverser) leftmostValue() bool {
	for !self.cur.hasValue() {
		if !self.canMoveDown() {
			return false
		}
		self.moveDown(0)
	}
	return true
}

// nextAfterSubtree moves to the smallest key greater than anything
// in the current subtree.
func (self *traverser) nextAfterSubtree() bool {
	for {
		if self.canMoveRight() {
			self.moveRight()
			return self.leftmostValue()
		}
		if !self.canMoveUp() {
			return false
		}
		self.moveUp()
	}
}

// moveTo moves to exactly key. If value is non-nil, it has to match
// too.
func (self *traverser) moveTo(root node, key, value []byte) bool {
	self.reset(root)
	pos := 0
	for {
		ks := self.cur.keySequence()
		if util.CommonPrefixLength(ks, key[pos:]) != len(ks) {
			return false
		}
		pos += len(ks)
		if pos == len(key) {
			break
		}
		i, found := indexOf(self.cur, key[pos])
		if !found {
			return false
		}
		self.moveDown(i)
		pos++
	}
	if !self.cur.hasValue() {
		return false
	}
	return value == nil || string(self.cur.value()) == string(value)
}

// moveToRange moves to the smallest key >= key. On divergence the
// sign of the mismatch tells whether the whole subtree is greater
// (take its leftmost key) or smaller (continue after it).
func (self *traverser) moveToRange(root node, key []byte) bool {
	self.reset(root)
	pos := 0
	for {
		ks := self.cur.keySequence()
		rest := key[pos:]
		common := util.CommonPrefixLength(ks, rest)
		if common < len(ks) {
			if common == len(rest) || ks[common] > rest[common] {
				return self.leftmostValue()
			}
			return self.nextAfterSubtree()
		}
		pos += len(ks)
		if pos == len(key) {
			return self.leftmostValue()
		}
		b := key[pos]
		i := self.cur.ceiling(b)
		if i == self.cur.childCount() {
			return self.nextAfterSubtree()
		}
		greater := self.cur.childAt(i).b > b
		self.moveDown(i)
		if greater {
			return self.leftmostValue()
		}
		pos++
	}
}

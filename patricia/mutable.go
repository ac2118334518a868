/*
 * Author: Markus Stenberg <fingon@iki.fi>
 *
 * Copyright (c) 2019 Markus Stenberg
 *
 * Created:       Fri Mar 15 15:02:37 2019 mstenber
 * Last modified: Wed Mar 20 10:48:19 2019 mstenber
 * Edit time:     142 min
 *
 */

package patricia

import (
	"bytes"

	"github.com/fingon/go-logtrie/journal"
	"github.com/fingon/go-logtrie/util"
)

// pathFrame is a parent on the way down to a node; b is the edge
// byte from n to the next node.
type pathFrame struct {
	n node
	b byte
}

// MutableTree is a copy-on-write revision on top of a Tree. Nodes
// that are changed are copied to memory; the immutable originals
// are collected as expired.
type MutableTree struct {
	treeBase
	root    node
	size    uint64
	expired []ExpiredLoggable
	cursors map[*cursor]bool
}

var _ Store = &MutableTree{}

func (self *MutableTree) expire(n node) {
	if im, ok := n.(*immutableNode); ok {
		self.expired = append(self.expired, im.expiredLoggable())
	}
}

// mutable returns n itself if it is already mutable, and a copy
// otherwise. was is true in the first case.
func (self *MutableTree) mutable(n node) (m *mutableNode, was bool) {
	if m, ok := n.(*mutableNode); ok {
		return m, true
	}
	self.expire(n)
	return copyNode(n), false
}

// mutateUp makes the parents in stack point at m, copying them as
// needed. Parents of a mutable node are always mutable, so the walk
// stops at the first one that already was.
func (self *MutableTree) mutateUp(stack []pathFrame, m *mutableNode) {
	for i := len(stack) - 1; i >= 0; i-- {
		p, was := self.mutable(stack[i].n)
		p.setChild(stack[i].b, m)
		if was {
			return
		}
		m = p
	}
	self.root = m
}

func (self *MutableTree) notifyCursors(except *cursor) {
	for c := range self.cursors {
		if c != except {
			c.invalidate()
		}
	}
}

// merge replaces m, which has single child and no value, with the
// child whose key is extended with the key of m.
func (self *MutableTree) merge(m *mutableNode) *mutableNode {
	ref := m.children[0]
	child, _ := self.mutable(self.child(m, 0))
	child.key = util.ConcatBytes(m.key, []byte{ref.b}, child.key)
	return child
}

func (self *MutableTree) put(key, value []byte, right bool) (bool, error) {
	n := self.root
	if isEmpty(n) {
		self.notifyCursors(nil)
		m, _ := self.mutable(n)
		m.key = key
		m.val = value
		self.root = m
		self.size++
		return true, nil
	}
	var stack []pathFrame
	pos := 0
	for {
		ks := n.keySequence()
		rest := key[pos:]
		common := util.CommonPrefixLength(ks, rest)
		if common < len(ks) {
			if right && (common == len(rest) || rest[common] < ks[common]) {
				return false, ErrOrderViolation
			}
			self.notifyCursors(nil)
			suffix, _ := self.mutable(n)
			prefix := &mutableNode{key: ks[:common:common]}
			suffix.key = ks[common+1:]
			prefix.setChild(ks[common], suffix)
			if common == len(rest) {
				prefix.val = value
			} else {
				prefix.setChild(rest[common], &mutableNode{key: rest[common+1:], val: value})
			}
			self.mutateUp(stack, prefix)
			self.size++
			return true, nil
		}
		pos += len(ks)
		if pos == len(key) {
			if right {
				return false, ErrOrderViolation
			}
			if n.hasValue() && bytes.Equal(n.value(), value) {
				return false, nil
			}
			self.notifyCursors(nil)
			m, _ := self.mutable(n)
			added := !m.hasValue()
			m.val = value
			self.mutateUp(stack, m)
			if added {
				self.size++
			}
			return added, nil
		}
		b := key[pos]
		i, found := indexOf(n, b)
		cnt := n.childCount()
		if right && i < cnt && !(found && i == cnt-1) {
			return false, ErrOrderViolation
		}
		if found {
			stack = append(stack, pathFrame{n: n, b: b})
			n = self.child(n, i)
			pos++
			continue
		}
		self.notifyCursors(nil)
		m, _ := self.mutable(n)
		m.setChild(b, &mutableNode{key: key[pos+1:], val: value})
		self.mutateUp(stack, m)
		self.size++
		return true, nil
	}
}

func (self *MutableTree) Put(key, value []byte) bool {
	added, _ := self.put(util.CopyBytes(key), util.CopyBytes(value), false)
	return added
}

func (self *MutableTree) PutRight(key, value []byte) error {
	_, err := self.put(util.CopyBytes(key), util.CopyBytes(value), true)
	return err
}

func (self *MutableTree) Add(key, value []byte) bool {
	if self.HasKey(key) {
		return false
	}
	return self.Put(key, value)
}

func (self *MutableTree) Delete(key []byte) bool {
	return self.delete(key, nil, nil)
}

func (self *MutableTree) DeletePair(key, value []byte) bool {
	return self.delete(key, util.CopyBytes(value), nil)
}

// delete removes key (if value is non-nil, only if it has that
// value). Every cursor but except is invalidated.
func (self *MutableTree) delete(key, value []byte, except *cursor) bool {
	var stack []pathFrame
	n := self.root
	pos := 0
	for {
		ks := n.keySequence()
		if !bytes.HasPrefix(key[pos:], ks) {
			return false
		}
		pos += len(ks)
		if pos == len(key) {
			break
		}
		i, found := indexOf(n, key[pos])
		if !found {
			return false
		}
		stack = append(stack, pathFrame{n: n, b: key[pos]})
		n = self.child(n, i)
		pos++
	}
	if !n.hasValue() || (value != nil && !bytes.Equal(n.value(), value)) {
		return false
	}
	self.notifyCursors(except)
	self.size--
	switch n.childCount() {
	case 0:
		self.expire(n)
		if len(stack) == 0 {
			self.root = &mutableNode{}
			return true
		}
		top := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		p, _ := self.mutable(top.n)
		p.removeChild(top.b)
		if !p.hasValue() {
			switch p.childCount() {
			case 0:
				// only the root may end up empty
				p.key = nil
			case 1:
				p = self.merge(p)
			}
		}
		self.mutateUp(stack, p)
	case 1:
		m, _ := self.mutable(n)
		m.val = nil
		self.mutateUp(stack, self.merge(m))
	default:
		m, _ := self.mutable(n)
		m.val = nil
		self.mutateUp(stack, m)
	}
	return true
}

func (self *MutableTree) Get(key []byte) []byte {
	return self.get(self.root, key)
}

func (self *MutableTree) HasKey(key []byte) bool {
	n := self.find(self.root, key)
	return n != nil && n.hasValue()
}

func (self *MutableTree) HasPair(key, value []byte) bool {
	return self.hasPair(self.root, key, value)
}

func (self *MutableTree) Size() uint64 {
	return self.size
}

func (self *MutableTree) StructureId() uint64 {
	return self.structureId
}

func (self *MutableTree) OpenCursor() Cursor {
	return newCursor(&self.treeBase, self, self)
}

func (self *MutableTree) currentRoot() node {
	return self.root
}

// ExpiredLoggables returns the records superseded by the changes so
// far; the list is not reset by Save.
func (self *MutableTree) ExpiredLoggables() []ExpiredLoggable {
	return self.expired
}

// Address returns the address of the root if the tree has no unsaved
// changes, and journal.NullAddress otherwise.
func (self *MutableTree) Address() journal.Address {
	return self.root.address()
}

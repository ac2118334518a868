/*
 * Author: Markus Stenberg <fingon@iki.fi>
 *
 * Copyright (c) 2019 Markus Stenberg
 *
 * Created:       Thu Mar 14 09:40:02 2019 mstenber
 * Last modified: Mon Mar 18 15:22:10 2019 mstenber
 * Edit time:     48 min
 *
 */

package patricia

import (
	"sort"

	"github.com/fingon/go-logtrie/journal"
)

// node is implemented by both immutableNode (decoded from a log
// record) and mutableNode (built in memory).
type node interface {
	// keySequence is the part of the key this node owns beyond
	// the edge byte that led to it.
	keySequence() []byte

	// value returns nil if the node has no value; stored empty
	// values are non-nil.
	value() []byte
	hasValue() bool

	// address is journal.NullAddress for mutable nodes.
	address() journal.Address

	childCount() int
	childAt(i int) childRef

	// ceiling returns the index of the first child with edge
	// byte >= b, or childCount() if there is none.
	ceiling(b byte) int
}

// childRef is single edge of a node. Mutable parents may point at
// mutable children directly; otherwise the child is identified by
// its address only.
type childRef struct {
	b    byte
	addr journal.Address
	node *mutableNode
}

func indexOf(n node, b byte) (int, bool) {
	i := n.ceiling(b)
	return i, i < n.childCount() && n.childAt(i).b == b
}

func isEmpty(n node) bool {
	return !n.hasValue() && n.childCount() == 0
}

type mutableNode struct {
	key      []byte
	val      []byte
	children []childRef
}

var _ node = &mutableNode{}

func (self *mutableNode) keySequence() []byte {
	return self.key
}

func (self *mutableNode) value() []byte {
	return self.val
}

func (self *mutableNode) hasValue() bool {
	return self.val != nil
}

func (self *mutableNode) address() journal.Address {
	return journal.NullAddress
}

func (self *mutableNode) childCount() int {
	return len(self.children)
}

func (self *mutableNode) childAt(i int) childRef {
	return self.children[i]
}

func (self *mutableNode) ceiling(b byte) int {
	return sort.Search(len(self.children), func(i int) bool {
		return self.children[i].b >= b
	})
}

// setChild points edge b at n, adding the edge if it does not exist.
func (self *mutableNode) setChild(b byte, n *mutableNode) {
	self.setChildRef(childRef{b: b, addr: journal.NullAddress, node: n})
}

func (self *mutableNode) setChildRef(ref childRef) {
	i := self.ceiling(ref.b)
	if i < len(self.children) && self.children[i].b == ref.b {
		self.children[i] = ref
		return
	}
	self.children = append(self.children, childRef{})
	copy(self.children[i+1:], self.children[i:])
	self.children[i] = ref
}

func (self *mutableNode) removeChild(b byte) {
	i := self.ceiling(b)
	if i == len(self.children) || self.children[i].b != b {
		return
	}
	self.children = append(self.children[:i], self.children[i+1:]...)
}

// copyNode produces mutable copy of n. The child table is copied,
// but the children themselves are not.
func copyNode(n node) *mutableNode {
	m := &mutableNode{key: n.keySequence(), val: n.value()}
	cnt := n.childCount()
	if cnt > 0 {
		m.children = make([]childRef, cnt)
		for i := 0; i < cnt; i++ {
			m.children[i] = n.childAt(i)
		}
	}
	return m
}

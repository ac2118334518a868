/*
 * Author: Markus Stenberg <fingon@iki.fi>
 *
 * Copyright (c) 2019 Markus Stenberg
 *
 * Created:       Thu Mar 14 15:10:40 2019 mstenber
 * Last modified: Tue Mar 19 10:20:33 2019 mstenber
 * Edit time:     58 min
 *
 */

package patricia

import (
	"bytes"

	"github.com/fingon/go-logtrie/journal"
	"github.com/fingon/go-logtrie/mlog"
	"github.com/fingon/go-logtrie/util"
)

// treeBase is what both Tree and MutableTree need to load nodes.
type treeBase struct {
	config      *Config
	structureId uint64
}

func (self *treeBase) loadNode(addr journal.Address) *immutableNode {
	if n := self.config.Cache.get(addr); n != nil {
		return n
	}
	l, err := self.config.Log.Read(addr)
	if err != nil {
		mlog.Panicf("patricia: cannot read node %x of tree %d: %v", addr, self.structureId, err)
	}
	if l.StructureId != self.structureId {
		mlog.Panicf("patricia: node %x belongs to tree %d, not %d", addr, l.StructureId, self.structureId)
	}
	n := decodeNode(l)
	self.config.Cache.set(n)
	return n
}

// child returns the i'th child of n, loading it if need be.
func (self *treeBase) child(n node, i int) node {
	ref := n.childAt(i)
	if ref.node != nil {
		return ref.node
	}
	return self.loadNode(ref.addr)
}

// find returns the node whose full key is key, or nil.
func (self *treeBase) find(root node, key []byte) node {
	n := root
	pos := 0
	for {
		ks := n.keySequence()
		if !bytes.HasPrefix(key[pos:], ks) {
			return nil
		}
		pos += len(ks)
		if pos == len(key) {
			return n
		}
		i, found := indexOf(n, key[pos])
		if !found {
			return nil
		}
		n = self.child(n, i)
		pos++
	}
}

func (self *treeBase) get(root node, key []byte) []byte {
	n := self.find(root, key)
	if n == nil || !n.hasValue() {
		return nil
	}
	return util.CopyBytes(n.value())
}

func (self *treeBase) hasPair(root node, key, value []byte) bool {
	n := self.find(root, key)
	return n != nil && n.hasValue() && bytes.Equal(n.value(), value)
}

// Tree is a saved (immutable) revision of a trie.
type Tree struct {
	treeBase
	root journal.Address
	node node
	size uint64
}

var _ Reader = &Tree{}

// Load returns the tree with the given structure id whose root is
// at addr. NullAddress produces an empty tree.
func (self *Config) Load(structureId uint64, addr journal.Address) *Tree {
	t := &Tree{treeBase: treeBase{config: self, structureId: structureId},
		root: addr}
	if addr == journal.NullAddress {
		t.node = &mutableNode{}
		return t
	}
	n := t.loadNode(addr)
	if !n.isRoot() {
		mlog.Panicf("patricia: %x is not a root", addr)
	}
	t.node = n
	t.size = n.size
	return t
}

func (self *Tree) Address() journal.Address {
	return self.root
}

func (self *Tree) StructureId() uint64 {
	return self.structureId
}

func (self *Tree) Get(key []byte) []byte {
	return self.get(self.node, key)
}

func (self *Tree) HasKey(key []byte) bool {
	n := self.find(self.node, key)
	return n != nil && n.hasValue()
}

func (self *Tree) HasPair(key, value []byte) bool {
	return self.hasPair(self.node, key, value)
}

func (self *Tree) Size() uint64 {
	return self.size
}

func (self *Tree) OpenCursor() Cursor {
	return newCursor(&self.treeBase, self, nil)
}

func (self *Tree) currentRoot() node {
	return self.node
}

// Mutable returns a new MutableTree on top of this revision.
func (self *Tree) Mutable() *MutableTree {
	var root node = self.node
	if self.root == journal.NullAddress {
		// empty tree; its node must not be shared
		root = &mutableNode{}
	}
	return &MutableTree{treeBase: self.treeBase, root: root,
		size: self.size, cursors: make(map[*cursor]bool)}
}

/*
 * Author: Markus Stenberg <fingon@iki.fi>
 *
 * Copyright (c) 2019 Markus Stenberg
 *
 * Created:       Mon Mar 18 13:15:05 2019 mstenber
 * Last modified: Thu Mar 21 10:40:27 2019 mstenber
 * Edit time:     118 min
 *
 */

package patricia

import (
	"bytes"

	"github.com/fingon/go-logtrie/journal"
	"github.com/fingon/go-logtrie/mlog"
	"github.com/fingon/go-logtrie/util"
)

// reclaimFrame pairs a position in the source tree with the same key
// position in the current tree. Offsets are within the key sequences
// of the nodes; akey is the full key of a.
type reclaimFrame struct {
	s, a       node
	sOff, aOff int
	akey       []byte
}

// force makes the node with the full key key mutable, so that it is
// rewritten on the next Save.
func (self *MutableTree) force(key []byte) {
	var stack []pathFrame
	n := self.root
	pos := 0
	for {
		ks := n.keySequence()
		if !bytes.HasPrefix(key[pos:], ks) {
			mlog.Panicf("patricia: reclaim lost node %x", key)
		}
		pos += len(ks)
		if pos == len(key) {
			break
		}
		i, found := indexOf(n, key[pos])
		if !found {
			mlog.Panicf("patricia: reclaim lost node %x", key)
		}
		stack = append(stack, pathFrame{n: n, b: key[pos]})
		n = self.child(n, i)
		pos++
	}
	m, was := self.mutable(n)
	if !was {
		self.mutateUp(stack, m)
	}
}

// Reclaim makes sure that nothing in the tree refers to the save
// that record belongs to, by forcing the nodes of that save that are
// still in use to be rewritten on the next Save. it has to be
// positioned just after record; on return it is positioned after the
// root of the save. The return value is false if the log ended
// before the root was found, or if nothing needed rewriting.
//
// If a file between record and the root has been removed, the save
// cannot be walked; its remaining nodes are then reclaimed by address
// with ReclaimRange.
func (self *MutableTree) Reclaim(record journal.Loggable, it *journal.Iterator) bool {
	rl := record
	for {
		if !IsNodeType(rl.Type) || rl.StructureId != self.structureId {
			mlog.Panicf("patricia: unexpected record %x (type %x tree %d) in tree %d",
				rl.Address, rl.Type, rl.StructureId, self.structureId)
		}
		if IsRootType(rl.Type) {
			break
		}
		if !it.Next() {
			mlog.Printf2("patricia/reclaim", "Reclaim %x: no root found", record.Address)
			return false
		}
		rl = it.Loggable()
	}
	if !self.config.Log.HasAddressRange(record.Address, rl.Address) {
		mlog.Printf2("patricia/reclaim", "Reclaim %x: root %x past removed file", record.Address, rl.Address)
		return self.ReclaimRange(record.Address, rl.Address+1)
	}
	sroot := self.loadNode(rl.Address)
	minAddress := record.Address
	if sroot.backref != journal.NullAddress && self.config.Log.HasAddressRange(sroot.backref, sroot.addr) {
		minAddress = sroot.backref
	}
	mlog.Printf2("patricia/reclaim", "Reclaim %x: root %x, min %x", record.Address, sroot.addr, minAddress)

	// Children are always written before their parent, so source
	// subtrees below minAddress are skipped without loading them.
	forced := 0
	stack := []reclaimFrame{{s: sroot, a: self.root,
		akey: util.CopyBytes(self.root.keySequence())}}
	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if f.sOff == 0 && f.aOff == 0 && f.s.address() == f.a.address() {
			self.force(f.akey)
			forced++
			for i := f.s.childCount() - 1; i >= 0; i-- {
				if f.s.childAt(i).addr < minAddress {
					continue
				}
				c := self.child(f.s, i)
				stack = append(stack, reclaimFrame{s: c, a: c,
					akey: util.ConcatBytes(f.akey, []byte{f.s.childAt(i).b}, c.keySequence())})
			}
			continue
		}
		ks := f.s.keySequence()[f.sOff:]
		ka := f.a.keySequence()[f.aOff:]
		common := util.CommonPrefixLength(ks, ka)
		switch {
		case common < len(ks) && common < len(ka):
			// the trees diverge
		case common < len(ka):
			i, found := indexOf(f.s, ka[common])
			if found && f.s.childAt(i).addr >= minAddress {
				stack = append(stack, reclaimFrame{s: self.child(f.s, i), a: f.a,
					aOff: f.aOff + common + 1, akey: f.akey})
			}
		case common < len(ks):
			i, found := indexOf(f.a, ks[common])
			if found {
				c := self.child(f.a, i)
				stack = append(stack, reclaimFrame{s: f.s, sOff: f.sOff + common + 1, a: c,
					akey: util.ConcatBytes(f.akey, []byte{ks[common]}, c.keySequence())})
			}
		default:
			// both exhausted; merge the child tables
			si, ai := 0, 0
			for si < f.s.childCount() && ai < f.a.childCount() {
				sb := f.s.childAt(si).b
				ab := f.a.childAt(ai).b
				switch {
				case sb < ab:
					si++
				case ab < sb:
					ai++
				default:
					if f.s.childAt(si).addr >= minAddress {
						c := self.child(f.a, ai)
						stack = append(stack, reclaimFrame{s: self.child(f.s, si), a: c,
							akey: util.ConcatBytes(f.akey, []byte{ab}, c.keySequence())})
					}
					si++
					ai++
				}
			}
		}
	}
	if forced > 0 {
		self.notifyCursors(nil)
	}
	mlog.Printf2("patricia/reclaim", " forced %d nodes", forced)
	return forced > 0
}

// ReclaimRange forces the saved nodes with addresses in [start, end)
// to be rewritten on the next Save. Unlike Reclaim it does not need
// the save records, but it walks all of the tree apart from subtrees
// saved before start. It returns true if anything was forced.
func (self *MutableTree) ReclaimRange(start, end journal.Address) bool {
	type rangeFrame struct {
		n   node
		key []byte
	}
	var keys [][]byte
	stack := []rangeFrame{{n: self.root, key: util.CopyBytes(self.root.keySequence())}}
	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		addr := f.n.address()
		if addr != journal.NullAddress && addr >= start && addr < end {
			keys = append(keys, f.key)
		}
		for i := 0; i < f.n.childCount(); i++ {
			ref := f.n.childAt(i)
			if ref.node == nil && ref.addr < start {
				continue
			}
			c := self.child(f.n, i)
			stack = append(stack, rangeFrame{n: c,
				key: util.ConcatBytes(f.key, []byte{ref.b}, c.keySequence())})
		}
	}
	for _, key := range keys {
		self.force(key)
	}
	mlog.Printf2("patricia/reclaim", "ReclaimRange %x-%x: forced %d nodes", start, end, len(keys))
	if len(keys) > 0 {
		self.notifyCursors(nil)
	}
	return len(keys) > 0
}

/*
 * Author: Markus Stenberg <fingon@iki.fi>
 *
 * Copyright (c) 2019 Markus Stenberg
 *
 * Created:       Thu Mar 14 13:02:50 2019 mstenber
 * Last modified: Mon Mar 18 11:40:09 2019 mstenber
 * Edit time:     71 min
 *
 */

package patricia

import (
	"encoding/binary"
	"math/bits"

	"github.com/fingon/go-logtrie/journal"
	"github.com/fingon/go-logtrie/mlog"
)

// bytesPerAddress returns how many bytes are needed to represent v
// (at least one).
func bytesPerAddress(v uint64) int {
	n := (bits.Len64(v) + 7) / 8
	if n == 0 {
		return 1
	}
	return n
}

func uvarintSize(v uint64) int {
	var buf [binary.MaxVarintLen64]byte
	return binary.PutUvarint(buf[:], v)
}

type recordEncoder struct {
	b []byte
}

func (self *recordEncoder) uvarint(v uint64) {
	var buf [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(buf[:], v)
	self.b = append(self.b, buf[:n]...)
}

func (self *recordEncoder) address(v uint64, bpa int) {
	for i := bpa - 1; i >= 0; i-- {
		self.b = append(self.b, byte(v>>(uint(i)*8)))
	}
}

// children encodes the child table. v2 layout is chosen by the
// number of children; base is used only if it makes the table
// smaller.
func (self *recordEncoder) children(refs []childRef, v1 bool) {
	min, max := uint64(refs[0].addr), uint64(refs[0].addr)
	for _, r := range refs {
		a := uint64(r.addr)
		if a < min {
			min = a
		}
		if a > max {
			max = a
		}
	}
	bpa := bytesPerAddress(max)
	count := len(refs)
	if v1 {
		self.b = append(self.b, byte(layoutV1<<4|(bpa-1)), byte(count-1))
		for _, r := range refs {
			self.b = append(self.b, r.b)
			self.address(uint64(r.addr), bpa)
		}
		return
	}
	var base uint64
	useBase := false
	if bpa2 := bytesPerAddress(max - min); bpa2 < bpa && count*(bpa-bpa2) > uvarintSize(min) {
		base = min
		bpa = bpa2
		useBase = true
	}
	var layout byte
	switch {
	case count == 256:
		layout = layoutComplete
	case count <= maximumSparse:
		layout = layoutSparse
	default:
		layout = layoutBitset
	}
	tag := layout<<4 | byte(bpa-1)
	if useBase {
		tag |= 8
	}
	self.b = append(self.b, tag)
	if useBase {
		self.uvarint(base)
	}
	switch layout {
	case layoutSparse:
		self.b = append(self.b, byte(count-1))
		for _, r := range refs {
			self.b = append(self.b, r.b)
		}
	case layoutBitset:
		var bitmap [bitmapSize]byte
		for _, r := range refs {
			bitmap[r.b/8] |= 0x80 >> (r.b % 8)
		}
		self.b = append(self.b, bitmap[:]...)
	}
	for _, r := range refs {
		self.address(uint64(r.addr)-base, bpa)
	}
}

// encodeNode produces the record type and data for node m, whose
// children have been already saved (refs carry their addresses).
func encodeNode(m *mutableNode, refs []childRef, root bool, size uint64, backref journal.Address, v1 bool) (byte, []byte) {
	var e recordEncoder
	typ := byte(nodeTypeBase)
	if root {
		typ |= flagRoot
		e.uvarint(size)
		if backref != journal.NullAddress {
			typ |= flagBackref
			e.uvarint(uint64(backref))
		}
	} else if backref != journal.NullAddress {
		mlog.Panicf("patricia: backref for non-root node")
	}
	if len(m.key) > 0 {
		typ |= flagKey
		e.uvarint(uint64(len(m.key)))
		e.b = append(e.b, m.key...)
	}
	if m.val != nil {
		typ |= flagValue
		e.uvarint(uint64(len(m.val)))
		e.b = append(e.b, m.val...)
	}
	if len(refs) > 0 {
		typ |= flagChildren
		e.children(refs, v1)
	}
	return typ, e.b
}

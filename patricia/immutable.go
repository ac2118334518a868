/*
 * Author: Markus Stenberg <fingon@iki.fi>
 *
 * Copyright (c) 2019 Markus Stenberg
 *
 * Created:       Thu Mar 14 10:20:31 2019 mstenber
 * Last modified: Tue Mar 19 09:58:12 2019 mstenber
 * Edit time:     132 min
 *
 */

package patricia

import (
	"encoding/binary"
	"math/bits"
	"sort"

	"github.com/fingon/go-logtrie/journal"
	"github.com/fingon/go-logtrie/mlog"
)

// Node record type is nodeTypeBase | flags.
const (
	flagKey      = 0x01
	flagValue    = 0x02
	flagChildren = 0x04
	flagRoot     = 0x08
	flagBackref  = 0x10

	nodeTypeBase = 0x20
	nodeTypeMask = 0xe0
)

// Child table layouts
const (
	layoutV1       = 1
	layoutComplete = 2
	layoutSparse   = 3
	layoutBitset   = 4

	maximumSparse = 32
	bitmapSize    = 32
)

// IsNodeType returns true if typ is type of a trie node record.
func IsNodeType(typ byte) bool {
	return typ&nodeTypeMask == nodeTypeBase
}

// IsRootType returns true if typ is type of a trie root record.
func IsRootType(typ byte) bool {
	return IsNodeType(typ) && typ&flagRoot != 0
}

// childTable is a read-only view of the children block of a
// record. All layouts provide count, byteAt, addrAt and ceiling.
type childTable struct {
	layout byte
	bpa    int
	base   uint64
	count  int

	// v1: (byte, address) pairs; sparse: the bytes; bitset: the
	// bitmap
	index []byte

	// addresses (all layouts but v1)
	addrs []byte

	// bitset: number of set bits before each 64-bit word
	rank [bitmapSize / 8]int
}

func readAddress(b []byte, bpa int) uint64 {
	var v uint64
	for i := 0; i < bpa; i++ {
		v = v<<8 | uint64(b[i])
	}
	return v
}

func (self *childTable) word(w int) uint64 {
	return binary.BigEndian.Uint64(self.index[w*8:])
}

func (self *childTable) byteAt(i int) byte {
	switch self.layout {
	case layoutV1:
		return self.index[i*(1+self.bpa)]
	case layoutComplete:
		return byte(i)
	case layoutSparse:
		return self.index[i]
	}
	// bitset: select the i'th set bit
	w := len(self.rank) - 1
	for self.rank[w] > i {
		w--
	}
	word := self.word(w)
	for k := i - self.rank[w]; k > 0; k-- {
		word &^= 1 << uint(63-bits.LeadingZeros64(word))
	}
	return byte(w*64 + bits.LeadingZeros64(word))
}

func (self *childTable) addrAt(i int) journal.Address {
	var v uint64
	if self.layout == layoutV1 {
		ofs := i*(1+self.bpa) + 1
		v = readAddress(self.index[ofs:], self.bpa)
	} else {
		v = readAddress(self.addrs[i*self.bpa:], self.bpa)
	}
	return journal.Address(v + self.base)
}

func (self *childTable) ceiling(b byte) int {
	switch self.layout {
	case layoutComplete:
		return int(b)
	case layoutBitset:
		w := int(b) / 64
		word := self.word(w)
		// bits before b within the word
		return self.rank[w] + bits.OnesCount64(word>>(64-uint(b)%64))
	}
	return sort.Search(self.count, func(i int) bool {
		return self.byteAt(i) >= b
	})
}

type immutableNode struct {
	addr    journal.Address
	length  int
	typ     byte
	size    uint64
	backref journal.Address
	key     []byte
	val     []byte
	table   childTable
}

var _ node = &immutableNode{}

func (self *immutableNode) keySequence() []byte {
	return self.key
}

func (self *immutableNode) value() []byte {
	return self.val
}

func (self *immutableNode) hasValue() bool {
	return self.typ&flagValue != 0
}

func (self *immutableNode) address() journal.Address {
	return self.addr
}

func (self *immutableNode) childCount() int {
	return self.table.count
}

func (self *immutableNode) childAt(i int) childRef {
	return childRef{b: self.table.byteAt(i), addr: self.table.addrAt(i)}
}

func (self *immutableNode) ceiling(b byte) int {
	return self.table.ceiling(b)
}

func (self *immutableNode) isRoot() bool {
	return self.typ&flagRoot != 0
}

func (self *immutableNode) expiredLoggable() ExpiredLoggable {
	return ExpiredLoggable{Address: self.addr, Length: self.length}
}

// recordDecoder consumes a record; any inconsistency is treated as
// corruption.
type recordDecoder struct {
	l   journal.Loggable
	ofs int
}

func (self *recordDecoder) fail(what string) {
	mlog.Panicf("patricia: corrupted node at %x: %s", self.l.Address, what)
}

func (self *recordDecoder) uvarint() uint64 {
	v, n := binary.Uvarint(self.l.Data[self.ofs:])
	if n <= 0 {
		self.fail("bad varint")
	}
	self.ofs += n
	return v
}

func (self *recordDecoder) bytes(n uint64) []byte {
	if n > uint64(len(self.l.Data)-self.ofs) {
		self.fail("truncated")
	}
	b := self.l.Data[self.ofs : self.ofs+int(n) : self.ofs+int(n)]
	self.ofs += int(n)
	return b
}

func (self *recordDecoder) childTable() (t childTable) {
	tag := self.bytes(1)[0]
	t.layout = tag >> 4
	t.bpa = int(tag&7) + 1
	if tag&8 != 0 {
		if t.layout == layoutV1 {
			self.fail("v1 with base")
		}
		t.base = self.uvarint()
	}
	switch t.layout {
	case layoutV1:
		t.count = int(self.bytes(1)[0]) + 1
		t.index = self.bytes(uint64(t.count * (1 + t.bpa)))
	case layoutComplete:
		t.count = 256
		t.addrs = self.bytes(uint64(t.count * t.bpa))
	case layoutSparse:
		t.count = int(self.bytes(1)[0]) + 1
		if t.count > maximumSparse {
			self.fail("sparse table too large")
		}
		t.index = self.bytes(uint64(t.count))
		t.addrs = self.bytes(uint64(t.count * t.bpa))
	case layoutBitset:
		t.index = self.bytes(bitmapSize)
		for w := range t.rank {
			t.rank[w] = t.count
			t.count += bits.OnesCount64(t.word(w))
		}
		if t.count <= maximumSparse || t.count >= 256 {
			self.fail("inconsistent bitset population count")
		}
		t.addrs = self.bytes(uint64(t.count * t.bpa))
	default:
		self.fail("unknown child layout")
	}
	if t.layout == layoutV1 || t.layout == layoutSparse {
		for i := 1; i < t.count; i++ {
			if t.byteAt(i-1) >= t.byteAt(i) {
				self.fail("child bytes not increasing")
			}
		}
	}
	return
}

// decodeNode parses the node record l.
func decodeNode(l journal.Loggable) *immutableNode {
	d := recordDecoder{l: l}
	if !IsNodeType(l.Type) {
		d.fail("not a node record")
	}
	n := &immutableNode{addr: l.Address, length: l.Length, typ: l.Type,
		backref: journal.NullAddress}
	if l.Type&flagRoot != 0 {
		n.size = d.uvarint()
		if l.Type&flagBackref != 0 {
			n.backref = journal.Address(d.uvarint())
		}
	} else if l.Type&flagBackref != 0 {
		d.fail("backref without root")
	}
	if l.Type&flagKey != 0 {
		n.key = d.bytes(d.uvarint())
	}
	if l.Type&flagValue != 0 {
		n.val = d.bytes(d.uvarint())
	}
	if l.Type&flagChildren != 0 {
		n.table = d.childTable()
	}
	if d.ofs != len(l.Data) {
		d.fail("trailing data")
	}
	return n
}

/*
 * Author: Markus Stenberg <fingon@iki.fi>
 *
 * Copyright (c) 2019 Markus Stenberg
 *
 * Created:       Thu Mar 14 09:02:11 2019 mstenber
 * Last modified: Tue Mar 19 10:31:45 2019 mstenber
 * Edit time:     63 min
 *
 */

// patricia package provides a persistent PATRICIA (radix) trie on
// top of an append-only log.
//
// Each node is one log record. Saved (immutable) nodes are never
// changed; a MutableTree copies the nodes it needs to change
// (copy-on-write), and Save writes the changed nodes bottom-up,
// producing a new root address. The addresses of the nodes that are
// no longer reachable from the new root are reported as expired, and
// Reclaim can be used to rewrite still-reachable nodes out of a log
// region that is about to be discarded.
//
// Trees are not safe for concurrent mutation; readers of immutable
// trees need no locking.
package patricia

import (
	"github.com/bluele/gcache"
	"github.com/fingon/go-logtrie/journal"
	"github.com/pkg/errors"
)

// Log is the part of the journal the trees need.
type Log interface {
	// Write appends the record, moving to a new file if needed.
	Write(typ byte, sid uint64, data []byte) (journal.Address, error)

	// TryWrite appends the record to the current file, or
	// returns journal.ErrNoSpace.
	TryWrite(typ byte, sid uint64, data []byte) (journal.Address, error)

	Read(addr journal.Address) (journal.Loggable, error)

	HighAddress() journal.Address

	IsLastFileAddress(addr journal.Address) bool

	HasAddressRange(start, end journal.Address) bool
}

var _ Log = &journal.Log{}

var (
	ErrOrderViolation = errors.New("patricia: key not greater than the maximum key")
	ErrNodeTooBig     = errors.Wrap(journal.ErrTooBig, "patricia: node too big")
)

// Reader is the read-only view of a key/value store.
type Reader interface {
	// Get returns the value of key, or nil if there is none.
	Get(key []byte) []byte

	HasKey(key []byte) bool

	HasPair(key, value []byte) bool

	// Size returns the number of stored pairs.
	Size() uint64

	OpenCursor() Cursor
}

// Store is the mutable key/value store.
type Store interface {
	Reader

	// Put sets the value of key. It returns true if key was
	// not present before.
	Put(key, value []byte) bool

	// PutRight is Put for keys in increasing order; it returns
	// ErrOrderViolation if key is not greater than every key in
	// the store.
	PutRight(key, value []byte) error

	// Add stores the pair only if key is not present.
	Add(key, value []byte) bool

	Delete(key []byte) bool

	DeletePair(key, value []byte) bool
}

// Cursor walks a Store in key order. A new cursor is not positioned;
// Next moves it to the first and Prev to the last pair. Operations
// that fail leave the position unchanged.
type Cursor interface {
	Next() bool
	Prev() bool
	NextDup() bool
	PrevDup() bool
	NextNoDup() bool
	PrevNoDup() bool

	// SearchKey moves to key, returning its value (or nil).
	SearchKey(key []byte) []byte

	// SearchKeyRange moves to the smallest key >= key,
	// returning its value (or nil).
	SearchKeyRange(key []byte) []byte

	SearchBoth(key, value []byte) bool

	// SearchBothRange moves to the pair with key and the
	// smallest value >= value, returning the value (or nil).
	SearchBothRange(key, value []byte) []byte

	// Count returns the number of values of the current key.
	Count() int

	DeleteCurrent() bool

	Key() []byte
	Value() []byte

	Close()
}

// NodeCache keeps decoded immutable nodes around, keyed by address.
// It can be shared by all trees on the same log.
type NodeCache struct {
	cache gcache.Cache
}

func NewNodeCache(size int) *NodeCache {
	return &NodeCache{cache: gcache.New(size).ARC().Build()}
}

func (self *NodeCache) get(addr journal.Address) *immutableNode {
	if self == nil {
		return nil
	}
	v, err := self.cache.GetIFPresent(addr)
	if err != nil {
		return nil
	}
	return v.(*immutableNode)
}

func (self *NodeCache) set(n *immutableNode) {
	if self == nil {
		return
	}
	self.cache.Set(n.addr, n)
}

// Purge drops everything; it has to be called if the log is
// truncated, as addresses get reused.
func (self *NodeCache) Purge() {
	if self == nil {
		return
	}
	self.cache.Purge()
}

// Config is shared by the trees on the same log.
type Config struct {
	Log Log

	// Cache is optional.
	Cache *NodeCache

	// WriteV1 makes Save produce the v1 child layout only.
	WriteV1 bool
}

// ExpiredLoggable is a record superseded within a revision.
type ExpiredLoggable struct {
	Address journal.Address
	Length  int
}

/*
 * Author: Markus Stenberg <fingon@iki.fi>
 *
 * Copyright (c) 2019 Markus Stenberg
 *
 * Created:       Thu Mar 21 15:10:02 2019 mstenber
 * Last modified: Fri Mar 22 10:31:40 2019 mstenber
 * Edit time:     83 min
 *
 */

// dups package provides multiple values per key on top of a store
// that has only one.
//
// Pair (key, value) is stored as the key Escape(key) 0x00
// Escape(value), so the pairs of a key are adjacent and ordered by
// value. Escaping guarantees 0x00 does not occur within the escaped
// parts. The stored value is the length of Escape(key) as uvarint.
package dups

import (
	"bytes"
	"encoding/binary"

	"github.com/fingon/go-logtrie/mlog"
	"github.com/fingon/go-logtrie/patricia"
	"github.com/fingon/go-logtrie/util"
)

const (
	separator = 0
	escape    = 1
)

// Escape rewrites 0x00 and 0x01 as 0x01 followed by the original
// byte + 1.
func Escape(b []byte) []byte {
	r := make([]byte, 0, len(b))
	for _, c := range b {
		if c <= escape {
			r = append(r, escape, c+1)
		} else {
			r = append(r, c)
		}
	}
	return r
}

// Unescape reverses Escape. ok is false if b was not produced by
// Escape.
func Unescape(b []byte) (r []byte, ok bool) {
	r = make([]byte, 0, len(b))
	for i := 0; i < len(b); i++ {
		c := b[i]
		switch c {
		case separator:
			return nil, false
		case escape:
			i++
			if i == len(b) || b[i] < 1 || b[i] > 2 {
				return nil, false
			}
			c = b[i] - 1
		}
		r = append(r, c)
	}
	return r, true
}

func keyPrefix(ek []byte) []byte {
	return util.ConcatBytes(ek, []byte{separator})
}

func compoundKey(key, value []byte) (physical, length []byte) {
	ek := Escape(key)
	var buf [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(buf[:], uint64(len(ek)))
	return util.ConcatBytes(ek, []byte{separator}, Escape(value)), buf[:n]
}

// split returns the escaped key part of the physical key, and the
// unescaped key and value.
func split(physical, length []byte) (ek, key, value []byte) {
	n, cnt := binary.Uvarint(length)
	if cnt <= 0 || n >= uint64(len(physical)) || physical[n] != separator {
		mlog.Panicf("dups: inconsistent key %x (%x)", physical, length)
	}
	ek = physical[:n]
	key, ok := Unescape(ek)
	if !ok {
		mlog.Panicf("dups: invalid key %x", physical)
	}
	value, ok = Unescape(physical[n+1:])
	if !ok {
		mlog.Panicf("dups: invalid value %x", physical)
	}
	return
}

// Store provides pairs on top of patricia.Reader (read-only) or
// patricia.Store.
type Store struct {
	reader patricia.Reader

	// nil if read-only
	store patricia.Store
}

var _ patricia.Store = &Store{}

func NewReader(r patricia.Reader) *Store {
	return &Store{reader: r}
}

func New(s patricia.Store) *Store {
	return &Store{reader: s, store: s}
}

func (self *Store) mutable() patricia.Store {
	if self.store == nil {
		mlog.Panicf("dups: mutation of read-only store")
	}
	return self.store
}

// first returns physical key and value of the first pair of key
func (self *Store) first(key []byte) (physical, length []byte) {
	c := self.reader.OpenCursor()
	defer c.Close()
	prefix := keyPrefix(Escape(key))
	length = c.SearchKeyRange(prefix)
	if length == nil {
		return nil, nil
	}
	physical = c.Key()
	if !bytes.HasPrefix(physical, prefix) {
		return nil, nil
	}
	return
}

// Get returns the smallest value of key, or nil.
func (self *Store) Get(key []byte) []byte {
	physical, length := self.first(key)
	if physical == nil {
		return nil
	}
	_, _, value := split(physical, length)
	return value
}

func (self *Store) HasKey(key []byte) bool {
	physical, _ := self.first(key)
	return physical != nil
}

func (self *Store) HasPair(key, value []byte) bool {
	physical, _ := compoundKey(key, value)
	return self.reader.HasKey(physical)
}

// Size returns the number of pairs.
func (self *Store) Size() uint64 {
	return self.reader.Size()
}

// Put adds the pair; it returns false if it was already there.
func (self *Store) Put(key, value []byte) bool {
	physical, length := compoundKey(key, value)
	return self.mutable().Put(physical, length)
}

// PutRight adds the pair, which has to be greater than all pairs in
// the store.
func (self *Store) PutRight(key, value []byte) error {
	physical, length := compoundKey(key, value)
	return self.mutable().PutRight(physical, length)
}

// Add adds the pair only if there are no pairs with key.
func (self *Store) Add(key, value []byte) bool {
	if self.HasKey(key) {
		return false
	}
	return self.Put(key, value)
}

// Delete removes every pair of key.
func (self *Store) Delete(key []byte) bool {
	s := self.mutable()
	prefix := keyPrefix(Escape(key))
	var keys [][]byte
	c := self.reader.OpenCursor()
	if c.SearchKeyRange(prefix) != nil {
		for {
			k := c.Key()
			if !bytes.HasPrefix(k, prefix) {
				break
			}
			keys = append(keys, k)
			if !c.Next() {
				break
			}
		}
	}
	c.Close()
	for _, k := range keys {
		s.Delete(k)
	}
	return len(keys) > 0
}

func (self *Store) DeletePair(key, value []byte) bool {
	physical, _ := compoundKey(key, value)
	return self.mutable().Delete(physical)
}

func (self *Store) OpenCursor() patricia.Cursor {
	return &cursor{store: self, c: self.reader.OpenCursor()}
}

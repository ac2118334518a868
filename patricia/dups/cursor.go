/*
 * Author: Markus Stenberg <fingon@iki.fi>
 *
 * Copyright (c) 2019 Markus Stenberg
 *
 * Created:       Thu Mar 21 16:44:19 2019 mstenber
 * Last modified: Fri Mar 22 10:02:11 2019 mstenber
 * Edit time:     51 min
 *
 */

package dups

import (
	"bytes"

	"github.com/fingon/go-logtrie/patricia"
)

// cursor moves over the pairs; the underlying cursor is always
// positioned on the physical key of the current pair.
type cursor struct {
	store *Store
	c     patricia.Cursor
}

var _ patricia.Cursor = &cursor{}

// current returns the escaped key of the current pair, or nil if
// not positioned.
func (self *cursor) current() []byte {
	physical := self.c.Key()
	if physical == nil {
		return nil
	}
	ek, _, _ := split(physical, self.c.Value())
	return ek
}

// moveTo positions the cursor at the physical key found by f, using
// a temporary cursor so that failure does not move this one.
func (self *cursor) moveTo(f func(c patricia.Cursor) bool) bool {
	c := self.store.reader.OpenCursor()
	defer c.Close()
	if !f(c) {
		return false
	}
	return self.c.SearchKey(c.Key()) != nil
}

func (self *cursor) Next() bool {
	return self.c.Next()
}

func (self *cursor) Prev() bool {
	return self.c.Prev()
}

func (self *cursor) NextDup() bool {
	ek := self.current()
	if ek == nil || !self.c.Next() {
		return false
	}
	if !bytes.Equal(self.current(), ek) {
		self.c.Prev()
		return false
	}
	return true
}

func (self *cursor) PrevDup() bool {
	ek := self.current()
	if ek == nil || !self.c.Prev() {
		return false
	}
	if !bytes.Equal(self.current(), ek) {
		self.c.Next()
		return false
	}
	return true
}

// NextNoDup moves to the first pair of the next key.
func (self *cursor) NextNoDup() bool {
	ek := self.current()
	if ek == nil {
		return self.Next()
	}
	// 0x01 is greater than the separator of all pairs of ek
	after := append(ek[:len(ek):len(ek)], escape)
	return self.moveTo(func(c patricia.Cursor) bool {
		return c.SearchKeyRange(after) != nil
	})
}

// PrevNoDup moves to the last pair of the previous key.
func (self *cursor) PrevNoDup() bool {
	ek := self.current()
	if ek == nil {
		return self.Prev()
	}
	prefix := keyPrefix(ek)
	return self.moveTo(func(c patricia.Cursor) bool {
		return c.SearchKeyRange(prefix) != nil && c.Prev()
	})
}

func (self *cursor) value() []byte {
	_, _, value := split(self.c.Key(), self.c.Value())
	return value
}

// SearchKey moves to the first pair of key and returns its value.
func (self *cursor) SearchKey(key []byte) []byte {
	prefix := keyPrefix(Escape(key))
	if !self.moveTo(func(c patricia.Cursor) bool {
		return c.SearchKeyRange(prefix) != nil && bytes.HasPrefix(c.Key(), prefix)
	}) {
		return nil
	}
	return self.value()
}

// SearchKeyRange moves to the first pair with key >= key.
func (self *cursor) SearchKeyRange(key []byte) []byte {
	if self.c.SearchKeyRange(Escape(key)) == nil {
		return nil
	}
	return self.value()
}

func (self *cursor) SearchBoth(key, value []byte) bool {
	physical, _ := compoundKey(key, value)
	return self.c.SearchKey(physical) != nil
}

// SearchBothRange moves to the first pair of key with value >= value.
func (self *cursor) SearchBothRange(key, value []byte) []byte {
	physical, _ := compoundKey(key, value)
	prefix := keyPrefix(Escape(key))
	if !self.moveTo(func(c patricia.Cursor) bool {
		return c.SearchKeyRange(physical) != nil && bytes.HasPrefix(c.Key(), prefix)
	}) {
		return nil
	}
	return self.value()
}

// Count returns the number of values of the current key.
func (self *cursor) Count() int {
	ek := self.current()
	if ek == nil {
		return 0
	}
	prefix := keyPrefix(ek)
	c := self.store.reader.OpenCursor()
	defer c.Close()
	cnt := 0
	if c.SearchKeyRange(prefix) != nil {
		for bytes.HasPrefix(c.Key(), prefix) {
			cnt++
			if !c.Next() {
				break
			}
		}
	}
	return cnt
}

func (self *cursor) DeleteCurrent() bool {
	self.store.mutable()
	return self.c.DeleteCurrent()
}

func (self *cursor) Key() []byte {
	physical := self.c.Key()
	if physical == nil {
		return nil
	}
	_, key, _ := split(physical, self.c.Value())
	return key
}

func (self *cursor) Value() []byte {
	if self.c.Key() == nil {
		return nil
	}
	return self.value()
}

func (self *cursor) Close() {
	self.c.Close()
}

/*
 * Author: Markus Stenberg <fingon@iki.fi>
 *
 * Copyright (c) 2019 Markus Stenberg
 *
 * Created:       Fri Mar 15 13:40:11 2019 mstenber
 * Last modified: Wed Mar 20 09:14:02 2019 mstenber
 * Edit time:     77 min
 *
 */

package patricia

import (
	"bytes"

	"github.com/fingon/go-logtrie/mlog"
	"github.com/fingon/go-logtrie/util"
)

type rootSource interface {
	currentRoot() node
}

// cursor is positioned on a node with a value. When the underlying
// MutableTree changes, the cursor is invalidated (stale): it
// remembers the key and value it was at, and the next movement
// re-finds its position by key.
type cursor struct {
	base   *treeBase
	source rootSource

	// mt is nil for cursors of immutable trees
	mt *MutableTree

	t, tmp traverser

	positioned, stale bool

	// valid only when stale
	key, val []byte
}

var _ Cursor = &cursor{}

func newCursor(base *treeBase, source rootSource, mt *MutableTree) *cursor {
	c := &cursor{base: base, source: source, mt: mt}
	c.t.base = base
	c.tmp.base = base
	if mt != nil {
		mt.cursors[c] = true
	}
	return c
}

// try runs f on a copy of the current position, and takes the result
// into use only if f succeeds.
func (self *cursor) try(f func(t *traverser) bool) bool {
	self.t.copyTo(&self.tmp)
	if !f(&self.tmp) {
		return false
	}
	self.t, self.tmp = self.tmp, self.t
	self.positioned = true
	self.stale = false
	self.key = nil
	self.val = nil
	return true
}

func (self *cursor) invalidate() {
	if !self.positioned || self.stale {
		return
	}
	self.key = util.CopyBytes(self.t.key)
	self.val = util.CopyBytes(self.t.cur.value())
	self.stale = true
}

func (self *cursor) Next() bool {
	root := self.source.currentRoot()
	if !self.positioned {
		return self.try(func(t *traverser) bool {
			return t.first(root)
		})
	}
	if self.stale {
		key := self.key
		if self.try(func(t *traverser) bool {
			if !t.moveToRange(root, key) {
				return false
			}
			return !bytes.Equal(t.key, key) || t.nextValue()
		}) {
			return true
		}
		self.try(func(t *traverser) bool {
			return t.last(root)
		})
		return false
	}
	return self.try(func(t *traverser) bool {
		return t.nextValue()
	})
}

func (self *cursor) Prev() bool {
	root := self.source.currentRoot()
	if !self.positioned {
		return self.try(func(t *traverser) bool {
			return t.last(root)
		})
	}
	if self.stale {
		key := self.key
		if self.try(func(t *traverser) bool {
			if !t.moveToRange(root, key) {
				// everything is smaller
				return t.last(root)
			}
			return t.prevValue()
		}) {
			return true
		}
		self.try(func(t *traverser) bool {
			return t.first(root)
		})
		return false
	}
	return self.try(func(t *traverser) bool {
		return t.prevValue()
	})
}

func (self *cursor) NextDup() bool {
	return false
}

func (self *cursor) PrevDup() bool {
	return false
}

func (self *cursor) NextNoDup() bool {
	return self.Next()
}

func (self *cursor) PrevNoDup() bool {
	return self.Prev()
}

func (self *cursor) currentValue() []byte {
	return util.CopyBytes(self.t.cur.value())
}

func (self *cursor) SearchKey(key []byte) []byte {
	root := self.source.currentRoot()
	if !self.try(func(t *traverser) bool {
		return t.moveTo(root, key, nil)
	}) {
		return nil
	}
	return self.currentValue()
}

func (self *cursor) SearchKeyRange(key []byte) []byte {
	root := self.source.currentRoot()
	if !self.try(func(t *traverser) bool {
		return t.moveToRange(root, key)
	}) {
		return nil
	}
	return self.currentValue()
}

func (self *cursor) SearchBoth(key, value []byte) bool {
	root := self.source.currentRoot()
	return self.try(func(t *traverser) bool {
		return t.moveTo(root, key, value)
	})
}

func (self *cursor) SearchBothRange(key, value []byte) []byte {
	root := self.source.currentRoot()
	if !self.try(func(t *traverser) bool {
		return t.moveTo(root, key, nil) && bytes.Compare(t.cur.value(), value) >= 0
	}) {
		return nil
	}
	return self.currentValue()
}

func (self *cursor) Count() int {
	if !self.positioned {
		return 0
	}
	return 1
}

func (self *cursor) DeleteCurrent() bool {
	if self.mt == nil {
		mlog.Panicf("patricia: DeleteCurrent on a read-only cursor")
	}
	if !self.positioned || self.stale {
		return false
	}
	key := util.CopyBytes(self.t.key)
	val := util.CopyBytes(self.t.cur.value())
	if !self.mt.delete(key, nil, self) {
		return false
	}
	self.key = key
	self.val = val
	self.stale = true
	return true
}

func (self *cursor) Key() []byte {
	if !self.positioned {
		return nil
	}
	if self.stale {
		return util.CopyBytes(self.key)
	}
	return util.CopyBytes(self.t.key)
}

func (self *cursor) Value() []byte {
	if !self.positioned {
		return nil
	}
	if self.stale {
		return util.CopyBytes(self.val)
	}
	return self.currentValue()
}

func (self *cursor) Close() {
	if self.mt != nil {
		delete(self.mt.cursors, self)
	}
}

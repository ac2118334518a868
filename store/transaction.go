/*
 * Author: Markus Stenberg <fingon@iki.fi>
 *
 * Copyright (c) 2019 Markus Stenberg
 *
 * Created:       Mon Mar 25 13:40:22 2019 mstenber
 * Last modified: Wed Mar 27 10:18:02 2019 mstenber
 * Edit time:     97 min
 *
 */

package store

import (
	"github.com/fingon/go-logtrie/journal"
	"github.com/fingon/go-logtrie/mlog"
	"github.com/fingon/go-logtrie/patricia"
	"github.com/fingon/go-logtrie/patricia/dups"
	"github.com/pkg/errors"
)

type openTree struct {
	meta  *treeMetadata
	mt    *patricia.MutableTree
	store patricia.Store
}

// Transaction is the single write transaction of a Store. It must
// not be used from multiple goroutines at once. Nothing it does is
// visible to others until Commit.
type Transaction struct {
	store  *Store
	meta   *metadata
	trees  map[string]*openTree
	unlock func()
}

func (self *Transaction) open(name string) *openTree {
	ot := self.trees[name]
	if ot != nil {
		return ot
	}
	tm := self.meta.Trees[name]
	if tm == nil {
		return nil
	}
	t := self.store.tconfig.Load(tm.StructureId, journal.Address(tm.Root))
	ot = &openTree{meta: tm, mt: t.Mutable()}
	ot.store = ot.mt
	if tm.Dups {
		ot.store = dups.New(ot.mt)
	}
	self.trees[name] = ot
	return ot
}

// OpenStore returns the named store, creating it if it does not
// exist yet. dups selects the multiple values per key flavor; it has
// to match what the store was created with.
func (self *Transaction) OpenStore(name string, dups bool) (patricia.Store, error) {
	if self.meta == nil {
		return nil, ErrTxDone
	}
	if name == "" {
		return nil, ErrInvalidName
	}
	tm := self.meta.Trees[name]
	if tm == nil {
		tm = &treeMetadata{Name: name, StructureId: self.meta.NextStructureId,
			Root: uint64(journal.NullAddress), Dups: dups}
		self.meta.NextStructureId++
		self.meta.Trees[name] = tm
		mlog.Printf2("store/transaction", "OpenStore %s: created %d", name, tm.StructureId)
	} else if tm.Dups != dups {
		return nil, errors.Wrapf(ErrDupsMismatch, "%q", name)
	}
	return self.open(name).store, nil
}

// Store returns an existing store.
func (self *Transaction) Store(name string) (patricia.Store, error) {
	if self.meta == nil {
		return nil, ErrTxDone
	}
	ot := self.open(name)
	if ot == nil {
		return nil, errors.Wrapf(ErrNoSuchStore, "%q", name)
	}
	return ot.store, nil
}

// HasStore returns true if the named store exists.
func (self *Transaction) HasStore(name string) bool {
	return self.meta != nil && self.meta.Trees[name] != nil
}

// Names returns the names of the stores in sorted order.
func (self *Transaction) Names() []string {
	if self.meta == nil {
		return nil
	}
	return self.meta.names()
}

// DeleteStore removes the named store. Its committed nodes are
// accounted as expired; changes made to it within this transaction
// are dropped.
func (self *Transaction) DeleteStore(name string) error {
	if self.meta == nil {
		return ErrTxDone
	}
	tm := self.meta.Trees[name]
	if tm == nil {
		return errors.Wrapf(ErrNoSuchStore, "%q", name)
	}
	s := self.store
	t := s.tconfig.Load(tm.StructureId, journal.Address(tm.Root))
	it := t.Addresses()
	for it.Next() {
		rl, err := s.log.Read(it.Address())
		if err != nil {
			return err
		}
		self.meta.Expired[s.log.FileOf(rl.Address)] += uint64(rl.Length)
	}
	delete(self.trees, name)
	delete(self.meta.Trees, name)
	mlog.Printf2("store/transaction", "DeleteStore %s", name)
	return nil
}

// tree returns the open tree with structure id sid, opening it if
// needed. It returns nil if there is no such tree.
func (self *Transaction) tree(sid uint64) *openTree {
	for name, tm := range self.meta.Trees {
		if tm.StructureId == sid {
			return self.open(name)
		}
	}
	return nil
}

func (self *Transaction) close() {
	self.meta = nil
	self.trees = nil
	self.unlock()
}

// Abort discards the transaction.
func (self *Transaction) Abort() {
	if self.meta == nil {
		return
	}
	mlog.Printf2("store/transaction", "Abort")
	self.close()
}

// Commit saves the changed stores and makes the result the committed
// state. On failure the changes are discarded.
func (self *Transaction) Commit() error {
	if self.meta == nil {
		return ErrTxDone
	}
	defer self.close()
	s := self.store
	meta := self.meta
	start := s.log.HighAddress()
	// sorted order keeps the log layout deterministic
	for _, name := range meta.names() {
		ot := self.trees[name]
		if ot == nil {
			continue
		}
		addr, err := ot.mt.Save()
		if err != nil {
			s.rollback(start)
			return errors.Wrapf(err, "save %q", name)
		}
		for _, e := range ot.mt.ExpiredLoggables() {
			meta.Expired[s.log.FileOf(e.Address)] += uint64(e.Length)
		}
		ot.meta.Root = uint64(addr)
	}
	err := s.log.Flush()
	if err != nil {
		s.rollback(start)
		return err
	}
	high := s.log.HighAddress()
	meta.High = uint64(high)
	meta.Generation++
	err = s.writeMeta(meta)
	if err != nil {
		s.rollback(start)
		return err
	}
	s.metrics.commits.Inc()
	s.metrics.bytesWritten.Add(float64(high - start))
	s.metrics.files.Set(float64(len(s.log.Files())))
	mlog.Printf2("store/transaction", "Commit generation %d, high %x", meta.Generation, high)
	return nil
}

// ReadTransaction is a view of a committed state; it does not see
// anything committed after it was started.
type ReadTransaction struct {
	store  *Store
	meta   *metadata
	unlock func()
}

// Store returns read-only view of the named store.
func (self *ReadTransaction) Store(name string) (patricia.Reader, error) {
	if self.meta == nil {
		return nil, ErrTxDone
	}
	tm := self.meta.Trees[name]
	if tm == nil {
		return nil, errors.Wrapf(ErrNoSuchStore, "%q", name)
	}
	t := self.store.tconfig.Load(tm.StructureId, journal.Address(tm.Root))
	if tm.Dups {
		return dups.NewReader(t), nil
	}
	return t, nil
}

func (self *ReadTransaction) Names() []string {
	if self.meta == nil {
		return nil
	}
	return self.meta.names()
}

// Generation returns the number of commits the viewed state is the
// result of.
func (self *ReadTransaction) Generation() uint64 {
	if self.meta == nil {
		return 0
	}
	return self.meta.Generation
}

func (self *ReadTransaction) Close() {
	if self.meta == nil {
		return
	}
	self.meta = nil
	self.store.readers.Add(-1)
	self.unlock()
}

/*
 * Author: Markus Stenberg <fingon@iki.fi>
 *
 * Copyright (c) 2019 Markus Stenberg
 *
 * Created:       Tue Mar 26 09:31:17 2019 mstenber
 * Last modified: Wed Mar 27 11:02:45 2019 mstenber
 * Edit time:     88 min
 *
 */

package store

import (
	"fmt"
	"io"
	"sort"

	"github.com/fingon/go-logtrie/journal"
	"github.com/fingon/go-logtrie/mlog"
	"github.com/fingon/go-logtrie/patricia"
	"github.com/pkg/errors"
)

type cleanCandidate struct {
	file     uint64
	length   uint64
	expired  uint64
	liveness float64
}

// candidates returns the sealed files worth cleaning, the fully
// expired ones first and then the least used ones.
func (self *Store) candidates(meta *metadata) ([]cleanCandidate, error) {
	current := self.log.CurrentFile()
	var r []cleanCandidate
	for _, f := range self.log.Files() {
		if f == current {
			continue
		}
		n, err := self.log.FileLength(f)
		if err != nil {
			return nil, err
		}
		c := cleanCandidate{file: f, length: uint64(n), expired: meta.Expired[f]}
		if c.length > 0 && c.expired < c.length {
			c.liveness = float64(c.length-c.expired) / float64(c.length)
		}
		if c.liveness < self.config.MinUtilization {
			r = append(r, c)
		}
	}
	sort.SliceStable(r, func(i, j int) bool {
		return r[i].liveness < r[j].liveness
	})
	return r, nil
}

// reclaimFile makes the trees in tx stop referring to anything in
// file f. It returns the number of record groups that had to be
// rewritten.
func (self *Transaction) reclaimFile(f uint64) (int, error) {
	s := self.store
	log := s.log
	start, end := log.FileStart(f), log.FileStart(f+1)
	it := log.ContiguousIterator(start)
	rewritten := 0
	for it.Next() {
		rl := it.Loggable()
		if rl.Address >= end {
			break
		}
		ot := self.tree(rl.StructureId)
		if ot == nil {
			// deleted tree
			continue
		}
		if ot.mt.Reclaim(rl, it) {
			rewritten++
		}
		last := it.Loggable()
		if !patricia.IsRootType(last.Type) || last.StructureId != rl.StructureId {
			// the root of the save is in a removed file; the
			// rest of f belongs to the same save
			mlog.Printf2("store/clean", " no root for %x, reclaiming by range", rl.Address)
			if ot.mt.ReclaimRange(start, end) {
				rewritten++
			}
			break
		}
	}
	return rewritten, it.Err()
}

// Clean rewrites the live nodes of sealed log files whose share of
// live data is below Config.MinUtilization, and removes the
// files. It returns the number of files removed.
//
// Clean waits for the read transactions to finish before it removes
// files, so it must not be called while holding one.
func (self *Store) Clean() (int, error) {
	defer self.cleaning.Locked()()
	tx, err := self.Begin()
	if err != nil {
		return 0, err
	}
	cands, err := self.candidates(tx.meta)
	if err != nil {
		tx.Abort()
		return 0, err
	}
	if len(cands) == 0 {
		tx.Abort()
		return 0, nil
	}
	mlog.Printf2("store/clean", "Clean - %d candidates", len(cands))
	rewritten := 0
	for _, c := range cands {
		if c.expired >= c.length {
			continue
		}
		mlog.Printf2("store/clean", " reclaiming %d (%d/%d expired)", c.file, c.expired, c.length)
		n, err := tx.reclaimFile(c.file)
		if err != nil {
			tx.Abort()
			return 0, err
		}
		rewritten += n
	}
	err = tx.Commit()
	if err != nil {
		return 0, err
	}
	self.metrics.reclaims.Add(float64(rewritten))
	return self.removeFiles(cands)
}

func (self *Store) removeFiles(cands []cleanCandidate) (int, error) {
	defer self.files.Locked()()
	defer self.writer.Locked()()
	meta, err := self.committed()
	if err != nil {
		return 0, err
	}
	meta = meta.copy()
	removed := 0
	for _, c := range cands {
		err = self.log.RemoveFile(c.file)
		if err != nil {
			break
		}
		delete(meta.Expired, c.file)
		removed++
	}
	if removed > 0 {
		meta.Generation++
		err2 := self.writeMeta(meta)
		if err == nil {
			err = err2
		}
		self.metrics.filesCleaned.Add(float64(removed))
		self.metrics.files.Set(float64(len(self.log.Files())))
	}
	mlog.Printf2("store/clean", " removed %d files", removed)
	return removed, err
}

// Check verifies the structure of every committed store, and that
// every node they refer to is in a file that is still present.
func (self *Store) Check() error {
	return self.View(func(tx *ReadTransaction) error {
		for _, name := range tx.Names() {
			tm := tx.meta.Trees[name]
			t := self.tconfig.Load(tm.StructureId, journal.Address(tm.Root))
			err := t.Check()
			if err != nil {
				return errors.Wrapf(err, "store %q", name)
			}
			it := t.Addresses()
			for it.Next() {
				addr := it.Address()
				if !self.log.HasAddressRange(addr, addr) {
					return errors.Errorf("store %q: node %x in missing file %d",
						name, addr, self.log.FileOf(addr))
				}
			}
		}
		return nil
	})
}

// Dump writes the node structure of every committed store to w.
func (self *Store) Dump(w io.Writer) error {
	return self.View(func(tx *ReadTransaction) error {
		for _, name := range tx.Names() {
			tm := tx.meta.Trees[name]
			fmt.Fprintf(w, "%s (tree %d, root %x):\n", name, tm.StructureId, tm.Root)
			self.tconfig.Load(tm.StructureId, journal.Address(tm.Root)).Dump(w)
		}
		return nil
	})
}

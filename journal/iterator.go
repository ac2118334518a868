/*
 * Author: Markus Stenberg <fingon@iki.fi>
 *
 * Copyright (c) 2019 Markus Stenberg
 *
 * Created:       Tue Mar 12 15:02:40 2019 mstenber
 * Last modified: Wed Mar 13 11:10:03 2019 mstenber
 * Edit time:     27 min
 *
 */

package journal

import "github.com/pkg/errors"

// Iterator walks the records of the log in address order. File ends
// and removed files are skipped; iteration stops at the high
// address.
//
//   it := log.Iterator(addr)
//   for it.Next() {
//           l := it.Loggable()
//   }
//   err := it.Err()
type Iterator struct {
	log  *Log
	addr Address
	cur  Loggable
	err  error

	// contiguous iterators stop at removed files
	contiguous bool
}

func (self *Log) Iterator(addr Address) *Iterator {
	return &Iterator{log: self, addr: addr}
}

// ContiguousIterator is Iterator that ends at the first removed file
// instead of skipping it.
func (self *Log) ContiguousIterator(addr Address) *Iterator {
	return &Iterator{log: self, addr: addr, contiguous: true}
}

func (self *Iterator) Next() bool {
	if self.err != nil {
		return false
	}
	l := self.log
	defer l.lock.Locked()()
	high := l.fileStart(l.current) + Address(len(l.buf))
	for self.addr < high {
		n := l.fileOf(self.addr)
		if !l.hasFile(n) {
			if self.contiguous {
				return false
			}
			self.addr = l.fileStart(n + 1)
			continue
		}
		rec, eof, err := l.read(self.addr)
		if err != nil {
			self.err = err
			return false
		}
		if eof {
			self.addr = l.fileStart(n + 1)
			continue
		}
		self.cur = rec
		self.addr = rec.End()
		return true
	}
	return false
}

// Loggable returns the record Next moved to.
func (self *Iterator) Loggable() Loggable {
	return self.cur
}

// Address returns the address iteration continues from.
func (self *Iterator) Address() Address {
	return self.addr
}

func (self *Iterator) Err() error {
	return errors.Wrap(self.err, "journal iterator")
}

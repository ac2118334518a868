/*
 * Author: Markus Stenberg <fingon@iki.fi>
 *
 * Copyright (c) 2019 Markus Stenberg
 *
 * Created:       Tue Mar 12 10:45:12 2019 mstenber
 * Last modified: Wed Mar 13 14:21:50 2019 mstenber
 * Edit time:     196 min
 *
 */

// journal package implements the append-only log the tries are
// stored in. The address space is split into fixed size files; each
// file holds a sequence of checksummed records, and simply ends
// where the last record that fit ends.
//
// Only the current (last) file is ever written to. Sealed files are
// immutable until the cleaner removes them.
package journal

import (
	"context"
	"runtime"
	"sort"

	"github.com/bluele/gcache"
	"github.com/fingon/go-logtrie/mlog"
	"github.com/fingon/go-logtrie/storage"
	"github.com/fingon/go-logtrie/util"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

var (
	ErrNoSpace        = errors.New("journal: record does not fit the current file")
	ErrTooBig         = errors.New("journal: record does not fit in a file")
	ErrInvalidAddress = errors.New("journal: invalid address")
	ErrCorrupted      = errors.New("journal: corrupted file")
)

type Configuration struct {
	// FileSize is the size of the address range of single file.
	FileSize uint64

	// CacheSize is the number of sealed files kept in memory.
	CacheSize int

	// Verify makes Open check every record of every sealed file.
	Verify bool

	// Parallelism bounds the concurrent verification work.
	Parallelism int
}

const (
	DefaultFileSize  = 1 << 20
	DefaultCacheSize = 16
)

type Log struct {
	Configuration

	backend storage.Backend
	cache   gcache.Cache

	lock util.MutexLocked

	// files present in the log, current one included, sorted
	files []uint64

	current uint64
	buf     []byte
	dirty   bool
}

// Open loads the state of the log from backend. The last file is
// truncated at the first record that fails to decode, as it may
// have been only partially written.
func (self Configuration) Open(backend storage.Backend) (*Log, error) {
	if self.FileSize == 0 {
		self.FileSize = DefaultFileSize
	}
	if self.CacheSize == 0 {
		self.CacheSize = DefaultCacheSize
	}
	if self.Parallelism == 0 {
		self.Parallelism = runtime.NumCPU()
	}
	l := &Log{Configuration: self, backend: backend}
	l.cache = gcache.New(self.CacheSize).ARC().LoaderFunc(func(key interface{}) (interface{}, error) {
		return backend.GetFile(key.(uint64))
	}).Build()
	files, err := backend.ListFiles()
	if err != nil {
		return nil, errors.Wrap(err, "ListFiles")
	}
	if len(files) == 0 {
		l.files = []uint64{0}
		mlog.Printf2("journal/log", "Open - new log")
		return l, nil
	}
	l.files = files
	l.current = files[len(files)-1]
	data, err := backend.GetFile(l.current)
	if err != nil {
		return nil, errors.Wrapf(err, "GetFile %d", l.current)
	}
	valid := validPrefix(data)
	if valid != len(data) {
		mlog.Printf2("journal/log", " truncating file %d %d->%d", l.current, len(data), valid)
		l.dirty = true
	}
	l.buf = data[:valid:valid]
	if self.Verify {
		err = l.verify(files[:len(files)-1])
		if err != nil {
			return nil, err
		}
	}
	mlog.Printf2("journal/log", "Open - %d files, high %x", len(files), l.HighAddress())
	return l, nil
}

func (self *Log) verify(files []uint64) error {
	sem := semaphore.NewWeighted(int64(self.Parallelism))
	g, ctx := errgroup.WithContext(context.Background())
	for _, n := range files {
		n := n
		if err := sem.Acquire(ctx, 1); err != nil {
			break
		}
		g.Go(func() error {
			defer sem.Release(1)
			data, err := self.backend.GetFile(n)
			if err != nil {
				return errors.Wrapf(err, "GetFile %d", n)
			}
			if uint64(len(data)) > self.FileSize || validPrefix(data) != len(data) {
				return errors.Wrapf(ErrCorrupted, "file %d", n)
			}
			return nil
		})
	}
	return g.Wait()
}

func (self *Log) fileOf(addr Address) uint64 {
	return uint64(addr) / self.FileSize
}

func (self *Log) fileStart(n uint64) Address {
	return Address(n * self.FileSize)
}

func (self *Log) tryAppend(typ byte, sid uint64, data []byte) (Address, error) {
	size := recordSize(sid, len(data))
	if uint64(size) > self.FileSize {
		return NullAddress, errors.Wrapf(ErrTooBig, "%d bytes", size)
	}
	if uint64(len(self.buf)+size) > self.FileSize {
		return NullAddress, ErrNoSpace
	}
	addr := self.fileStart(self.current) + Address(len(self.buf))
	self.buf = appendRecord(self.buf, typ, sid, data)
	self.dirty = true
	return addr, nil
}

// TryWrite appends the record to the current file, or fails with
// ErrNoSpace if it does not fit there.
func (self *Log) TryWrite(typ byte, sid uint64, data []byte) (Address, error) {
	if typ == 0 {
		mlog.Panicf("journal: record type 0 is reserved")
	}
	defer self.lock.Locked()()
	return self.tryAppend(typ, sid, data)
}

// Write appends the record, sealing the current file first if it
// does not fit.
func (self *Log) Write(typ byte, sid uint64, data []byte) (Address, error) {
	if typ == 0 {
		mlog.Panicf("journal: record type 0 is reserved")
	}
	defer self.lock.Locked()()
	addr, err := self.tryAppend(typ, sid, data)
	if err != ErrNoSpace {
		return addr, err
	}
	err = self.seal()
	if err != nil {
		return NullAddress, err
	}
	return self.tryAppend(typ, sid, data)
}

func (self *Log) seal() error {
	mlog.Printf2("journal/log", "seal %d (%d b)", self.current, len(self.buf))
	err := self.backend.SetFile(self.current, self.buf)
	if err != nil {
		return errors.Wrapf(err, "SetFile %d", self.current)
	}
	self.cache.Set(self.current, self.buf)
	self.current++
	self.files = append(self.files, self.current)
	self.buf = nil
	self.dirty = false
	return nil
}

// Seal finishes the current file if it contains anything, so that
// subsequent writes go to a new file.
func (self *Log) Seal() error {
	defer self.lock.Locked()()
	if len(self.buf) == 0 {
		return nil
	}
	return self.seal()
}

// Flush persists the current file.
func (self *Log) Flush() error {
	defer self.lock.Locked()()
	if !self.dirty {
		return nil
	}
	mlog.Printf2("journal/log", "Flush %d (%d b)", self.current, len(self.buf))
	err := self.backend.SetFile(self.current, self.buf)
	if err != nil {
		return errors.Wrapf(err, "SetFile %d", self.current)
	}
	self.dirty = false
	return nil
}

func (self *Log) Close() error {
	return self.Flush()
}

func (self *Log) fileData(n uint64) ([]byte, error) {
	if n == self.current {
		return self.buf, nil
	}
	if !self.hasFile(n) {
		return nil, errors.Wrapf(ErrInvalidAddress, "no file %d", n)
	}
	v, err := self.cache.Get(n)
	if err != nil {
		return nil, errors.Wrapf(err, "file %d", n)
	}
	return v.([]byte), nil
}

func (self *Log) hasFile(n uint64) bool {
	i := sort.Search(len(self.files), func(i int) bool { return self.files[i] >= n })
	return i < len(self.files) && self.files[i] == n
}

// read returns the record at addr. eof is set if addr is at (or
// beyond) the end of the data of its file.
func (self *Log) read(addr Address) (l Loggable, eof bool, err error) {
	n := self.fileOf(addr)
	data, err := self.fileData(n)
	if err != nil {
		return
	}
	ofs := uint64(addr - self.fileStart(n))
	if ofs >= uint64(len(data)) {
		eof = true
		return
	}
	l, ok := decodeRecord(data[ofs:])
	if !ok {
		err = errors.Wrapf(ErrCorrupted, "record at %x", addr)
		return
	}
	l.Address = addr
	return
}

// Read returns the record at addr.
func (self *Log) Read(addr Address) (Loggable, error) {
	defer self.lock.Locked()()
	l, eof, err := self.read(addr)
	if err == nil && eof {
		err = errors.Wrapf(ErrInvalidAddress, "%x beyond file end", addr)
	}
	return l, err
}

// HighAddress is the address the next record would be written at,
// if it fits the current file.
func (self *Log) HighAddress() Address {
	defer self.lock.Locked()()
	return self.fileStart(self.current) + Address(len(self.buf))
}

// IsLastFileAddress returns true if addr is within the current file.
func (self *Log) IsLastFileAddress(addr Address) bool {
	defer self.lock.Locked()()
	return self.fileOf(addr) == self.current
}

// HasAddressRange returns true if every file covering [start, end]
// is still present in the log.
func (self *Log) HasAddressRange(start, end Address) bool {
	defer self.lock.Locked()()
	if start > end || end >= self.fileStart(self.current)+Address(len(self.buf)) {
		return false
	}
	for n := self.fileOf(start); n <= self.fileOf(end); n++ {
		if !self.hasFile(n) {
			return false
		}
	}
	return true
}

// Files returns the numbers of the files in the log, current one
// included.
func (self *Log) Files() []uint64 {
	defer self.lock.Locked()()
	r := make([]uint64, len(self.files))
	copy(r, self.files)
	return r
}

// CurrentFile returns the number of the file being written.
func (self *Log) CurrentFile() uint64 {
	defer self.lock.Locked()()
	return self.current
}

// FileOf returns the number of the file addr belongs to.
func (self *Log) FileOf(addr Address) uint64 {
	return self.fileOf(addr)
}

// FileStart returns the first address of the file n.
func (self *Log) FileStart(n uint64) Address {
	return self.fileStart(n)
}

// FileLength returns the number of bytes of data in the file n.
func (self *Log) FileLength(n uint64) (int, error) {
	defer self.lock.Locked()()
	data, err := self.fileData(n)
	return len(data), err
}

// RemoveFile removes sealed file n from the log.
func (self *Log) RemoveFile(n uint64) error {
	defer self.lock.Locked()()
	if n == self.current {
		return errors.Errorf("journal: cannot remove current file %d", n)
	}
	if !self.hasFile(n) {
		return errors.Wrapf(ErrInvalidAddress, "no file %d", n)
	}
	mlog.Printf2("journal/log", "RemoveFile %d", n)
	err := self.backend.DeleteFile(n)
	if err != nil {
		return errors.Wrapf(err, "DeleteFile %d", n)
	}
	self.cache.Remove(n)
	i := sort.Search(len(self.files), func(i int) bool { return self.files[i] >= n })
	self.files = append(self.files[:i], self.files[i+1:]...)
	return nil
}

// Truncate discards everything at or after addr. It is used to drop
// the records of a commit that did not finish.
func (self *Log) Truncate(addr Address) error {
	defer self.lock.Locked()()
	high := self.fileStart(self.current) + Address(len(self.buf))
	if addr == high {
		return nil
	}
	if addr > high {
		return errors.Wrapf(ErrInvalidAddress, "truncate %x beyond high %x", addr, high)
	}
	n := self.fileOf(addr)
	ofs := int(addr - self.fileStart(n))
	var data []byte
	if self.hasFile(n) {
		var err error
		data, err = self.fileData(n)
		if err != nil {
			return err
		}
	}
	if ofs > len(data) {
		return errors.Wrapf(ErrInvalidAddress, "truncate %x beyond file end", addr)
	}
	mlog.Printf2("journal/log", "Truncate %x (high %x)", addr, high)
	files := self.files[:0]
	for _, f := range self.files {
		if f < n {
			files = append(files, f)
			continue
		}
		if f == n {
			continue
		}
		err := self.backend.DeleteFile(f)
		if err != nil && errors.Cause(err) != storage.ErrNotFound {
			return errors.Wrapf(err, "DeleteFile %d", f)
		}
		self.cache.Remove(f)
	}
	self.files = append(files, n)
	self.cache.Remove(n)
	self.current = n
	self.buf = data[:ofs:ofs]
	self.dirty = true
	return nil
}

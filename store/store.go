/*
 * Author: Markus Stenberg <fingon@iki.fi>
 *
 * Copyright (c) 2019 Markus Stenberg
 *
 * Created:       Mon Mar 25 11:12:05 2019 mstenber
 * Last modified: Wed Mar 27 10:20:31 2019 mstenber
 * Edit time:     142 min
 *
 */

// store package ties the journal and the tries together: a Store is
// a set of named tries on one log, with single-writer transactions,
// committed roots kept in the backend metadata, and a cleaner that
// moves live nodes out of mostly expired log files.
package store

import (
	"github.com/fingon/go-logtrie/journal"
	"github.com/fingon/go-logtrie/mlog"
	"github.com/fingon/go-logtrie/patricia"
	"github.com/fingon/go-logtrie/storage"
	"github.com/fingon/go-logtrie/storage/factory"
	"github.com/fingon/go-logtrie/util"
	"github.com/pkg/errors"
)

var (
	ErrClosed       = errors.New("store: closed")
	ErrNoSuchStore  = errors.New("store: no such store")
	ErrDupsMismatch = errors.New("store: dups setting differs from existing store")
	ErrInvalidName  = errors.New("store: invalid store name")
	ErrTxDone       = errors.New("store: transaction already finished")
)

type Store struct {
	config  Config
	backend storage.Backend
	log     *journal.Log
	cache   *patricia.NodeCache
	tconfig patricia.Config

	// writer is held by the write transaction for its whole
	// lifetime.
	writer util.MutexLocked

	// files is read locked by read transactions; removing log
	// files requires the write lock. It is always taken before
	// writer.
	files util.RWMutexLocked

	cleaning util.MutexLocked

	// lock protects meta and closed
	lock   util.MutexLocked
	meta   *metadata
	closed bool

	readers util.AtomicInt
	metrics *storeMetrics
}

// Open opens (or creates) the store described by config.
func Open(config *Config) (*Store, error) {
	config = config.Init()
	mlog.Printf2("store/store", "Open %s %s", config.Backend, config.Directory)
	bc := storage.BackendConfiguration{Directory: config.Directory}
	if config.Codec.Password != "" || config.Codec.Compression != "" || config.Codec.Authenticate {
		c, err := factory.NewCodec(config.Codec)
		if err != nil {
			return nil, err
		}
		bc.Codec = c
	}
	backend, err := factory.NewWithConfig(config.Backend, bc)
	if err != nil {
		return nil, err
	}
	s, err := open(config, backend)
	if err != nil {
		backend.Close()
		return nil, err
	}
	return s, nil
}

func open(config *Config, backend storage.Backend) (*Store, error) {
	b, err := backend.GetName(metadataName)
	if err != nil {
		return nil, errors.Wrap(err, "GetName")
	}
	meta := newMetadata()
	if b != nil {
		_, err = meta.UnmarshalMsg(b)
		if err != nil {
			return nil, errors.Wrap(err, "metadata")
		}
	}
	// file boundaries are fixed when the log is created
	fileSize := config.FileSize
	if meta.FileSize != 0 && meta.FileSize != fileSize {
		mlog.Printf2("store/store", " using file size %d instead of %d", meta.FileSize, fileSize)
		fileSize = meta.FileSize
	}
	meta.FileSize = fileSize

	jc := journal.Configuration{FileSize: fileSize,
		CacheSize: config.FileCacheSize, Verify: config.Verify}
	log, err := jc.Open(backend)
	if err != nil {
		return nil, err
	}
	if b == nil {
		meta.High = uint64(log.HighAddress())
	}
	s := &Store{config: *config, backend: backend, log: log,
		cache: patricia.NewNodeCache(config.NodeCacheSize)}
	s.config.FileSize = fileSize
	s.tconfig = patricia.Config{Log: log, Cache: s.cache, WriteV1: config.WriteV1}
	s.metrics = newStoreMetrics(s)

	// records past the committed high address are from a commit
	// that did not finish
	err = log.Truncate(journal.Address(meta.High))
	if err != nil {
		return nil, err
	}
	err = log.Flush()
	if err != nil {
		return nil, err
	}

	// files may have been removed after the metadata was
	// written
	present := make(map[uint64]bool)
	for _, f := range log.Files() {
		present[f] = true
	}
	for f := range meta.Expired {
		if !present[f] {
			delete(meta.Expired, f)
		}
	}
	s.meta = meta
	s.metrics.files.Set(float64(len(present)))
	mlog.Printf2("store/store", " generation %d, %d trees, high %x",
		meta.Generation, len(meta.Trees), meta.High)
	return s, nil
}

func (self *Store) committed() (*metadata, error) {
	defer self.lock.Locked()()
	if self.closed {
		return nil, ErrClosed
	}
	return self.meta, nil
}

func (self *Store) setCommitted(meta *metadata) {
	defer self.lock.Locked()()
	self.meta = meta
}

// writeMeta persists meta. The log has to be flushed first.
func (self *Store) writeMeta(meta *metadata) error {
	b, err := meta.MarshalMsg(nil)
	if err != nil {
		return err
	}
	err = self.backend.SetName(metadataName, b)
	if err != nil {
		return errors.Wrap(err, "SetName")
	}
	self.setCommitted(meta)
	return nil
}

// Close waits for the current write transaction and the read
// transactions to finish, and closes the store.
func (self *Store) Close() error {
	defer self.files.Locked()()
	defer self.writer.Locked()()
	unlock := self.lock.Locked()
	if self.closed {
		unlock()
		return nil
	}
	self.closed = true
	unlock()
	mlog.Printf2("store/store", "Close")
	err := self.log.Close()
	err2 := self.backend.Close()
	if err != nil {
		return err
	}
	return err2
}

// Begin starts a write transaction; it blocks while another one is
// active.
func (self *Store) Begin() (*Transaction, error) {
	unlock := self.writer.Locked()
	meta, err := self.committed()
	if err != nil {
		unlock()
		return nil, err
	}
	tx := &Transaction{store: self, meta: meta.copy(),
		trees: make(map[string]*openTree), unlock: unlock}
	mlog.Printf2("store/store", "Begin generation %d", meta.Generation)
	return tx, nil
}

// BeginRead starts a read transaction on the latest committed
// state. It has to be closed, as log files are not removed while
// read transactions are open. A goroutine holding a write transaction
// must not start one, as Clean takes the locks in the other order.
func (self *Store) BeginRead() (*ReadTransaction, error) {
	unlock := self.files.RLocked()
	meta, err := self.committed()
	if err != nil {
		unlock()
		return nil, err
	}
	self.readers.Add(1)
	return &ReadTransaction{store: self, meta: meta, unlock: unlock}, nil
}

// Update runs cb in a write transaction, committing it if cb returns
// nil.
func (self *Store) Update(cb func(tx *Transaction) error) error {
	tx, err := self.Begin()
	if err != nil {
		return err
	}
	err = cb(tx)
	if err != nil {
		tx.Abort()
		return err
	}
	return tx.Commit()
}

// View runs cb in a read transaction.
func (self *Store) View(cb func(tx *ReadTransaction) error) error {
	tx, err := self.BeginRead()
	if err != nil {
		return err
	}
	defer tx.Close()
	return cb(tx)
}

// Names returns the names of the committed stores in sorted order.
func (self *Store) Names() []string {
	meta, err := self.committed()
	if err != nil {
		return nil
	}
	return meta.names()
}

// rollback drops whatever was written after addr.
func (self *Store) rollback(addr journal.Address) {
	err := self.log.Truncate(addr)
	if err != nil {
		mlog.Printf2("store/store", "rollback to %x failed: %v", addr, err)
	}
	self.cache.Purge()
}

type Stats struct {
	Generation  uint64
	Stores      int
	Files       int
	HighAddress uint64

	// Bytes is the amount of data in the log files.
	Bytes uint64

	ExpiredBytes  uint64
	ActiveReaders int
}

func (self *Store) Stats() (Stats, error) {
	meta, err := self.committed()
	if err != nil {
		return Stats{}, err
	}
	st := Stats{Generation: meta.Generation, Stores: len(meta.Trees),
		HighAddress: meta.High, ActiveReaders: self.readers.GetInt()}
	for _, f := range self.log.Files() {
		st.Files++
		n, err := self.log.FileLength(f)
		if err != nil {
			return st, err
		}
		st.Bytes += uint64(n)
	}
	for _, v := range meta.Expired {
		st.ExpiredBytes += v
	}
	return st, nil
}

/*
 * Author: Markus Stenberg <fingon@iki.fi>
 *
 * Copyright (c) 2017 Markus Stenberg
 *
 * Created:       Sat Dec 23 15:10:01 2017 mstenber
 * Last modified: Mon Mar 11 12:20:44 2019 mstenber
 * Edit time:     171 min
 *
 */

package badger

import (
	"encoding/binary"

	"github.com/dgraph-io/badger"
	"github.com/fingon/go-logtrie/mlog"
	"github.com/fingon/go-logtrie/storage"
	"github.com/fingon/go-logtrie/util"
	"github.com/pkg/errors"
)

// badgerBackend provides on-disk storage.
//
// - key prefix f + big-endian file number -> file content
// - key prefix n + name -> value
type badgerBackend struct {
	storage.DirectoryBackendBase
	db *badger.DB
}

var _ storage.Backend = &badgerBackend{}

var filePrefix = []byte("f")
var namePrefix = []byte("n")

func NewBadgerBackend() storage.Backend {
	return &badgerBackend{}
}

func (self *badgerBackend) Init(config storage.BackendConfiguration) error {
	err := (&self.DirectoryBackendBase).Init(config)
	if err != nil {
		return err
	}
	opts := badger.DefaultOptions
	opts.Dir = config.Directory
	opts.ValueDir = config.Directory
	db, err := badger.Open(opts)
	if err != nil {
		return errors.Wrap(err, "badger.Open")
	}
	self.db = db
	return nil
}

func (self *badgerBackend) Close() error {
	return self.db.Close()
}

func fileKey(n uint64) []byte {
	return util.ConcatBytes(filePrefix, util.Uint64Bytes(n))
}

func (self *badgerBackend) get(k []byte) (v []byte, err error) {
	err = self.db.View(func(txn *badger.Txn) error {
		i, err := txn.Get(k)
		if err == nil {
			v, err = i.ValueCopy(nil)
		}
		return err
	})
	return
}

func (self *badgerBackend) GetFile(n uint64) ([]byte, error) {
	v, err := self.get(fileKey(n))
	if err == badger.ErrKeyNotFound {
		return nil, errors.Wrapf(storage.ErrNotFound, "file %d", n)
	}
	return v, err
}

func (self *badgerBackend) ListFiles() (r []uint64, err error) {
	r = make([]uint64, 0)
	err = self.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Seek(filePrefix); it.ValidForPrefix(filePrefix); it.Next() {
			k := it.Item().Key()
			r = append(r, binary.BigEndian.Uint64(k[len(filePrefix):]))
		}
		return nil
	})
	return
}

func (self *badgerBackend) GetName(name string) ([]byte, error) {
	v, err := self.get(util.ConcatBytes(namePrefix, []byte(name)))
	if err == badger.ErrKeyNotFound {
		return nil, nil
	}
	return v, err
}

func (self *badgerBackend) set(k, v []byte) error {
	return self.db.Update(func(txn *badger.Txn) error {
		return txn.Set(k, v)
	})
}

func (self *badgerBackend) SetFile(n uint64, data []byte) error {
	mlog.Printf2("storage/badger/badger", "bad.SetFile %d (%d b)", n, len(data))
	return self.set(fileKey(n), util.CopyBytes(data))
}

func (self *badgerBackend) DeleteFile(n uint64) error {
	mlog.Printf2("storage/badger/badger", "bad.DeleteFile %d", n)
	k := fileKey(n)
	return self.db.Update(func(txn *badger.Txn) error {
		_, err := txn.Get(k)
		if err == badger.ErrKeyNotFound {
			return errors.Wrapf(storage.ErrNotFound, "file %d", n)
		}
		if err != nil {
			return err
		}
		return txn.Delete(k)
	})
}

func (self *badgerBackend) SetName(name string, value []byte) error {
	mlog.Printf2("storage/badger/badger", "bad.SetName %s (%d b)", name, len(value))
	k := util.ConcatBytes(namePrefix, []byte(name))
	if value == nil {
		return self.db.Update(func(txn *badger.Txn) error {
			return txn.Delete(k)
		})
	}
	return self.set(k, util.CopyBytes(value))
}

/*
 * Author: Markus Stenberg <fingon@iki.fi>
 *
 * Copyright (c) 2018 Markus Stenberg
 *
 * Created:       Wed Jan  3 22:49:15 2018 mstenber
 * Last modified: Mon Mar 11 11:51:08 2019 mstenber
 * Edit time:     52 min
 *
 */

package bolt

import (
	"encoding/binary"
	"path/filepath"

	bbolt "github.com/coreos/bbolt"
	"github.com/pkg/errors"

	"github.com/fingon/go-logtrie/mlog"
	"github.com/fingon/go-logtrie/storage"
	"github.com/fingon/go-logtrie/util"
)

var filesKey = []byte("files")
var namesKey = []byte("names")

// boltBackend provides on-disk storage in single bbolt database.
//
// - files bucket: big-endian file number -> file content
// - names bucket: name -> value
type boltBackend struct {
	storage.DirectoryBackendBase

	db *bbolt.DB
}

var _ storage.Backend = &boltBackend{}

func NewBoltBackend() storage.Backend {
	self := &boltBackend{}
	return self
}

func (self *boltBackend) Init(config storage.BackendConfiguration) error {
	err := (&self.DirectoryBackendBase).Init(config)
	if err != nil {
		return err
	}
	db, err := bbolt.Open(filepath.Join(config.Directory, "bbolt.db"), 0600, nil)
	if err != nil {
		return errors.Wrap(err, "bbolt.Open")
	}
	self.db = db
	return db.Update(func(tx *bbolt.Tx) error {
		for _, k := range [][]byte{filesKey, namesKey} {
			_, err := tx.CreateBucketIfNotExists(k)
			if err != nil {
				return err
			}
		}
		return nil
	})
}

func (self *boltBackend) Close() error {
	return self.db.Close()
}

func fileKey(n uint64) []byte {
	return util.Uint64Bytes(n)
}

func (self *boltBackend) GetFile(n uint64) (v []byte, err error) {
	err = self.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(filesKey).Get(fileKey(n))
		if b == nil {
			return errors.Wrapf(storage.ErrNotFound, "file %d", n)
		}
		// bbolt memory is valid only within the transaction
		v = util.CopyBytes(b)
		return nil
	})
	return
}

func (self *boltBackend) ListFiles() (r []uint64, err error) {
	r = make([]uint64, 0)
	err = self.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket(filesKey).Cursor()
		for k, _ := c.First(); k != nil; k, _ = c.Next() {
			r = append(r, binary.BigEndian.Uint64(k))
		}
		return nil
	})
	return
}

func (self *boltBackend) GetName(name string) (v []byte, err error) {
	err = self.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(namesKey).Get([]byte(name))
		if b != nil {
			v = util.CopyBytes(b)
		}
		return nil
	})
	return
}

func (self *boltBackend) SetFile(n uint64, data []byte) error {
	mlog.Printf2("storage/bolt/bolt", "bbolt.SetFile %d (%d b)", n, len(data))
	return self.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(filesKey).Put(fileKey(n), data)
	})
}

func (self *boltBackend) DeleteFile(n uint64) error {
	mlog.Printf2("storage/bolt/bolt", "bbolt.DeleteFile %d", n)
	return self.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(filesKey)
		k := fileKey(n)
		if b.Get(k) == nil {
			return errors.Wrapf(storage.ErrNotFound, "file %d", n)
		}
		return b.Delete(k)
	})
}

func (self *boltBackend) SetName(name string, value []byte) error {
	mlog.Printf2("storage/bolt/bolt", "bbolt.SetName %s (%d b)", name, len(value))
	return self.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(namesKey)
		if value == nil {
			return b.Delete([]byte(name))
		}
		return b.Put([]byte(name), value)
	})
}

/*
 * Author: Markus Stenberg <fingon@iki.fi>
 *
 * Copyright (c) 2017 Markus Stenberg
 *
 * Created:       Sun Dec 17 22:20:08 2017 mstenber
 * Last modified: Mon Mar 11 11:02:55 2019 mstenber
 * Edit time:     81 min
 *
 */

package inmemory

import (
	"sort"

	"github.com/fingon/go-logtrie/mlog"
	"github.com/fingon/go-logtrie/storage"
	"github.com/fingon/go-logtrie/util"
	"github.com/pkg/errors"
)

// inMemoryBackend provides In-memory storage; data is always
// assumed to be available and is just stored in maps. Everything
// is copied on the way in and out, so callers may reuse their
// buffers.
type inMemoryBackend struct {
	files map[uint64][]byte
	names map[string][]byte
	used  uint64
	lock  util.MutexLocked
}

var _ storage.Backend = &inMemoryBackend{}

func NewInMemoryBackend() storage.Backend {
	self := &inMemoryBackend{}
	self.files = make(map[uint64][]byte)
	self.names = make(map[string][]byte)
	return self
}

func (self *inMemoryBackend) Init(config storage.BackendConfiguration) error {
	return nil
}

func (self *inMemoryBackend) Close() error {
	return nil
}

func (self *inMemoryBackend) GetFile(n uint64) ([]byte, error) {
	defer self.lock.Locked()()
	data, ok := self.files[n]
	if !ok {
		return nil, errors.Wrapf(storage.ErrNotFound, "file %d", n)
	}
	return util.CopyBytes(data), nil
}

func (self *inMemoryBackend) ListFiles() ([]uint64, error) {
	defer self.lock.Locked()()
	r := make([]uint64, 0, len(self.files))
	for k := range self.files {
		r = append(r, k)
	}
	sort.Slice(r, func(i, j int) bool { return r[i] < r[j] })
	return r, nil
}

func (self *inMemoryBackend) GetName(name string) ([]byte, error) {
	defer self.lock.Locked()()
	v, ok := self.names[name]
	if !ok {
		return nil, nil
	}
	return util.CopyBytes(v), nil
}

func (self *inMemoryBackend) GetBytesAvailable() uint64 {
	return 0
}

func (self *inMemoryBackend) GetBytesUsed() uint64 {
	defer self.lock.Locked()()
	return self.used
}

func (self *inMemoryBackend) SetFile(n uint64, data []byte) error {
	defer self.lock.Locked()()
	mlog.Printf2("storage/inmemory/inmemory", "im.SetFile %d (%d b)", n, len(data))
	self.used -= uint64(len(self.files[n]))
	self.files[n] = util.CopyBytes(data)
	self.used += uint64(len(data))
	return nil
}

func (self *inMemoryBackend) DeleteFile(n uint64) error {
	defer self.lock.Locked()()
	mlog.Printf2("storage/inmemory/inmemory", "im.DeleteFile %d", n)
	data, ok := self.files[n]
	if !ok {
		return errors.Wrapf(storage.ErrNotFound, "file %d", n)
	}
	self.used -= uint64(len(data))
	delete(self.files, n)
	return nil
}

func (self *inMemoryBackend) SetName(name string, value []byte) error {
	defer self.lock.Locked()()
	if value == nil {
		delete(self.names, name)
		return nil
	}
	self.names[name] = util.CopyBytes(value)
	return nil
}

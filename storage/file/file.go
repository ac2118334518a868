/*
 * Author: Markus Stenberg <fingon@iki.fi>
 *
 * Copyright (c) 2018 Markus Stenberg
 *
 * Created:       Wed Jan  3 15:44:41 2018 mstenber
 * Last modified: Mon Mar 11 11:30:20 2019 mstenber
 * Edit time:     104 min
 *
 */

package file

import (
	"fmt"
	"io/ioutil"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/fingon/go-logtrie/mlog"
	"github.com/fingon/go-logtrie/storage"
	"github.com/pkg/errors"
)

// fileBackend stores the log files and names in a directory
// hierarchy.
//
// Name encoding:
//
// - names/ directory has files with hex encoded name, containing the
// raw value.
//
// File encoding:
//
// - files/ directory contains the log files, with the file number as
// 16 hex digits followed by .log suffix. Files are written to a
// temporary name first and then renamed, so a crash never leaves a
// half-written file behind.

const fileSuffix = ".log"

type fileBackend struct {
	storage.DirectoryBackendBase
}

var _ storage.Backend = &fileBackend{}

func NewFileBackend() storage.Backend {
	return &fileBackend{}
}

func (self *fileBackend) Init(config storage.BackendConfiguration) error {
	err := (&self.DirectoryBackendBase).Init(config)
	if err != nil {
		return err
	}
	for _, sub := range []string{"files", "names"} {
		err = os.MkdirAll(filepath.Join(self.Directory, sub), 0700)
		if err != nil {
			return errors.Wrapf(err, "mkdir %s", sub)
		}
	}
	return nil
}

func (self *fileBackend) Close() error {
	return nil
}

func (self *fileBackend) filePath(n uint64) string {
	return filepath.Join(self.Directory, "files", fmt.Sprintf("%016x%s", n, fileSuffix))
}

func (self *fileBackend) namePath(name string) string {
	return filepath.Join(self.Directory, "names", fmt.Sprintf("%x", name))
}

func writeAtomic(path string, data []byte) error {
	tmp := path + ".tmp"
	err := ioutil.WriteFile(tmp, data, 0600)
	if err != nil {
		return errors.Wrapf(err, "write %s", tmp)
	}
	return errors.Wrapf(os.Rename(tmp, path), "rename %s", tmp)
}

func (self *fileBackend) GetFile(n uint64) ([]byte, error) {
	b, err := ioutil.ReadFile(self.filePath(n))
	if os.IsNotExist(err) {
		return nil, errors.Wrapf(storage.ErrNotFound, "file %d", n)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "read file %d", n)
	}
	return b, nil
}

func (self *fileBackend) ListFiles() ([]uint64, error) {
	fis, err := ioutil.ReadDir(filepath.Join(self.Directory, "files"))
	if err != nil {
		return nil, errors.Wrap(err, "ReadDir")
	}
	r := make([]uint64, 0, len(fis))
	for _, v := range fis {
		name := v.Name()
		if !strings.HasSuffix(name, fileSuffix) {
			mlog.Printf2("storage/file/file", " skipping %v", name)
			continue
		}
		n, err := strconv.ParseUint(strings.TrimSuffix(name, fileSuffix), 16, 64)
		if err != nil {
			continue
		}
		r = append(r, n)
	}
	sort.Slice(r, func(i, j int) bool { return r[i] < r[j] })
	return r, nil
}

func (self *fileBackend) GetName(name string) ([]byte, error) {
	mlog.Printf2("storage/file/file", "fb.GetName %v", name)
	b, err := ioutil.ReadFile(self.namePath(name))
	if os.IsNotExist(err) {
		mlog.Printf2("storage/file/file", " nope")
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "read name %s", name)
	}
	return b, nil
}

func (self *fileBackend) SetFile(n uint64, data []byte) error {
	path := self.filePath(n)
	mlog.Printf2("storage/file/file", "fb.SetFile %d to %v (%d b)", n, path, len(data))
	return writeAtomic(path, data)
}

func (self *fileBackend) DeleteFile(n uint64) error {
	mlog.Printf2("storage/file/file", "fb.DeleteFile %d", n)
	err := os.Remove(self.filePath(n))
	if os.IsNotExist(err) {
		return errors.Wrapf(storage.ErrNotFound, "file %d", n)
	}
	return errors.Wrapf(err, "remove file %d", n)
}

func (self *fileBackend) SetName(name string, value []byte) error {
	mlog.Printf2("storage/file/file", "fb.SetName %v (%d b)", name, len(value))
	path := self.namePath(name)
	if value == nil {
		err := os.Remove(path)
		if os.IsNotExist(err) {
			return nil
		}
		return errors.Wrapf(err, "remove name %s", name)
	}
	return writeAtomic(path, value)
}

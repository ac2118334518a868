/*
 * Author: Markus Stenberg <fingon@iki.fi>
 *
 * Copyright (c) 2018 Markus Stenberg
 *
 * Created:       Wed Jan  3 15:55:15 2018 mstenber
 * Last modified: Mon Mar 11 10:20:02 2019 mstenber
 * Edit time:     37 min
 *
 */

package storage

import (
	"os"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/fingon/go-logtrie/mlog"
	"github.com/pkg/errors"
)

type delayedUInt64ValueCallback func() uint64

type delayedUInt64Value struct {
	interval   time.Duration
	value      uint64
	valueTime  time.Time
	valueMutex sync.Mutex
	going      bool
	callback   delayedUInt64ValueCallback
}

func (self *delayedUInt64Value) Value() uint64 {
	self.valueMutex.Lock()
	defer self.valueMutex.Unlock()
	fun := func() {
		// Calculate value without mutex
		value := self.callback()

		self.valueMutex.Lock()
		defer self.valueMutex.Unlock()

		self.value = value
		self.valueTime = time.Now()
		self.going = false
	}
	if self.going {
		return self.value
	}
	if self.valueTime.IsZero() {
		// First call is synchronous; otherwise the very first
		// answer would be always zero.
		self.value = self.callback()
		self.valueTime = time.Now()
		return self.value
	}
	if self.valueTime.Add(self.interval).After(time.Now()) {
		return self.value
	}
	self.going = true
	go fun()
	return self.value
}

// DirectoryBackendBase is embedded by backends that keep their state
// within a directory. It provides the directory creation and the
// (cached) disk usage statistics.
type DirectoryBackendBase struct {
	BackendConfiguration

	// ValueUpdateInterval describes how often cached values (e.g.
	// statfs stuff) are updated _in background_.
	ValueUpdateInterval time.Duration

	available, used delayedUInt64Value
}

func (self *DirectoryBackendBase) Init(config BackendConfiguration) error {
	self.BackendConfiguration = config
	dir := config.Directory
	if dir == "" {
		return errors.New("storage: directory not set")
	}
	if err := os.MkdirAll(dir, 0700); err != nil {
		return errors.Wrapf(err, "mkdir %s", dir)
	}
	minimumInterval := 5 * time.Second
	if self.ValueUpdateInterval < minimumInterval {
		self.ValueUpdateInterval = minimumInterval
	}
	self.available = delayedUInt64Value{interval: self.ValueUpdateInterval,
		callback: func() uint64 { return calculateAvailable(dir) }}
	self.used = delayedUInt64Value{interval: self.ValueUpdateInterval,
		callback: func() uint64 { return calculateUsed(dir) }}
	return nil
}

func calculateAvailable(dir string) uint64 {
	var st syscall.Statfs_t
	err := syscall.Statfs(dir, &st)
	if err != nil {
		return 0
	}
	r := uint64(st.Bsize) * st.Bfree
	mlog.Printf2("storage/directory", "ba.GetBytesAvailable %v (%v * %v)", r, st.Bsize, st.Bfree)
	return r
}

func calculateUsed(dir string) (sum uint64) {
	filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err == nil && !info.IsDir() {
			sum += uint64(info.Size())
		}
		return nil
	})
	return sum
}

func (self *DirectoryBackendBase) GetBytesAvailable() uint64 {
	return self.available.Value()
}

func (self *DirectoryBackendBase) GetBytesUsed() uint64 {
	return self.used.Value()
}

/*
 * Author: Markus Stenberg <fingon@iki.fi>
 *
 * Copyright (c) 2018 Markus Stenberg
 *
 * Created:       Sat Jan  6 00:08:05 2018 mstenber
 * Last modified: Mon Mar 11 10:31:40 2019 mstenber
 * Edit time:     10 min
 *
 */

package storage

import "github.com/fingon/go-logtrie/mlog"

// proxyBackend passes everything through to Backend; it is embedded
// by the backends that only want to override some of the calls.
type proxyBackend struct {
	BackendConfiguration
	Backend Backend
}

var _ Backend = &proxyBackend{}

// Init makes the instance actually useful
func (self *proxyBackend) Init(config BackendConfiguration) error {
	self.BackendConfiguration = config
	return self.Backend.Init(config)
}

func (self *proxyBackend) Close() error {
	mlog.Printf2("storage/proxybackend", "proxying backend Close()")
	return self.Backend.Close()
}

func (self *proxyBackend) GetFile(n uint64) ([]byte, error) {
	return self.Backend.GetFile(n)
}

func (self *proxyBackend) ListFiles() ([]uint64, error) {
	return self.Backend.ListFiles()
}

func (self *proxyBackend) GetName(name string) ([]byte, error) {
	return self.Backend.GetName(name)
}

func (self *proxyBackend) GetBytesAvailable() uint64 {
	return self.Backend.GetBytesAvailable()
}

func (self *proxyBackend) GetBytesUsed() uint64 {
	return self.Backend.GetBytesUsed()
}

func (self *proxyBackend) SetFile(n uint64, data []byte) error {
	return self.Backend.SetFile(n, data)
}

func (self *proxyBackend) DeleteFile(n uint64) error {
	return self.Backend.DeleteFile(n)
}

func (self *proxyBackend) SetName(name string, value []byte) error {
	return self.Backend.SetName(name, value)
}

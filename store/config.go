/*
 * Author: Markus Stenberg <fingon@iki.fi>
 *
 * Copyright (c) 2019 Markus Stenberg
 *
 * Created:       Mon Mar 25 09:20:14 2019 mstenber
 * Last modified: Tue Mar 26 13:01:50 2019 mstenber
 * Edit time:     26 min
 *
 */

package store

import (
	"io/ioutil"

	"github.com/fingon/go-logtrie/journal"
	"github.com/fingon/go-logtrie/storage/factory"
	"github.com/pkg/errors"
	"github.com/ugorji/go/codec"
)

type Config struct {
	// Directory is where the backend keeps its data (ignored by
	// the inmemory backend).
	Directory string `codec:"directory"`

	// Backend is one of factory.List().
	Backend string `codec:"backend"`

	Codec factory.CodecConfiguration `codec:"codec"`

	// FileSize is the size of a single log file.
	FileSize uint64 `codec:"fileSize"`

	FileCacheSize int `codec:"fileCacheSize"`
	NodeCacheSize int `codec:"nodeCacheSize"`

	// Verify makes Open check every log record.
	Verify bool `codec:"verify"`

	// MinUtilization is the fraction of live data below which
	// Clean rewrites a file.
	MinUtilization float64 `codec:"minUtilization"`

	// WriteV1 selects the older node format.
	WriteV1 bool `codec:"writeV1"`
}

const (
	DefaultBackend        = "bolt"
	DefaultNodeCacheSize  = 10000
	DefaultMinUtilization = 0.5
)

// Init fills in the defaults for unset fields.
func (self Config) Init() *Config {
	if self.Backend == "" {
		self.Backend = DefaultBackend
	}
	if self.FileSize == 0 {
		self.FileSize = journal.DefaultFileSize
	}
	if self.FileCacheSize == 0 {
		self.FileCacheSize = journal.DefaultCacheSize
	}
	if self.NodeCacheSize == 0 {
		self.NodeCacheSize = DefaultNodeCacheSize
	}
	if self.MinUtilization == 0 {
		self.MinUtilization = DefaultMinUtilization
	}
	return &self
}

// LoadConfig reads JSON configuration from path. Fields missing from
// the file keep their values in base.
func LoadConfig(path string, base Config) (*Config, error) {
	b, err := ioutil.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "LoadConfig")
	}
	var jh codec.JsonHandle
	err = codec.NewDecoderBytes(b, &jh).Decode(&base)
	if err != nil {
		return nil, errors.Wrapf(err, "decode %s", path)
	}
	return base.Init(), nil
}

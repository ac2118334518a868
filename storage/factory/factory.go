/*
 * Author: Markus Stenberg <fingon@iki.fi>
 *
 * Copyright (c) 2018 Markus Stenberg
 *
 * Created:       Fri Jan  5 12:22:52 2018 mstenber
 * Last modified: Mon Mar 11 12:48:31 2019 mstenber
 * Edit time:     49 min
 *
 */

package factory

import (
	"sort"

	"github.com/fingon/go-logtrie/codec"
	"github.com/fingon/go-logtrie/mlog"
	"github.com/fingon/go-logtrie/storage"
	"github.com/fingon/go-logtrie/storage/badger"
	"github.com/fingon/go-logtrie/storage/bolt"
	"github.com/fingon/go-logtrie/storage/file"
	"github.com/fingon/go-logtrie/storage/inmemory"
	"github.com/pkg/errors"
)

type factoryCallback func() storage.Backend

var backendFactories = map[string]factoryCallback{
	"inmemory": func() storage.Backend {
		return inmemory.NewInMemoryBackend()
	},
	"badger": func() storage.Backend {
		return badger.NewBadgerBackend()
	},
	"bolt": func() storage.Backend {
		return bolt.NewBoltBackend()
	},
	"file": func() storage.Backend {
		return file.NewFileBackend()
	}}

var ErrUnknownBackend = errors.New("unknown backend")

// List returns the backend names in sorted order.
func List() []string {
	keys := make([]string, 0, len(backendFactories))
	for k := range backendFactories {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func New(name, dir string) (storage.Backend, error) {
	var config storage.BackendConfiguration
	config.Directory = dir
	return NewWithConfig(name, config)
}

// NewWithConfig creates and initializes the named backend. If
// config.Codec is set, the result is wrapped so that everything
// passes through it.
func NewWithConfig(name string, config storage.BackendConfiguration) (storage.Backend, error) {
	mlog.Printf2("storage/factory/factory", "f.NewWithConfig %v %v", name, config.Directory)
	cb, ok := backendFactories[name]
	if !ok {
		return nil, errors.Wrapf(ErrUnknownBackend, "%q", name)
	}
	be := cb()
	err := be.Init(config)
	if err != nil {
		return nil, errors.Wrapf(err, "init %s", name)
	}
	if config.Codec != nil {
		be = storage.NewCodecBackend(be, config.Codec)
	}
	return be, nil
}

type CodecConfiguration struct {
	Password, Salt string
	Iterations     int

	// Compression is one of codec.ParseCompressionType names.
	Compression string

	// Authenticate adds CMAC to unencrypted data. Encrypted data
	// is always authenticated.
	Authenticate bool
}

// NewCodec produces the codec chain described by config:
// encryption (or authentication) first, compression second, in
// decoding order.
func NewCodec(config CodecConfiguration) (codec.Codec, error) {
	mlog.Printf2("storage/factory/factory", "f.NewCodec")
	iterations := config.Iterations
	if iterations == 0 {
		iterations = 12345
	}
	salt := config.Salt
	if salt == "" {
		salt = "asdf"
	}
	ct, err := codec.ParseCompressionType(config.Compression)
	if err != nil {
		return nil, err
	}
	codecs := []codec.Codec{}
	if config.Password != "" {
		mlog.Printf2("storage/factory/factory", " with encryption")
		codecs = append(codecs, codec.EncryptingCodec{}.Init([]byte(config.Password), []byte(salt), iterations))
	} else if config.Authenticate {
		mlog.Printf2("storage/factory/factory", " with authentication")
		codecs = append(codecs, codec.AuthenticatingCodec{}.Init([]byte(salt), []byte(salt), iterations))
	}
	if ct != codec.CompressionType_PLAIN {
		mlog.Printf2("storage/factory/factory", " with compression %v", ct)
		codecs = append(codecs, codec.CompressingCodec{}.Init(ct))
	}
	return codec.CodecChain{}.Init(codecs...), nil
}

/*
 * Author: Markus Stenberg <fingon@iki.fi>
 *
 * Copyright (c) 2018 Markus Stenberg
 *
 * Created:       Sat Jan  6 00:13:13 2018 mstenber
 * Last modified: Mon Mar 11 10:44:12 2019 mstenber
 * Edit time:     21 min
 *
 */

package storage

import (
	"github.com/fingon/go-logtrie/codec"
	"github.com/fingon/go-logtrie/mlog"
	"github.com/fingon/go-logtrie/util"
	"github.com/pkg/errors"
)

// codecBackend applies codec to file and name content. File number
// (or the name) is used as the additional data, so a file moved to
// a different number fails to decode.
type codecBackend struct {
	proxyBackend
	Codec codec.Codec
}

var _ Backend = &codecBackend{}

// NewCodecBackend wraps backend so that everything stored in it
// passes through c.
func NewCodecBackend(backend Backend, c codec.Codec) Backend {
	self := &codecBackend{Codec: c}
	self.Backend = backend
	return self
}

func (self *codecBackend) GetFile(n uint64) ([]byte, error) {
	data, err := self.Backend.GetFile(n)
	if err != nil {
		return nil, err
	}
	b, err := self.Codec.DecodeBytes(data, util.Uint64Bytes(n))
	if err != nil {
		return nil, errors.Wrapf(err, "decoding file %d", n)
	}
	return b, nil
}

func (self *codecBackend) SetFile(n uint64, data []byte) error {
	b, err := self.Codec.EncodeBytes(data, util.Uint64Bytes(n))
	if err != nil {
		return errors.Wrapf(err, "encoding file %d", n)
	}
	mlog.Printf2("storage/codecbackend", "cb.SetFile %d: %d -> %d b", n, len(data), len(b))
	return self.Backend.SetFile(n, b)
}

func (self *codecBackend) GetName(name string) ([]byte, error) {
	data, err := self.Backend.GetName(name)
	if err != nil || data == nil {
		return nil, err
	}
	b, err := self.Codec.DecodeBytes(data, []byte(name))
	if err != nil {
		return nil, errors.Wrapf(err, "decoding name %s", name)
	}
	return b, nil
}

func (self *codecBackend) SetName(name string, value []byte) error {
	if value == nil {
		return self.Backend.SetName(name, nil)
	}
	b, err := self.Codec.EncodeBytes(value, []byte(name))
	if err != nil {
		return errors.Wrapf(err, "encoding name %s", name)
	}
	return self.Backend.SetName(name, b)
}

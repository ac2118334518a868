/*
 * Author: Markus Stenberg <fingon@iki.fi>
 *
 * Copyright (c) 2018 Markus Stenberg
 *
 * Created:       Fri Jan  5 16:28:57 2018 mstenber
 * Last modified: Mon Mar 11 13:15:09 2019 mstenber
 * Edit time:     38 min
 *
 */

package factory

import (
	"fmt"
	"io/ioutil"
	"os"
	"testing"

	"github.com/fingon/go-logtrie/storage"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
	"github.com/stvp/assert"
)

func TestList(t *testing.T) {
	t.Parallel()
	assert.Equal(t, len(List()), len(backendFactories))
	assert.Equal(t, List()[0], "badger")
}

func TestUnknown(t *testing.T) {
	t.Parallel()
	_, err := New("nope", "")
	assert.Equal(t, errors.Cause(err), ErrUnknownBackend)
}

func ProdBackend(t *testing.T, factory func() storage.Backend) {
	be := factory()

	l, err := be.ListFiles()
	require.NoError(t, err)
	require.Empty(t, l)

	_, err = be.GetFile(3)
	require.Equal(t, storage.ErrNotFound, errors.Cause(err))

	require.NoError(t, be.SetFile(3, []byte("three")))
	require.NoError(t, be.SetFile(1, []byte("one")))
	require.NoError(t, be.SetFile(256, []byte("big")))

	v, err := be.GetFile(3)
	require.NoError(t, err)
	require.Equal(t, "three", string(v))

	// Overwrite is fine
	require.NoError(t, be.SetFile(3, []byte("three-and-more")))
	v, err = be.GetFile(3)
	require.NoError(t, err)
	require.Equal(t, "three-and-more", string(v))

	l, err = be.ListFiles()
	require.NoError(t, err)
	require.Equal(t, []uint64{1, 3, 256}, l)

	require.NoError(t, be.DeleteFile(1))
	err = be.DeleteFile(1)
	require.Equal(t, storage.ErrNotFound, errors.Cause(err))
	l, err = be.ListFiles()
	require.NoError(t, err)
	require.Equal(t, []uint64{3, 256}, l)

	v, err = be.GetName("meta")
	require.NoError(t, err)
	require.Nil(t, v)

	require.NoError(t, be.SetName("meta", []byte("data")))
	v, err = be.GetName("meta")
	require.NoError(t, err)
	require.Equal(t, "data", string(v))

	require.NoError(t, be.SetName("meta", nil))
	v, err = be.GetName("meta")
	require.NoError(t, err)
	require.Nil(t, v)

	require.NoError(t, be.Close())
}

func TestBackends(t *testing.T) {
	t.Parallel()
	codec, err := NewCodec(CodecConfiguration{Password: "pw", Compression: "lz4"})
	require.NoError(t, err)
	for _, name := range List() {
		for _, withCodec := range []bool{false, true} {
			name := name
			withCodec := withCodec
			t.Run(fmt.Sprintf("%s-%v", name, withCodec), func(t *testing.T) {
				dir, err := ioutil.TempDir("", "logtrie-storage")
				require.NoError(t, err)
				defer os.RemoveAll(dir)
				ProdBackend(t, func() storage.Backend {
					config := storage.BackendConfiguration{Directory: dir}
					if withCodec {
						config.Codec = codec
					}
					be, err := NewWithConfig(name, config)
					require.NoError(t, err)
					return be
				})
			})
		}
	}
}

func TestPersistence(t *testing.T) {
	t.Parallel()
	codec, err := NewCodec(CodecConfiguration{Authenticate: true, Compression: "zstd"})
	require.NoError(t, err)
	for _, name := range List() {
		if name == "inmemory" {
			continue
		}
		dir, err := ioutil.TempDir("", "logtrie-storage")
		require.NoError(t, err)
		defer os.RemoveAll(dir)
		config := storage.BackendConfiguration{Directory: dir, Codec: codec}
		be, err := NewWithConfig(name, config)
		require.NoError(t, err)
		require.NoError(t, be.SetFile(7, []byte("seven")))
		require.NoError(t, be.SetName("meta", []byte("m")))
		require.NoError(t, be.Close())

		be, err = NewWithConfig(name, config)
		require.NoError(t, err)
		v, err := be.GetFile(7)
		require.NoError(t, err)
		require.Equal(t, "seven", string(v))
		v, err = be.GetName("meta")
		require.NoError(t, err)
		require.Equal(t, "m", string(v))
		require.True(t, be.GetBytesUsed() > 0, name)
		require.NoError(t, be.Close())
	}
}

func TestCodecMismatch(t *testing.T) {
	t.Parallel()
	c1, err := NewCodec(CodecConfiguration{Password: "pw1"})
	require.NoError(t, err)
	c2, err := NewCodec(CodecConfiguration{Password: "pw2"})
	require.NoError(t, err)
	dir, err := ioutil.TempDir("", "logtrie-storage")
	require.NoError(t, err)
	defer os.RemoveAll(dir)

	be, err := NewWithConfig("file", storage.BackendConfiguration{Directory: dir, Codec: c1})
	require.NoError(t, err)
	require.NoError(t, be.SetFile(1, []byte("secret")))
	be.Close()

	be, err = NewWithConfig("file", storage.BackendConfiguration{Directory: dir, Codec: c2})
	require.NoError(t, err)
	_, err = be.GetFile(1)
	require.Error(t, err)
	be.Close()
}

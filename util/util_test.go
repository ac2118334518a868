/*
 * Author: Markus Stenberg <fingon@iki.fi>
 *
 * Copyright (c) 2017 Markus Stenberg
 *
 * Created:       Fri Dec 29 09:04:44 2017 mstenber
 * Last modified: Mon Apr  9 14:22:10 2018 mstenber
 * Edit time:     4 min
 *
 */

package util

import (
	"testing"

	"github.com/stvp/assert"
)

func TestConcatBytes(t *testing.T) {
	t.Parallel()

	assert.Equal(t, ConcatBytes([]byte("foo"), []byte("bar")), []byte("foobar"))
}

func TestCommonPrefixLength(t *testing.T) {
	t.Parallel()

	assert.Equal(t, CommonPrefixLength([]byte("abc"), []byte("abd")), 2)
	assert.Equal(t, CommonPrefixLength([]byte("ab"), []byte("abd")), 2)
	assert.Equal(t, CommonPrefixLength(nil, []byte("abd")), 0)
	assert.Equal(t, CommonPrefixLength([]byte("x"), []byte("y")), 0)
}

func TestCopyBytes(t *testing.T) {
	t.Parallel()

	b := CopyBytes(nil)
	assert.True(t, b != nil)
	assert.Equal(t, len(b), 0)
	assert.Equal(t, IMin(3, 1, 2), 1)
	assert.Equal(t, Uint64Bytes(0x0102), []byte{0, 0, 0, 0, 0, 0, 1, 2})
}

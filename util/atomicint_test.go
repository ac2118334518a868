/*
 * Author: Markus Stenberg <fingon@iki.fi>
 *
 * Copyright (c) 2018 Markus Stenberg
 *
 * Created:       Wed Mar 21 11:22:00 2018 mstenber
 * Last modified: Mon Apr  9 14:41:15 2018 mstenber
 * Edit time:     2 min
 *
 */

package util

import (
	"testing"

	"github.com/stvp/assert"
)

func TestAtomicInt(t *testing.T) {
	t.Parallel()
	var ai AtomicInt
	assert.Equal(t, ai.GetInt(), 0)
	assert.Equal(t, ai.AddInt(1), 1)
	assert.Equal(t, ai.Get(), int64(1))
	ai.SetInt(32)
	assert.Equal(t, ai.GetInt(), 32)
}

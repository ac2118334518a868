/*
 * Author: Markus Stenberg <fingon@iki.fi>
 *
 * Copyright (c) 2019 Markus Stenberg
 *
 * Created:       Fri Mar 22 09:03:40 2019 mstenber
 * Last modified: Fri Mar 22 11:15:27 2019 mstenber
 * Edit time:     38 min
 *
 */

package dups

import (
	"bytes"
	"sort"
	"testing"

	"github.com/fingon/go-logtrie/journal"
	"github.com/fingon/go-logtrie/patricia"
	"github.com/fingon/go-logtrie/storage/inmemory"
	"github.com/fingon/go-logtrie/util"
	fuzz "github.com/google/gofuzz"
	"github.com/stvp/assert"
)

func newTestStore(t *testing.T) (*patricia.Config, *patricia.MutableTree, *Store) {
	l, err := journal.Configuration{FileSize: 4096}.Open(inmemory.NewInMemoryBackend())
	assert.Nil(t, err)
	config := &patricia.Config{Log: l}
	mt := config.Load(1, journal.NullAddress).Mutable()
	return config, mt, New(mt)
}

func TestEscape(t *testing.T) {
	t.Parallel()
	assert.Equal(t, Escape([]byte{0, 1, 2, 'a'}), []byte{1, 1, 1, 2, 2, 'a'})
	f := fuzz.New().NilChance(0).RandSource(util.GetSeededRng())
	var all [][]byte
	for i := 0; i < 1000; i++ {
		var b []byte
		f.Fuzz(&b)
		for j := range b {
			b[j] %= 4
		}
		e := Escape(b)
		assert.True(t, bytes.IndexByte(e, separator) < 0)
		u, ok := Unescape(e)
		assert.True(t, ok)
		assert.Equal(t, string(u), string(b))
		all = append(all, b)
	}
	// escaping preserves order
	sort.Slice(all, func(i, j int) bool { return bytes.Compare(all[i], all[j]) < 0 })
	for i := 1; i < len(all); i++ {
		assert.True(t, bytes.Compare(Escape(all[i-1]), Escape(all[i])) <= 0)
	}
	for _, bad := range [][]byte{{0}, {1}, {1, 0}, {1, 3}, {'a', 0}} {
		_, ok := Unescape(bad)
		assert.True(t, !ok)
	}
}

func TestDups(t *testing.T) {
	t.Parallel()
	config, mt, s := newTestStore(t)
	pairs := [][2]string{
		{"a", "3"}, {"a", "1"}, {"a", "2"},
		{"a\x00", "x"}, {"ab", ""}, {"ab", "\x00"}, {"b", "1"},
	}
	for _, p := range pairs {
		assert.True(t, s.Put([]byte(p[0]), []byte(p[1])))
	}
	assert.True(t, !s.Put([]byte("a"), []byte("2")))
	assert.True(t, !s.Add([]byte("a"), []byte("4")))
	assert.True(t, s.Add([]byte("c"), []byte("4")))
	assert.Equal(t, s.Size(), uint64(8))
	assert.Equal(t, string(s.Get([]byte("a"))), "1")
	assert.Equal(t, string(s.Get([]byte("ab"))), "")
	assert.True(t, s.Get([]byte("ab")) != nil)
	assert.Nil(t, s.Get([]byte("aa")))
	assert.True(t, s.HasKey([]byte("a\x00")))
	assert.True(t, !s.HasKey([]byte("\x00")))
	assert.True(t, s.HasPair([]byte("ab"), []byte("\x00")))
	assert.True(t, !s.HasPair([]byte("ab"), []byte("\x01")))

	expected := [][2]string{
		{"a", "1"}, {"a", "2"}, {"a", "3"}, {"a\x00", "x"},
		{"ab", ""}, {"ab", "\x00"}, {"b", "1"}, {"c", "4"},
	}
	check := func(r patricia.Reader) {
		c := NewReader(r).OpenCursor()
		defer c.Close()
		for _, p := range expected {
			assert.True(t, c.Next())
			assert.Equal(t, string(c.Key()), p[0])
			assert.Equal(t, string(c.Value()), p[1])
		}
		assert.True(t, !c.Next())
	}
	check(mt)
	addr, err := mt.Save()
	assert.Nil(t, err)
	check(config.Load(1, addr))

	c := s.OpenCursor()
	assert.Equal(t, string(c.SearchKey([]byte("a"))), "1")
	assert.Equal(t, c.Count(), 3)
	assert.True(t, c.NextDup())
	assert.Equal(t, string(c.Value()), "2")
	assert.True(t, c.NextDup())
	assert.True(t, !c.NextDup())
	assert.Equal(t, string(c.Value()), "3")
	assert.True(t, c.PrevDup())
	assert.Equal(t, string(c.Value()), "2")
	assert.True(t, c.NextNoDup())
	assert.Equal(t, string(c.Key()), "a\x00")
	assert.True(t, !c.PrevDup())
	assert.True(t, c.NextNoDup())
	assert.Equal(t, string(c.Key()), "ab")
	assert.Equal(t, c.Count(), 2)
	assert.True(t, c.PrevNoDup())
	assert.Equal(t, string(c.Key()), "a\x00")
	assert.True(t, c.PrevNoDup())
	assert.Equal(t, string(c.Key()), "a")
	assert.Equal(t, string(c.Value()), "3")
	assert.True(t, !c.PrevNoDup())
	assert.Equal(t, string(c.Value()), "3")

	assert.Nil(t, c.SearchKey([]byte("aa")))
	assert.Equal(t, string(c.Key()), "a")
	assert.Equal(t, string(c.SearchKeyRange([]byte("aa"))), "")
	assert.Equal(t, string(c.Key()), "ab")
	assert.True(t, c.SearchBoth([]byte("b"), []byte("1")))
	assert.True(t, !c.SearchBoth([]byte("b"), []byte("2")))
	assert.Equal(t, string(c.SearchBothRange([]byte("a"), []byte("15"))), "2")
	assert.Nil(t, c.SearchBothRange([]byte("a"), []byte("4")))
	assert.Equal(t, string(c.Value()), "2")
	assert.True(t, c.NextNoDup())
	assert.True(t, c.NextNoDup())
	assert.True(t, c.NextNoDup())
	assert.True(t, c.NextNoDup())
	assert.Equal(t, string(c.Key()), "c")
	assert.True(t, !c.NextNoDup())

	assert.Equal(t, string(c.SearchKey([]byte("a"))), "1")
	assert.True(t, c.DeleteCurrent())
	assert.True(t, c.Next())
	assert.Equal(t, string(c.Value()), "2")
	c.Close()

	assert.True(t, s.DeletePair([]byte("ab"), []byte("")))
	assert.True(t, !s.DeletePair([]byte("ab"), []byte("")))
	assert.True(t, s.Delete([]byte("a")))
	assert.True(t, !s.Delete([]byte("a")))
	assert.Equal(t, s.Size(), uint64(4))
	assert.Nil(t, s.Get([]byte("a")))
	assert.True(t, s.HasKey([]byte("a\x00")))

	r := NewReader(mt)
	expectPanic := func(cb func()) {
		defer func() {
			assert.True(t, recover() != nil)
		}()
		cb()
	}
	expectPanic(func() { r.Put([]byte("x"), []byte("y")) })
	expectPanic(func() { r.Delete([]byte("b")) })
}

func TestPutRight(t *testing.T) {
	t.Parallel()
	_, _, s := newTestStore(t)
	assert.Nil(t, s.PutRight([]byte("a"), []byte("1")))
	assert.Nil(t, s.PutRight([]byte("a"), []byte("2")))
	assert.Nil(t, s.PutRight([]byte("a\x00"), []byte("")))
	assert.Nil(t, s.PutRight([]byte("b"), []byte("")))
	assert.Equal(t, s.PutRight([]byte("a"), []byte("3")), patricia.ErrOrderViolation)
	assert.Equal(t, s.Size(), uint64(4))
}

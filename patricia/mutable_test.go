/*
 * Author: Markus Stenberg <fingon@iki.fi>
 *
 * Copyright (c) 2019 Markus Stenberg
 *
 * Created:       Tue Mar 19 09:10:52 2019 mstenber
 * Last modified: Thu Mar 21 13:20:18 2019 mstenber
 * Edit time:     121 min
 *
 */

package patricia

import (
	"bytes"
	"fmt"
	"math/rand"
	"sort"
	"strings"
	"testing"

	"github.com/fingon/go-logtrie/journal"
	"github.com/fingon/go-logtrie/storage/inmemory"
	"github.com/fingon/go-logtrie/util"
	fuzz "github.com/google/gofuzz"
	"github.com/pkg/errors"
	"github.com/stvp/assert"
)

const testStructureId = 3

func newTestConfig(t *testing.T, fileSize uint64) (*Config, *journal.Log) {
	l, err := journal.Configuration{FileSize: fileSize}.Open(inmemory.NewInMemoryBackend())
	assert.Nil(t, err)
	return &Config{Log: l, Cache: NewNodeCache(1000)}, l
}

func newTestTree(t *testing.T, fileSize uint64) (*Config, *MutableTree) {
	config, _ := newTestConfig(t, fileSize)
	return config, config.Load(testStructureId, journal.NullAddress).Mutable()
}

// reference is the sorted list of keys and their values the tree is
// expected to contain.
type reference map[string]string

func (self reference) keys() []string {
	r := make([]string, 0, len(self))
	for k := range self {
		r = append(r, k)
	}
	sort.Strings(r)
	return r
}

func checkContents(t *testing.T, r Reader, ref reference) {
	assert.Equal(t, r.Size(), uint64(len(ref)))
	keys := ref.keys()
	c := r.OpenCursor()
	defer c.Close()
	for _, k := range keys {
		assert.True(t, r.HasKey([]byte(k)), k)
		assert.Equal(t, string(r.Get([]byte(k))), ref[k])
		assert.True(t, r.HasPair([]byte(k), []byte(ref[k])))
		assert.True(t, c.Next(), k)
		assert.Equal(t, string(c.Key()), k)
		assert.Equal(t, string(c.Value()), ref[k])
	}
	assert.True(t, !c.Next())
	for i := len(keys) - 2; i >= 0; i-- {
		assert.True(t, c.Prev())
		assert.Equal(t, string(c.Key()), keys[i])
	}
	if len(keys) > 0 {
		assert.True(t, !c.Prev())
		assert.Equal(t, string(c.Key()), keys[0])
	}
	switch tr := r.(type) {
	case *MutableTree:
		assert.Nil(t, tr.Check())
	case *Tree:
		assert.Nil(t, tr.Check())
	}
}

func TestSimple(t *testing.T) {
	t.Parallel()
	_, mt := newTestTree(t, 4096)
	ref := reference{}
	assert.Equal(t, mt.Size(), uint64(0))
	assert.Nil(t, mt.Get([]byte("a")))
	for _, k := range []string{"a", "ab", "ac"} {
		assert.True(t, mt.Put([]byte(k), []byte("v"+k)))
		ref[k] = "v" + k
		checkContents(t, mt, ref)
	}
	assert.True(t, !mt.HasKey([]byte("aa")))
	assert.True(t, !mt.HasKey([]byte("")))
	assert.True(t, !mt.HasPair([]byte("ab"), []byte("vac")))

	c := mt.OpenCursor()
	assert.Equal(t, string(c.SearchKeyRange([]byte("aa"))), "vab")
	assert.Equal(t, string(c.Key()), "ab")
	assert.Equal(t, string(c.SearchKeyRange([]byte(""))), "va")
	assert.Nil(t, c.SearchKeyRange([]byte("ad")))
	// failed search does not move the cursor
	assert.Equal(t, string(c.Key()), "a")
	assert.Equal(t, string(c.SearchKey([]byte("ac"))), "vac")
	assert.Nil(t, c.SearchKey([]byte("abc")))
	assert.Equal(t, string(c.Key()), "ac")
	assert.True(t, c.SearchBoth([]byte("ab"), []byte("vab")))
	assert.True(t, !c.SearchBoth([]byte("ab"), []byte("vac")))
	assert.Equal(t, string(c.SearchBothRange([]byte("ab"), []byte("va"))), "vab")
	assert.Nil(t, c.SearchBothRange([]byte("ab"), []byte("vb")))
	assert.Equal(t, c.Count(), 1)
	assert.True(t, !c.NextDup())
	assert.True(t, !c.PrevDup())
	assert.True(t, c.NextNoDup())
	assert.Equal(t, string(c.Key()), "ac")
	assert.True(t, c.PrevNoDup())
	assert.Equal(t, string(c.Key()), "ab")
	c.Close()

	// unpositioned cursors start from the ends
	c = mt.OpenCursor()
	assert.Equal(t, c.Count(), 0)
	assert.Nil(t, c.Key())
	assert.True(t, c.Prev())
	assert.Equal(t, string(c.Key()), "ac")
	c.Close()
}

func checkExampleShape(t *testing.T, base *treeBase, root node) {
	assert.Equal(t, string(root.keySequence()), "a")
	assert.Equal(t, string(root.value()), "1")
	assert.Equal(t, root.childCount(), 2)
	for i, b := range []byte("bc") {
		assert.Equal(t, root.childAt(i).b, b)
		c := base.child(root, i)
		assert.Equal(t, len(c.keySequence()), 0)
		assert.Equal(t, c.childCount(), 0)
		assert.Equal(t, string(c.value()), fmt.Sprintf("%d", i+2))
	}
}

func TestExampleShape(t *testing.T) {
	t.Parallel()
	config, mt := newTestTree(t, 4096)
	mt.Put([]byte("a"), []byte("1"))
	mt.Put([]byte("ab"), []byte("2"))
	mt.Put([]byte("ac"), []byte("3"))
	checkExampleShape(t, &mt.treeBase, mt.root)
	var buf bytes.Buffer
	mt.Dump(&buf)
	assert.Equal(t, buf.String(), `ffffffffffffffff "a" = "1"
  ffffffffffffffff "ab" = "2"
  ffffffffffffffff "ac" = "3"
`)

	addr, err := mt.Save()
	assert.Nil(t, err)
	config.Cache = nil
	tr := config.Load(testStructureId, addr)
	assert.True(t, tr.node.(*immutableNode).isRoot())
	assert.Equal(t, tr.Size(), uint64(3))
	checkExampleShape(t, &tr.treeBase, tr.node)
	buf.Reset()
	tr.Dump(&buf)
	assert.True(t, strings.HasPrefix(buf.String(), fmt.Sprintf("%x \"a\" = \"1\"\n", addr)))
	assert.Equal(t, strings.Count(buf.String(), "\n"), 3)
}

func TestWideNodes(t *testing.T) {
	t.Parallel()
	for _, count := range []int{40, 256} {
		for _, v1 := range []bool{true, false} {
			count, v1 := count, v1
			t.Run(fmt.Sprintf("%d-%v", count, v1), func(t *testing.T) {
				config, mt := newTestTree(t, 1<<16)
				config.WriteV1 = v1
				ref := reference{}
				for i := 0; i < count; i++ {
					k := string([]byte{byte(i * 256 / count), 'x'})
					v := fmt.Sprintf("v%d", i)
					mt.Put([]byte(k), []byte(v))
					ref[k] = v
				}
				addr, err := mt.Save()
				assert.Nil(t, err)
				config.Cache = nil
				tr := config.Load(testStructureId, addr)
				root := tr.node.(*immutableNode)
				assert.Equal(t, root.childCount(), count)
				switch {
				case v1:
					assert.Equal(t, root.table.layout, byte(layoutV1))
				case count == 256:
					assert.Equal(t, root.table.layout, byte(layoutComplete))
				default:
					assert.Equal(t, root.table.layout, byte(layoutBitset))
				}
				checkContents(t, tr, ref)

				// and once more through a rewritten root
				mt = tr.Mutable()
				delete(ref, string([]byte{0, 'x'}))
				assert.True(t, mt.Delete([]byte{0, 'x'}))
				addr, err = mt.Save()
				assert.Nil(t, err)
				checkContents(t, config.Load(testStructureId, addr), ref)
			})
		}
	}
}

func TestCheckRoot(t *testing.T) {
	t.Parallel()
	_, mt := newTestTree(t, 4096)
	assert.Nil(t, mt.Check())

	leaf := &mutableNode{val: []byte("v")}
	root := &mutableNode{key: []byte("a")}
	root.setChild('b', leaf)
	mt.root = root
	mt.size = 1
	assert.True(t, mt.Check() != nil)

	root.val = []byte("w")
	mt.size = 2
	assert.Nil(t, mt.Check())

	mt.root = &mutableNode{key: []byte("a")}
	mt.size = 0
	assert.True(t, mt.Check() != nil)
}

func TestPut(t *testing.T) {
	t.Parallel()
	config, mt := newTestTree(t, 4096)
	ref := reference{}
	for _, k := range []string{"foo", "foobar", "fo", "", "fox", "b", "foobaz"} {
		assert.True(t, mt.Put([]byte(k), []byte(k)), k)
		ref[k] = k
		checkContents(t, mt, ref)
	}
	assert.True(t, !mt.Put([]byte("foo"), []byte("x")))
	ref["foo"] = "x"
	checkContents(t, mt, ref)
	assert.True(t, !mt.Add([]byte("foo"), []byte("y")))
	assert.True(t, mt.Add([]byte("f"), []byte("y")))
	ref["f"] = "y"
	checkContents(t, mt, ref)

	// empty values are values too
	assert.True(t, mt.Put([]byte("empty"), nil))
	ref["empty"] = ""
	assert.True(t, mt.HasKey([]byte("empty")))
	assert.Equal(t, len(mt.Get([]byte("empty"))), 0)
	checkContents(t, mt, ref)

	addr, err := mt.Save()
	assert.Nil(t, err)
	assert.Equal(t, mt.Address(), addr)
	checkContents(t, mt, ref)
	tr := config.Load(testStructureId, addr)
	checkContents(t, tr, ref)

	// same value again does not change anything
	expired := len(mt.ExpiredLoggables())
	assert.True(t, !mt.Put([]byte("fox"), []byte("fox")))
	assert.Equal(t, len(mt.ExpiredLoggables()), expired)
	addr2, err := mt.Save()
	assert.Nil(t, err)
	assert.Equal(t, addr2, addr)

	// stored data is not shared with the caller
	k := []byte("shared")
	v := []byte("value")
	mt.Put(k, v)
	k[0] = 'x'
	v[0] = 'x'
	assert.Equal(t, string(mt.Get([]byte("shared"))), "value")
	mt.Get([]byte("shared"))[0] = 'y'
	assert.Equal(t, string(mt.Get([]byte("shared"))), "value")
}

func TestPutRight(t *testing.T) {
	t.Parallel()
	_, mt := newTestTree(t, 4096)
	ref := reference{}
	for _, k := range []string{"", "a", "abc", "abd", "b", "ba", "bb", "c"} {
		assert.Nil(t, mt.PutRight([]byte(k), []byte(k)))
		ref[k] = k
	}
	checkContents(t, mt, ref)
	for _, k := range []string{"", "a", "ab", "abc", "abe", "bab", "c"} {
		assert.Equal(t, mt.PutRight([]byte(k), []byte("x")), ErrOrderViolation, k)
	}
	checkContents(t, mt, ref)
	assert.Nil(t, mt.PutRight([]byte("ca"), []byte("ca")))
	assert.Nil(t, mt.PutRight([]byte("d"), []byte("d")))
	ref["ca"] = "ca"
	ref["d"] = "d"
	checkContents(t, mt, ref)

	_, mt = newTestTree(t, 4096)
	for i := 0; i < 1000; i++ {
		k := fmt.Sprintf("%08d", i*7)
		assert.Nil(t, mt.PutRight([]byte(k), []byte(k)))
	}
	assert.Equal(t, mt.Size(), uint64(1000))
	assert.Nil(t, mt.Check())
}

func TestDelete(t *testing.T) {
	t.Parallel()
	config, mt := newTestTree(t, 4096)
	ref := reference{}
	keys := []string{"", "a", "ab", "abc", "abd", "b", "ba", "bb", "c"}
	for _, k := range keys {
		mt.Put([]byte(k), []byte(k))
		ref[k] = k
	}
	addr, err := mt.Save()
	assert.Nil(t, err)
	assert.Equal(t, len(mt.ExpiredLoggables()), 0)

	assert.True(t, !mt.Delete([]byte("abe")))
	assert.True(t, !mt.Delete([]byte("bc")))
	assert.True(t, !mt.DeletePair([]byte("ab"), []byte("x")))
	assert.True(t, mt.DeletePair([]byte("ab"), []byte("ab")))
	delete(ref, "ab")
	checkContents(t, mt, ref)
	assert.True(t, len(mt.ExpiredLoggables()) > 0)

	for _, k := range keys {
		if _, ok := ref[k]; !ok {
			continue
		}
		assert.True(t, mt.Delete([]byte(k)), k)
		delete(ref, k)
		checkContents(t, mt, ref)
	}
	assert.Equal(t, mt.Size(), uint64(0))
	assert.True(t, isEmpty(mt.currentRoot()))

	// the old revision is still there
	tr := config.Load(testStructureId, addr)
	assert.Equal(t, tr.Size(), uint64(len(keys)))
	assert.Nil(t, tr.Check())

	// every saved node got expired
	seen := map[journal.Address]bool{}
	for _, e := range mt.ExpiredLoggables() {
		assert.True(t, !seen[e.Address])
		seen[e.Address] = true
	}
	it := tr.Addresses()
	cnt := 0
	for it.Next() {
		assert.True(t, seen[it.Address()])
		cnt++
	}
	assert.Equal(t, cnt, len(seen))

	addr2, err := mt.Save()
	assert.Nil(t, err)
	tr = config.Load(testStructureId, addr2)
	checkContents(t, tr, ref)
}

func TestEmptyTree(t *testing.T) {
	t.Parallel()
	config, mt := newTestTree(t, 4096)
	c := mt.OpenCursor()
	assert.True(t, !c.Next())
	assert.True(t, !c.Prev())
	assert.Nil(t, c.SearchKeyRange(nil))
	assert.True(t, !c.DeleteCurrent())
	addr, err := mt.Save()
	assert.Nil(t, err)
	assert.True(t, addr != journal.NullAddress)
	tr := config.Load(testStructureId, addr)
	assert.Equal(t, tr.Size(), uint64(0))
	checkContents(t, tr, reference{})
	assert.True(t, !tr.OpenCursor().Next())

	mt = tr.Mutable()
	mt.Put([]byte("x"), []byte("y"))
	assert.Equal(t, len(mt.ExpiredLoggables()), 1)
	checkContents(t, tr, reference{})
}

func fuzzKeys(rng *rand.Rand, n int) []string {
	f := fuzz.New().NilChance(0).NumElements(0, 6).RandSource(rng)
	r := make([]string, n)
	for i := range r {
		var b []byte
		f.Fuzz(&b)
		// small alphabet to get shared prefixes
		for j := range b {
			b[j] = 'a' + b[j]%3
		}
		r[i] = string(b)
	}
	return r
}

func TestRandom(t *testing.T) {
	t.Parallel()
	rng := util.GetSeededRng()
	config, mt := newTestTree(t, 1024)
	ref := reference{}
	keys := fuzzKeys(rng, 300)
	for round := 0; round < 5; round++ {
		for i := 0; i < 100; i++ {
			k := keys[rng.Intn(len(keys))]
			v := fmt.Sprintf("%d-%d", round, i)
			if rng.Intn(3) == 0 {
				_, ok := ref[k]
				assert.Equal(t, mt.Delete([]byte(k)), ok)
				delete(ref, k)
			} else {
				_, ok := ref[k]
				assert.Equal(t, mt.Put([]byte(k), []byte(v)), !ok)
				ref[k] = v
			}
		}
		checkContents(t, mt, ref)

		sorted := ref.keys()
		c := mt.OpenCursor()
		for _, sk := range fuzzKeys(rng, 50) {
			i := sort.SearchStrings(sorted, sk)
			v := c.SearchKeyRange([]byte(sk))
			if i == len(sorted) {
				assert.Nil(t, v, sk)
				continue
			}
			assert.Equal(t, string(v), ref[sorted[i]], sk)
			assert.Equal(t, string(c.Key()), sorted[i])
		}
		c.Close()

		addr, err := mt.Save()
		assert.Nil(t, err)
		checkContents(t, config.Load(testStructureId, addr), ref)
	}
}

func TestCursorInvalidation(t *testing.T) {
	t.Parallel()
	_, mt := newTestTree(t, 4096)
	for c := 'a'; c <= 'z'; c++ {
		mt.Put([]byte{byte(c)}, []byte{byte(c)})
		mt.Put([]byte{byte(c), byte(c)}, []byte{byte(c)})
	}
	c1 := mt.OpenCursor()
	c2 := mt.OpenCursor()
	c3 := mt.OpenCursor()
	assert.Equal(t, string(c1.SearchKey([]byte("m"))), "m")
	assert.Equal(t, string(c2.SearchKey([]byte("m"))), "m")
	assert.Equal(t, string(c3.SearchKey([]byte("mm"))), "m")

	assert.True(t, mt.Delete([]byte("m")))
	// stale cursors remember where they were
	assert.Equal(t, string(c1.Key()), "m")
	assert.Equal(t, string(c1.Value()), "m")
	assert.True(t, c1.Next())
	assert.Equal(t, string(c1.Key()), "mm")
	assert.True(t, c2.Prev())
	assert.Equal(t, string(c2.Key()), "ll")
	assert.True(t, c3.Next())
	assert.Equal(t, string(c3.Key()), "n")

	assert.Equal(t, string(c1.SearchKey([]byte("c"))), "c")
	assert.True(t, c1.DeleteCurrent())
	assert.True(t, !mt.HasKey([]byte("c")))
	assert.Equal(t, string(c1.Key()), "c")
	assert.True(t, !c1.DeleteCurrent())
	assert.True(t, c1.Next())
	assert.Equal(t, string(c1.Key()), "cc")
	assert.True(t, c1.DeleteCurrent())
	assert.True(t, c1.Prev())
	assert.Equal(t, string(c1.Key()), "bb")

	// deleting everything from the cursor
	assert.True(t, c2.Prev())
	for c2.Prev() {
	}
	for c2.DeleteCurrent() {
		if !c2.Next() {
			break
		}
	}
	assert.Equal(t, mt.Size(), uint64(0))
	assert.True(t, !c3.Next())
	assert.True(t, !c3.Prev())

	// closed cursors are not notified
	c3.Close()
	mt.Put([]byte("x"), []byte("y"))
	assert.Equal(t, len(mt.cursors), 2)
}

func TestNodeTooBig(t *testing.T) {
	t.Parallel()
	_, mt := newTestTree(t, 128)
	mt.Put([]byte("a"), make([]byte, 100))
	mt.Put([]byte("b"), make([]byte, 200))
	_, err := mt.Save()
	assert.Equal(t, err, ErrNodeTooBig)
	assert.Equal(t, errors.Cause(err), journal.ErrTooBig)
}

func TestReadOnlyCursor(t *testing.T) {
	t.Parallel()
	config, mt := newTestTree(t, 4096)
	mt.Put([]byte("a"), []byte("b"))
	addr, err := mt.Save()
	assert.Nil(t, err)
	c := config.Load(testStructureId, addr).OpenCursor()
	assert.True(t, c.Next())
	expectPanic(t, "read-only delete", func() { c.DeleteCurrent() })
	c.Close()
}

func TestStructureIdMismatch(t *testing.T) {
	t.Parallel()
	config, mt := newTestTree(t, 4096)
	mt.Put([]byte("a"), []byte("b"))
	mt.Put([]byte("ab"), []byte("b"))
	addr, err := mt.Save()
	assert.Nil(t, err)
	config.Cache = nil
	expectPanic(t, "sid mismatch", func() { config.Load(testStructureId+1, addr) })
	tr := config.Load(testStructureId, addr)
	expectPanic(t, "not a root", func() { config.Load(testStructureId, tr.node.childAt(0).addr) })
}

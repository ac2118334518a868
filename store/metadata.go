/*
 * Author: Markus Stenberg <fingon@iki.fi>
 *
 * Copyright (c) 2019 Markus Stenberg
 *
 * Created:       Mon Mar 25 10:02:51 2019 mstenber
 * Last modified: Tue Mar 26 15:44:08 2019 mstenber
 * Edit time:     61 min
 *
 */

package store

import (
	"sort"

	"github.com/glycerine/greenpack/msgp"
	"github.com/pkg/errors"
)

const metadataName = "meta"

type treeMetadata struct {
	Name        string
	StructureId uint64
	Root        uint64
	Dups        bool
}

// metadata is the committed state of the store. Committed instances
// are never modified; transactions work on copies.
type metadata struct {
	Generation      uint64
	NextStructureId uint64

	// High is the journal high address after the commit; anything
	// beyond it is from a commit that did not finish.
	High uint64

	// FileSize is the journal file size the log was created with;
	// file boundaries depend on it.
	FileSize uint64

	Trees map[string]*treeMetadata

	// Expired is the number of bytes no longer in use, per file.
	Expired map[uint64]uint64
}

func newMetadata() *metadata {
	return &metadata{NextStructureId: 1,
		Trees:   make(map[string]*treeMetadata),
		Expired: make(map[uint64]uint64)}
}

func (self *metadata) copy() *metadata {
	m := *self
	m.Trees = make(map[string]*treeMetadata, len(self.Trees))
	for k, v := range self.Trees {
		tm := *v
		m.Trees[k] = &tm
	}
	m.Expired = make(map[uint64]uint64, len(self.Expired))
	for k, v := range self.Expired {
		m.Expired[k] = v
	}
	return &m
}

func (self *metadata) names() []string {
	names := make([]string, 0, len(self.Trees))
	for k := range self.Trees {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

func (self *treeMetadata) MarshalMsg(b []byte) ([]byte, error) {
	b = msgp.AppendMapHeader(b, 4)
	b = msgp.AppendString(b, "Name")
	b = msgp.AppendString(b, self.Name)
	b = msgp.AppendString(b, "StructureId")
	b = msgp.AppendUint64(b, self.StructureId)
	b = msgp.AppendString(b, "Root")
	b = msgp.AppendUint64(b, self.Root)
	b = msgp.AppendString(b, "Dups")
	b = msgp.AppendBool(b, self.Dups)
	return b, nil
}

func (self *treeMetadata) UnmarshalMsg(b []byte) ([]byte, error) {
	var nbs msgp.NilBitsStack
	sz, b, err := nbs.ReadMapHeaderBytes(b)
	if err != nil {
		return b, err
	}
	for ; sz > 0; sz-- {
		var field string
		field, b, err = nbs.ReadStringBytes(b)
		if err != nil {
			return b, err
		}
		switch field {
		case "Name":
			self.Name, b, err = nbs.ReadStringBytes(b)
		case "StructureId":
			self.StructureId, b, err = nbs.ReadUint64Bytes(b)
		case "Root":
			self.Root, b, err = nbs.ReadUint64Bytes(b)
		case "Dups":
			self.Dups, b, err = nbs.ReadBoolBytes(b)
		default:
			b, err = msgp.Skip(b)
		}
		if err != nil {
			return b, errors.Wrapf(err, "field %s", field)
		}
	}
	return b, nil
}

func (self *metadata) MarshalMsg(b []byte) ([]byte, error) {
	b = msgp.AppendMapHeader(b, 6)
	b = msgp.AppendString(b, "Generation")
	b = msgp.AppendUint64(b, self.Generation)
	b = msgp.AppendString(b, "NextStructureId")
	b = msgp.AppendUint64(b, self.NextStructureId)
	b = msgp.AppendString(b, "High")
	b = msgp.AppendUint64(b, self.High)
	b = msgp.AppendString(b, "FileSize")
	b = msgp.AppendUint64(b, self.FileSize)

	b = msgp.AppendString(b, "Trees")
	b = msgp.AppendArrayHeader(b, uint32(len(self.Trees)))
	for _, name := range self.names() {
		var err error
		b, err = self.Trees[name].MarshalMsg(b)
		if err != nil {
			return b, err
		}
	}

	files := make([]uint64, 0, len(self.Expired))
	for k := range self.Expired {
		files = append(files, k)
	}
	sort.Slice(files, func(i, j int) bool { return files[i] < files[j] })
	b = msgp.AppendString(b, "Expired")
	b = msgp.AppendArrayHeader(b, uint32(2*len(files)))
	for _, f := range files {
		b = msgp.AppendUint64(b, f)
		b = msgp.AppendUint64(b, self.Expired[f])
	}
	return b, nil
}

func (self *metadata) UnmarshalMsg(b []byte) ([]byte, error) {
	self.Trees = make(map[string]*treeMetadata)
	self.Expired = make(map[uint64]uint64)
	var nbs msgp.NilBitsStack
	sz, b, err := nbs.ReadMapHeaderBytes(b)
	if err != nil {
		return b, err
	}
	for ; sz > 0; sz-- {
		var field string
		field, b, err = nbs.ReadStringBytes(b)
		if err != nil {
			return b, err
		}
		switch field {
		case "Generation":
			self.Generation, b, err = nbs.ReadUint64Bytes(b)
		case "NextStructureId":
			self.NextStructureId, b, err = nbs.ReadUint64Bytes(b)
		case "High":
			self.High, b, err = nbs.ReadUint64Bytes(b)
		case "FileSize":
			self.FileSize, b, err = nbs.ReadUint64Bytes(b)
		case "Trees":
			var n uint32
			n, b, err = nbs.ReadArrayHeaderBytes(b)
			for ; err == nil && n > 0; n-- {
				tm := &treeMetadata{}
				b, err = tm.UnmarshalMsg(b)
				self.Trees[tm.Name] = tm
			}
		case "Expired":
			var n uint32
			n, b, err = nbs.ReadArrayHeaderBytes(b)
			if err == nil && n%2 != 0 {
				err = errors.New("odd Expired length")
			}
			for ; err == nil && n > 0; n -= 2 {
				var f, v uint64
				f, b, err = nbs.ReadUint64Bytes(b)
				if err == nil {
					v, b, err = nbs.ReadUint64Bytes(b)
				}
				self.Expired[f] = v
			}
		default:
			b, err = msgp.Skip(b)
		}
		if err != nil {
			return b, errors.Wrapf(err, "field %s", field)
		}
	}
	return b, nil
}

/*
 * Author: Markus Stenberg <fingon@iki.fi>
 *
 * Copyright (c) 2019 Markus Stenberg
 *
 * Created:       Mon Mar 18 09:30:52 2019 mstenber
 * Last modified: Wed Mar 20 11:02:44 2019 mstenber
 * Edit time:     39 min
 *
 */

package patricia

import (
	"github.com/fingon/go-logtrie/journal"
	"github.com/fingon/go-logtrie/mlog"
	"github.com/pkg/errors"
)

func (self *MutableTree) write(typ byte, data []byte) (journal.Address, error) {
	addr, err := self.config.Log.Write(typ, self.structureId, data)
	if errors.Cause(err) == journal.ErrTooBig {
		return journal.NullAddress, ErrNodeTooBig
	}
	return addr, err
}

func (self *MutableTree) saveChildren(m *mutableNode) ([]childRef, error) {
	refs := make([]childRef, len(m.children))
	for i, ref := range m.children {
		if ref.node != nil {
			addr, err := self.saveNode(ref.node)
			if err != nil {
				return nil, err
			}
			ref = childRef{b: ref.b, addr: addr}
		}
		refs[i] = ref
	}
	return refs, nil
}

func (self *MutableTree) saveNode(m *mutableNode) (journal.Address, error) {
	refs, err := self.saveChildren(m)
	if err != nil {
		return journal.NullAddress, err
	}
	typ, data := encodeNode(m, refs, false, 0, journal.NullAddress, self.config.WriteV1)
	return self.write(typ, data)
}

// Save writes the changed nodes to the log, children first, and
// returns the address of the new root. If the nodes span more than
// one file, the root carries a back reference to where the save
// started.
func (self *MutableTree) Save() (journal.Address, error) {
	m, ok := self.root.(*mutableNode)
	if !ok {
		return self.root.address(), nil
	}
	log := self.config.Log
	start := log.HighAddress()
	refs, err := self.saveChildren(m)
	if err != nil {
		return journal.NullAddress, err
	}
	v1 := self.config.WriteV1
	addr := journal.NullAddress
	if log.IsLastFileAddress(start) {
		typ, data := encodeNode(m, refs, true, self.size, journal.NullAddress, v1)
		addr, err = log.TryWrite(typ, self.structureId, data)
		if err != nil && err != journal.ErrNoSpace {
			if errors.Cause(err) == journal.ErrTooBig {
				return journal.NullAddress, ErrNodeTooBig
			}
			return journal.NullAddress, err
		}
	}
	if addr == journal.NullAddress {
		typ, data := encodeNode(m, refs, true, self.size, start, v1)
		addr, err = self.write(typ, data)
		if err != nil {
			return journal.NullAddress, err
		}
	}
	mlog.Printf2("patricia/save", "Save %d: root %x size %d", self.structureId, addr, self.size)
	self.notifyCursors(nil)
	self.root = self.loadNode(addr)
	return addr, nil
}

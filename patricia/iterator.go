/*
 * Author: Markus Stenberg <fingon@iki.fi>
 *
 * Copyright (c) 2019 Markus Stenberg
 *
 * Created:       Tue Mar 19 14:22:08 2019 mstenber
 * Last modified: Tue Mar 19 14:51:30 2019 mstenber
 * Edit time:     12 min
 *
 */

package patricia

import "github.com/fingon/go-logtrie/journal"

// AddressIterator enumerates the addresses of the saved nodes of a
// tree in preorder. Unsaved nodes are walked through but not
// reported.
type AddressIterator struct {
	t       traverser
	root    node
	started bool
}

func newAddressIterator(base *treeBase, root node) *AddressIterator {
	return &AddressIterator{t: traverser{base: base}, root: root}
}

func (self *AddressIterator) Next() bool {
	for {
		if !self.started {
			self.started = true
			self.t.reset(self.root)
		} else if !self.t.next() {
			return false
		}
		if self.t.cur.address() != journal.NullAddress {
			return true
		}
	}
}

func (self *AddressIterator) Address() journal.Address {
	return self.t.cur.address()
}

func (self *Tree) Addresses() *AddressIterator {
	return newAddressIterator(&self.treeBase, self.node)
}

func (self *MutableTree) Addresses() *AddressIterator {
	return newAddressIterator(&self.treeBase, self.root)
}

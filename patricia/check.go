/*
 * Author: Markus Stenberg <fingon@iki.fi>
 *
 * Copyright (c) 2019 Markus Stenberg
 *
 * Created:       Tue Mar 19 15:03:44 2019 mstenber
 * Last modified: Wed Mar 20 08:40:12 2019 mstenber
 * Edit time:     21 min
 *
 */

package patricia

import (
	"fmt"
	"io"

	"github.com/pkg/errors"
)

func (self *treeBase) check(root node, size uint64) error {
	var values uint64
	t := traverser{base: self}
	t.reset(root)
	for {
		n := t.cur
		if n.hasValue() {
			values++
		}
		if !n.hasValue() && n.childCount() < 2 {
			// only the root of an empty tree may have neither
			if t.canMoveUp() || n.childCount() == 1 || len(n.keySequence()) > 0 {
				return errors.Errorf("node %x (%x) without value has %d children",
					t.key, n.address(), n.childCount())
			}
		}
		if t.canMoveUp() {
			if im, ok := n.(*immutableNode); ok && im.isRoot() {
				return errors.Errorf("node %x (%x) is a root", t.key, im.addr)
			}
		}
		for i := 1; i < n.childCount(); i++ {
			if n.childAt(i-1).b >= n.childAt(i).b {
				return errors.Errorf("node %x (%x) children out of order", t.key, n.address())
			}
		}
		if _, ok := n.(*immutableNode); ok {
			for i := 0; i < n.childCount(); i++ {
				if n.childAt(i).addr >= n.address() {
					return errors.Errorf("node %x (%x) child %x is newer than its parent",
						t.key, n.address(), n.childAt(i).addr)
				}
			}
		}
		if !t.next() {
			break
		}
	}
	if values != size {
		return errors.Errorf("size %d but %d values", size, values)
	}
	return nil
}

// Check walks the whole tree and verifies its structural invariants.
func (self *Tree) Check() error {
	return self.check(self.node, self.size)
}

func (self *MutableTree) Check() error {
	return self.check(self.root, self.size)
}

func (self *treeBase) dump(w io.Writer, root node) {
	t := traverser{base: self}
	t.reset(root)
	for {
		n := t.cur
		fmt.Fprintf(w, "%*s%x %q", len(t.stack)*2, "", n.address(), t.key)
		if n.hasValue() {
			fmt.Fprintf(w, " = %q", n.value())
		}
		fmt.Fprintln(w)
		if !t.next() {
			return
		}
	}
}

// Dump writes the tree structure to w, one node per line indented by
// depth. Mutable nodes have the null address.
func (self *Tree) Dump(w io.Writer) {
	self.dump(w, self.node)
}

func (self *MutableTree) Dump(w io.Writer) {
	self.dump(w, self.root)
}

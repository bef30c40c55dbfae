// This file is part of the program "xcompositor".
// Please see the LICENSE file for copyright information.

package compositor

import (
	"testing"

	"github.com/BurntSushi/xgb/xproto"
)

func stackOf(r *Registry) []xproto.Window {
	ws := r.Windows()
	ids := make([]xproto.Window, len(ws))
	for i, w := range ws {
		ids[i] = w.ID
	}
	return ids
}

func TestRegistryAddAtBottom(t *testing.T) {
	var r Registry
	r.Add(1, 0)
	r.Add(2, 0)
	r.Add(3, 0)

	// Each Add(id, 0) inserts at the bottom, so the stack ends up in
	// reverse of insertion order.
	got := stackOf(&r)
	want := []xproto.Window{3, 2, 1}
	if !equalStacks(got, want) {
		t.Fatalf("stack:\nhave %v\nwant %v", got, want)
	}
}

func TestRegistryAddAboveSibling(t *testing.T) {
	var r Registry
	r.Add(1, 0)
	r.Add(2, 1) // above 1
	r.Add(3, 1) // above 1, below 2

	got := stackOf(&r)
	want := []xproto.Window{1, 3, 2}
	if !equalStacks(got, want) {
		t.Fatalf("stack:\nhave %v\nwant %v", got, want)
	}
}

func TestRegistryFind(t *testing.T) {
	var r Registry
	r.Add(42, 0)

	if w := r.Find(42); w == nil || w.ID != 42 {
		t.Fatalf("Find(42):\nhave %v\nwant window 42", w)
	}
	if w := r.Find(99); w != nil {
		t.Fatalf("Find(99):\nhave %v\nwant nil", w)
	}
}

func TestRegistryRestackToTop(t *testing.T) {
	var r Registry
	r.Add(1, 0)
	r.Add(2, 1)
	r.Add(3, 2)

	w1 := r.Find(1)
	r.Restack(w1, 0)

	got := stackOf(&r)
	want := []xproto.Window{2, 3, 1}
	if !equalStacks(got, want) {
		t.Fatalf("stack after restack to top:\nhave %v\nwant %v", got, want)
	}
}

func TestRegistryRestackBelowSibling(t *testing.T) {
	var r Registry
	r.Add(1, 0)
	r.Add(2, 1)
	r.Add(3, 2)

	w3 := r.Find(3)
	r.Restack(w3, 1) // 3's successor should now be 1

	got := stackOf(&r)
	want := []xproto.Window{3, 1, 2}
	if !equalStacks(got, want) {
		t.Fatalf("stack:\nhave %v\nwant %v", got, want)
	}
}

func TestRegistryCirculatePlaceOnTop(t *testing.T) {
	var r Registry
	r.Add(1, 0)
	r.Add(2, 1)
	r.Add(3, 2)

	w1 := r.Find(1)
	r.Circulate(w1, PlaceOnTop)

	got := stackOf(&r)
	want := []xproto.Window{2, 3, 1}
	if !equalStacks(got, want) {
		t.Fatalf("stack:\nhave %v\nwant %v", got, want)
	}
}

func TestRegistryCirculatePlaceOnBottom(t *testing.T) {
	var r Registry
	r.Add(1, 0)
	r.Add(2, 1)
	r.Add(3, 2)

	w3 := r.Find(3)
	r.Circulate(w3, PlaceOnBottom)

	got := stackOf(&r)
	want := []xproto.Window{3, 1, 2}
	if !equalStacks(got, want) {
		t.Fatalf("stack:\nhave %v\nwant %v", got, want)
	}
}

func TestRegistryAddThenRemoveRoundTrips(t *testing.T) {
	var r Registry
	r.Add(1, 0)
	before := stackOf(&r)

	w2 := r.Add(2, 1)
	r.remove(w2)

	after := stackOf(&r)
	if !equalStacks(before, after) {
		t.Fatalf("stack after add+remove round trip:\nhave %v\nwant %v", after, before)
	}
}

func equalStacks(a, b []xproto.Window) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// This file is part of the program "xcompositor".
// Please see the LICENSE file for copyright information.

package compositor

import "testing"

func TestIgnoreSetIsIgnored(t *testing.T) {
	var s IgnoreSet
	s.NoteIgnorable(5)

	if !s.IsIgnored(5) {
		t.Fatalf("IsIgnored(5):\nhave false\nwant true")
	}
	if s.Len() != 0 {
		t.Fatalf("Len after match:\nhave %d\nwant 0", s.Len())
	}
}

func TestIgnoreSetUnrelatedSerialNotSuppressed(t *testing.T) {
	var s IgnoreSet
	s.NoteIgnorable(10)

	if s.IsIgnored(3) {
		t.Fatalf("IsIgnored(3) against head 10:\nhave true\nwant false")
	}
}

func TestIgnoreSetPrunesStaleHeads(t *testing.T) {
	var s IgnoreSet
	s.NoteIgnorable(1)
	s.NoteIgnorable(2)
	s.NoteIgnorable(3)

	// A serial past the first two heads should discard them both and
	// match the third, mirroring should_ignore's in-order pruning.
	if !s.IsIgnored(3) {
		t.Fatalf("IsIgnored(3):\nhave false\nwant true")
	}
	if s.Len() != 1 {
		t.Fatalf("Len after match:\nhave %d\nwant 1", s.Len())
	}
}

func TestIgnoreSetFIFOOrder(t *testing.T) {
	var s IgnoreSet
	s.NoteIgnorable(100)
	s.NoteIgnorable(200)

	// Observing 200 discards the older 100 entry in order and matches 200.
	if !s.IsIgnored(200) {
		t.Fatalf("IsIgnored(200) with 100 still queued:\nhave false\nwant true")
	}
	if s.IsIgnored(100) {
		t.Fatalf("IsIgnored(100) after 100 was discarded:\nhave true\nwant false")
	}
	if !s.IsIgnored(200) {
		t.Fatalf("IsIgnored(200) after 100 is discarded:\nhave false\nwant true")
	}
}

func TestIgnoreSetSequenceWrap(t *testing.T) {
	var s IgnoreSet
	// A serial just below the wraparound boundary is followed by one
	// issued after the counter has wrapped. Signed comparison must treat
	// the wrapped serial as newer, so observing it discards nearWrap
	// rather than treating the wrapped serial as "long past".
	const nearWrap = ^uint32(0) - 2
	s.NoteIgnorable(nearWrap)
	s.NoteIgnorable(1)

	if !s.IsIgnored(nearWrap) {
		t.Fatalf("IsIgnored(nearWrap):\nhave false\nwant true")
	}
	if !s.IsIgnored(1) {
		t.Fatalf("IsIgnored(1) after wraparound:\nhave false\nwant true")
	}
}

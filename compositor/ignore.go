// This file is part of the program "xcompositor".
// Please see the LICENSE file for copyright information.

package compositor

// IgnoreSet suppresses errors from requests that are expected to fail
// races, such as operating on a window that has just been destroyed
// server-side. Entries are ordered by sequence; because X11 sequence
// numbers wrap, comparisons use signed difference rather than a
// strict less-than.
//
// Grounded on xcompmgr.c's ignore/set_ignore/should_ignore/discard_ignore,
// reworked per the redesign flag in SPEC_FULL.md §9: an owning slice
// instead of a linked list threaded through malloc'd nodes.
type IgnoreSet struct {
	entries []uint32
}

// NoteIgnorable records that the next request's sequence number may
// legitimately fail and that failure should be silenced.
func (s *IgnoreSet) NoteIgnorable(nextSerial uint32) {
	s.entries = append(s.entries, nextSerial)
}

// IsIgnored reports whether serial should be suppressed, pruning any
// stale entries whose serial has already passed.
func (s *IgnoreSet) IsIgnored(serial uint32) bool {
	s.discard(serial)
	return len(s.entries) > 0 && s.entries[0] == serial
}

// discard drops every head entry whose serial is strictly older than
// serial, using wrap-safe signed comparison (mirrors xcompmgr's
// "(long)(sequence - ignore_head->sequence) > 0").
func (s *IgnoreSet) discard(serial uint32) {
	i := 0
	for i < len(s.entries) {
		if int32(serial-s.entries[i]) > 0 {
			i++
			continue
		}
		break
	}
	if i > 0 {
		s.entries = s.entries[i:]
	}
}

// Len reports the number of pending ignore entries. Exposed for tests.
func (s *IgnoreSet) Len() int { return len(s.entries) }

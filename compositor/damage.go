// This file is part of the program "xcompositor".
// Please see the LICENSE file for copyright information.

package compositor

import (
	"github.com/BurntSushi/xgb/xfixes"
)

// DamageAccumulator merges incoming damage regions into a single
// dirty region for the next frame. Grounded on xcompmgr.c's
// add_damage/allDamage global, reworked per SPEC_FULL.md §9 into a
// field on the compositor Context rather than a package-level global.
type DamageAccumulator struct {
	region xfixes.Region // 0 means "no pending damage"
}

// Add unions region into the accumulator, taking ownership of it (the
// caller must not reference region again): an existing pending region
// is unioned with and the argument destroyed, matching xcompmgr.c's
// add_damage exactly.
func (d *DamageAccumulator) Add(c *Context, region xfixes.Region) {
	if region == 0 {
		return
	}
	if d.region == 0 {
		d.region = region
		return
	}
	unionCookie := xfixes.UnionRegion(c.sess.Conn, d.region, d.region, region)
	c.ignore.NoteIgnorable(uint32(unionCookie.Sequence))
	destroyCookie := xfixes.DestroyRegion(c.sess.Conn, region)
	c.ignore.NoteIgnorable(uint32(destroyCookie.Sequence))
}

// Pending reports whether a repaint is owed.
func (d *DamageAccumulator) Pending() bool { return d.region != 0 }

// Take returns the accumulated region and clears the accumulator. The
// caller becomes responsible for destroying the returned region once
// the frame is painted.
func (d *DamageAccumulator) Take() xfixes.Region {
	r := d.region
	d.region = 0
	return r
}

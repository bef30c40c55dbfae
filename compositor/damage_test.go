// This file is part of the program "xcompositor".
// Please see the LICENSE file for copyright information.

package compositor

import (
	"testing"

	"github.com/BurntSushi/xgb/xfixes"
)

func TestDamageAccumulatorEmptyInitially(t *testing.T) {
	var d DamageAccumulator
	if d.Pending() {
		t.Fatalf("Pending() on a fresh accumulator:\nhave true\nwant false")
	}
}

func TestDamageAccumulatorAddIgnoresZeroRegion(t *testing.T) {
	var d DamageAccumulator
	d.Add(nil, 0)
	if d.Pending() {
		t.Fatalf("Pending() after Add(0):\nhave true\nwant false")
	}
}

// TestDamageAccumulatorFirstAddNeedsNoConnection exercises the one
// path of Add that never touches the Context: the very first union
// into an empty accumulator is a plain assignment, matching
// xcompmgr.c's add_damage when allDamage is still NULL.
func TestDamageAccumulatorFirstAddNeedsNoConnection(t *testing.T) {
	var d DamageAccumulator
	region := xfixes.Region(7)
	d.Add(nil, region)

	if !d.Pending() {
		t.Fatalf("Pending() after first Add:\nhave false\nwant true")
	}
	if got := d.Take(); got != region {
		t.Fatalf("Take():\nhave %v\nwant %v", got, region)
	}
	if d.Pending() {
		t.Fatalf("Pending() after Take():\nhave true\nwant false")
	}
}

func TestDamageAccumulatorTakeClearsRegardlessOfEmptiness(t *testing.T) {
	var d DamageAccumulator
	if got := d.Take(); got != 0 {
		t.Fatalf("Take() on empty accumulator:\nhave %v\nwant 0", got)
	}
}

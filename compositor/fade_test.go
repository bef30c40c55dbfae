// This file is part of the program "xcompositor".
// Please see the LICENSE file for copyright information.

package compositor

import (
	"testing"
	"time"
)

// withClock substitutes the package clock for the duration of a test
// and restores it afterward.
func withClock(t *testing.T, start time.Time) *time.Time {
	t.Helper()
	cur := start
	orig := now
	now = func() time.Time { return cur }
	t.Cleanup(func() { now = orig })
	return &cur
}

func TestFadeSchedulerEnqueueAndTickReachesFinish(t *testing.T) {
	clock := withClock(t, time.Unix(0, 0))
	f := NewFadeScheduler(10 * time.Millisecond)

	w := &Window{}
	var fired fadeFinish
	callCount := 0
	f.Enqueue(w, 0, 1, 0.1, fadeFinish{kind: fadeUnmapFinish, win: w}, false)

	// 10 ticks of step 0.1 should land exactly on finish=1.
	for i := 0; i < 10; i++ {
		*clock = clock.Add(10 * time.Millisecond)
		f.Tick(func(fin fadeFinish) {
			callCount++
			fired = fin
		})
	}

	if f.Active(w) {
		t.Fatalf("Active(w) after reaching finish:\nhave true\nwant false")
	}
	if w.Opacity != OPAQUE {
		t.Fatalf("w.Opacity:\nhave %d\nwant %d", w.Opacity, uint32(OPAQUE))
	}
	if callCount != 1 {
		t.Fatalf("finish callback invocations:\nhave %d\nwant 1", callCount)
	}
	if fired.kind != fadeUnmapFinish || fired.win != w {
		t.Fatalf("fired callback:\nhave %+v\nwant kind=fadeUnmapFinish win=w", fired)
	}
}

func TestFadeSchedulerMonotonicApproach(t *testing.T) {
	clock := withClock(t, time.Unix(0, 0))
	f := NewFadeScheduler(10 * time.Millisecond)

	w := &Window{}
	f.Enqueue(w, 0, 1, 0.05, fadeFinish{}, false)

	prevDist := 1.0
	for i := 0; i < 5; i++ {
		*clock = clock.Add(10 * time.Millisecond)
		f.Tick(nil)
		e := f.find(w)
		if e == nil {
			break
		}
		dist := e.finish - e.current
		if dist > prevDist {
			t.Fatalf("distance to finish increased: prev %v now %v", prevDist, dist)
		}
		prevDist = dist
	}
}

func TestFadeSchedulerEnqueueWithoutOverrideIsNoop(t *testing.T) {
	withClock(t, time.Unix(0, 0))
	f := NewFadeScheduler(10 * time.Millisecond)

	w := &Window{}
	f.Enqueue(w, 0, 1, 0.1, fadeFinish{}, false)
	f.Enqueue(w, 0, 0.5, 0.2, fadeFinish{}, false) // should be ignored

	e := f.find(w)
	if e == nil {
		t.Fatalf("fade entry missing after second enqueue")
	}
	if e.finish != 1 {
		t.Fatalf("finish after no-op override:\nhave %v\nwant 1", e.finish)
	}
}

func TestFadeSchedulerEnqueueWithOverrideReplaces(t *testing.T) {
	withClock(t, time.Unix(0, 0))
	f := NewFadeScheduler(10 * time.Millisecond)

	w := &Window{}
	f.Enqueue(w, 0, 1, 0.1, fadeFinish{}, false)
	f.Enqueue(w, 0.5, 0, 0.2, fadeFinish{}, true)

	e := f.find(w)
	if e == nil {
		t.Fatalf("fade entry missing after override enqueue")
	}
	if e.finish != 0 || e.current != 0.5 {
		t.Fatalf("fade entry after override:\nhave current=%v finish=%v\nwant current=0.5 finish=0", e.current, e.finish)
	}
}

func TestFadeSchedulerCancelDoesNotFireCallback(t *testing.T) {
	clock := withClock(t, time.Unix(0, 0))
	f := NewFadeScheduler(10 * time.Millisecond)

	w := &Window{}
	fired := false
	f.Enqueue(w, 0, 1, 0.1, fadeFinish{kind: fadeDestroyFinish, win: w}, false)
	f.Cancel(w)

	*clock = clock.Add(100 * time.Millisecond)
	f.Tick(func(fadeFinish) { fired = true })

	if fired {
		t.Fatalf("callback fired after Cancel:\nhave true\nwant false")
	}
	if f.Active(w) {
		t.Fatalf("Active(w) after Cancel:\nhave true\nwant false")
	}
}

func TestFadeSchedulerTimeoutMSInfiniteWhenEmpty(t *testing.T) {
	f := NewFadeScheduler(10 * time.Millisecond)
	if ms := f.TimeoutMS(); ms != -1 {
		t.Fatalf("TimeoutMS with no fades:\nhave %d\nwant -1", ms)
	}
}

func TestFadeSchedulerZeroDeltaClampedToOneMillisecond(t *testing.T) {
	f := NewFadeScheduler(0)
	if f.delta != time.Millisecond {
		t.Fatalf("delta with zero input:\nhave %v\nwant %v", f.delta, time.Millisecond)
	}
}

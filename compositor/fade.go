// This file is part of the program "xcompositor".
// Please see the LICENSE file for copyright information.

package compositor

import "time"

// fadeFinishKind tags what should happen when a fade completes,
// replacing xcompmgr.c's function-pointer callback per the redesign
// flag in SPEC_FULL.md §9.
type fadeFinishKind int

const (
	fadeNone fadeFinishKind = iota
	fadeUnmapFinish
	fadeDestroyFinish
)

type fadeFinish struct {
	kind fadeFinishKind
	win  *Window
	gone bool
}

// FadeEntry drives one window's opacity animation. current and finish
// are in [0,1]; step's sign is chosen so current monotonically
// approaches finish.
type FadeEntry struct {
	win     *Window
	current float64
	finish  float64
	step    float64
	cb      fadeFinish
}

// FadeScheduler advances opacity animations on a fixed time grid.
// Grounded on xcompmgr.c's fades/set_fade/run_fades, reworked into an
// owning slice (SPEC_FULL.md §9) instead of a linked list threaded
// through the fade structs themselves.
type FadeScheduler struct {
	entries  []*FadeEntry
	delta    time.Duration
	lastTick time.Time
}

// NewFadeScheduler builds a scheduler advancing fades every delta. A
// delta of zero or less is clamped to 1ms, matching xcompmgr.c's
// implicit protection against a divide-by-zero tick-count computation
// (SPEC_FULL.md's supplemented feature #2).
func NewFadeScheduler(delta time.Duration) *FadeScheduler {
	if delta <= 0 {
		delta = time.Millisecond
	}
	return &FadeScheduler{delta: delta}
}

func (f *FadeScheduler) find(w *Window) *FadeEntry {
	for _, e := range f.entries {
		if e.win == w {
			return e
		}
	}
	return nil
}

// Enqueue starts (or, with override, replaces) a fade on w. If a fade
// already exists and override is false, the call is a silent no-op,
// matching xcompmgr.c's set_fade semantics.
func (f *FadeScheduler) Enqueue(w *Window, start, finish, step float64, cb fadeFinish, override bool) {
	if e := f.find(w); e != nil {
		if !override {
			return
		}
		e.current = start
		e.finish = finish
		e.step = signedStep(step, start, finish)
		e.cb = cb
		return
	}
	if len(f.entries) == 0 {
		f.lastTick = now()
	}
	f.entries = append(f.entries, &FadeEntry{
		win:     w,
		current: start,
		finish:  finish,
		step:    signedStep(step, start, finish),
		cb:      cb,
	})
	w.fading = true
}

func signedStep(step, start, finish float64) float64 {
	if finish < start {
		return -step
	}
	return step
}

// Cancel removes w's fade without firing its callback, per
// SPEC_FULL.md §4.6's destroy-cancels-fade rule.
func (f *FadeScheduler) Cancel(w *Window) {
	for i, e := range f.entries {
		if e.win == w {
			f.entries = append(f.entries[:i], f.entries[i+1:]...)
			w.fading = false
			return
		}
	}
}

// Active reports whether w currently has a pending fade.
func (f *FadeScheduler) Active(w *Window) bool {
	return f.find(w) != nil
}

// TimeoutMS reports how long the event loop should poll for before
// the next fade step is due, or -1 ("infinite") if no fades are
// pending.
func (f *FadeScheduler) TimeoutMS() int {
	if len(f.entries) == 0 {
		return -1
	}
	deadline := f.lastTick.Add(f.delta)
	remaining := deadline.Sub(now())
	if remaining < 0 {
		return 0
	}
	return int(remaining / time.Millisecond)
}

// now is a seam so tests can control the clock.
var now = time.Now

// fadeEpsilon is how close current must come to finish to count as
// having reached it.
const fadeEpsilon = 1e-9

// Tick advances every entry by however many whole delta-steps have
// elapsed, clamps to finish when crossed, and fires completion
// callbacks for entries that reach their target. It reads each
// entry's slot before mutating the slice so that a callback which
// mutates the registry (completing a destroy) cannot invalidate the
// traversal, per SPEC_FULL.md §4.6's ordering note.
func (f *FadeScheduler) Tick(onFinish func(fadeFinish)) {
	if len(f.entries) == 0 {
		return
	}
	elapsed := now().Sub(f.lastTick)
	steps := int(elapsed / f.delta)
	if steps < 1 {
		return
	}

	pending := f.entries
	f.entries = nil
	var remaining []*FadeEntry

	for _, e := range pending {
		e.current += e.step * float64(steps)
		// The tolerance absorbs float rounding in the accumulated steps
		// (ten additions of 0.1 sum to just under 1).
		crossed := (e.step > 0 && e.current >= e.finish-fadeEpsilon) || (e.step < 0 && e.current <= e.finish+fadeEpsilon)
		if crossed {
			e.current = e.finish
		}
		e.win.Opacity = uint32(e.current * OPAQUE)
		e.win.invalidateShadow()

		if crossed {
			e.win.fading = false
			if onFinish != nil {
				onFinish(e.cb)
			}
			continue
		}
		remaining = append(remaining, e)
	}
	f.entries = remaining
	f.lastTick = now()
}

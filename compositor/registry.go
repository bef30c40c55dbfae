// This file is part of the program "xcompositor".
// Please see the LICENSE file for copyright information.

package compositor

import (
	"github.com/BurntSushi/xgb/xproto"
	"golang.org/x/exp/slices"
)

// Registry is the ordered, bottom-to-top list of tracked windows.
// Grounded on xcompmgr.c's singly linked `list`/`list_tail`, reworked
// per SPEC_FULL.md §9's redesign flag into an owning slice maintained
// with golang.org/x/exp/slices rather than an intrusive linked list.
type Registry struct {
	windows []*Window
}

// Find performs the linear lookup xcompmgr.c's find_win does; the
// registry is small enough (tens of windows) that a map would not pay
// for itself, and a flat slice keeps stacking order trivial to reason
// about.
func (r *Registry) Find(id xproto.Window) *Window {
	for _, w := range r.windows {
		if w.ID == id {
			return w
		}
	}
	return nil
}

func (r *Registry) indexOf(id xproto.Window) int {
	return slices.IndexFunc(r.windows, func(w *Window) bool { return w.ID == id })
}

// Windows returns the current stacking order, bottom-most first.
// Callers must not retain the slice across a mutating call.
func (r *Registry) Windows() []*Window {
	return r.windows
}

// Add inserts a new window record above siblingBelow (or at the
// bottom of the stack if siblingBelow is 0). It does not itself query
// geometry or subscribe to events; callers (C8) do that once the
// record is returned, matching xcompmgr.c's add_win which separates
// list insertion from the a-few-lines-later XGetWindowAttributes call.
func (r *Registry) Add(id, siblingBelow xproto.Window) *Window {
	w := &Window{ID: id}
	if siblingBelow == 0 {
		r.windows = append([]*Window{w}, r.windows...)
		return w
	}
	idx := r.indexOf(siblingBelow)
	if idx < 0 {
		r.windows = append(r.windows, w)
		return w
	}
	r.windows = slices.Insert(r.windows, idx+1, w)
	return w
}

// Restack moves w so that it sits directly below newAbove, or to the
// top of the stack if newAbove is 0. Mirrors xcompmgr.c's
// configure_win restacking logic (search for the new predecessor,
// splice the window out, splice it back in).
func (r *Registry) Restack(w *Window, newAbove xproto.Window) {
	from := r.indexOf(w.ID)
	if from < 0 {
		return
	}
	r.windows = slices.Delete(r.windows, from, from+1)

	if newAbove == 0 {
		r.windows = append(r.windows, w)
		return
	}
	idx := r.indexOf(newAbove)
	if idx < 0 {
		r.windows = append(r.windows, w)
		return
	}
	r.windows = slices.Insert(r.windows, idx, w)
}

// CirculatePlace selects the destination of a CirculateNotify.
type CirculatePlace int

const (
	PlaceOnTop CirculatePlace = iota
	PlaceOnBottom
)

// Circulate implements xcompmgr.c's circulate_win: PlaceOnTop moves w
// above the current topmost window, otherwise w goes to the bottom.
func (r *Registry) Circulate(w *Window, place CirculatePlace) {
	if place == PlaceOnTop {
		if len(r.windows) == 0 {
			return
		}
		top := r.windows[len(r.windows)-1]
		if top == w {
			return
		}
		r.Restack(w, 0)
		return
	}
	from := r.indexOf(w.ID)
	if from < 0 {
		return
	}
	r.windows = slices.Delete(r.windows, from, from+1)
	r.windows = append([]*Window{w}, r.windows...)
}

// remove deletes w from the registry without releasing its resources;
// callers must have already torn w down.
func (r *Registry) remove(w *Window) {
	idx := slices.Index(r.windows, w)
	if idx < 0 {
		return
	}
	r.windows = slices.Delete(r.windows, idx, idx+1)
}

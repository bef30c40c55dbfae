// This file is part of the program "xcompositor".
// Please see the LICENSE file for copyright information.

package compositor

import (
	"github.com/BurntSushi/xgb/damage"
	"github.com/BurntSushi/xgb/render"
	"github.com/BurntSushi/xgb/xfixes"
	"github.com/BurntSushi/xgb/xproto"
)

// WinMode is the compositing mode a window is painted in, derived
// from its visual format and current opacity.
type WinMode int

const (
	// Solid windows are fully opaque and painted in pass 1; they
	// subtract their region from the live damage.
	Solid WinMode = iota
	// Trans windows use a separately tracked opacity and are
	// deferred to pass 2.
	Trans
	// Argb windows carry their own per-pixel alpha channel.
	Argb
)

// WindowType mirrors a small set of _NET_WM_WINDOW_TYPE atoms.
type WindowType int

const (
	TypeNormal WindowType = iota
	TypeDesktop
	TypeDock
	TypeToolbar
	TypeMenu
	TypeUtility
	TypeSplash
	TypeDialog
)

// Geometry mirrors the fields of an X11 GetGeometry reply that the
// compositor tracks per window.
type Geometry struct {
	X, Y          int16
	Width, Height uint16
	BorderWidth   uint16
}

// handle is a server-side resource owned by exactly one Window.
// set releases any value it overwrites; Release must be called when
// the Window is torn down; Valid reports whether a value is held.
// This is the "optional owning handle" the redesign flag in
// SPEC_FULL.md §9 calls for, replacing nullable-sentinel fields.
type handle[T any] struct {
	value   T
	valid   bool
	release func(T)
}

func (h *handle[T]) set(v T, release func(T)) {
	h.Release()
	h.value = v
	h.valid = true
	h.release = release
}

func (h *handle[T]) Valid() bool { return h.valid }

func (h *handle[T]) Get() (T, bool) { return h.value, h.valid }

func (h *handle[T]) Release() {
	if h.valid && h.release != nil {
		h.release(h.value)
	}
	var zero T
	h.value = zero
	h.valid = false
	h.release = nil
}

// Window is one tracked top-level window. Resource fields are
// lazily created by the cache operations in cache.go; a handle's set
// releases the value it overwrites, and each must be released (via
// its handle's Release) when the window is torn down.
type Window struct {
	ID xproto.Window

	Geometry  Geometry
	Depth     uint8
	MapState  MapState
	InputOnly bool

	Mode       WinMode
	Opacity    uint32
	WindowType WindowType

	Damaged     bool
	Shaped      bool
	ShapeBounds Geometry

	Pixmap     handle[xproto.Pixmap]
	Picture    handle[render.Picture]
	AlphaPict  handle[render.Picture]
	ShadowPict handle[render.Picture]
	Shadow     *shadowImage
	BorderSize handle[xfixes.Region]
	Extents    handle[xfixes.Region]
	BorderClip handle[xfixes.Region]

	ShadowDX, ShadowDY        int
	ShadowWidth, ShadowHeight int

	damageObj damage.Damage

	fading bool
}

// MapState is Unmapped or Viewable; InputOnly windows never reach
// Viewable in a way that participates in compositing.
type MapState int

const (
	Unmapped MapState = iota
	Viewable
)

// shadowImage wraps the synthesized alpha image alongside the handles
// to the server-side pixmap/picture built from it, so invalidation
// releases all three together.
type shadowImage struct {
	pixmap  handle[xproto.Pixmap]
	picture handle[render.Picture]
	width   int
	height  int
}

// releaseAll tears down every cached resource on w, in the order the
// resource-lifecycle invariant in SPEC_FULL.md §3 requires: server
// objects are freed before the record itself disappears.
func (w *Window) releaseAll() {
	w.Pixmap.Release()
	w.Picture.Release()
	w.AlphaPict.Release()
	w.ShadowPict.Release()
	w.invalidateShadow()
	w.BorderSize.Release()
	w.Extents.Release()
	w.BorderClip.Release()
}

func (w *Window) invalidateShadow() {
	if w.Shadow != nil {
		w.Shadow.pixmap.Release()
		w.Shadow.picture.Release()
		w.Shadow = nil
	}
}

// Visible reports whether w intersects the root rectangle and is
// otherwise eligible to be considered by the compositor pass.
func (w *Window) Visible(rootW, rootH int) bool {
	if w.InputOnly || w.MapState != Viewable {
		return false
	}
	x, y := int(w.Geometry.X), int(w.Geometry.Y)
	width, height := int(w.Geometry.Width), int(w.Geometry.Height)
	if x+width < 1 || y+height < 1 {
		return false
	}
	if x >= rootW || y >= rootH {
		return false
	}
	return true
}

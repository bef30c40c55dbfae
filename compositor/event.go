// This file is part of the program "xcompositor".
// Please see the LICENSE file for copyright information.

package compositor

import (
	"context"
	"fmt"
	"time"

	"github.com/BurntSushi/xgb"
	"github.com/BurntSushi/xgb/damage"
	"github.com/BurntSushi/xgb/shape"
	"github.com/BurntSushi/xgb/xfixes"
	"github.com/BurntSushi/xgb/xproto"
)

// RedirectStrategy selects between xcompmgr.c's two top-level modes:
// painting the composited frame itself (manual redirection) or
// letting the X server do it (automatic redirection, in which case
// this engine only tracks state and never calls PaintAll).
type RedirectStrategy int

const (
	PaintManually RedirectStrategy = iota
	LetServerComposite
)

// Run drives the event loop until ctx is canceled or an unrecoverable
// I/O error occurs. It owns exactly one goroutine for the process's
// lifetime (the event reader feeding evc/xerrc); everything else —
// error handling, dispatch, fade ticking, repainting — happens on this
// goroutine between the one select below, preserving
// xcompmgr.c's single-suspension-point poll() loop in spirit even
// though BurntSushi/xgb's Conn hands out events over a channel rather
// than a pollable file descriptor. The reader goroutine only ever
// forwards values over channels; it never touches c.ignore or
// c.logger itself, since those are mutated from dispatch/paint on this
// goroutine and §5 rules out shared mutable state between threads.
func (c *Context) Run(ctx context.Context, strategy RedirectStrategy) error {
	evc := make(chan xgb.Event, 16)
	xerrc := make(chan xgb.Error, 16)
	errc := make(chan error, 1)
	go func() {
		for {
			ev, err := c.sess.Conn.WaitForEvent()
			if err != nil {
				if xerr, ok := err.(xgb.Error); ok {
					xerrc <- xerr
					continue
				}
				errc <- err
				return
			}
			if ev == nil {
				errc <- fmt.Errorf("display connection closed")
				return
			}
			evc <- ev
		}
	}()

	if strategy == PaintManually {
		if err := c.PaintAll(0); err != nil {
			return fmt.Errorf("initial paint: %w", err)
		}
	}

	for {
		var timer *time.Timer
		if ms := c.fades.TimeoutMS(); ms >= 0 {
			timer = time.NewTimer(time.Duration(ms) * time.Millisecond)
		}

		select {
		case <-ctx.Done():
			stopTimer(timer)
			return ctx.Err()

		case err := <-errc:
			stopTimer(timer)
			return err

		case xerr := <-xerrc:
			stopTimer(timer)
			c.handleXError(xerr)

		case ev := <-evc:
			stopTimer(timer)
			c.dispatch(ev, strategy)
			c.drainReady(evc, xerrc, strategy)

		case <-timerC(timer):
			c.fades.Tick(c.onFadeFinish)
		}

		if strategy == PaintManually && c.damage.Pending() {
			if err := c.PaintAll(c.damage.Take()); err != nil {
				return fmt.Errorf("paint: %w", err)
			}
			if c.cfg.Synchronous {
				// Emulates Xlib's XSynchronize(dpy, True): force a
				// round trip after every frame so protocol errors
				// are reported against the request that caused them
				// rather than an arbitrary later one, per -S in
				// SPEC_FULL.md §6.
				_, _ = xproto.GetInputFocus(c.sess.Conn).Reply()
			}
		}
	}
}

// drainReady dispatches every event or error already buffered in evc/
// xerrc without blocking, matching xcompmgr.c's
// `do { ... } while (QLength(dpy))` inner loop: repaint once per batch
// of already-queued events, not once per event.
func (c *Context) drainReady(evc chan xgb.Event, xerrc chan xgb.Error, strategy RedirectStrategy) {
	for {
		select {
		case ev := <-evc:
			c.dispatch(ev, strategy)
		case xerr := <-xerrc:
			c.handleXError(xerr)
		default:
			return
		}
	}
}

func stopTimer(t *time.Timer) {
	if t != nil {
		t.Stop()
	}
}

func timerC(t *time.Timer) <-chan time.Time {
	if t == nil {
		return nil
	}
	return t.C
}

// dispatch fans an event out to its handler, matching xcompmgr.c's
// switch over ev.type in main(). Automatic redirection leaves window
// tracking to the server entirely (the `if (!autoRedirect)` guard
// around most of the original's cases).
func (c *Context) dispatch(ev xgb.Event, strategy RedirectStrategy) {
	switch e := ev.(type) {
	case xproto.CreateNotifyEvent:
		if strategy == PaintManually {
			c.handleCreate(e, 0)
		}
	case xproto.ConfigureNotifyEvent:
		if strategy == PaintManually {
			c.handleConfigure(e)
		}
	case xproto.DestroyNotifyEvent:
		if strategy == PaintManually {
			c.handleDestroy(e.Window, true)
		}
	case xproto.MapNotifyEvent:
		if strategy == PaintManually {
			c.handleMap(e.Window, true)
		}
	case xproto.UnmapNotifyEvent:
		if strategy == PaintManually {
			c.handleUnmap(e.Window, true)
		}
	case xproto.ReparentNotifyEvent:
		if strategy == PaintManually {
			if e.Parent == c.sess.Root {
				c.handleCreate(xproto.CreateNotifyEvent{Window: e.Window, Parent: e.Parent}, 0)
			} else {
				c.handleDestroy(e.Window, false)
			}
		}
	case xproto.CirculateNotifyEvent:
		if strategy == PaintManually {
			c.handleCirculate(e)
		}
	case xproto.ExposeEvent:
		if strategy == PaintManually {
			c.handleExpose(e)
		}
	case xproto.PropertyNotifyEvent:
		if strategy == PaintManually {
			c.handleProperty(e)
		}
	case damage.NotifyEvent:
		if strategy == PaintManually {
			c.handleDamage(e)
		}
	case shape.NotifyEvent:
		if strategy == PaintManually {
			c.handleShape(e)
		}
	}
}

func (c *Context) handleXError(err xgb.Error) {
	if c.ignore.IsIgnored(errorSequence(err)) {
		return
	}
	c.logger.Printf("X error: %v", err)
}

// errorSequence extracts the request sequence number xgb attaches to
// every protocol error, needed to consult the IgnoreSet. xgb's
// generated error types each provide a SequenceId accessor; asserting
// on that one method avoids depending on any one extension's concrete
// error type. An error without it yields 0.
func errorSequence(err xgb.Error) uint32 {
	type sequencer interface{ SequenceId() uint16 }
	if s, ok := err.(sequencer); ok {
		return uint32(s.SequenceId())
	}
	return 0
}

// AddExisting registers every already-existing window returned by
// Session.SelectRootEvents's QueryTree, in the stacking order the
// server reports, matching xcompmgr.c's main() loop over
// XQueryTree's children at startup (each added exactly as a
// CreateNotify would add it). QueryTree reports children bottom-to-top,
// so each window after the first is threaded in above its predecessor
// rather than unconditionally at the bottom.
func (c *Context) AddExisting(children []xproto.Window) {
	var below xproto.Window
	for _, win := range children {
		c.handleCreate(xproto.CreateNotifyEvent{Window: win, Parent: c.sess.Root}, below)
		below = win
	}
}

func (c *Context) handleCreate(e xproto.CreateNotifyEvent, siblingBelow xproto.Window) {
	w := c.registry.Add(e.Window, siblingBelow)
	geom, err := xproto.GetGeometry(c.sess.Conn, xproto.Drawable(e.Window)).Reply()
	if err != nil {
		c.registry.remove(w)
		return
	}
	attrs, err := xproto.GetWindowAttributes(c.sess.Conn, e.Window).Reply()
	if err != nil {
		c.registry.remove(w)
		return
	}
	w.Geometry = Geometry{X: geom.X, Y: geom.Y, Width: geom.Width, Height: geom.Height, BorderWidth: geom.BorderWidth}
	w.Depth = geom.Depth
	w.InputOnly = attrs.Class == xproto.WindowClassInputOnly
	w.ShapeBounds = w.Geometry
	w.WindowType = c.lookupWindowType(e.Window)

	if !w.InputOnly {
		dmg, err := damage.NewDamageId(c.sess.Conn)
		if err == nil {
			if damage.CreateChecked(c.sess.Conn, dmg, xproto.Drawable(e.Window), damage.ReportLevelNonEmpty).Check() == nil {
				w.damageObj = dmg
			}
		}
		_ = shape.SelectInputChecked(c.sess.Conn, e.Window, true).Check()
	}

	if attrs.MapState == xproto.MapStateViewable {
		c.handleMap(e.Window, true)
	}
}

func (c *Context) lookupWindowType(id xproto.Window) WindowType {
	reply, err := xproto.GetProperty(c.sess.Conn, false, id, c.winTypeAtom, xproto.AtomAtom, 0, 1).Reply()
	if err == nil && reply.Format == 32 && reply.ValueLen == 1 {
		atom := xproto.Atom(xgb.Get32(reply.Value))
		if wt, ok := c.winTypeAtoms[atom]; ok {
			return wt
		}
	}
	return TypeNormal
}

func (c *Context) handleConfigure(e xproto.ConfigureNotifyEvent) {
	if e.Window == c.sess.Root {
		c.InvalidateRootBuffer()
		c.sess.RootWidth = int(e.Width)
		c.sess.RootHeight = int(e.Height)
		return
	}
	w := c.registry.Find(e.Window)
	if w == nil {
		return
	}

	// Copy (not take) the old extents: w.Extents itself is about to be
	// released below, but the accumulator takes ownership of whatever
	// is handed to Add, so a live reference to the cached handle's own
	// region must never reach it directly.
	priorExtents := c.copyRegion(w.Extents)

	dx := e.X - w.Geometry.X
	dy := e.Y - w.Geometry.Y
	sizeChanged := w.Geometry.Width != e.Width || w.Geometry.Height != e.Height
	w.Geometry = Geometry{X: e.X, Y: e.Y, Width: e.Width, Height: e.Height, BorderWidth: e.BorderWidth}
	if sizeChanged {
		w.Pixmap.Release()
		w.Picture.Release()
		w.invalidateShadow()
	}
	if w.Shaped {
		w.ShapeBounds.X += dx
		w.ShapeBounds.Y += dy
	} else {
		w.ShapeBounds = w.Geometry
	}
	c.registry.Restack(w, e.AboveSibling)

	w.Extents.Release()
	var newExtents xfixes.Region
	if err := c.EnsureExtents(w); err == nil {
		newExtents = c.copyRegion(w.Extents)
	}

	switch {
	case priorExtents != 0 && newExtents != 0:
		cookie := xfixes.UnionRegion(c.sess.Conn, newExtents, newExtents, priorExtents)
		c.ignore.NoteIgnorable(uint32(cookie.Sequence))
		destroyCookie := xfixes.DestroyRegion(c.sess.Conn, priorExtents)
		c.ignore.NoteIgnorable(uint32(destroyCookie.Sequence))
		c.damage.Add(c, newExtents)
	case priorExtents != 0:
		c.damage.Add(c, priorExtents)
	case newExtents != 0:
		c.damage.Add(c, newExtents)
	}

	c.clipChanged = true
}

// copyRegion duplicates the region currently cached in h into a freshly
// allocated region, leaving h itself untouched and still valid. Returns
// 0 if h is invalid or on allocation failure. Every handler that must
// hand a cached region's contents to the damage accumulator (which
// takes ownership of whatever it's given) goes through this rather
// than passing the cache's own region directly, matching the pattern
// DetermineMode already uses.
func (c *Context) copyRegion(h handle[xfixes.Region]) xfixes.Region {
	region, ok := h.Get()
	if !ok {
		return 0
	}
	copyID, err := xfixes.NewRegionId(c.sess.Conn)
	if err != nil {
		return 0
	}
	if xfixes.CreateRegionChecked(c.sess.Conn, copyID, nil).Check() != nil {
		return 0
	}
	if xfixes.CopyRegionChecked(c.sess.Conn, region, copyID).Check() != nil {
		return 0
	}
	return copyID
}

func (c *Context) handleDestroy(id xproto.Window, gone bool) {
	w := c.registry.Find(id)
	if w == nil {
		return
	}
	finish := fadeFinish{kind: fadeDestroyFinish, win: w, gone: gone}
	if w.Pixmap.Valid() {
		c.fades.Enqueue(w, float64(w.Opacity)/float64(OPAQUE), 0, c.cfg.FadeOutStep, finish, false)
		return
	}
	c.finishDestroy(w, gone)
}

func (c *Context) finishDestroy(w *Window, gone bool) {
	c.finishUnmap(w)
	if w.damageObj != 0 {
		_ = damage.DestroyChecked(c.sess.Conn, w.damageObj).Check()
	}
	c.fades.Cancel(w)
	c.registry.remove(w)
}

func (c *Context) handleMap(id xproto.Window, fade bool) {
	w := c.registry.Find(id)
	if w == nil {
		return
	}
	w.MapState = Viewable
	_ = xproto.ChangeWindowAttributesChecked(c.sess.Conn, id, xproto.CwEventMask,
		[]uint32{uint32(xproto.EventMaskPropertyChange)}).Check()

	w.Opacity = c.opacityOf(w)
	c.DetermineMode(w)
	w.Damaged = false

	if fade && c.cfg.FadeOnMapUnmap {
		c.fades.Enqueue(w, 0, float64(w.Opacity)/float64(OPAQUE), c.cfg.FadeInStep, fadeFinish{}, true)
	}
}

func (c *Context) handleUnmap(id xproto.Window, fade bool) {
	w := c.registry.Find(id)
	if w == nil {
		return
	}
	w.MapState = Unmapped
	if w.Pixmap.Valid() && fade && c.cfg.FadeOnMapUnmap {
		finish := fadeFinish{kind: fadeUnmapFinish, win: w}
		c.fades.Enqueue(w, float64(w.Opacity)/float64(OPAQUE), 0, c.cfg.FadeOutStep, finish, false)
		return
	}
	c.finishUnmap(w)
}

// finishUnmap releases every resource cached for w (via Window.releaseAll,
// covering Pixmap/Picture/AlphaPict/ShadowPict/Shadow/BorderSize/
// Extents/BorderClip) and folds its last-known extents into the
// accumulated damage so the screen area it vacates gets repainted.
// The extents region is copied before releaseAll destroys the cached
// original, since the accumulator takes ownership of whatever it's
// handed.
func (c *Context) finishUnmap(w *Window) {
	w.Damaged = false
	extents := c.copyRegion(w.Extents)
	w.releaseAll()
	if extents != 0 {
		c.damage.Add(c, extents)
	}
	_ = xproto.ChangeWindowAttributesChecked(c.sess.Conn, w.ID, xproto.CwEventMask, []uint32{0}).Check()
	c.clipChanged = true
}

func (c *Context) onFadeFinish(f fadeFinish) {
	if f.kind == fadeNone || f.win == nil {
		return
	}
	switch f.kind {
	case fadeUnmapFinish:
		c.finishUnmap(f.win)
	case fadeDestroyFinish:
		c.finishDestroy(f.win, f.gone)
	}
}

func (c *Context) opacityOf(w *Window) uint32 {
	reply, err := xproto.GetProperty(c.sess.Conn, false, w.ID, c.opacityAtom, xproto.AtomCardinal, 0, 1).Reply()
	if err != nil || reply.Format != 32 || reply.ValueLen != 1 {
		return OPAQUE
	}
	return xgb.Get32(reply.Value)
}

func (c *Context) handleCirculate(e xproto.CirculateNotifyEvent) {
	w := c.registry.Find(e.Window)
	if w == nil {
		return
	}
	place := PlaceOnBottom
	if e.Place == xproto.PlaceOnTop {
		place = PlaceOnTop
	}
	c.registry.Circulate(w, place)
	c.clipChanged = true
}

func (c *Context) handleExpose(e xproto.ExposeEvent) {
	if e.Window != c.sess.Root {
		return
	}
	c.exposeRects = append(c.exposeRects, xproto.Rectangle{X: int16(e.X), Y: int16(e.Y), Width: e.Width, Height: e.Height})
	if e.Count != 0 {
		return
	}
	rects := c.exposeRects
	c.exposeRects = nil

	region, err := xfixes.NewRegionId(c.sess.Conn)
	if err != nil {
		return
	}
	if xfixes.CreateRegionChecked(c.sess.Conn, region, rects).Check() != nil {
		return
	}
	c.damage.Add(c, region)
}

func (c *Context) handleProperty(e xproto.PropertyNotifyEvent) {
	if c.isBackgroundAtom(e.Atom) {
		if _, ok := c.rootTile.Get(); ok {
			c.rootTile.Release()
		}
		return
	}
	if e.Atom != c.opacityAtom {
		return
	}
	w := c.registry.Find(e.Window)
	if w == nil {
		return
	}

	if c.cfg.FadeOnOpacity {
		start := float64(w.Opacity) / float64(OPAQUE)
		finish := float64(c.opacityOf(w)) / float64(OPAQUE)
		step := c.cfg.FadeOutStep
		if start < finish {
			step = c.cfg.FadeInStep
		}
		c.fades.Enqueue(w, start, finish, step, fadeFinish{}, true)
		return
	}

	w.Opacity = c.opacityOf(w)
	c.DetermineMode(w)
	if w.Shadow != nil {
		w.invalidateShadow()
		w.Extents.Release()
	}
}

func (c *Context) handleDamage(e damage.NotifyEvent) {
	w := c.registry.Find(xproto.Window(e.Drawable))
	if w == nil {
		return
	}
	c.repair(w)
}

// repair subtracts w's accrued damage and folds it (translated to
// root coordinates) into the frame's pending damage, matching
// xcompmgr.c's repair_win.
func (c *Context) repair(w *Window) {
	var parts xfixes.Region
	if !w.Damaged {
		if err := c.EnsureExtents(w); err == nil {
			if region, ok := w.Extents.Get(); ok {
				copyID, err := xfixes.NewRegionId(c.sess.Conn)
				if err == nil && xfixes.CreateRegionChecked(c.sess.Conn, copyID, nil).Check() == nil {
					_ = xfixes.CopyRegionChecked(c.sess.Conn, region, copyID).Check()
					parts = copyID
				}
			}
		}
		cookie := damage.Subtract(c.sess.Conn, w.damageObj, 0, 0)
		c.ignore.NoteIgnorable(uint32(cookie.Sequence))
	} else {
		region, err := xfixes.NewRegionId(c.sess.Conn)
		if err != nil {
			return
		}
		if xfixes.CreateRegionChecked(c.sess.Conn, region, nil).Check() != nil {
			return
		}
		cookie := damage.Subtract(c.sess.Conn, w.damageObj, 0, region)
		c.ignore.NoteIgnorable(uint32(cookie.Sequence))
		dx := int16(w.Geometry.X) + int16(w.Geometry.BorderWidth)
		dy := int16(w.Geometry.Y) + int16(w.Geometry.BorderWidth)
		_ = xfixes.TranslateRegionChecked(c.sess.Conn, region, dx, dy).Check()

		if c.cfg.Mode == ServerShadows {
			shifted, err := xfixes.NewRegionId(c.sess.Conn)
			if err == nil && xfixes.CreateRegionChecked(c.sess.Conn, shifted, nil).Check() == nil {
				_ = xfixes.CopyRegionChecked(c.sess.Conn, region, shifted).Check()
				_ = xfixes.TranslateRegionChecked(c.sess.Conn, shifted, int16(w.ShadowDX), int16(w.ShadowDY)).Check()
				cookie := xfixes.UnionRegion(c.sess.Conn, region, region, shifted)
				c.ignore.NoteIgnorable(uint32(cookie.Sequence))
				destroyCookie := xfixes.DestroyRegion(c.sess.Conn, shifted)
				c.ignore.NoteIgnorable(uint32(destroyCookie.Sequence))
			}
		}
		parts = region
	}
	c.damage.Add(c, parts)
	w.Damaged = true
}

const (
	shapeKindBounding = 0
	shapeKindClip     = 1
)

func (c *Context) handleShape(e shape.NotifyEvent) {
	w := c.registry.Find(e.AffectedWindow)
	if w == nil {
		return
	}
	if e.ShapeKind != shapeKindBounding && e.ShapeKind != shapeKindClip {
		return
	}
	c.clipChanged = true

	before, err := xfixes.NewRegionId(c.sess.Conn)
	if err != nil {
		return
	}
	beforeRect := xproto.Rectangle{
		X: w.ShapeBounds.X, Y: w.ShapeBounds.Y,
		Width: w.ShapeBounds.Width, Height: w.ShapeBounds.Height,
	}
	if xfixes.CreateRegionChecked(c.sess.Conn, before, []xproto.Rectangle{beforeRect}).Check() != nil {
		return
	}

	w.Shaped = e.Shaped
	w.ShapeBounds = Geometry{
		X: w.Geometry.X + e.ExtentsX, Y: w.Geometry.Y + e.ExtentsY,
		Width: e.ExtentsWidth, Height: e.ExtentsHeight,
	}
	if !w.Shaped {
		w.ShapeBounds.Width = w.Geometry.Width
		w.ShapeBounds.Height = w.Geometry.Height
	}

	after, err := xfixes.NewRegionId(c.sess.Conn)
	if err == nil {
		afterRect := xproto.Rectangle{
			X: w.ShapeBounds.X, Y: w.ShapeBounds.Y,
			Width: w.ShapeBounds.Width, Height: w.ShapeBounds.Height,
		}
		if xfixes.CreateRegionChecked(c.sess.Conn, after, []xproto.Rectangle{afterRect}).Check() == nil {
			cookie := xfixes.UnionRegion(c.sess.Conn, before, before, after)
			c.ignore.NoteIgnorable(uint32(cookie.Sequence))
			destroyCookie := xfixes.DestroyRegion(c.sess.Conn, after)
			c.ignore.NoteIgnorable(uint32(destroyCookie.Sequence))
		}
	}

	w.BorderSize.Release()
	w.Extents.Release()
	c.damage.Add(c, before)
}

// This file is part of the program "xcompositor".
// Please see the LICENSE file for copyright information.

package compositor

import (
	"fmt"

	"github.com/BurntSushi/xgb/render"
	"github.com/BurntSushi/xgb/xfixes"
	"github.com/BurntSushi/xgb/xproto"
)

// PaintAll composites every damaged, visible window into the root
// window, clipped to region (the whole screen if region is 0).
// Grounded on xcompmgr.c's paint_all: a bottom-to-top sweep that
// paints opaque windows directly and records each window's remaining
// exposed clip, followed by a top-to-bottom sweep painting shadows
// and translucent/argb windows through that clip.
func (c *Context) PaintAll(region xfixes.Region) error {
	owned := region == 0
	if owned {
		rect := xproto.Rectangle{Width: uint16(c.sess.RootWidth), Height: uint16(c.sess.RootHeight)}
		r, err := xfixes.NewRegionId(c.sess.Conn)
		if err != nil {
			return fmt.Errorf("allocate paint region id: %w", err)
		}
		if err := xfixes.CreateRegionChecked(c.sess.Conn, r, []xproto.Rectangle{rect}).Check(); err != nil {
			return fmt.Errorf("create paint region: %w", err)
		}
		region = r
	}

	buffer, err := c.ensureRootBuffer()
	if err != nil {
		return err
	}

	var order []*Window
	for _, w := range c.registry.Windows() {
		if !w.Damaged || !w.Visible(c.sess.RootWidth, c.sess.RootHeight) {
			continue
		}

		if err := c.EnsurePicture(w); err != nil {
			return err
		}
		if c.clipChanged {
			w.InvalidateClip()
		}
		if err := c.EnsureBorderSize(w); err != nil {
			return err
		}
		if err := c.EnsureExtents(w); err != nil {
			return err
		}

		if w.Mode == Solid {
			x, y, wid, hei := c.contentRect(w)

			if err := xfixes.SetPictureClipRegionChecked(c.sess.Conn, buffer, region, 0, 0).Check(); err != nil {
				return fmt.Errorf("clip root buffer: %w", err)
			}
			if borderSize, ok := w.BorderSize.Get(); ok {
				cookie := xfixes.SubtractRegion(c.sess.Conn, region, region, borderSize)
				c.ignore.NoteIgnorable(uint32(cookie.Sequence))
			}
			if picture, ok := w.Picture.Get(); ok {
				cookie := render.Composite(c.sess.Conn, render.PictOpSrc, picture, 0, buffer,
					0, 0, 0, 0, x, y, wid, hei)
				c.ignore.NoteIgnorable(uint32(cookie.Sequence))
			}
		}

		if !w.BorderClip.Valid() {
			clip, err := xfixes.NewRegionId(c.sess.Conn)
			if err != nil {
				return fmt.Errorf("allocate border clip id: %w", err)
			}
			if err := xfixes.CreateRegionChecked(c.sess.Conn, clip, nil).Check(); err != nil {
				return fmt.Errorf("create border clip: %w", err)
			}
			if err := xfixes.CopyRegionChecked(c.sess.Conn, region, clip).Check(); err != nil {
				return fmt.Errorf("copy border clip: %w", err)
			}
			w.BorderClip.set(clip, func(r xfixes.Region) {
				_ = xfixes.DestroyRegionChecked(c.sess.Conn, r).Check()
			})
		}

		order = append(order, w)
	}

	if err := xfixes.SetPictureClipRegionChecked(c.sess.Conn, buffer, region, 0, 0).Check(); err != nil {
		return fmt.Errorf("clip root buffer for background: %w", err)
	}
	if err := c.paintRoot(buffer); err != nil {
		return err
	}

	for i := len(order) - 1; i >= 0; i-- {
		w := order[i]
		borderClip, _ := w.BorderClip.Get()

		if err := xfixes.SetPictureClipRegionChecked(c.sess.Conn, buffer, borderClip, 0, 0).Check(); err != nil {
			return fmt.Errorf("clip root buffer to window: %w", err)
		}

		if err := c.paintWindowShadow(buffer, w); err != nil {
			return err
		}

		if w.Opacity != OPAQUE && !w.AlphaPict.Valid() {
			alpha, err := c.solidPicture(false, float64(w.Opacity)/float64(OPAQUE), 0, 0, 0)
			if err != nil {
				return fmt.Errorf("create window alpha picture: %w", err)
			}
			w.AlphaPict.set(alpha, func(p render.Picture) { render.FreePicture(c.sess.Conn, p) })
		}

		if w.Mode == Trans || w.Mode == Argb {
			if borderSize, ok := w.BorderSize.Get(); ok {
				cookie := xfixes.IntersectRegion(c.sess.Conn, borderClip, borderClip, borderSize)
				c.ignore.NoteIgnorable(uint32(cookie.Sequence))
			}
			if err := xfixes.SetPictureClipRegionChecked(c.sess.Conn, buffer, borderClip, 0, 0).Check(); err != nil {
				return fmt.Errorf("clip root buffer to border size: %w", err)
			}

			x, y, wid, hei := c.contentRect(w)
			picture, hasPicture := w.Picture.Get()
			alpha, _ := w.AlphaPict.Get()
			if hasPicture {
				cookie := render.Composite(c.sess.Conn, render.PictOpOver, picture, alpha, buffer,
					0, 0, 0, 0, x, y, wid, hei)
				c.ignore.NoteIgnorable(uint32(cookie.Sequence))
			}
		}

		w.BorderClip.Release()
	}

	// region is consumed here regardless of who created it, matching
	// paint_all's unconditional XFixesDestroyRegion at its tail: the
	// caller must not reference it again after this call.
	_ = xfixes.DestroyRegionChecked(c.sess.Conn, region).Check()

	if buffer != c.rootPicture {
		if err := xfixes.SetPictureClipRegionChecked(c.sess.Conn, buffer, 0, 0, 0).Check(); err != nil {
			return fmt.Errorf("clear root buffer clip: %w", err)
		}
		cookie := render.Composite(c.sess.Conn, render.PictOpSrc, buffer, 0, c.rootPicture,
			0, 0, 0, 0, 0, 0, uint16(c.sess.RootWidth), uint16(c.sess.RootHeight))
		c.ignore.NoteIgnorable(uint32(cookie.Sequence))
	}

	c.clipChanged = false
	return nil
}

// contentRect reports the rectangle (in root coordinates) a window's
// content picture should be composited at. With the named-window-
// pixmap extension the pixmap already encompasses the border;
// without it the border is skipped and only the interior is drawn.
// Mirrors the HAS_NAME_WINDOW_PIXMAP branches throughout paint_all.
func (c *Context) contentRect(w *Window) (x, y int16, wid, hei uint16) {
	if c.sess.HasNamePixmap {
		return w.Geometry.X, w.Geometry.Y,
			w.Geometry.Width + 2*w.Geometry.BorderWidth,
			w.Geometry.Height + 2*w.Geometry.BorderWidth
	}
	return w.Geometry.X + int16(w.Geometry.BorderWidth), w.Geometry.Y + int16(w.Geometry.BorderWidth),
		w.Geometry.Width, w.Geometry.Height
}

// paintWindowShadow draws w's shadow (if any applies under the
// current Mode) into buffer, ahead of the window's own content.
// Grounded on the switch over compMode inside paint_all's top-down
// pass.
func (c *Context) paintWindowShadow(buffer render.Picture, w *Window) error {
	switch c.cfg.Mode {
	case Simple:
		return nil

	case ServerShadows:
		if w.WindowType == TypeDesktop {
			return nil
		}
		if w.Opacity != OPAQUE && !w.ShadowPict.Valid() {
			pict, err := c.solidPicture(true, float64(w.Opacity)/float64(OPAQUE)*0.3, 0, 0, 0)
			if err != nil {
				return fmt.Errorf("create per-window shadow picture: %w", err)
			}
			w.ShadowPict.set(pict, func(p render.Picture) { render.FreePicture(c.sess.Conn, p) })
		}
		src := c.transBlack
		if p, ok := w.ShadowPict.Get(); ok {
			src = p
		}
		picture, _ := w.Picture.Get()
		cookie := render.Composite(c.sess.Conn, render.PictOpOver, src, picture, buffer,
			0, 0, 0, 0,
			w.Geometry.X+int16(w.ShadowDX), w.Geometry.Y+int16(w.ShadowDY),
			uint16(w.ShadowWidth), uint16(w.ShadowHeight))
		c.ignore.NoteIgnorable(uint32(cookie.Sequence))
		return nil

	case ClientShadows:
		if w.Shadow == nil || w.WindowType == TypeDesktop {
			return nil
		}
		shadowPict, ok := w.Shadow.picture.Get()
		if !ok {
			return nil
		}
		cookie := render.Composite(c.sess.Conn, render.PictOpOver, c.blackPicture, shadowPict, buffer,
			0, 0, 0, 0,
			w.Geometry.X+int16(w.ShadowDX), w.Geometry.Y+int16(w.ShadowDY),
			uint16(w.ShadowWidth), uint16(w.ShadowHeight))
		c.ignore.NoteIgnorable(uint32(cookie.Sequence))
		return nil
	}
	return nil
}

// paintRoot composites the desktop background tile into buffer,
// matching xcompmgr.c's paint_root.
func (c *Context) paintRoot(buffer render.Picture) error {
	tile, err := c.RootTile()
	if err != nil {
		return fmt.Errorf("root tile: %w", err)
	}
	cookie := render.Composite(c.sess.Conn, render.PictOpSrc, tile, 0, buffer,
		0, 0, 0, 0, 0, 0, uint16(c.sess.RootWidth), uint16(c.sess.RootHeight))
	c.ignore.NoteIgnorable(uint32(cookie.Sequence))
	return nil
}

// ensureRootBuffer lazily allocates the off-screen Picture every
// frame is assembled into before being copied to the visible root
// Picture in one final composite, matching xcompmgr.c's rootBuffer
// (the non-MONITOR_REPAINT branch of paint_all).
func (c *Context) ensureRootBuffer() (render.Picture, error) {
	if p, ok := c.rootBuffer.Get(); ok {
		return p, nil
	}

	depth := c.sess.XU.Screen().RootDepth
	pixmap, err := xproto.NewPixmapId(c.sess.Conn)
	if err != nil {
		return 0, fmt.Errorf("allocate root buffer pixmap id: %w", err)
	}
	if err := xproto.CreatePixmapChecked(
		c.sess.Conn, depth, pixmap, xproto.Drawable(c.sess.Root),
		uint16(c.sess.RootWidth), uint16(c.sess.RootHeight),
	).Check(); err != nil {
		return 0, fmt.Errorf("create root buffer pixmap: %w", err)
	}
	c.rootBufferPx.set(pixmap, func(p xproto.Pixmap) { xproto.FreePixmap(c.sess.Conn, p) })

	format, err := c.findRootVisualFormat()
	if err != nil {
		return 0, err
	}
	pid, err := render.NewPictureId(c.sess.Conn)
	if err != nil {
		return 0, fmt.Errorf("allocate root buffer picture id: %w", err)
	}
	if err := render.CreatePictureChecked(c.sess.Conn, pid, xproto.Drawable(pixmap), format, 0, nil).Check(); err != nil {
		return 0, fmt.Errorf("create root buffer picture: %w", err)
	}
	c.rootBuffer.set(pid, func(p render.Picture) { render.FreePicture(c.sess.Conn, p) })
	return pid, nil
}

// InvalidateRootBuffer releases the off-screen frame buffer, forcing
// ensureRootBuffer to rebuild it at root's new size. Called on root
// ConfigureNotify (a screen resize), matching xcompmgr.c's handling
// around its rootBuffer teardown.
func (c *Context) InvalidateRootBuffer() {
	c.rootBuffer.Release()
	c.rootBufferPx.Release()
}

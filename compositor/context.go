// This file is part of the program "xcompositor".
// Please see the LICENSE file for copyright information.

package compositor

import (
	"fmt"
	"log"

	"github.com/BurntSushi/xgb/render"
	"github.com/BurntSushi/xgb/xproto"
)

// Context is the single value every operation in the engine threads
// through, consolidating xcompmgr.c's process-wide globals (current
// mode, root pictures, the damage accumulator, the ignore-set, the
// fade list) per the redesign flag in SPEC_FULL.md §9.
type Context struct {
	sess   *Session
	cfg    Config
	logger *log.Logger

	registry Registry
	ignore   IgnoreSet
	damage   DamageAccumulator
	fades    *FadeScheduler
	shadows  *ShadowKernel

	opacityAtom    xproto.Atom
	winTypeAtom    xproto.Atom
	winTypeAtoms   map[xproto.Atom]WindowType
	rootPixmapAtom xproto.Atom
	setRootAtom    xproto.Atom

	rootPicture  render.Picture
	rootBuffer   handle[render.Picture]
	rootBufferPx handle[xproto.Pixmap]
	blackPicture render.Picture
	transBlack   render.Picture
	rootTile     handle[render.Picture]

	clipChanged bool

	exposeRects []xproto.Rectangle
}

// NewContext wires a Session and Config into a running Context. It
// performs the one-time Render setup (root picture, solid-color
// pictures) described by SPEC_FULL.md §4.9/xcompmgr.c's main().
func NewContext(sess *Session, cfg Config, logger *log.Logger) (*Context, error) {
	if logger == nil {
		logger = log.Default()
	}
	c := &Context{
		sess:         sess,
		cfg:          cfg,
		logger:       logger,
		fades:        NewFadeScheduler(cfg.FadeDelta),
		clipChanged:  true,
		winTypeAtoms: make(map[xproto.Atom]WindowType),
	}

	if cfg.Mode == ClientShadows {
		c.shadows = NewShadowKernel(cfg.ShadowRadius)
	}

	if err := c.internAtoms(); err != nil {
		return nil, err
	}

	if err := c.setupRenderGlobals(); err != nil {
		return nil, err
	}

	return c, nil
}

func (c *Context) internAtoms() error {
	var err error
	if c.opacityAtom, err = c.sess.Atom("_NET_WM_WINDOW_OPACITY"); err != nil {
		return err
	}
	if c.winTypeAtom, err = c.sess.Atom("_NET_WM_WINDOW_TYPE"); err != nil {
		return err
	}
	if c.rootPixmapAtom, err = c.sess.Atom("_XROOTPMAP_ID"); err != nil {
		return err
	}
	if c.setRootAtom, err = c.sess.Atom("_XSETROOT_ID"); err != nil {
		return err
	}

	named := map[string]WindowType{
		"_NET_WM_WINDOW_TYPE_DESKTOP": TypeDesktop,
		"_NET_WM_WINDOW_TYPE_DOCK":    TypeDock,
		"_NET_WM_WINDOW_TYPE_TOOLBAR": TypeToolbar,
		"_NET_WM_WINDOW_TYPE_MENU":    TypeMenu,
		"_NET_WM_WINDOW_TYPE_UTILITY": TypeUtility,
		"_NET_WM_WINDOW_TYPE_SPLASH":  TypeSplash,
		"_NET_WM_WINDOW_TYPE_DIALOG":  TypeDialog,
		"_NET_WM_WINDOW_TYPE_NORMAL":  TypeNormal,
	}
	for name, wt := range named {
		a, err := c.sess.Atom(name)
		if err != nil {
			return err
		}
		c.winTypeAtoms[a] = wt
	}
	return nil
}

// isBackgroundAtom reports whether atom is one of the background-image
// properties the engine watches to invalidate rootTile.
func (c *Context) isBackgroundAtom(atom xproto.Atom) bool {
	return atom == c.rootPixmapAtom || atom == c.setRootAtom
}

// setupRenderGlobals creates the Render resources xcompmgr.c's main()
// builds once at startup: a Picture over root itself (with
// IncludeInferiors subwindow mode, so the root's own Picture already
// samples mapped children), an opaque black solid-fill Picture used to
// paint shadows, and (in ServerShadows mode) a 30%-alpha black Picture
// used as xcompmgr.c's constant shadow opacity.
func (c *Context) setupRenderGlobals() error {
	format, err := c.findRootVisualFormat()
	if err != nil {
		return err
	}

	pid, err := render.NewPictureId(c.sess.Conn)
	if err != nil {
		return fmt.Errorf("allocate root picture id: %w", err)
	}
	mode := uint32(xproto.SubwindowModeIncludeInferiors)
	if err := render.CreatePictureChecked(
		c.sess.Conn, pid, xproto.Drawable(c.sess.Root), format,
		render.CpSubwindowMode, []uint32{mode},
	).Check(); err != nil {
		return fmt.Errorf("create root picture: %w", err)
	}
	c.rootPicture = pid

	black, err := c.solidPicture(true, 1, 0, 0, 0)
	if err != nil {
		return fmt.Errorf("create black picture: %w", err)
	}
	c.blackPicture = black

	if c.cfg.Mode == ServerShadows {
		transBlack, err := c.solidPicture(true, 0.3, 0, 0, 0)
		if err != nil {
			return fmt.Errorf("create translucent-black picture: %w", err)
		}
		c.transBlack = transBlack
	}

	return nil
}

// findRootVisualFormat locates the Pictformat matching the root
// window's depth, the Go equivalent of xcompmgr.c's
// XRenderFindVisualFormat(dpy, DefaultVisual(dpy, scr)). Root windows
// are virtually always opaque (no per-pixel alpha), so this matches
// by direct-format depth rather than walking the per-screen
// visual-to-format table.
func (c *Context) findRootVisualFormat() (render.Pictformat, error) {
	return c.directFormatByDepth(c.sess.XU.Screen().RootDepth, false)
}

// solidPicture builds a 1x1, repeating solid-color Picture, the Go
// equivalent of xcompmgr.c's solid_picture. argb selects an ARGB32
// pixmap (for colors with non-opaque alpha); otherwise an 8-bit alpha
// pixmap is used, matching the original's PictStandardA8 case (taken
// by PaintAll when it builds a window's AlphaPict).
func (c *Context) solidPicture(argb bool, a, r, g, b float64) (render.Picture, error) {
	depth := uint8(8)
	if argb {
		depth = 32
	}
	pixmap, err := xproto.NewPixmapId(c.sess.Conn)
	if err != nil {
		return 0, err
	}
	if err := xproto.CreatePixmapChecked(
		c.sess.Conn, depth, pixmap, xproto.Drawable(c.sess.Root), 1, 1,
	).Check(); err != nil {
		return 0, err
	}
	defer xproto.FreePixmap(c.sess.Conn, pixmap)

	format, err := c.standardFormat(argb)
	if err != nil {
		return 0, err
	}

	pid, err := render.NewPictureId(c.sess.Conn)
	if err != nil {
		return 0, err
	}
	if err := render.CreatePictureChecked(
		c.sess.Conn, pid, xproto.Drawable(pixmap), format,
		render.CpRepeat, []uint32{render.RepeatNormal},
	).Check(); err != nil {
		return 0, err
	}

	color := render.Color{
		Red:   uint16(r * 0xffff),
		Green: uint16(g * 0xffff),
		Blue:  uint16(b * 0xffff),
		Alpha: uint16(a * 0xffff),
	}
	rect := xproto.Rectangle{X: 0, Y: 0, Width: 1, Height: 1}
	if err := render.FillRectanglesChecked(
		c.sess.Conn, render.PictOpSrc, pid, color, []xproto.Rectangle{rect},
	).Check(); err != nil {
		return 0, err
	}
	return pid, nil
}

// standardFormat finds the PictStandardARGB32 or PictStandardA8
// format, matching xcompmgr.c's XRenderFindStandardFormat calls in
// solid_picture.
func (c *Context) standardFormat(argb bool) (render.Pictformat, error) {
	if argb {
		return c.directFormatByDepth(32, true)
	}
	return c.directFormatByDepth(8, false)
}

// directFormatByDepth scans the server's advertised Pictforminfo list
// for a PictTypeDirect format of the given depth, optionally requiring
// a non-zero alpha mask (an ARGB format rather than a plain RGB one).
func (c *Context) directFormatByDepth(depth byte, wantAlpha bool) (render.Pictformat, error) {
	reply, err := render.QueryPictFormats(c.sess.Conn).Reply()
	if err != nil {
		return 0, fmt.Errorf("query pict formats: %w", err)
	}
	for _, f := range reply.Formats {
		if f.Type != render.PictTypeDirect || f.Depth != depth {
			continue
		}
		if wantAlpha && f.Direct.AlphaMask == 0 {
			continue
		}
		return f.Id, nil
	}
	return 0, fmt.Errorf("no direct pictformat for depth %d (alpha=%v)", depth, wantAlpha)
}

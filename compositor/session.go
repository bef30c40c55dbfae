// This file is part of the program "xcompositor".
// Please see the LICENSE file for copyright information.

package compositor

import (
	"fmt"

	"github.com/BurntSushi/xgb"
	"github.com/BurntSushi/xgb/composite"
	"github.com/BurntSushi/xgb/damage"
	"github.com/BurntSushi/xgb/render"
	"github.com/BurntSushi/xgb/shape"
	"github.com/BurntSushi/xgb/xfixes"
	"github.com/BurntSushi/xgb/xproto"
	"github.com/BurntSushi/xgbutil"
	"github.com/BurntSushi/xgbutil/ewmh"
	"github.com/BurntSushi/xgbutil/icccm"
	"github.com/BurntSushi/xgbutil/xprop"
)

// RedirectMode selects CompositeRedirectManual or
// CompositeRedirectAutomatic, per SPEC_FULL.md §6.
type RedirectMode int

const (
	RedirectManual RedirectMode = iota
	RedirectAutomatic
)

// Session owns the display connection, the extensions it depends on,
// and the manager-selection handshake. It is the Go home for what
// SPEC_FULL.md calls C9, and for the "opaque transport" the core spec
// treats the X11 protocol as.
type Session struct {
	XU   *xgbutil.XUtil
	Conn *xgb.Conn
	Root xproto.Window

	RootWidth, RootHeight int

	// HasNamePixmap is true when Composite >= 0.2 is available, in
	// which case window contents are snapshotted via
	// composite.NameWindowPixmap; otherwise the window drawable
	// itself is used directly with IncludeInferiors.
	HasNamePixmap bool

	atoms map[string]xproto.Atom
}

// Open connects to displayName (the empty string selects $DISPLAY)
// and initializes every extension the engine depends on. Per
// SPEC_FULL.md §6, absence of any of them is a fatal error.
func Open(displayName string) (*Session, error) {
	xu, err := xgbutilNewConn(displayName)
	if err != nil {
		return nil, fmt.Errorf("connect to display: %w", err)
	}

	conn := xu.Conn()
	root := xu.RootWin()

	if err := composite.Init(conn); err != nil {
		return nil, fmt.Errorf("composite extension unavailable: %w", err)
	}
	hasNamePixmap := false
	if reply, err := composite.QueryVersion(conn, 0, 2).Reply(); err == nil {
		if reply.MajorVersion > 0 || reply.MinorVersion >= 2 {
			hasNamePixmap = true
		}
	}

	if err := damage.Init(conn); err != nil {
		return nil, fmt.Errorf("damage extension unavailable: %w", err)
	}
	if err := xfixes.Init(conn); err != nil {
		return nil, fmt.Errorf("xfixes extension unavailable: %w", err)
	}
	if _, err := xfixes.QueryVersion(conn, 4, 0).Reply(); err != nil {
		return nil, fmt.Errorf("xfixes query version: %w", err)
	}
	if err := render.Init(conn); err != nil {
		return nil, fmt.Errorf("render extension unavailable: %w", err)
	}
	if err := shape.Init(conn); err != nil {
		return nil, fmt.Errorf("shape extension unavailable: %w", err)
	}

	screen := xu.Screen()

	s := &Session{
		XU:            xu,
		Conn:          conn,
		Root:          root,
		RootWidth:     int(screen.WidthInPixels),
		RootHeight:    int(screen.HeightInPixels),
		HasNamePixmap: hasNamePixmap,
		atoms:         make(map[string]xproto.Atom),
	}
	return s, nil
}

// xgbutilNewConn is a thin seam over xgbutil.NewConn/NewConnDisplay so
// tests can substitute a fake connection without touching a real
// display.
var xgbutilNewConn = func(displayName string) (*xgbutil.XUtil, error) {
	if displayName == "" {
		return xgbutil.NewConn()
	}
	return xgbutil.NewConnDisplay(displayName)
}

// Atom interns name, caching the result so repeated lookups (every
// PropertyNotify re-reads an atom by name) don't round-trip.
func (s *Session) Atom(name string) (xproto.Atom, error) {
	if a, ok := s.atoms[name]; ok {
		return a, nil
	}
	a, err := xprop.Atm(s.XU, name)
	if err != nil {
		return 0, fmt.Errorf("intern atom %s: %w", name, err)
	}
	s.atoms[name] = a
	return a, nil
}

// AcquireManagerSelection attempts to own _NET_WM_CM_S<screen>. If
// another client already owns it, its _NET_WM_NAME (or WM_NAME) is
// read and an error naming it is returned, per SPEC_FULL.md §6.
func (s *Session) AcquireManagerSelection(screen int) error {
	name := fmt.Sprintf("_NET_WM_CM_S%d", screen)
	atom, err := s.Atom(name)
	if err != nil {
		return err
	}

	owner, err := xproto.GetSelectionOwner(s.Conn, atom).Reply()
	if err != nil {
		return fmt.Errorf("query selection owner: %w", err)
	}
	if owner.Owner != 0 {
		incumbent, nerr := ewmh.WmNameGet(s.XU, owner.Owner)
		if nerr != nil || incumbent == "" {
			incumbent, nerr = icccm.WmNameGet(s.XU, owner.Owner)
		}
		if nerr != nil || incumbent == "" {
			incumbent = "unknown client"
		}
		return fmt.Errorf("another compositing manager is already running (%s)", incumbent)
	}

	win, err := xproto.NewWindowId(s.Conn)
	if err != nil {
		return fmt.Errorf("allocate selection window: %w", err)
	}
	screenInfo := s.XU.Screen()
	if err := xproto.CreateWindowChecked(
		s.Conn, screenInfo.RootDepth, win, s.Root,
		-1, -1, 1, 1, 0,
		xproto.WindowClassInputOutput, screenInfo.RootVisual,
		0, nil,
	).Check(); err != nil {
		return fmt.Errorf("create selection window: %w", err)
	}

	if err := xproto.SetSelectionOwnerChecked(s.Conn, win, atom, xproto.TimeCurrentTime).Check(); err != nil {
		return fmt.Errorf("set selection owner: %w", err)
	}
	return nil
}

// RedirectSubtree issues CompositeRedirectSubwindows on root in the
// given mode.
func (s *Session) RedirectSubtree(mode RedirectMode) error {
	rm := uint8(composite.RedirectManual)
	if mode == RedirectAutomatic {
		rm = uint8(composite.RedirectAutomatic)
	}
	return composite.RedirectSubwindowsChecked(s.Conn, s.Root, rm).Check()
}

// SelectRootEvents subscribes to the root-window event masks named in
// SPEC_FULL.md §6 and enumerates root's current children in stacking
// order.
func (s *Session) SelectRootEvents() ([]xproto.Window, error) {
	mask := uint32(xproto.EventMaskSubstructureNotify |
		xproto.EventMaskExposure |
		xproto.EventMaskStructureNotify |
		xproto.EventMaskPropertyChange)
	if err := xproto.ChangeWindowAttributesChecked(s.Conn, s.Root, xproto.CwEventMask, []uint32{mask}).Check(); err != nil {
		return nil, fmt.Errorf("select root events: %w", err)
	}
	if err := shape.SelectInputChecked(s.Conn, s.Root, true).Check(); err != nil {
		return nil, fmt.Errorf("select shape events: %w", err)
	}

	tree, err := xproto.QueryTree(s.Conn, s.Root).Reply()
	if err != nil {
		return nil, fmt.Errorf("query root tree: %w", err)
	}
	return tree.Children, nil
}

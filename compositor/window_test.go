// This file is part of the program "xcompositor".
// Please see the LICENSE file for copyright information.

package compositor

import (
	"testing"

	"github.com/BurntSushi/xgb/xproto"
)

func TestHandleZeroValueIsInvalid(t *testing.T) {
	var h handle[xproto.Pixmap]
	if h.Valid() {
		t.Fatalf("Valid() on zero handle:\nhave true\nwant false")
	}
	if _, ok := h.Get(); ok {
		t.Fatalf("Get() on zero handle:\nhave ok=true\nwant ok=false")
	}
	// Release on a never-set handle must not panic or call a release func.
	h.Release()
}

func TestHandleSetAndGet(t *testing.T) {
	var h handle[xproto.Pixmap]
	h.set(7, nil)

	if !h.Valid() {
		t.Fatalf("Valid() after set:\nhave false\nwant true")
	}
	v, ok := h.Get()
	if !ok || v != 7 {
		t.Fatalf("Get() after set:\nhave (%v,%v)\nwant (7,true)", v, ok)
	}
}

func TestHandleReleaseCallsReleaseFuncOnce(t *testing.T) {
	var h handle[xproto.Pixmap]
	calls := 0
	var released xproto.Pixmap
	h.set(42, func(v xproto.Pixmap) {
		calls++
		released = v
	})

	h.Release()
	if calls != 1 || released != 42 {
		t.Fatalf("release callback:\nhave calls=%d released=%v\nwant calls=1 released=42", calls, released)
	}
	if h.Valid() {
		t.Fatalf("Valid() after Release:\nhave true\nwant false")
	}

	// A second Release must be a no-op, not a second callback invocation.
	h.Release()
	if calls != 1 {
		t.Fatalf("release callback invocations after double Release:\nhave %d\nwant 1", calls)
	}
}

func TestHandleSetReleasesPriorValue(t *testing.T) {
	var h handle[xproto.Pixmap]
	var releasedOld xproto.Pixmap
	h.set(1, func(v xproto.Pixmap) { releasedOld = v })
	h.set(2, nil)

	if releasedOld != 1 {
		t.Fatalf("old value released by overwriting set:\nhave %v\nwant 1", releasedOld)
	}
	v, _ := h.Get()
	if v != 2 {
		t.Fatalf("Get() after overwrite:\nhave %v\nwant 2", v)
	}
}

func TestWindowReleaseAllReleasesShadow(t *testing.T) {
	w := &Window{}
	released := false
	w.Shadow = &shadowImage{}
	w.Shadow.pixmap.set(1, func(xproto.Pixmap) { released = true })

	w.releaseAll()

	if w.Shadow != nil {
		t.Fatalf("w.Shadow after releaseAll:\nhave %v\nwant nil", w.Shadow)
	}
	if !released {
		t.Fatalf("shadow pixmap release callback:\nhave not called\nwant called")
	}
}

func TestWindowInvalidateShadowIsNoopWithoutShadow(t *testing.T) {
	w := &Window{}
	w.invalidateShadow() // must not panic
	if w.Shadow != nil {
		t.Fatalf("w.Shadow after invalidateShadow on nil shadow:\nhave %v\nwant nil", w.Shadow)
	}
}

func TestWindowVisible(t *testing.T) {
	base := Window{MapState: Viewable, Geometry: Geometry{X: 10, Y: 10, Width: 100, Height: 50}}

	for _, tc := range []struct {
		name string
		w    Window
		want bool
	}{
		{"onscreen", base, true},
		{"input only", func() Window { w := base; w.InputOnly = true; return w }(), false},
		{"unmapped", func() Window { w := base; w.MapState = Unmapped; return w }(), false},
		{"fully left of root", func() Window {
			w := base
			w.Geometry.X, w.Geometry.Y = -200, 10
			return w
		}(), false},
		{"fully above root", func() Window {
			w := base
			w.Geometry.X, w.Geometry.Y = 10, -200
			return w
		}(), false},
		{"fully right of root", func() Window {
			w := base
			w.Geometry.X = 2000
			return w
		}(), false},
		{"fully below root", func() Window {
			w := base
			w.Geometry.Y = 2000
			return w
		}(), false},
		{"straddles left edge", func() Window {
			w := base
			w.Geometry.X = -50
			return w
		}(), true},
	} {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.w.Visible(1920, 1080); got != tc.want {
				t.Fatalf("Visible():\nhave %v\nwant %v", got, tc.want)
			}
		})
	}
}

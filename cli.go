// This file is part of the program "xcompositor".
// Please see the LICENSE file for copyright information.

package main

import (
	"flag"
	"fmt"
	"time"

	"xcompositor/compositor"
)

// CLIOpts mirrors SPEC_FULL.md §6's CLI surface. Grounded on the
// teacher's cli.go: one flag.*Var call per option against a plain
// struct, parsed in a single parseCLIOpts, rather than scattering
// flag.Parse calls across the codebase.
type CLIOpts struct {
	verbose bool

	display string

	shadowRadius  float64
	shadowOpacity float64
	shadowOffsetX int
	shadowOffsetY int

	fadeInStep  float64
	fadeOutStep float64
	fadeDeltaMS int

	autoRedirect      bool
	clientShadows     bool
	excludeDockShadow bool
	fadeOnMapUnmap    bool
	fadeOnOpacity     bool
	simple            bool
	serverShadows     bool
	synchronous       bool
}

func parseCLIOpts() CLIOpts {
	var opt CLIOpts
	flag.BoolVar(&opt.verbose, "v", false, "Verbose output (print logs to stderr)")
	flag.StringVar(&opt.display, "d", "", "X display to connect to (default: $DISPLAY)")
	flag.Float64Var(&opt.shadowRadius, "r", 12, "Shadow blur radius")
	flag.Float64Var(&opt.shadowOpacity, "o", 0.75, "Shadow opacity, in [0,1]")
	flag.IntVar(&opt.shadowOffsetX, "l", -15, "Left shadow offset")
	flag.IntVar(&opt.shadowOffsetY, "t", -15, "Top shadow offset")
	flag.Float64Var(&opt.fadeInStep, "I", 0.028, "Fade-in opacity step per tick")
	flag.Float64Var(&opt.fadeOutStep, "O", 0.03, "Fade-out opacity step per tick")
	flag.IntVar(&opt.fadeDeltaMS, "D", 10, "Fade step interval, in milliseconds")
	flag.BoolVar(&opt.autoRedirect, "a", false, "Use automatic server-side redirection instead of painting manually")
	flag.BoolVar(&opt.clientShadows, "c", false, "Enable client-side shadows (precomputed gaussian alpha images)")
	flag.BoolVar(&opt.excludeDockShadow, "C", false, "Don't draw shadows on dock-type windows")
	flag.BoolVar(&opt.fadeOnMapUnmap, "f", false, "Fade windows in/out on map/unmap")
	flag.BoolVar(&opt.fadeOnOpacity, "F", false, "Fade windows when their opacity property changes")
	flag.BoolVar(&opt.simple, "n", false, "Disable shadows entirely")
	flag.BoolVar(&opt.serverShadows, "s", false, "Enable server-side shadows (translucent solid fill)")
	flag.BoolVar(&opt.synchronous, "S", false, "Force an X round trip after every painted frame, for debugging")
	flag.Parse()
	return opt
}

// toConfig validates the mutually exclusive shadow-mode flags and
// builds a compositor.Config, matching xcompmgr.c's flag-parsing
// behavior where -n/-s/-c select a single shadowMode.
func (o CLIOpts) toConfig() (compositor.Config, error) {
	modeCount := 0
	if o.simple {
		modeCount++
	}
	if o.serverShadows {
		modeCount++
	}
	if o.clientShadows {
		modeCount++
	}
	if modeCount > 1 {
		return compositor.Config{}, fmt.Errorf("-n, -s, and -c are mutually exclusive")
	}

	cfg := compositor.DefaultConfig()
	cfg.Display = o.display
	switch {
	case o.simple:
		cfg.Mode = compositor.Simple
	case o.serverShadows:
		cfg.Mode = compositor.ServerShadows
	case o.clientShadows:
		cfg.Mode = compositor.ClientShadows
	}
	cfg.ShadowRadius = o.shadowRadius
	cfg.ShadowOpacity = o.shadowOpacity
	cfg.ShadowOffsetX = o.shadowOffsetX
	cfg.ShadowOffsetY = o.shadowOffsetY
	cfg.ExcludeDockShadow = o.excludeDockShadow
	cfg.FadeOnMapUnmap = o.fadeOnMapUnmap
	cfg.FadeOnOpacity = o.fadeOnOpacity
	cfg.FadeInStep = o.fadeInStep
	cfg.FadeOutStep = o.fadeOutStep
	cfg.FadeDelta = time.Duration(o.fadeDeltaMS) * time.Millisecond
	cfg.AutoRedirect = o.autoRedirect
	cfg.Synchronous = o.synchronous
	return cfg, nil
}

// This file is part of the program "xcompositor".
// Please see the LICENSE file for copyright information.

package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"

	"golang.org/x/sys/unix"

	"xcompositor/compositor"
)

func main() {
	opt := parseCLIOpts()

	if opt.verbose {
		log.SetOutput(os.Stderr)
	} else {
		log.SetOutput(io.Discard)
	}

	cfg, err := opt.toConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "xcompositor: %v\n", err)
		os.Exit(1)
	}

	if err := run(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "xcompositor: %v\n", err)
		os.Exit(1)
	}
}

// run wires a Session and Context together and drives the event loop
// until a termination signal arrives, matching xcompmgr.c's main():
// connect, acquire the manager selection, redirect root's subtree,
// enumerate existing children, then loop forever.
func run(cfg compositor.Config) error {
	sess, err := compositor.Open(cfg.Display)
	if err != nil {
		return fmt.Errorf("open display: %w", err)
	}

	screen := 0
	if err := sess.AcquireManagerSelection(screen); err != nil {
		return err
	}

	redirectMode := compositor.RedirectManual
	strategy := compositor.PaintManually
	if cfg.AutoRedirect {
		redirectMode = compositor.RedirectAutomatic
		strategy = compositor.LetServerComposite
	}
	if err := sess.RedirectSubtree(redirectMode); err != nil {
		return fmt.Errorf("redirect root subtree: %w", err)
	}

	children, err := sess.SelectRootEvents()
	if err != nil {
		return fmt.Errorf("select root events: %w", err)
	}

	c, err := compositor.NewContext(sess, cfg, log.Default())
	if err != nil {
		return fmt.Errorf("initialize compositor context: %w", err)
	}
	c.AddExisting(children)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, unix.SIGTERM, unix.SIGINT)
	go func() {
		<-sig
		cancel()
	}()

	if err := c.Run(ctx, strategy); err != nil && err != context.Canceled {
		return fmt.Errorf("event loop: %w", err)
	}
	return nil
}

//go:build darwin

package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sys/unix"
)

// watchAndRerun watches path via kqueue and calls run again on every
// write, debounced by 500ms. See watch_unix.go's comment: a single
// pending timer suffices since this only ever watches one path.
func watchAndRerun(path string, registerLimit int) error {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return err
	}

	kq, err := unix.Kqueue()
	if err != nil {
		return fmt.Errorf("kqueue: %w", err)
	}
	defer unix.Close(kq)

	fd, err := unix.Open(absPath, unix.O_RDONLY, 0)
	if err != nil {
		return fmt.Errorf("opening %s: %w", absPath, err)
	}
	defer unix.Close(fd)

	event := unix.Kevent_t{
		Ident:  uint64(fd),
		Filter: unix.EVFILT_VNODE,
		Flags:  unix.EV_ADD | unix.EV_CLEAR,
		Fflags: unix.NOTE_WRITE | unix.NOTE_ATTRIB,
	}
	if _, err := unix.Kevent(kq, []unix.Kevent_t{event}, nil, nil); err != nil {
		return fmt.Errorf("adding kevent for %s: %w", absPath, err)
	}
	fmt.Fprintf(os.Stderr, "tc: watching %s\n", absPath)

	rerun := func() {
		fmt.Fprintf(os.Stderr, "tc: %s changed, re-running\n", absPath)
		if err := run(registerLimit, absPath); err != nil {
			fmt.Fprintln(os.Stderr, "tc:", err)
		}
	}

	events := make([]unix.Kevent_t, 1)
	var pending *time.Timer
	for {
		n, err := unix.Kevent(kq, nil, events, nil)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			return fmt.Errorf("reading kevent: %w", err)
		}
		if n == 0 {
			continue
		}
		if pending != nil {
			pending.Stop()
		}
		pending = time.AfterFunc(500*time.Millisecond, rerun)
	}
}

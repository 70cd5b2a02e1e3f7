//go:build linux

package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
	"unsafe"

	"golang.org/x/sys/unix"
)

// watchAndRerun watches path via inotify and calls run again on every
// write, debounced by 500ms so a burst of saves from an editor only
// triggers one re-run. Unlike a general-purpose file watcher this never
// tracks more than one path, so a single pending timer is enough -- no
// per-path bookkeeping is needed.
func watchAndRerun(path string, registerLimit int) error {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return err
	}

	fd, err := unix.InotifyInit1(unix.IN_CLOEXEC)
	if err != nil {
		return fmt.Errorf("inotify_init: %w", err)
	}
	defer unix.Close(fd)

	if _, err := unix.InotifyAddWatch(fd, absPath, unix.IN_MODIFY|unix.IN_CLOSE_WRITE); err != nil {
		return fmt.Errorf("watching %s: %w", absPath, err)
	}
	fmt.Fprintf(os.Stderr, "tc: watching %s\n", absPath)

	rerun := func() {
		fmt.Fprintf(os.Stderr, "tc: %s changed, re-running\n", absPath)
		if err := run(registerLimit, absPath); err != nil {
			fmt.Fprintln(os.Stderr, "tc:", err)
		}
	}

	buf := make([]byte, unix.SizeofInotifyEvent*8)
	var pending *time.Timer
	for {
		n, err := unix.Read(fd, buf)
		if err != nil {
			return fmt.Errorf("reading inotify events: %w", err)
		}

		offset := 0
		for offset < n {
			event := (*unix.InotifyEvent)(unsafe.Pointer(&buf[offset]))
			offset += unix.SizeofInotifyEvent + int(event.Len)
			if event.Mask&(unix.IN_MODIFY|unix.IN_CLOSE_WRITE) == 0 {
				continue
			}
			if pending != nil {
				pending.Stop()
			}
			pending = time.AfterFunc(500*time.Millisecond, rerun)
		}
	}
}

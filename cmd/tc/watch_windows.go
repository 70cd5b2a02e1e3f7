//go:build windows

package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// watchAndRerun polls path's mtime and calls run again after a change,
// debounced by 500ms. No golang.org/x/sys notification primitive is wired
// for Windows in this repo, so this variant falls back to polling -- the
// same split the rest of the pack uses for this platform.
func watchAndRerun(path string, registerLimit int) error {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "tc: watching %s\n", absPath)

	info, err := os.Stat(absPath)
	if err != nil {
		return err
	}
	lastMod := info.ModTime()

	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for range ticker.C {
		info, err := os.Stat(absPath)
		if err != nil {
			continue
		}
		if !info.ModTime().After(lastMod) {
			continue
		}
		lastMod = info.ModTime()

		fmt.Fprintf(os.Stderr, "tc: %s changed, re-running\n", absPath)
		if err := run(registerLimit, absPath); err != nil {
			fmt.Fprintln(os.Stderr, "tc:", err)
		}
	}
	return nil
}

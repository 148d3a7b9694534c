// Package safego provides panic-recovering goroutine launchers for background work.
package safego

import (
	"log/slog"
	"runtime/debug"
	"sync"
)

// Go launches fn in a new goroutine. A panic in fn is recovered and logged
// under name instead of crashing the process.
func Go(name string, fn func()) {
	go run(name, fn)
}

// GoGroup is Go tracked by wg: wg.Add happens before launch and wg.Done after
// fn returns or panics, so callers can wait for a clean shutdown.
func GoGroup(wg *sync.WaitGroup, name string, fn func()) {
	wg.Add(1)
	go func() {
		defer wg.Done()
		run(name, fn)
	}()
}

func run(name string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("recovered panic in background goroutine",
				"worker", name, "panic", r, "stack", string(debug.Stack()))
		}
	}()
	fn()
}

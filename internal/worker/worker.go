// SPDX-License-Identifier: AGPL-3.0-only

// Package worker provides the embeddable goroutine-halt base used
// throughout this repository (and, by convention, throughout the teacher
// codebase this one is grounded on): embed Worker, spawn tracked goroutines
// with Go, have them select on HaltCh, and call Halt once to stop and wait
// for all of them to return.
package worker

import "sync"

// Worker is an embeddable base granting a type a coordinated shutdown
// signal and a WaitGroup-backed join on Halt. The zero value is ready to
// use.
type Worker struct {
	haltOnce sync.Once
	haltCh   chan struct{}
	haltWg   sync.WaitGroup
	initOnce sync.Once
}

func (w *Worker) init() {
	w.initOnce.Do(func() {
		w.haltCh = make(chan struct{})
	})
}

// HaltCh returns the channel that is closed when Halt is called. Goroutines
// spawned with Go should select on this channel to know when to stop.
func (w *Worker) HaltCh() <-chan struct{} {
	w.init()
	return w.haltCh
}

// Go spawns fn in a tracked goroutine; Halt will block until fn returns.
func (w *Worker) Go(fn func()) {
	w.init()
	w.haltWg.Add(1)
	go func() {
		defer w.haltWg.Done()
		fn()
	}()
}

// Halt closes HaltCh (idempotently) and blocks until every goroutine
// spawned with Go has returned.
func (w *Worker) Halt() {
	w.init()
	w.haltOnce.Do(func() {
		close(w.haltCh)
	})
	w.haltWg.Wait()
}

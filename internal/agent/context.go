// SPDX-License-Identifier: AGPL-3.0-only

// Package agent implements the per-connection SSH-agent dispatch logic: an
// AgentContext owns the two upstream agent connections for one client and
// decides, per request type, whether to aggregate, route-with-fallback, or
// passthrough.
package agent

import (
	"net"

	"github.com/awnumar/memguard"
	logging "gopkg.in/op/go-logging.v1"
)

// Context is the per-connection agent state: one pair of upstream
// connections and, if the virtual agent is locked, the secret that will
// unlock it. It must never be shared between goroutines — one Context per
// accepted client connection, matching spec.md's per-worker AgentContext.
type Context struct {
	PrimaryPath  string
	FallbackPath string

	Primary  net.Conn
	Fallback net.Conn

	Log *logging.Logger

	// password is present iff the virtual agent is locked. Its logical
	// length (passwordLen) is always in [0, 8] once set: zero-length is a
	// valid empty secret (see DESIGN.md's Open Question resolution), and
	// UNLOCK never mutates it on a mismatch. The buffer's actual allocated
	// size may be 1 even when passwordLen is 0 (memguard refuses a
	// zero-length allocation); passwordLen is the source of truth.
	password    *memguard.LockedBuffer
	passwordLen int
}

// NewContext builds a Context for one client connection from its already
// dialed upstream connections.
func NewContext(primaryPath, fallbackPath string, primary, fallback net.Conn, log *logging.Logger) *Context {
	return &Context{
		PrimaryPath:  primaryPath,
		FallbackPath: fallbackPath,
		Primary:      primary,
		Fallback:     fallback,
		Log:          log,
	}
}

// Close destroys the lock secret, if any, and closes both upstream
// connections. Safe to call exactly once, at worker exit.
func (ctx *Context) Close() {
	if ctx.password != nil {
		ctx.password.Destroy()
		ctx.password = nil
		ctx.passwordLen = 0
	}
	if ctx.Primary != nil {
		ctx.Primary.Close()
	}
	if ctx.Fallback != nil {
		ctx.Fallback.Close()
	}
}

// locked reports whether the agent currently holds a lock secret.
func (ctx *Context) locked() bool {
	return ctx.password != nil
}

// lock stores pw as the new lock secret and returns true, or returns false
// as a no-op if the agent is already locked. pw is copied into locked,
// zero-on-destroy memory; the caller's copy is left untouched.
//
// memguard.NewBuffer(0) treats a zero-length allocation as ErrNullBuffer
// and panics, so a zero-length password is backed by a 1-byte buffer
// instead, mirroring the original's malloc(aPasswordLen ? aPasswordLen :
// 1) — the stored secret's logical length is still 0, tracked separately,
// so EqualBytes comparisons against it are unaffected.
func (ctx *Context) lock(pw []byte) bool {
	if ctx.locked() {
		return false
	}
	allocLen := len(pw)
	if allocLen == 0 {
		allocLen = 1
	}
	cp := make([]byte, allocLen)
	copy(cp, pw)
	ctx.password = memguard.NewBufferFromBytes(cp)
	ctx.passwordLen = len(pw)
	return true
}

// unlock clears the lock secret and returns true if pw matches it exactly;
// otherwise it returns false and leaves the secret untouched.
func (ctx *Context) unlock(pw []byte) bool {
	if !ctx.locked() {
		return false
	}
	if len(pw) != ctx.passwordLen {
		return false
	}
	if ctx.passwordLen > 0 && !ctx.password.EqualBytes(pw) {
		return false
	}
	ctx.password.Destroy()
	ctx.password = nil
	ctx.passwordLen = 0
	return true
}

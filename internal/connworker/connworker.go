// SPDX-License-Identifier: AGPL-3.0-only

// Package connworker runs the per-client-connection request loop: dial both
// upstream agents, then repeatedly read one framed request from the client
// and dispatch it, until the client disconnects or a protocol error forces
// the connection closed.
package connworker

import (
	"errors"
	"io"
	"net"

	logging "gopkg.in/op/go-logging.v1"

	"github.com/yawning/ssh-double-agent/internal/agent"
	"github.com/yawning/ssh-double-agent/internal/message"
	"github.com/yawning/ssh-double-agent/internal/upstream"
)

// Config names the two upstream agent sockets a worker dials on entry.
type Config struct {
	PrimaryPath  string
	FallbackPath string
}

// Serve runs one client connection to completion: dialing both upstreams,
// looping request/dispatch/purge until the client goes away, and always
// tearing down the upstream connections before returning. client is closed
// by the caller, not here.
//
// abort, if non-nil, is watched for the duration of the call; when it's
// closed, the client and both upstream connections are force-closed so any
// in-flight read (e.g. a signing agent blocked waiting on a user's
// confirmation prompt) unblocks with an error and Serve returns promptly.
// This is what lets a supervisor shutdown bound a worker's lifetime
// instead of waiting indefinitely on an upstream that never answers.
//
// Serve returns nil on a clean client disconnect (EOF) and a non-nil error
// for anything else — a dial failure, a framing violation, an abort, or an
// upstream I/O error — matching spec.md §4.E's "exits cleanly on EOF... and
// on any I/O error as a failure".
func Serve(cfg Config, client net.Conn, log *logging.Logger, abort <-chan struct{}) error {
	// Fallback is dialed first: failing fast here surfaces a fallback
	// misconfiguration before any client request is even read, the
	// convention spec.md §4.E calls out explicitly.
	fallback, err := upstream.Dial(cfg.FallbackPath)
	if err != nil {
		return err
	}

	primary, err := upstream.Dial(cfg.PrimaryPath)
	if err != nil {
		fallback.Close()
		return err
	}

	ctx := agent.NewContext(cfg.PrimaryPath, cfg.FallbackPath, primary, fallback, log)
	defer ctx.Close()

	if abort != nil {
		done := make(chan struct{})
		defer close(done)
		go func() {
			select {
			case <-abort:
				client.Close()
				primary.Close()
				fallback.Close()
			case <-done:
			}
		}()
	}

	for {
		msg, err := message.Init(client, "double agent")
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}

		if err := ctx.Dispatch(msg, client); err != nil {
			msg.Close()
			return err
		}
		if err := msg.Purge(); err != nil {
			msg.Close()
			return err
		}
		msg.Close()
	}
}

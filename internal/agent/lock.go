// SPDX-License-Identifier: AGPL-3.0-only

package agent

import (
	"io"

	"github.com/yawning/ssh-double-agent/internal/message"
	"github.com/yawning/ssh-double-agent/internal/wire"
)

// maxPasswordLen is the largest accepted LOCK/UNLOCK password. Zero-length
// passwords are valid (see DESIGN.md's Open Question resolution); anything
// longer than this is rejected with AGENT_FAILURE rather than accepted.
const maxPasswordLen = 8

// decodePassword reads the single string field of a LOCK or UNLOCK request.
//
// It distinguishes two very different failure modes:
//   - a malformed field (the payload doesn't even hold a 4-byte length
//     prefix) is a framing violation: the caller should abort the
//     connection, matching the original implementation's unconditional
//     jump to teardown before ever inspecting the password.
//   - an oversize password (longer than maxPasswordLen, including the
//     peek-drained >16KB case which surfaces as a nil slice) is a normal
//     protocol-level rejection: the caller replies AGENT_FAILURE and keeps
//     the connection open.
func decodePassword(msg *message.Message) (pw []byte, accepted bool, err error) {
	pw, err = msg.PeekBytes()
	if err != nil {
		return nil, false, err
	}
	if pw == nil || len(pw) > maxPasswordLen {
		return nil, false, nil
	}
	return pw, true, nil
}

// handleLock implements AGENTC_LOCK: a malformed password field aborts the
// connection; an oversize one, or locking an already-locked agent, replies
// AGENT_FAILURE; otherwise the password is stored and the client is told
// AGENT_SUCCESS.
func (ctx *Context) handleLock(msg *message.Message, client io.Writer) error {
	pw, accepted, err := decodePassword(msg)
	if err != nil {
		return err
	}
	if !accepted || !ctx.lock(pw) {
		return wire.WriteEmpty(client, wire.AgentFailure)
	}
	return wire.WriteEmpty(client, wire.AgentSuccess)
}

// handleUnlock implements AGENTC_UNLOCK: a malformed password field aborts
// the connection; any other rejection (oversize, wrong password, or the
// agent wasn't locked) replies AGENT_FAILURE without mutating lock state;
// a matching password clears it and replies AGENT_SUCCESS.
func (ctx *Context) handleUnlock(msg *message.Message, client io.Writer) error {
	pw, accepted, err := decodePassword(msg)
	if err != nil {
		return err
	}
	if !accepted || !ctx.unlock(pw) {
		return wire.WriteEmpty(client, wire.AgentFailure)
	}
	return wire.WriteEmpty(client, wire.AgentSuccess)
}

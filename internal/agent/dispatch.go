// SPDX-License-Identifier: AGPL-3.0-only

package agent

import (
	"io"

	"github.com/yawning/ssh-double-agent/internal/message"
	"github.com/yawning/ssh-double-agent/internal/wire"
)

// Dispatch routes one client-originated message to the handler appropriate
// for its type, writing exactly one reply (or, for a sign request, the
// upstream's reply) to client. Dispatch may leave part of msg's payload
// unread; the caller purges and closes msg after Dispatch returns.
func (ctx *Context) Dispatch(msg *message.Message, client io.Writer) error {
	switch msg.Type() {
	case wire.AgentCRequestIdentities:
		if err := msg.Purge(); err != nil {
			return err
		}
		return ctx.handleRequestIdentities(client)
	case wire.AgentCSignRequest:
		return ctx.handleSignRequest(msg, client)
	case wire.AgentCLock:
		return ctx.handleLock(msg, client)
	case wire.AgentCUnlock:
		return ctx.handleUnlock(msg, client)
	default:
		return ctx.handleDefault(msg, client)
	}
}

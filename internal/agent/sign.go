// SPDX-License-Identifier: AGPL-3.0-only

package agent

import (
	"io"
	"net"

	"github.com/yawning/ssh-double-agent/internal/message"
	"github.com/yawning/ssh-double-agent/internal/wire"
)

// handleSignRequest implements the sign-with-fallback law: try the primary
// agent first; if it doesn't answer with a SIGN_RESPONSE (including if it
// answers AGENT_FAILURE, or doesn't answer at all), purge that reply and try
// the fallback agent with the identical request. If neither responds with a
// SIGN_RESPONSE, the client is told AGENT_FAILURE.
func (ctx *Context) handleSignRequest(msg *message.Message, client io.Writer) error {
	if err := msg.ReadPayload(); err != nil {
		return err
	}

	upstreams := []struct {
		role string
		conn net.Conn
	}{
		{"primary", ctx.Primary},
		{"fallback", ctx.Fallback},
	}

	for i, up := range upstreams {
		if err := msg.Send(up.conn); err != nil {
			if ctx.Log != nil {
				ctx.Log.Debugf("sign request: %s: %v", up.role, err)
			}
			continue
		}
		resp, err := message.Init(up.conn, up.role)
		if err != nil {
			if ctx.Log != nil {
				ctx.Log.Debugf("sign request: %s: %v", up.role, err)
			}
			continue
		}
		if resp.Type() == wire.AgentSignResponse {
			defer resp.Close()
			return resp.Transfer(client)
		}
		if err := resp.Purge(); err != nil {
			resp.Close()
			return err
		}
		resp.Close()
		if ctx.Log != nil && i == 0 {
			ctx.Log.Debugf("sign request refused by primary (type %d), trying fallback", resp.Type())
		}
	}

	return wire.WriteEmpty(client, wire.AgentFailure)
}

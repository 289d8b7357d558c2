// SPDX-License-Identifier: AGPL-3.0-only

package agent

import (
	"io"

	"github.com/yawning/ssh-double-agent/internal/message"
)

// handleDefault passes any request type this multiplexer doesn't
// specifically interpret straight through to the primary agent, verbatim,
// and relays its response back to the client verbatim.
func (ctx *Context) handleDefault(msg *message.Message, client io.Writer) error {
	if err := msg.Transfer(ctx.Primary); err != nil {
		return err
	}
	resp, err := message.Init(ctx.Primary, "primary")
	if err != nil {
		return err
	}
	defer resp.Close()
	return resp.Transfer(client)
}

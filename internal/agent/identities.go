// SPDX-License-Identifier: AGPL-3.0-only

package agent

import (
	"fmt"
	"io"
	"net"

	"github.com/yawning/ssh-double-agent/internal/message"
	"github.com/yawning/ssh-double-agent/internal/wire"
)

// queryIdentities issues AGENTC_REQUEST_IDENTITIES to conn and returns the
// framed response, which must be type IDENTITIES_ANSWER, along with the
// identity count peeled from its head.
func queryIdentities(conn net.Conn, role string) (*message.Message, uint32, error) {
	if err := wire.WriteEmpty(conn, wire.AgentCRequestIdentities); err != nil {
		return nil, 0, fmt.Errorf("%s: request identities: %w", role, err)
	}
	resp, err := message.Init(conn, role)
	if err != nil {
		return nil, 0, fmt.Errorf("%s: read identities response: %w", role, err)
	}
	if resp.Type() != wire.AgentIdentitiesAnswer {
		resp.Purge()
		resp.Close()
		return nil, 0, fmt.Errorf("%s: unexpected response type %d to REQUEST_IDENTITIES", role, resp.Type())
	}
	count, err := resp.PeekUint32()
	if err != nil {
		resp.Purge()
		resp.Close()
		return nil, 0, fmt.Errorf("%s: read identity count: %w", role, err)
	}
	return resp, count, nil
}

// handleRequestIdentities aggregates the primary's and the fallback's
// identities into a single IDENTITIES_ANSWER written to client, primary
// identities preceding fallback identities verbatim.
func (ctx *Context) handleRequestIdentities(client io.Writer) error {
	primaryMsg, primaryCount, err := queryIdentities(ctx.Primary, "primary")
	if err != nil {
		return err
	}
	defer primaryMsg.Close()

	fallbackMsg, fallbackCount, err := queryIdentities(ctx.Fallback, "fallback")
	if err != nil {
		primaryMsg.Purge()
		return err
	}
	defer fallbackMsg.Close()

	totalCount := primaryCount + fallbackCount
	totalBody := primaryMsg.PayloadLength() + fallbackMsg.PayloadLength() + 4

	hdr := wire.EncodeHeader(wire.AgentIdentitiesAnswer, totalBody)
	if _, err := client.Write(hdr[:]); err != nil {
		return err
	}
	var countBuf [4]byte
	wire.PutUint32(countBuf[:], totalCount)
	if _, err := client.Write(countBuf[:]); err != nil {
		return err
	}

	if err := primaryMsg.TransferPayload(client); err != nil {
		return fmt.Errorf("primary: forward identities: %w", err)
	}
	if err := fallbackMsg.TransferPayload(client); err != nil {
		return fmt.Errorf("fallback: forward identities: %w", err)
	}
	return nil
}

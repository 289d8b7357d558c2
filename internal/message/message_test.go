// SPDX-License-Identifier: AGPL-3.0-only

package message

import (
	"bytes"
	"net"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/yawning/ssh-double-agent/internal/wire"
)

func frame(t byte, body []byte) []byte {
	hdr := wire.EncodeHeader(t, uint32(len(body)))
	return append(hdr[:], body...)
}

func TestInitDecodesHeader(t *testing.T) {
	r := bytes.NewReader(frame(wire.AgentCSignRequest, []byte("hello")))
	m, err := Init(r, "test")
	require.NoError(t, err)
	require.Equal(t, byte(wire.AgentCSignRequest), m.Type())
	require.Equal(t, uint32(5), m.PayloadLength())
}

func TestReadPayloadThenSend(t *testing.T) {
	r := bytes.NewReader(frame(wire.AgentCSignRequest, []byte("hello")))
	m, err := Init(r, "test")
	require.NoError(t, err)
	require.NoError(t, m.ReadPayload())

	var out bytes.Buffer
	require.NoError(t, m.Send(&out))
	require.Equal(t, frame(wire.AgentCSignRequest, []byte("hello")), out.Bytes())
}

func TestReadPayloadTwiceErrors(t *testing.T) {
	r := bytes.NewReader(frame(wire.AgentCSignRequest, []byte("hi")))
	m, err := Init(r, "test")
	require.NoError(t, err)
	require.NoError(t, m.ReadPayload())
	require.ErrorIs(t, m.ReadPayload(), ErrContentPresent)
}

func TestReadPayloadEmptyErrors(t *testing.T) {
	r := bytes.NewReader(frame(wire.AgentCRequestIdentities, nil))
	m, err := Init(r, "test")
	require.NoError(t, err)
	require.ErrorIs(t, m.ReadPayload(), ErrPayloadEmpty)
}

func TestPeekUint32(t *testing.T) {
	body := make([]byte, 4)
	wire.PutUint32(body, 42)
	body = append(body, []byte("rest")...)
	r := bytes.NewReader(frame(wire.AgentIdentitiesAnswer, body))
	m, err := Init(r, "test")
	require.NoError(t, err)

	n, err := m.PeekUint32()
	require.NoError(t, err)
	require.Equal(t, uint32(42), n)
	require.Equal(t, uint32(4), m.PayloadLength())
}

func TestPeekUint32ShortPayload(t *testing.T) {
	r := bytes.NewReader(frame(wire.AgentCLock, []byte{1, 2}))
	m, err := Init(r, "test")
	require.NoError(t, err)
	_, err = m.PeekUint32()
	require.ErrorIs(t, err, ErrShortPeek)
}

func TestPeekBytesNormal(t *testing.T) {
	length := make([]byte, 4)
	wire.PutUint32(length, 3)
	body := append(length, []byte("abc")...)
	r := bytes.NewReader(frame(wire.AgentCLock, body))
	m, err := Init(r, "test")
	require.NoError(t, err)

	pw, err := m.PeekBytes()
	require.NoError(t, err)
	require.Equal(t, []byte("abc"), pw)
	require.Equal(t, uint32(0), m.PayloadLength())
}

func TestPeekBytesZeroLengthIsValid(t *testing.T) {
	length := make([]byte, 4)
	wire.PutUint32(length, 0)
	r := bytes.NewReader(frame(wire.AgentCLock, length))
	m, err := Init(r, "test")
	require.NoError(t, err)

	pw, err := m.PeekBytes()
	require.NoError(t, err)
	require.NotNil(t, pw)
	require.Len(t, pw, 0)
}

func TestPeekBytesOversizeIsDrainedAndNil(t *testing.T) {
	length := make([]byte, 4)
	const n = peekBytesLimit + 1
	wire.PutUint32(length, n)
	body := append(length, bytes.Repeat([]byte{'x'}, n)...)
	r := bytes.NewReader(frame(wire.AgentCLock, body))
	m, err := Init(r, "test")
	require.NoError(t, err)

	pw, err := m.PeekBytes()
	require.NoError(t, err)
	require.Nil(t, pw)
	require.Equal(t, uint32(0), m.PayloadLength())
}

func TestTransferPayloadStreamsWithoutBuffering(t *testing.T) {
	r := bytes.NewReader(frame(wire.AgentSignResponse, []byte("signature-bytes")))
	m, err := Init(r, "test")
	require.NoError(t, err)

	var out bytes.Buffer
	require.NoError(t, m.TransferPayload(&out))
	require.Equal(t, []byte("signature-bytes"), out.Bytes())
}

func TestTransfer(t *testing.T) {
	r := bytes.NewReader(frame(wire.AgentSignResponse, []byte("sig")))
	m, err := Init(r, "test")
	require.NoError(t, err)

	var out bytes.Buffer
	require.NoError(t, m.Transfer(&out))
	require.Equal(t, frame(wire.AgentSignResponse, []byte("sig")), out.Bytes())
}

func TestPurgeDrainsRemaining(t *testing.T) {
	r := bytes.NewReader(frame(wire.AgentCSignRequest, []byte("unread")))
	m, err := Init(r, "test")
	require.NoError(t, err)
	require.NoError(t, m.Purge())
	require.Equal(t, 0, r.Len())
}

func TestTransferMidStreamEOFIsUnexpected(t *testing.T) {
	// A header claiming a longer body than is actually on the wire must
	// surface as an error, not a silent short transfer.
	client, server := net.Pipe()
	go func() {
		hdr := wire.EncodeHeader(wire.AgentCSignRequest, 10)
		server.Write(hdr[:])
		server.Write([]byte("abc"))
		server.Close()
	}()

	m, err := Init(client, "test")
	require.NoError(t, err)

	var out bytes.Buffer
	err = m.TransferPayload(&out)
	require.Error(t, err)
}

// SPDX-License-Identifier: AGPL-3.0-only

package wire

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeHeaderRoundTrip(t *testing.T) {
	hdr := EncodeHeader(AgentCSignRequest, 123)
	decoded, err := DecodeHeader(hdr)
	require.NoError(t, err)
	require.Equal(t, byte(AgentCSignRequest), decoded.Type)
	require.Equal(t, uint32(123), decoded.BodyLen)
}

func TestEncodeHeaderZeroBody(t *testing.T) {
	hdr := EncodeHeader(AgentSuccess, 0)
	decoded, err := DecodeHeader(hdr)
	require.NoError(t, err)
	require.Equal(t, uint32(0), decoded.BodyLen)
}

func TestDecodeHeaderRejectsUnderflow(t *testing.T) {
	var hdr [HeaderLen]byte // length field 0, below MinFrameLen
	_, err := DecodeHeader(hdr)
	require.ErrorIs(t, err, ErrFrameTooShort)
}

func TestDecodeHeaderRejectsOverflow(t *testing.T) {
	hdr := EncodeHeader(AgentCSignRequest, MaxFrameLen)
	_, err := DecodeHeader(hdr)
	require.ErrorIs(t, err, ErrFrameTooLong)
}

func TestPutUint32Uint32RoundTrip(t *testing.T) {
	buf := make([]byte, 4)
	PutUint32(buf, 0xdeadbeef)
	require.Equal(t, uint32(0xdeadbeef), Uint32(buf))
}

func TestWriteEmpty(t *testing.T) {
	var buf fakeWriter
	require.NoError(t, WriteEmpty(&buf, AgentFailure))
	require.Equal(t, EncodeHeader(AgentFailure, 0)[:], buf.data)
}

type fakeWriter struct{ data []byte }

func (w *fakeWriter) Write(p []byte) (int, error) {
	w.data = append(w.data, p...)
	return len(p), nil
}

// SPDX-License-Identifier: AGPL-3.0-only

// Package wire implements the framing layer of the SSH agent protocol: a
// 4-byte big-endian length prefix followed by a 1-byte message type.
package wire

import (
	"encoding/binary"
	"errors"
	"io"
)

// HeaderLen is the size in bytes of a frame header: a uint32 length
// followed by a uint8 type.
const HeaderLen = 5

// MinFrameLen and MaxFrameLen bound the accepted frame length L (the header's
// length field, which counts the type byte plus the payload).
const (
	MinFrameLen = 1
	MaxFrameLen = 32 * 1024
)

// Message type codes, per the SSH agent protocol subset this multiplexer
// understands.
const (
	AgentFailure            = 5
	AgentSuccess            = 6
	AgentCRequestIdentities = 11
	AgentIdentitiesAnswer   = 12
	AgentCSignRequest       = 13
	AgentSignResponse       = 14
	AgentCLock              = 22
	AgentCUnlock            = 23
)

// ErrFrameTooShort and ErrFrameTooLong report a header length field outside
// [MinFrameLen, MaxFrameLen].
var (
	ErrFrameTooShort = errors.New("wire: frame length underflows threshold")
	ErrFrameTooLong  = errors.New("wire: frame length overflows threshold")
)

// Header is a decoded frame header.
type Header struct {
	// BodyLen is the number of payload bytes following the type byte
	// (i.e. the wire length field minus 1).
	BodyLen uint32
	Type    byte
}

// DecodeHeader validates and decodes a 5-byte wire header previously read
// into buf.
func DecodeHeader(buf [HeaderLen]byte) (Header, error) {
	length := binary.BigEndian.Uint32(buf[:4])
	if length < MinFrameLen {
		return Header{}, ErrFrameTooShort
	}
	if length > MaxFrameLen {
		return Header{}, ErrFrameTooLong
	}
	return Header{Type: buf[4], BodyLen: length - 1}, nil
}

// EncodeHeader renders the 5-byte wire header for a message of the given
// type whose body is bodyLen bytes long.
func EncodeHeader(msgType byte, bodyLen uint32) [HeaderLen]byte {
	var buf [HeaderLen]byte
	binary.BigEndian.PutUint32(buf[:4], bodyLen+1)
	buf[4] = msgType
	return buf
}

// PutUint32 and Uint32 expose the wire protocol's big-endian integer
// encoding for callers (e.g. the identity count, the password length
// prefix) that need it outside of a full frame header.
func PutUint32(buf []byte, v uint32) { binary.BigEndian.PutUint32(buf, v) }
func Uint32(buf []byte) uint32       { return binary.BigEndian.Uint32(buf) }

// WriteEmpty writes a bodyless frame of the given type, e.g. a bare
// AGENT_FAILURE or AGENTC_REQUEST_IDENTITIES.
func WriteEmpty(w io.Writer, msgType byte) error {
	hdr := EncodeHeader(msgType, 0)
	_, err := w.Write(hdr[:])
	return err
}

// SPDX-License-Identifier: AGPL-3.0-only

// Package message models a single in-flight SSH-agent framed message being
// streamed between two sockets, offering peek/forward/purge semantics so a
// handler can inspect a leading prefix (or the whole body) while still being
// able to forward the remainder verbatim without ever buffering it.
package message

import (
	"errors"
	"io"

	"github.com/yawning/ssh-double-agent/internal/wire"
)

// transferChunkSize bounds the buffer used when streaming an unbuffered
// payload from the source to a destination. The original C implementation
// used a 7-byte chunk; spec.md notes that figure is not load-bearing, so a
// larger buffer is used here to avoid a syscall per handful of bytes.
const transferChunkSize = 8 * 1024

// peekBytesLimit is the largest length a peek_bytes call will retain as a
// buffer; lengths beyond this are drained and discarded, protecting the
// multiplexer from an oversize allocation on a hostile or buggy client.
const peekBytesLimit = 16 * 1024

var (
	// ErrContentPresent is returned by operations that require the payload
	// to still be unread from the wire (peek, read) when it has already
	// been buffered.
	ErrContentPresent = errors.New("message: payload already buffered")
	// ErrNoContent is returned by Send when no buffered content is
	// available to send.
	ErrNoContent = errors.New("message: no buffered payload to send")
	// ErrPayloadEmpty is returned by ReadPayload on a message with no body.
	ErrPayloadEmpty = errors.New("message: payload is empty")
	// ErrShortPeek is returned when a peek is requested for more bytes than
	// remain in the logical payload.
	ErrShortPeek = errors.New("message: peek exceeds remaining payload")
)

// Message is a single-use, in-flight framed message. Once Purge'd, Close'd,
// or fully Transfer'd, it must not be reused.
type Message struct {
	name string
	src  io.Reader

	typ           byte
	remaining     uint32 // bytes still unread on src belonging to this message
	payloadLength uint32 // logical remaining payload length
	content       []byte // buffered payload, once ReadPayload has run
}

// Init reads a frame header from r and returns the Message describing the
// payload that follows. name is a diagnostic origin label ("primary",
// "fallback", "double agent").
func Init(r io.Reader, name string) (*Message, error) {
	var hdr [wire.HeaderLen]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, err
	}
	h, err := wire.DecodeHeader(hdr)
	if err != nil {
		return nil, err
	}
	return &Message{
		name:          name,
		src:           r,
		typ:           h.Type,
		remaining:     h.BodyLen,
		payloadLength: h.BodyLen,
	}, nil
}

// Name returns the message's diagnostic origin label.
func (m *Message) Name() string { return m.name }

// Type returns the 1-byte SSH-agent message type.
func (m *Message) Type() byte { return m.typ }

// PayloadLength returns the logical remaining payload length.
func (m *Message) PayloadLength() uint32 { return m.payloadLength }

// ReadPayload fully buffers the remaining payload into memory.
func (m *Message) ReadPayload() error {
	if m.content != nil {
		return ErrContentPresent
	}
	if m.payloadLength == 0 {
		return ErrPayloadEmpty
	}
	buf := make([]byte, m.payloadLength)
	n, err := io.ReadFull(m.src, buf)
	m.remaining -= uint32(n)
	if err != nil {
		return err
	}
	m.content = buf
	return nil
}

// PeekUint32 reads and removes a big-endian uint32 from the head of the
// still-unread payload, without retaining it in any buffer.
func (m *Message) PeekUint32() (uint32, error) {
	if m.content != nil {
		return 0, ErrContentPresent
	}
	if m.payloadLength < 4 {
		return 0, ErrShortPeek
	}
	var buf [4]byte
	if _, err := io.ReadFull(m.src, buf[:]); err != nil {
		return 0, err
	}
	m.payloadLength -= 4
	m.remaining -= 4
	return wire.Uint32(buf[:]), nil
}

// PeekBytes peeks a uint32 length N followed by N bytes. When N is within
// peekBytesLimit the bytes are returned as an owned buffer (possibly
// zero-length, which is a valid result); when N exceeds the limit the bytes
// are drained and discarded and a nil slice is returned, which callers
// downstream treat as "no value provided".
func (m *Message) PeekBytes() ([]byte, error) {
	length, err := m.PeekUint32()
	if err != nil {
		return nil, err
	}
	if length > m.payloadLength {
		return nil, ErrShortPeek
	}
	defer func() {
		m.payloadLength -= length
		m.remaining -= length
	}()

	if length > peekBytesLimit {
		if err := discard(m.src, int64(length)); err != nil {
			return nil, err
		}
		return nil, nil
	}

	buf := make([]byte, length)
	if _, err := io.ReadFull(m.src, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// Send requires buffered content (see ReadPayload) and writes the message
// as a complete frame to dst.
func (m *Message) Send(dst io.Writer) error {
	if m.content == nil {
		return ErrNoContent
	}
	hdr := wire.EncodeHeader(m.typ, uint32(len(m.content)))
	if _, err := dst.Write(hdr[:]); err != nil {
		return err
	}
	_, err := dst.Write(m.content)
	return err
}

// TransferPayload writes any buffered content, then streams the remaining
// unread wire bytes directly from src to dst without buffering the whole
// payload in memory.
func (m *Message) TransferPayload(dst io.Writer) error {
	if m.content != nil {
		if _, err := dst.Write(m.content); err != nil {
			return err
		}
	}
	if err := copyN(dst, m.src, int64(m.remaining)); err != nil {
		return err
	}
	m.content = nil
	m.payloadLength = 0
	m.remaining = 0
	m.typ = 0
	return nil
}

// Transfer writes the frame header followed by the payload (see
// TransferPayload) to dst.
func (m *Message) Transfer(dst io.Writer) error {
	hdr := wire.EncodeHeader(m.typ, m.payloadLength)
	if _, err := dst.Write(hdr[:]); err != nil {
		return err
	}
	return m.TransferPayload(dst)
}

// Purge drains any remaining unread bytes belonging to this message from
// src, discarding them, restoring frame alignment for the next message on
// the same connection.
func (m *Message) Purge() error {
	if m.remaining == 0 {
		return nil
	}
	if err := discard(m.src, int64(m.remaining)); err != nil {
		return err
	}
	m.remaining = 0
	return nil
}

// Close releases the buffered content, if any. A Message must not be used
// after Close.
func (m *Message) Close() {
	m.content = nil
}

// copyN streams exactly n bytes from src to dst in fixed-size chunks. A
// short read (src ending before n bytes arrive) is a protocol error, unlike
// the usual io.Copy/io.EOF convention.
func copyN(dst io.Writer, src io.Reader, n int64) error {
	if n == 0 {
		return nil
	}
	copied, err := io.CopyBuffer(dst, io.LimitReader(src, n), make([]byte, transferChunkSize))
	if err == nil && copied != n {
		err = io.ErrUnexpectedEOF
	}
	return err
}

// discard reads and throws away exactly n bytes from src.
func discard(src io.Reader, n int64) error {
	copied, err := io.CopyBuffer(io.Discard, io.LimitReader(src, n), make([]byte, transferChunkSize))
	if err == nil && copied != n {
		err = io.ErrUnexpectedEOF
	}
	return err
}

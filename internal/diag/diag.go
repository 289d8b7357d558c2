// SPDX-License-Identifier: AGPL-3.0-only

// Package diag provides an optional CBOR-encoded diagnostics snapshot,
// logged at debug level by the supervisor, grounded on the
// cborplugin.Request/Response Marshal/Unmarshal pattern used for the
// teacher's out-of-process plugin protocol.
package diag

import "github.com/fxamacker/cbor/v2"

// Snapshot is a point-in-time view of the supervisor's connection state,
// cheap enough to take on every accepted connection when debug logging is
// enabled.
type Snapshot struct {
	ActiveWorkers int    `cbor:"active_workers"`
	PrimaryPath   string `cbor:"primary_path"`
	FallbackPath  string `cbor:"fallback_path"`
}

// Marshal encodes the snapshot to CBOR.
func (s *Snapshot) Marshal() ([]byte, error) {
	return cbor.Marshal(s)
}

// Unmarshal decodes a CBOR-encoded snapshot into s.
func (s *Snapshot) Unmarshal(b []byte) error {
	return cbor.Unmarshal(b, s)
}

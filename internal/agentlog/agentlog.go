// SPDX-License-Identifier: AGPL-3.0-only

// Package agentlog wraps gopkg.in/op/go-logging.v1, the logging dependency
// this repository's teacher codebase uses throughout, into a small backend
// that every other package takes by constructor argument rather than
// reaching for a global logger.
package agentlog

import (
	"io"
	"os"

	logging "gopkg.in/op/go-logging.v1"
)

const logFormat = "%{time:15:04:05.000} %{level:.4s} %{module}: %{message}"

// Backend owns the process-wide logging configuration and hands out named
// *logging.Logger instances.
type Backend struct {
	backend logging.LeveledBackend
}

// New creates a logging Backend writing to w at the given level ("DEBUG",
// "INFO", "NOTICE", "WARNING", "ERROR", "CRITICAL"). An invalid level falls
// back to NOTICE.
func New(w io.Writer, level string) *Backend {
	if w == nil {
		w = os.Stderr
	}
	base := logging.NewLogBackend(w, "", 0)
	formatted := logging.NewBackendFormatter(base, logging.MustStringFormatter(logFormat))
	leveled := logging.AddModuleLevel(formatted)

	lvl, err := logging.LogLevel(level)
	if err != nil {
		lvl = logging.NOTICE
	}
	leveled.SetLevel(lvl, "")

	return &Backend{backend: leveled}
}

// GetLogger returns a logger scoped to module name, sharing this Backend's
// level and output.
func (b *Backend) GetLogger(name string) *logging.Logger {
	log := logging.MustGetLogger(name)
	log.SetBackend(b.backend)
	return log
}

//go:build time

// SPDX-License-Identifier: AGPL-3.0-only

// Disabled by default (see client2/arq_test.go for the same convention):
// TestRunShutsDownWhenChildExits pays the full SIGTERM/SIGKILL grace window.
package supervisor

import (
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRunShutsDownWhenChildExits(t *testing.T) {
	sockPath := filepath.Join(t.TempDir(), "double-agent.sock")
	sup, err := New(Config{SocketPath: sockPath}, testLogger(t))
	require.NoError(t, err)

	child := exec.Command("true")
	require.NoError(t, child.Start())

	err = sup.Run(child.Process)
	require.NoError(t, err)

	_, statErr := os.Stat(sockPath)
	require.True(t, os.IsNotExist(statErr), "listening socket should be unlinked on shutdown")
}

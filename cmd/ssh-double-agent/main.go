// SPDX-License-Identifier: AGPL-3.0-only

// Command ssh-double-agent multiplexes two upstream SSH agents behind one
// UNIX socket, then spawns cmd with SSH_AUTH_SOCK pointed at that socket.
package main

import (
	"flag"
	"fmt"
	"os"
	"os/exec"
	"syscall"

	"github.com/carlmjohnson/versioninfo"

	"github.com/yawning/ssh-double-agent/internal/agentlog"
	"github.com/yawning/ssh-double-agent/internal/supervisor"
)

const usageText = `usage: ssh-double-agent [-d] [primary-path] fallback-path double-agent-path -- cmd ...

  primary-path        upstream agent socket to prefer (default $SSH_AUTH_SOCK)
  fallback-path        upstream agent socket consulted when primary can't answer
  double-agent-path    socket this multiplexer will listen on
  cmd ...              program to run with SSH_AUTH_SOCK=double-agent-path

`

func usage() {
	fmt.Fprint(os.Stderr, usageText)
	flag.PrintDefaults()
}

func die(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "ssh-double-agent: "+format+"\n", args...)
	os.Exit(1)
}

// parseArgs implements spec.md §6's CLI grammar: `[primary-path]
// fallback-path double-agent-path -- cmd ...`, with primary-path consumed
// as a positional only when there are exactly 3 tokens ahead of `--`;
// with 2 it defaults to $SSH_AUTH_SOCK, and any other count is fatal.
func parseArgs(args []string) (primaryPath, fallbackPath, doubleAgentPath string, cmd []string) {
	dashIdx := -1
	for i, a := range args {
		if a == "--" {
			dashIdx = i
			break
		}
	}
	if dashIdx < 0 {
		die("missing `--` separator before the monitored command")
	}
	positional := args[:dashIdx]
	cmd = args[dashIdx+1:]
	if len(cmd) == 0 {
		die("missing monitored command after `--`")
	}

	switch len(positional) {
	case 3:
		primaryPath = positional[0]
		fallbackPath = positional[1]
		doubleAgentPath = positional[2]
	case 2:
		primaryPath = os.Getenv("SSH_AUTH_SOCK")
		if primaryPath == "" {
			die("no primary-path given and $SSH_AUTH_SOCK is unset")
		}
		fallbackPath = positional[0]
		doubleAgentPath = positional[1]
	default:
		die("expected [primary-path] fallback-path double-agent-path before `--`")
	}
	return
}

func main() {
	debug := flag.Bool("d", false, "enable debug logging")
	flag.BoolVar(debug, "debug", false, "enable debug logging (alias for -d)")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Usage = usage
	flag.Parse()

	if *showVersion {
		fmt.Println(versioninfo.Short())
		return
	}

	level := "NOTICE"
	if *debug {
		level = "DEBUG"
	}
	logBackend := agentlog.New(os.Stderr, level)
	log := logBackend.GetLogger("ssh-double-agent")

	primaryPath, fallbackPath, doubleAgentPath, cmdArgs := parseArgs(flag.Args())

	sup, err := supervisor.New(supervisor.Config{
		SocketPath:   doubleAgentPath,
		PrimaryPath:  primaryPath,
		FallbackPath: fallbackPath,
		Debug:        *debug,
	}, log)
	if err != nil {
		die("failed to create listening socket: %v", err)
	}

	os.Setenv("SSH_AUTH_SOCK", doubleAgentPath)

	child := exec.Command(cmdArgs[0], cmdArgs[1:]...)
	child.Stdin = os.Stdin
	child.Stdout = os.Stdout
	child.Stderr = os.Stderr
	// Its own process group, so the supervisor's shutdown signal (sent with
	// a negative PID) reaches it and every descendant it spawns, not just
	// itself.
	child.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	if err := child.Start(); err != nil {
		die("failed to start %q: %v", cmdArgs[0], err)
	}

	if err := sup.Run(child.Process); err != nil {
		log.Warningf("monitored command exited: %v", err)
		os.Exit(1)
	}
}

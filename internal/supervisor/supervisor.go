// SPDX-License-Identifier: AGPL-3.0-only

// Package supervisor runs the accept loop for the double agent's listening
// socket, admission-controls concurrent connection workers, watches the
// monitored child command, and relays termination signals to it — the
// goroutine-based redesign of spec.md §4.F's fork-based supervisor
// (see SPEC_FULL.md §0).
package supervisor

import (
	"errors"
	"net"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	logging "gopkg.in/op/go-logging.v1"
	"golang.org/x/sys/unix"

	"github.com/yawning/ssh-double-agent/internal/connworker"
	"github.com/yawning/ssh-double-agent/internal/diag"
	"github.com/yawning/ssh-double-agent/internal/worker"
)

// maxConnections caps concurrent connection workers; beyond this an
// accepted connection is closed immediately without service, matching
// spec.md §4.F's admission rule.
const maxConnections = 16

// killGrace is how long the group is given to exit on SIGTERM before
// SIGKILL, matching spec.md §4.F's "sleep 3 seconds" shutdown step.
const killGrace = 3 * time.Second

// Config parameterizes one supervisor run.
type Config struct {
	SocketPath   string
	PrimaryPath  string
	FallbackPath string
	Debug        bool
}

// Supervisor owns the listening socket, the admission semaphore, and the
// monitored child process.
type Supervisor struct {
	worker.Worker

	cfg Config
	log *logging.Logger

	ln  *net.UnixListener
	sem chan struct{}

	active atomic.Int32
}

// New binds the listening socket at cfg.SocketPath with mode 0600 (umask
// 0177 around the bind, per spec.md §4.F step 1) and returns a Supervisor
// ready to Run.
func New(cfg Config, log *logging.Logger) (*Supervisor, error) {
	addr, err := net.ResolveUnixAddr("unix", cfg.SocketPath)
	if err != nil {
		return nil, err
	}

	oldMask := unix.Umask(0177)
	ln, err := net.ListenUnix("unix", addr)
	unix.Umask(oldMask)
	if err != nil {
		return nil, err
	}

	return &Supervisor{
		cfg: cfg,
		log: log,
		ln:  ln,
		sem: make(chan struct{}, maxConnections),
	}, nil
}

// Run accepts connections until child exits or is killed, relaying
// SIGINT/SIGTERM/SIGHUP to child's process group, then tears everything
// down. It blocks until shutdown is complete and returns child's Wait
// error, if any.
func (s *Supervisor) Run(child *os.Process) error {
	defer s.teardown()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	defer signal.Stop(sigCh)

	childDone := make(chan error, 1)
	go func() {
		_, err := child.Wait()
		childDone <- err
	}()

	s.Go(s.acceptLoop)

	select {
	case sig := <-sigCh:
		s.log.Infof("received %s, forwarding to child process group", sig)
		relaySignal(child.Pid, sig.(syscall.Signal))
		err := <-childDone
		s.shutdownGroup(child.Pid)
		return err
	case err := <-childDone:
		s.log.Info("monitored child exited, shutting down")
		s.shutdownGroup(child.Pid)
		return err
	}
}

// acceptLoop accepts connections and spawns a connection worker for each,
// subject to the admission semaphore, until Halt is called.
func (s *Supervisor) acceptLoop() {
	for {
		select {
		case <-s.HaltCh():
			return
		default:
		}

		conn, err := s.ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			s.log.Warningf("accept: %v", err)
			continue
		}

		select {
		case s.sem <- struct{}{}:
			s.Go(func() { s.serveOne(conn) })
		default:
			// At the connection cap: refuse without servicing, the
			// client observes this as an immediate EOF.
			s.log.Warning("connection cap reached, rejecting client")
			conn.Close()
		}
	}
}

func (s *Supervisor) serveOne(conn net.Conn) {
	defer func() { <-s.sem }()
	defer conn.Close()

	cnt := s.active.Add(1)
	defer s.active.Add(-1)

	if s.cfg.Debug {
		snap := diag.Snapshot{
			ActiveWorkers: int(cnt),
			PrimaryPath:   s.cfg.PrimaryPath,
			FallbackPath:  s.cfg.FallbackPath,
		}
		if b, err := snap.Marshal(); err == nil {
			s.log.Debugf("snapshot: %x", b)
		}
	}

	wcfg := connworker.Config{PrimaryPath: s.cfg.PrimaryPath, FallbackPath: s.cfg.FallbackPath}
	if err := connworker.Serve(wcfg, conn, s.log, s.HaltCh()); err != nil {
		s.log.Debugf("connection worker: %v", err)
	}
}

// teardown closes the listener (unblocking acceptLoop's Accept), then
// calls Halt: closing HaltCh is what each in-flight connworker.Serve call
// is watching as its abort channel, so every worker's client and upstream
// connections are force-closed and its blocked read unblocks before Halt's
// WaitGroup join returns. Socket path unlink happens last. This guarantees
// no connection worker outlives the monitored command, per spec.md §9
// condition (d). Run once on Supervisor.Run's return.
func (s *Supervisor) teardown() {
	s.ln.Close()
	s.Halt()
	os.Remove(s.cfg.SocketPath)
}

// shutdownGroup sends SIGTERM to pid's process group, waits killGrace, and
// then sends SIGKILL, so no process in the monitored command's group
// outlives it. Connection workers are goroutines of this process, not
// members of that group; teardown is what stops them.
func (s *Supervisor) shutdownGroup(pid int) {
	relaySignal(pid, syscall.SIGTERM)
	time.Sleep(killGrace)
	relaySignal(pid, syscall.SIGKILL)
}

// relaySignal delivers sig to the process group led by pid, the Go
// equivalent of the original's killpg.
func relaySignal(pid int, sig syscall.Signal) {
	unix.Kill(-pid, sig)
}

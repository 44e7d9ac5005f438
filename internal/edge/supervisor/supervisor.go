// Package supervisor owns the lifecycle of the inference engine subprocess:
// spawn, crash restart with backoff, and restart on configuration version
// change.
package supervisor

import (
	"context"
	"log"
	"os"
	"os/exec"
	"sync/atomic"
	"time"

	"github.com/gidence/scm/internal/edge/device"
	"github.com/gidence/scm/internal/metrics"
)

// DefaultCommand launches the real engine through the project shell setup.
const DefaultCommand = "source setup.sh && python3 -m inference.main"

// Supervisor polls the child and the device version once per Poll interval.
// A clean exit ends supervision; a crash restarts after Backoff; a version
// change kills, reaps, and restarts immediately.
type Supervisor struct {
	device     *device.Device
	command    string
	simulation bool
	attempts   atomic.Int64

	// Poll and Backoff are adjustable for tests.
	Poll    time.Duration
	Backoff time.Duration

	logger *log.Logger
}

// New builds a supervisor for command. With simulation set, Run idles and
// never spawns.
func New(dev *device.Device, command string, simulation bool) *Supervisor {
	return &Supervisor{
		device:     dev,
		command:    command,
		simulation: simulation,
		Poll:       time.Second,
		Backoff:    5 * time.Second,
		logger:     log.New(log.Writer(), "[ENGINE] ", log.LstdFlags),
	}
}

// Attempts returns the monotonic start-attempt counter.
func (s *Supervisor) Attempts() int64 { return s.attempts.Load() }

// Run supervises until the child exits cleanly or ctx is cancelled.
func (s *Supervisor) Run(ctx context.Context) {
	if s.simulation {
		s.logger.Printf("simulation mode active, not starting the engine")
		<-ctx.Done()
		return
	}

	version := s.device.Version()
	for {
		attempt := s.attempts.Add(1)
		metrics.SupervisorRestarts.Inc()
		s.logger.Printf("starting... (attempt #%d)", attempt)

		cmd := exec.Command("bash", "-c", s.command)
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr

		if err := cmd.Start(); err != nil {
			s.logger.Printf("failed to start: %v", err)
			if !s.pause(ctx, s.Backoff) {
				return
			}
			continue
		}
		s.logger.Printf("started (pid %d)", cmd.Process.Pid)

		switch s.monitor(ctx, cmd, &version) {
		case exitClean:
			s.logger.Printf("exited successfully, assuming intentional shutdown")
			return
		case exitCrash:
			s.logger.Printf("restarting in %s...", s.Backoff)
			if !s.pause(ctx, s.Backoff) {
				return
			}
		case exitVersion:
			// Restart immediately with the new version cached.
		case exitCancelled:
			return
		}
	}
}

type exitReason int

const (
	exitClean exitReason = iota
	exitCrash
	exitVersion
	exitCancelled
)

// monitor waits for the child to exit or the device version to move.
func (s *Supervisor) monitor(ctx context.Context, cmd *exec.Cmd, version *int64) exitReason {
	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	ticker := time.NewTicker(s.Poll)
	defer ticker.Stop()

	for {
		select {
		case err := <-done:
			if err == nil {
				return exitClean
			}
			s.logger.Printf("crashed: %v", err)
			return exitCrash

		case <-ticker.C:
			current := s.device.Version()
			if current != *version {
				s.logger.Printf("version changed (%d -> %d), restarting...", *version, current)
				*version = current
				s.kill(cmd, done)
				return exitVersion
			}

		case <-ctx.Done():
			s.kill(cmd, done)
			return exitCancelled
		}
	}
}

func (s *Supervisor) kill(cmd *exec.Cmd, done chan error) {
	if err := cmd.Process.Kill(); err != nil {
		s.logger.Printf("kill: %v", err)
	}
	<-done // reap
}

// pause sleeps for d, returning false when ctx is cancelled first.
func (s *Supervisor) pause(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}

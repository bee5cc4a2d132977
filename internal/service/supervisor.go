package service

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"strategyd/internal/config"
	"strategyd/internal/metrics"
	"strategyd/internal/models"
)

var (
	ErrNotRunning           = errors.New("no active strategy running")
	ErrStopInProgress       = errors.New("strategy stop already in progress")
	ErrResetBlocked         = errors.New("cannot reset while strategy is running")
	ErrResetConfirmDisabled = errors.New("reset auto-confirmation is disabled")
	ErrResetScriptMissing   = errors.New("reset script not found")
	ErrResetTimeout         = errors.New("reset timed out")
)

// AlreadyRunningError reports a start attempt while a live worker holds the slot.
type AlreadyRunningError struct {
	Pid int
}

func (e *AlreadyRunningError) Error() string {
	return fmt.Sprintf("strategy already running (pid %d)", e.Pid)
}

// ResetError reports a reset command that ran to completion but exited non-zero.
type ResetError struct {
	Output   string
	ExitCode int
}

func (e *ResetError) Error() string {
	return fmt.Sprintf("reset failed with exit code %d: %s", e.ExitCode, e.Output)
}

type slotState int

const (
	slotEmpty slotState = iota
	slotRunning
	slotStopping
)

// workerHandle owns one spawned worker process. done is closed once the
// reaper has collected the exit status; until then the process counts as
// alive. The handle never outlives the Supervisor that created it.
type workerHandle struct {
	cmd     *exec.Cmd
	pid     int
	started time.Time
	done    chan struct{}
}

func (h *workerHandle) alive() bool {
	select {
	case <-h.done:
		return false
	default:
		return true
	}
}

// stopStep pairs a termination signal with the budget to wait for the worker
// to honor it before escalating.
type stopStep struct {
	sig  syscall.Signal
	wait time.Duration
}

// Supervisor owns the single worker slot. Every slot transition happens under
// mu; the timed waits of the stop escalation run with mu released so status
// requests are not blocked behind a stop.
type Supervisor struct {
	mu     sync.Mutex
	state  slotState
	handle *workerHandle

	worker config.WorkerConfig
	reset  config.ResetConfig

	// resolved against the worker directory once, at construction
	resetScript string
}

func NewSupervisor(worker config.WorkerConfig, reset config.ResetConfig) *Supervisor {
	return &Supervisor{
		worker:      worker,
		reset:       reset,
		resetScript: worker.ResolvePath(reset.Script),
	}
}

// StartResult echoes what a successful start produced.
type StartResult struct {
	Pid    int
	Config models.StartConfig
}

// Start spawns the worker with a command line built from cfg. It fails with
// AlreadyRunningError while a live worker holds the slot; a worker that died
// unobserved is reclaimed first.
func (s *Supervisor) Start(cfg models.StartConfig) (StartResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != slotEmpty {
		if s.state == slotStopping || s.handle.alive() {
			return StartResult{}, &AlreadyRunningError{Pid: s.handle.pid}
		}
		s.clearLocked()
	}

	argv := BuildWorkerArgs(s.worker, cfg)
	cmd := exec.Command(argv[0], argv[1:]...)
	if s.worker.Directory != "" {
		cmd.Dir = s.worker.Directory
	}
	if len(s.worker.Environment) > 0 {
		cmd.Env = os.Environ()
		for k, v := range s.worker.Environment {
			cmd.Env = append(cmd.Env, k+"="+v)
		}
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return StartResult{}, fmt.Errorf("failed to start strategy: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return StartResult{}, fmt.Errorf("failed to start strategy: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return StartResult{}, fmt.Errorf("failed to start strategy: %w", err)
	}

	h := &workerHandle{
		cmd:     cmd,
		pid:     cmd.Process.Pid,
		started: time.Now(),
		done:    make(chan struct{}),
	}
	s.state = slotRunning
	s.handle = h
	metrics.WorkerUp.Set(1)

	go drainOutput(h.pid, "stdout", stdout)
	go drainOutput(h.pid, "stderr", stderr)
	go s.reap(h)

	log.Info().Int("pid", h.pid).Str("command", argv[0]).Msg("strategy worker started")
	return StartResult{Pid: h.pid, Config: cfg}, nil
}

// drainOutput forwards one of the worker's output streams into the service
// log so nothing the worker prints is lost.
func drainOutput(pid int, stream string, r io.Reader) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		log.Debug().Int("pid", pid).Str("stream", stream).Msg(scanner.Text())
	}
}

// reap collects the worker's exit status the moment the process dies, even if
// a child it spawned still holds the inherited output pipes. Wait tears the
// pipes down, so the drain goroutines finish on their own. The slot itself is
// cleaned up lazily by the next Start/Status observation.
func (s *Supervisor) reap(h *workerHandle) {
	err := h.cmd.Wait()
	s.markExited(h)
	if err != nil {
		log.Warn().Int("pid", h.pid).Err(err).Msg("strategy worker exited")
	} else {
		log.Info().Int("pid", h.pid).Msg("strategy worker exited")
	}
}

// markExited records the exit on the handle. The up gauge is zeroed only
// while h still holds the slot, so a start that already reclaimed the slot
// keeps its fresh reading.
func (s *Supervisor) markExited(h *workerHandle) {
	s.mu.Lock()
	if s.handle == h {
		metrics.WorkerUp.Set(0)
	}
	s.mu.Unlock()
	close(h.done)
}

// Stop terminates the worker with an escalating signal sequence: interrupt,
// then terminate, then kill, waiting out a fixed budget between steps. It
// blocks its caller for up to the sum of the budgets; the slot lock is not
// held during the waits.
func (s *Supervisor) Stop() error {
	s.mu.Lock()
	switch s.state {
	case slotEmpty:
		s.mu.Unlock()
		return ErrNotRunning
	case slotStopping:
		s.mu.Unlock()
		return ErrStopInProgress
	}
	h := s.handle
	s.state = slotStopping
	s.mu.Unlock()

	err := s.escalate(h)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.handle == h {
		if err == nil || !h.alive() {
			s.clearLocked()
		} else {
			// Signalling failed with the worker still alive. Put the slot
			// back and let the next liveness probe reconcile.
			s.state = slotRunning
		}
	}
	return err
}

func (s *Supervisor) escalate(h *workerHandle) error {
	plan := []stopStep{
		{sig: syscall.SIGINT, wait: s.worker.StopGracePeriod()},
		{sig: syscall.SIGTERM, wait: s.worker.StopTermPeriod()},
	}
	for _, step := range plan {
		if !h.alive() {
			return nil
		}
		log.Info().Int("pid", h.pid).Str("signal", step.sig.String()).Msg("signalling strategy worker")
		if err := h.cmd.Process.Signal(step.sig); err != nil {
			// The worker may have been reaped between the alive check and
			// the signal; that is an exit, not a stop failure.
			if errors.Is(err, os.ErrProcessDone) || !h.alive() {
				return nil
			}
			return fmt.Errorf("failed to stop strategy: %w", err)
		}
		select {
		case <-h.done:
			return nil
		case <-time.After(step.wait):
		}
	}

	if !h.alive() {
		return nil
	}
	log.Warn().Int("pid", h.pid).Msg("strategy worker ignored shutdown signals, killing")
	if err := h.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) && h.alive() {
		return fmt.Errorf("failed to stop strategy: %w", err)
	}
	<-h.done
	return nil
}

// Status reports the slot as of this observation. Discovering a dead worker
// here is the one mechanism that heals the slot after an external kill.
func (s *Supervisor) Status() models.WorkerStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case slotEmpty:
		return models.WorkerStatus{Status: "stopped"}
	case slotStopping:
		return models.WorkerStatus{Status: "stopping", Pid: s.handle.pid}
	}

	if !s.handle.alive() {
		s.clearLocked()
		return models.WorkerStatus{Status: "stopped"}
	}

	h := s.handle
	return models.WorkerStatus{
		Status: "running",
		Pid:    h.pid,
		Uptime: formatDuration(time.Since(h.started)),
		Memory: processMemory(h.pid),
		CPU:    processCPU(h.pid),
	}
}

// WorkerAlive is the liveness probe used by health checks and the log tailer.
// Like Status it performs lazy cleanup of a dead worker.
func (s *Supervisor) WorkerAlive() (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == slotEmpty {
		return 0, false
	}
	if s.handle.alive() {
		return s.handle.pid, true
	}
	if s.state == slotRunning {
		s.clearLocked()
	}
	return 0, false
}

// autoConfirmInput answers the reset script's two confirmation prompts
// ("¿...? (s/N)") affirmatively.
const autoConfirmInput = "s\ns\n"

// Reset runs the statistics-reset maintenance command. The worker slot must
// be empty; the command gets both confirmations scripted on stdin and a hard
// timeout, after which the child is abandoned. The slot is never touched.
func (s *Supervisor) Reset(ctx context.Context) (string, error) {
	s.mu.Lock()
	blocked := s.state == slotStopping ||
		(s.state == slotRunning && s.handle.alive())
	s.mu.Unlock()
	if blocked {
		return "", ErrResetBlocked
	}

	if !s.reset.AutoConfirm {
		return "", ErrResetConfirmDisabled
	}
	if _, err := os.Stat(s.resetScript); err != nil {
		return "", fmt.Errorf("%w: %s", ErrResetScriptMissing, s.resetScript)
	}

	ctx, cancel := context.WithTimeout(ctx, s.reset.Timeout())
	defer cancel()

	cmd := exec.CommandContext(ctx, s.reset.Interpreter, s.resetScript)
	if s.worker.Directory != "" {
		cmd.Dir = s.worker.Directory
	}
	cmd.Stdin = strings.NewReader(autoConfirmInput)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	log.Info().Str("script", s.resetScript).Msg("running strategy reset")
	err := cmd.Run()
	if ctx.Err() == context.DeadlineExceeded {
		log.Warn().Str("script", s.resetScript).Msg("strategy reset timed out")
		return "", ErrResetTimeout
	}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			out := strings.TrimSpace(stderr.String())
			if out == "" {
				out = strings.TrimSpace(stdout.String())
			}
			return "", &ResetError{Output: out, ExitCode: exitErr.ExitCode()}
		}
		return "", fmt.Errorf("failed to run reset: %w", err)
	}

	out := strings.TrimSpace(stdout.String())
	if out == "" {
		out = "reset completed"
	}
	return out, nil
}

// caller must hold mu
func (s *Supervisor) clearLocked() {
	s.state = slotEmpty
	s.handle = nil
	metrics.WorkerUp.Set(0)
}

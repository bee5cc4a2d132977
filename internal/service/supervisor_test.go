package service

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"syscall"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"strategyd/internal/config"
	"strategyd/internal/metrics"
	"strategyd/internal/models"
)

func testWorker(args ...string) config.WorkerConfig {
	return config.WorkerConfig{
		Command:       "/bin/sh",
		Args:          append([]string{"-c"}, args...),
		StopGraceSecs: 1,
		StopTermSecs:  1,
	}
}

func writeScript(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "reset.sh")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o755))
	return path
}

func TestStartReportsPidAndRunningStatus(t *testing.T) {
	sup := NewSupervisor(testWorker("sleep 60"), config.ResetConfig{})
	t.Cleanup(func() { sup.Stop() })

	res, err := sup.Start(models.StartConfig{})
	require.NoError(t, err)
	assert.Greater(t, res.Pid, 0)

	st := sup.Status()
	assert.Equal(t, "running", st.Status)
	assert.Equal(t, res.Pid, st.Pid)
	assert.NotEmpty(t, st.Uptime)
}

func TestStartWhileRunningFailsAndLeavesWorkerUntouched(t *testing.T) {
	sup := NewSupervisor(testWorker("sleep 60"), config.ResetConfig{})
	t.Cleanup(func() { sup.Stop() })

	res, err := sup.Start(models.StartConfig{})
	require.NoError(t, err)

	_, err = sup.Start(models.StartConfig{})
	var already *AlreadyRunningError
	require.ErrorAs(t, err, &already)
	assert.Equal(t, res.Pid, already.Pid)

	// the first worker is untouched
	st := sup.Status()
	assert.Equal(t, "running", st.Status)
	assert.Equal(t, res.Pid, st.Pid)
}

func TestStopOnEmptySlotIsNotRunning(t *testing.T) {
	sup := NewSupervisor(testWorker("sleep 60"), config.ResetConfig{})
	assert.ErrorIs(t, sup.Stop(), ErrNotRunning)
}

func TestStopTerminatesCooperativeWorker(t *testing.T) {
	sup := NewSupervisor(testWorker("sleep 60"), config.ResetConfig{})

	res, err := sup.Start(models.StartConfig{})
	require.NoError(t, err)

	require.NoError(t, sup.Stop())
	assert.Equal(t, "stopped", sup.Status().Status)

	// the old pid is gone: signalling it must fail
	proc, _ := os.FindProcess(res.Pid)
	assert.Error(t, proc.Signal(syscall.Signal(0)))
}

func TestStopEscalatesToKillWhenSignalsIgnored(t *testing.T) {
	sup := NewSupervisor(testWorker(`trap "" INT TERM; while :; do sleep 1; done`), config.ResetConfig{})

	_, err := sup.Start(models.StartConfig{})
	require.NoError(t, err)

	start := time.Now()
	require.NoError(t, sup.Stop())
	assert.Equal(t, "stopped", sup.Status().Status)
	// must have waited out both graceful budgets before killing
	assert.GreaterOrEqual(t, time.Since(start), 2*time.Second)
}

func TestStatusHealsSlotAfterWorkerExit(t *testing.T) {
	sup := NewSupervisor(testWorker("exit 0"), config.ResetConfig{})

	_, err := sup.Start(models.StartConfig{})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return sup.Status().Status == "stopped"
	}, 5*time.Second, 20*time.Millisecond)

	// dead worker was reclaimed: a new start succeeds
	_, err = sup.Start(models.StartConfig{})
	require.NoError(t, err)
	t.Cleanup(func() { sup.Stop() })
}

func TestStatusHealsWhenExitedWorkerLeavesBackgroundChild(t *testing.T) {
	// the worker exits immediately but its background child keeps the
	// inherited output pipes open; the exit must still be observed
	sup := NewSupervisor(testWorker("sleep 5 & exit 0"), config.ResetConfig{})

	_, err := sup.Start(models.StartConfig{})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return sup.Status().Status == "stopped"
	}, 3*time.Second, 50*time.Millisecond)

	// slot was reclaimed: starting again succeeds
	res, err := sup.Start(models.StartConfig{})
	require.NoError(t, err)
	assert.Greater(t, res.Pid, 0)
	t.Cleanup(func() { sup.Stop() })
}

func TestStopEscalationTreatsReapedProcessAsExited(t *testing.T) {
	sup := NewSupervisor(testWorker("sleep 60"), config.ResetConfig{})

	// a process that has already been waited on: signalling it yields
	// os.ErrProcessDone while the handle still looks alive
	cmd := exec.Command("/bin/sh", "-c", "exit 0")
	require.NoError(t, cmd.Start())
	require.NoError(t, cmd.Wait())
	h := &workerHandle{cmd: cmd, pid: cmd.Process.Pid, done: make(chan struct{})}

	require.NoError(t, sup.escalate(h))
}

func TestStaleHandleExitDoesNotClobberWorkerUpGauge(t *testing.T) {
	sup := NewSupervisor(testWorker("sleep 60"), config.ResetConfig{})
	_, err := sup.Start(models.StartConfig{})
	require.NoError(t, err)
	t.Cleanup(func() { sup.Stop() })
	require.Equal(t, 1.0, testutil.ToFloat64(metrics.WorkerUp))

	// an old handle exiting after the slot was reclaimed must not zero the
	// gauge of the current worker
	stale := &workerHandle{done: make(chan struct{})}
	sup.markExited(stale)

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.WorkerUp))
	assert.False(t, stale.alive())
}

func TestResetBlockedWhileRunningHasNoSideEffects(t *testing.T) {
	marker := filepath.Join(t.TempDir(), "ran")
	script := writeScript(t, "#!/bin/sh\ntouch "+marker+"\n")
	sup := NewSupervisor(testWorker("sleep 60"), config.ResetConfig{
		Interpreter: "/bin/sh",
		Script:      script,
		AutoConfirm: true,
	})
	t.Cleanup(func() { sup.Stop() })

	_, err := sup.Start(models.StartConfig{})
	require.NoError(t, err)

	_, err = sup.Reset(context.Background())
	assert.ErrorIs(t, err, ErrResetBlocked)
	assert.NoFileExists(t, marker)
}

func TestResetMissingScript(t *testing.T) {
	sup := NewSupervisor(testWorker("sleep 60"), config.ResetConfig{
		Interpreter: "/bin/sh",
		Script:      filepath.Join(t.TempDir(), "nope.sh"),
		AutoConfirm: true,
	})

	_, err := sup.Reset(context.Background())
	assert.ErrorIs(t, err, ErrResetScriptMissing)
}

func TestResetAnswersBothConfirmationPrompts(t *testing.T) {
	script := writeScript(t, "#!/bin/sh\nread a\nread b\necho \"confirmed $a $b\"\n")
	sup := NewSupervisor(testWorker("sleep 60"), config.ResetConfig{
		Interpreter: "/bin/sh",
		Script:      script,
		AutoConfirm: true,
	})

	out, err := sup.Reset(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "confirmed s s", out)
}

func TestResetNonZeroExit(t *testing.T) {
	script := writeScript(t, "#!/bin/sh\necho boom >&2\nexit 3\n")
	sup := NewSupervisor(testWorker("sleep 60"), config.ResetConfig{
		Interpreter: "/bin/sh",
		Script:      script,
		AutoConfirm: true,
	})

	_, err := sup.Reset(context.Background())
	var resetErr *ResetError
	require.ErrorAs(t, err, &resetErr)
	assert.Equal(t, 3, resetErr.ExitCode)
	assert.Equal(t, "boom", resetErr.Output)
}

func TestResetTimeout(t *testing.T) {
	script := writeScript(t, "#!/bin/sh\nsleep 30\n")
	sup := NewSupervisor(testWorker("sleep 60"), config.ResetConfig{
		Interpreter: "/bin/sh",
		Script:      script,
		TimeoutSecs: 1,
		AutoConfirm: true,
	})

	start := time.Now()
	_, err := sup.Reset(context.Background())
	assert.ErrorIs(t, err, ErrResetTimeout)
	assert.Less(t, time.Since(start), 10*time.Second)
}

func TestResetConfirmDisabled(t *testing.T) {
	script := writeScript(t, "#!/bin/sh\nexit 0\n")
	sup := NewSupervisor(testWorker("sleep 60"), config.ResetConfig{
		Interpreter: "/bin/sh",
		Script:      script,
	})

	_, err := sup.Reset(context.Background())
	assert.ErrorIs(t, err, ErrResetConfirmDisabled)
}

func TestResetDoesNotTouchRunningSlotState(t *testing.T) {
	script := writeScript(t, "#!/bin/sh\nexit 0\n")
	sup := NewSupervisor(testWorker("sleep 60"), config.ResetConfig{
		Interpreter: "/bin/sh",
		Script:      script,
		AutoConfirm: true,
	})

	_, err := sup.Reset(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "stopped", sup.Status().Status)
}

func TestSpawnFailureLeavesSlotEmpty(t *testing.T) {
	sup := NewSupervisor(config.WorkerConfig{Command: "/nonexistent/worker"}, config.ResetConfig{})

	_, err := sup.Start(models.StartConfig{})
	require.Error(t, err)
	var already *AlreadyRunningError
	assert.False(t, errors.As(err, &already))
	assert.Equal(t, "stopped", sup.Status().Status)

	// slot stayed empty: a later start with a real command works
	sup2 := NewSupervisor(testWorker("sleep 60"), config.ResetConfig{})
	_, err = sup2.Start(models.StartConfig{})
	require.NoError(t, err)
	t.Cleanup(func() { sup2.Stop() })
}

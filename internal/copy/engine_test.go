// SPDX-FileCopyrightText: 2025 Arne Thielen <arne@aethr.net>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package copy_test

import (
	"context"
	"errors"
	"io"
	"runtime"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/aethr/ramroot/internal/copy"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// scriptRunner fakes rsync invocations. The script function receives
// the joined command line and decides the outcome.
type scriptRunner struct {
	mu     sync.Mutex
	calls  []string
	script func(cmdline string) error
}

func (r *scriptRunner) Run(
	ctx context.Context,
	name string,
	args ...string,
) (string, error) {
	cmdline := strings.Join(append([]string{name}, args...), " ")

	r.mu.Lock()
	r.calls = append(r.calls, cmdline)
	r.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return "", err
	}

	if r.script == nil {
		return "", nil
	}

	return "", r.script(cmdline)
}

func (r *scriptRunner) LookPath(name string) (string, error) {
	return "/usr/bin/" + name, nil
}

func (r *scriptRunner) callsFor(unit string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	var matched []string

	for _, call := range r.calls {
		if strings.Contains(call, "/"+unit+"/") {
			matched = append(matched, call)
		}
	}

	return matched
}

func quietLogger() logrus.FieldLogger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	return logger
}

func newTestEngine(t *testing.T, runner *scriptRunner) (*copy.Engine, string, string) {
	t.Helper()

	src := t.TempDir()
	dst := t.TempDir()

	writeTree(t, src, map[string]int{
		"usr/bin/sh":  400 * 1024,
		"etc/fstab":   1024,
		"var/lib/db":  200 * 1024,
		"vmlinuz":     8 * 1024,
		"proc/ignore": 1024,
	})

	filter, err := copy.NewFilter(nil, nil, nil)
	require.NoError(t, err)

	return &copy.Engine{
		Runner:         runner,
		Log:            quietLogger(),
		Filter:         filter,
		WorkersHint:    2,
		Timeout:        10 * time.Second,
		PollPeriod:     time.Millisecond,
		UnitRetryPause: time.Millisecond,
	}, src, dst
}

func TestEngineRun(t *testing.T) {
	runner := &scriptRunner{}

	engine, src, dst := newTestEngine(t, runner)

	result, err := engine.Run(context.Background(), src, dst)
	require.NoError(t, err)

	assert.Equal(t, 2, result.Workers)
	assert.Empty(t, result.FailedUnits)
	assert.NotZero(t, result.TotalKiB)

	// One rsync per unit: usr, etc, var and the root files unit.
	assert.Len(t, runner.callsFor("usr"), 1)
	assert.Len(t, runner.callsFor("etc"), 1)
	assert.Len(t, runner.callsFor("var"), 1)

	var rootCalls []string

	for _, call := range runner.calls {
		if strings.Contains(call, "--exclude=/*/") {
			rootCalls = append(rootCalls, call)
		}
	}

	require.Len(t, rootCalls, 1)
	assert.Contains(t, rootCalls[0], "--delete")

	// No worker touched the pseudo mount: usr, etc, var and root files
	// account for all calls.
	assert.Len(t, runner.calls, 4)
}

// TestEngineRebasesFilterPerUnit captures the rsync invocation of one
// unit and checks its filter arguments against the unit's transfer
// root. Rsync anchors a leading slash at the transfer root, so the
// source-root form of a pattern could never match inside the unit.
func TestEngineRebasesFilterPerUnit(t *testing.T) {
	runner := &scriptRunner{}

	engine, src, dst := newTestEngine(t, runner)

	_, err := engine.Run(context.Background(), src, dst)
	require.NoError(t, err)

	varCalls := runner.callsFor("var")
	require.Len(t, varCalls, 1)

	assert.Contains(t, varCalls[0], "--exclude=/log/journal/*")
	assert.NotContains(t, varCalls[0], "--exclude=/var/log/journal/*")

	// Defaults for other trees do not leak into the unit transfer.
	assert.NotContains(t, varCalls[0], "--exclude=/dev/*")
	assert.NotContains(t, runner.callsFor("usr")[0], "journal")
}

func TestEngineSkipsExcludedUnit(t *testing.T) {
	runner := &scriptRunner{}

	engine, src, dst := newTestEngine(t, runner)

	filter, err := copy.NewFilter(nil, nil, []string{"/var"})
	require.NoError(t, err)
	engine.Filter = filter

	result, err := engine.Run(context.Background(), src, dst)
	require.NoError(t, err)

	// The unit holds a mount that stays on disk, so no transfer ran for
	// it and it does not count as a failure.
	assert.Empty(t, result.FailedUnits)
	assert.Empty(t, runner.callsFor("var"))
	assert.Len(t, runner.callsFor("usr"), 1)
	assert.Len(t, runner.callsFor("etc"), 1)
}

func TestEngineRetriesTransientFailure(t *testing.T) {
	var attempts sync.Map

	runner := &scriptRunner{}
	runner.script = func(cmdline string) error {
		if !strings.Contains(cmdline, "/var/") {
			return nil
		}

		count, _ := attempts.LoadOrStore("var", new(int))
		n := count.(*int)
		*n++

		if *n < 2 {
			return errors.New("exit status 23")
		}

		return nil
	}

	engine, src, dst := newTestEngine(t, runner)

	result, err := engine.Run(context.Background(), src, dst)
	require.NoError(t, err)

	assert.Empty(t, result.FailedUnits)
	assert.Len(t, runner.callsFor("var"), 2)
}

func TestEngineBestEffortOnExhaustedUnit(t *testing.T) {
	runner := &scriptRunner{}
	runner.script = func(cmdline string) error {
		if strings.Contains(cmdline, "/var/") {
			return errors.New("exit status 23")
		}

		return nil
	}

	engine, src, dst := newTestEngine(t, runner)

	result, err := engine.Run(context.Background(), src, dst)
	require.NoError(t, err)

	assert.Equal(t, []string{"var"}, result.FailedUnits)
	// Three bounded attempts, then the worker moved on.
	assert.Len(t, runner.callsFor("var"), 3)
	assert.Len(t, runner.callsFor("usr"), 1)
}

func TestEngineStrictFailsOnExhaustedUnit(t *testing.T) {
	runner := &scriptRunner{}
	runner.script = func(cmdline string) error {
		if strings.Contains(cmdline, "/var/") {
			return errors.New("exit status 23")
		}

		return nil
	}

	engine, src, dst := newTestEngine(t, runner)
	engine.Strict = true

	_, err := engine.Run(context.Background(), src, dst)
	require.ErrorIs(t, err, copy.ErrUnitsFailed)
}

func TestEngineEmptySource(t *testing.T) {
	runner := &scriptRunner{}

	engine, _, dst := newTestEngine(t, runner)
	engine.SizeFn = func(string) int64 { return 0 }

	_, err := engine.Run(context.Background(), t.TempDir(), dst)
	require.ErrorIs(t, err, copy.ErrEmptySource)
}

func TestEngineTimeout(t *testing.T) {
	runner := &scriptRunner{}
	runner.script = func(string) error {
		// Simulates a transfer outliving the overall budget.
		time.Sleep(200 * time.Millisecond)
		return errors.New("killed")
	}

	engine, src, dst := newTestEngine(t, runner)
	engine.Timeout = 50 * time.Millisecond

	_, err := engine.Run(context.Background(), src, dst)
	require.ErrorIs(t, err, copy.ErrTimeout)
}

func TestEngineProgress(t *testing.T) {
	runner := &scriptRunner{}

	var (
		mu       sync.Mutex
		percents []int
	)

	engine, src, dst := newTestEngine(t, runner)

	half := false
	engine.SizeFn = func(dir string) int64 {
		if dir == src {
			return 1000
		}

		// Destination grows from half done to complete.
		if !half {
			half = true
			return 500
		}

		return 1000
	}
	engine.OnProgress = func(p int) {
		mu.Lock()
		percents = append(percents, p)
		mu.Unlock()
	}

	// Slow the workers enough for at least one poll tick.
	runner.script = func(string) error {
		time.Sleep(5 * time.Millisecond)
		return nil
	}

	_, err := engine.Run(context.Background(), src, dst)
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()

	require.NotEmpty(t, percents)
	assert.Equal(t, 100, percents[len(percents)-1])

	for _, p := range percents[:len(percents)-1] {
		assert.LessOrEqual(t, p, 99)
	}
}

func TestWorkerCount(t *testing.T) {
	cpus := int64(runtime.NumCPU())

	tests := []struct {
		name     string
		hint     int
		availMiB int64
		expected int
	}{
		{
			name:     "hint override",
			hint:     4,
			availMiB: 8192,
			expected: 4,
		},
		{
			name:     "hint clamped",
			hint:     64,
			availMiB: 8192,
			expected: 16,
		},
		{
			name:     "low memory forces single worker",
			availMiB: 80,
			expected: 1,
		},
		{
			name:     "memory bound",
			availMiB: 150,
			expected: int(min(cpus, 2)),
		},
		{
			name:     "plenty of memory bound by cores",
			availMiB: 1 << 20,
			expected: int(min(cpus, 16)),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, copy.WorkerCount(tt.hint, tt.availMiB))
		})
	}
}

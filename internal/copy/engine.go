// SPDX-FileCopyrightText: 2025 Arne Thielen <arne@aethr.net>
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package copy moves the source tree onto the RAM device.
//
// The tree is partitioned into balanced units of work which are copied
// by concurrent rsync workers. Workers are fault isolated: a unit that
// keeps failing is recorded and skipped, it neither aborts the rest of
// its bin nor the other workers.
package copy

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"runtime"
	"slices"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/aethr/ramroot/internal/block"
	"github.com/aethr/ramroot/internal/retry"
)

const (
	// DefaultTimeout is the overall copy budget.
	DefaultTimeout = 1800 * time.Second

	maxWorkers      = 16
	ramPerWorkerMiB = 75

	unitAttempts      = 3
	defaultUnitPause  = time.Second
	defaultPollPeriod = 2 * time.Second
)

// WorkerCount computes the number of copy workers. A positive hint
// overrides the heuristic; both are clamped to [1, 16].
func WorkerCount(hint int, availableRAMMiB int64) int {
	if hint > 0 {
		return min(max(hint, 1), maxWorkers)
	}

	byRAM := max(availableRAMMiB/ramPerWorkerMiB, 1)

	return int(min(int64(runtime.NumCPU()), byRAM, maxWorkers))
}

// Engine runs one migration copy.
type Engine struct {
	Runner block.Runner
	Log    logrus.FieldLogger
	Filter *Filter

	// WorkersHint overrides the worker heuristic when positive.
	WorkersHint int

	// AvailableRAMMiB feeds the worker heuristic.
	AvailableRAMMiB int64

	// Strict turns exhausted per-unit retries into an overall failure.
	Strict bool

	// Timeout is the overall budget, defaulting to [DefaultTimeout].
	Timeout time.Duration

	// OnProgress, if set, receives integer percentages. Each value is
	// delivered once; 100 only on full completion.
	OnProgress func(percent int)

	// SizeFn measures a tree in KiB. Defaults to [DirSizeKiB].
	SizeFn func(dir string) int64

	// PollPeriod and UnitRetryPause shorten waits in tests.
	PollPeriod     time.Duration
	UnitRetryPause time.Duration
}

// Result is the outcome of a completed copy step.
type Result struct {
	TotalKiB    int64
	Workers     int
	FailedUnits []string
	Elapsed     time.Duration
}

func (e *Engine) size(dir string) int64 {
	if e.SizeFn != nil {
		return e.SizeFn(dir)
	}

	return DirSizeKiB(dir)
}

func (e *Engine) timeout() time.Duration {
	if e.Timeout > 0 {
		return e.Timeout
	}

	return DefaultTimeout
}

func (e *Engine) retryPolicy() retry.Policy {
	pause := e.UnitRetryPause
	if pause == 0 {
		pause = defaultUnitPause
	}

	return retry.Policy{Attempts: unitAttempts, Pause: pause}
}

// Run copies src to dst. It returns once all workers exited, the
// budget ran out or ctx was cancelled.
func (e *Engine) Run(ctx context.Context, src, dst string) (*Result, error) {
	started := time.Now()

	totalKiB := e.size(src)
	if totalKiB == 0 {
		return nil, fmt.Errorf("%w: %s", ErrEmptySource, src)
	}

	units, err := Discover(src)
	if err != nil {
		return nil, err
	}

	units = slices.DeleteFunc(units, func(unit WorkUnit) bool {
		if e.Filter.CopiesUnit(unit.Name) {
			return false
		}

		e.Log.WithField("unit", unit.Name).Info("unit stays on disk")

		return true
	})

	workers := WorkerCount(e.WorkersHint, e.AvailableRAMMiB)
	bins := Distribute(units, workers)

	e.Log.WithFields(logrus.Fields{
		"units":   len(units),
		"workers": workers,
	}).Info("starting migration copy")

	ctx, cancel := context.WithTimeout(ctx, e.timeout())
	defer cancel()

	var (
		mu     sync.Mutex
		failed []string
	)

	monitorDone := make(chan struct{})

	monitorStopped := e.startMonitor(dst, totalKiB, monitorDone)

	group, groupCtx := errgroup.WithContext(ctx)

	for i := range bins {
		i := i
		group.Go(func() error {
			return e.runBin(groupCtx, i, bins[i], src, dst, func(unit string) {
				mu.Lock()
				failed = append(failed, unit)
				mu.Unlock()
			})
		})
	}

	err = group.Wait()

	close(monitorDone)
	<-monitorStopped

	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w after %s", ErrTimeout, e.timeout())
		}

		return nil, err
	}

	if e.Strict && len(failed) > 0 {
		return nil, fmt.Errorf("%w: %v", ErrUnitsFailed, failed)
	}

	e.emit(100)

	return &Result{
		TotalKiB:    totalKiB,
		Workers:     workers,
		FailedUnits: failed,
		Elapsed:     time.Since(started),
	}, nil
}

// runBin processes the bin's units strictly in assignment order.
func (e *Engine) runBin(
	ctx context.Context,
	binNum int,
	bin JobBin,
	src, dst string,
	recordFailed func(unit string),
) error {
	log := e.Log.WithField("worker", binNum)

	for _, unit := range bin.Units {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := e.retryPolicy().Run(ctx, func() error {
			return e.copyUnit(ctx, unit, src, dst)
		})
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}

			log.WithError(err).WithField("unit", unit.Name).
				Error("unit failed after retries, continuing")
			recordFailed(unit.Name)

			continue
		}

		log.WithField("unit", unit.Name).Debug("unit copied")
	}

	return nil
}

// copyUnit mirrors one unit with rsync: archive mode with hard links,
// ACLs and xattrs preserved, destination extras deleted.
func (e *Engine) copyUnit(ctx context.Context, unit WorkUnit, src, dst string) error {
	args := []string{"-aHAX", "--delete"}

	if unit.Name == RootFilesUnit {
		// Top-level files only; the directories belong to other units.
		args = append(args, "--exclude=/*/")
	}

	args = append(args, e.Filter.RsyncArgsFor(unit.Name)...)

	srcPath := filepath.Join(src, unit.Name) + "/"
	dstPath := filepath.Join(dst, unit.Name) + "/"

	if _, err := e.Runner.Run(ctx, "rsync", append(args, srcPath, dstPath)...); err != nil {
		return fmt.Errorf("unit %s: %w", unit.Name, err)
	}

	return nil
}

// SPDX-FileCopyrightText: 2025 Arne Thielen <arne@aethr.net>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package boot

import (
	"errors"
	"fmt"
	"slices"

	"github.com/sirupsen/logrus"
)

// Stage is a step of the migration attempt.
type Stage int

const (
	StageInit Stage = iota
	StageResolveRoot
	StagePlan
	StageProvision
	StageFormat
	StageCopy
	StageRewrite
	StageHandoff
	StageDone
	StageFallback
)

var stageNames = map[Stage]string{
	StageInit:        "init",
	StageResolveRoot: "resolve-root",
	StagePlan:        "plan",
	StageProvision:   "provision",
	StageFormat:      "format",
	StageCopy:        "copy",
	StageRewrite:     "rewrite",
	StageHandoff:     "handoff",
	StageDone:        "done",
	StageFallback:    "fallback",
}

func (s Stage) String() string {
	if name, known := stageNames[s]; known {
		return name
	}

	return fmt.Sprintf("stage(%d)", int(s))
}

// ErrStateFinal is returned when a transition is attempted after the
// attempt already finished.
var ErrStateFinal = errors.New("migration attempt already finished")

// CleanupFunc undoes one piece of migration state during fallback.
type CleanupFunc func() error

// MigrationState is the single source of truth of one boot attempt.
// It only moves forward, except for the fallback transition which is
// reachable from every stage. All mutations happen on the orchestrating
// goroutine.
type MigrationState struct {
	stage      Stage
	populated  bool
	cleanupFns []CleanupFunc
}

// Stage returns the current stage.
func (s *MigrationState) Stage() Stage {
	return s.stage
}

// Advance moves to the next stage. Moving backwards or out of a final
// stage is an error.
func (s *MigrationState) Advance(next Stage) error {
	if s.stage == StageDone || s.stage == StageFallback {
		return fmt.Errorf("%w: cannot enter %s", ErrStateFinal, next)
	}

	if next <= s.stage || next > StageDone {
		return fmt.Errorf(
			"invalid transition %s -> %s", s.stage, next,
		)
	}

	s.stage = next

	return nil
}

// MarkPopulated records that the RAM root holds a complete copy.
func (s *MigrationState) MarkPopulated() {
	s.populated = true
}

// Populated reports whether the RAM root was successfully filled.
func (s *MigrationState) Populated() bool {
	return s.populated
}

// FallenBack reports whether the attempt ended in fallback.
func (s *MigrationState) FallenBack() bool {
	return s.stage == StageFallback
}

// OnFallback registers fn to run during fallback. Functions run in
// reverse registration order, mirroring how the resources were
// acquired.
func (s *MigrationState) OnFallback(fn CleanupFunc) {
	s.cleanupFns = append(s.cleanupFns, fn)
}

// Fallback transitions to the fallback stage and runs all registered
// cleanup functions. Cleanup errors are logged, not propagated: the
// fallback path must get as far as it can.
func (s *MigrationState) Fallback(log logrus.FieldLogger) {
	if s.stage == StageFallback || s.stage == StageDone {
		return
	}

	s.stage = StageFallback

	fns := slices.Clone(s.cleanupFns)
	slices.Reverse(fns)

	for _, fn := range fns {
		if err := fn(); err != nil {
			log.WithError(err).Warn("fallback cleanup step failed")
		}
	}

	s.cleanupFns = nil
}

// SPDX-FileCopyrightText: 2025 Arne Thielen <arne@aethr.net>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package boot_test

import (
	"errors"
	"io"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aethr/ramroot/internal/boot"
)

func discardLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	return logger
}

func TestStateAdvance(t *testing.T) {
	var state boot.MigrationState

	assert.Equal(t, boot.StageInit, state.Stage())

	stages := []boot.Stage{
		boot.StageResolveRoot,
		boot.StagePlan,
		boot.StageProvision,
		boot.StageFormat,
		boot.StageCopy,
		boot.StageRewrite,
		boot.StageHandoff,
		boot.StageDone,
	}

	for _, stage := range stages {
		require.NoError(t, state.Advance(stage))
		assert.Equal(t, stage, state.Stage())
	}
}

func TestStateAdvanceBackwards(t *testing.T) {
	var state boot.MigrationState

	require.NoError(t, state.Advance(boot.StageCopy))

	assert.Error(t, state.Advance(boot.StagePlan))
	assert.Error(t, state.Advance(boot.StageCopy))
	assert.Equal(t, boot.StageCopy, state.Stage())
}

func TestStateAdvanceAfterDone(t *testing.T) {
	var state boot.MigrationState

	require.NoError(t, state.Advance(boot.StageDone))

	err := state.Advance(boot.StageResolveRoot)
	require.ErrorIs(t, err, boot.ErrStateFinal)
}

func TestStateFallbackFromEveryStage(t *testing.T) {
	stages := []boot.Stage{
		boot.StageInit,
		boot.StageResolveRoot,
		boot.StagePlan,
		boot.StageProvision,
		boot.StageFormat,
		boot.StageCopy,
		boot.StageRewrite,
		boot.StageHandoff,
	}

	for _, stage := range stages {
		t.Run(stage.String(), func(t *testing.T) {
			var state boot.MigrationState

			if stage != boot.StageInit {
				require.NoError(t, state.Advance(stage))
			}

			state.Fallback(discardLogger())

			assert.True(t, state.FallenBack())
			require.ErrorIs(t,
				state.Advance(boot.StageDone), boot.ErrStateFinal)
		})
	}
}

func TestStateFallbackReverseCleanupOrder(t *testing.T) {
	var (
		state boot.MigrationState
		order []string
	)

	for _, name := range []string{"first", "second", "third"} {
		name := name
		state.OnFallback(func() error {
			order = append(order, name)
			return nil
		})
	}

	state.Fallback(discardLogger())

	assert.Equal(t, []string{"third", "second", "first"}, order)
}

func TestStateFallbackContinuesPastErrors(t *testing.T) {
	var (
		state boot.MigrationState
		ran   []string
	)

	state.OnFallback(func() error {
		ran = append(ran, "inner")
		return nil
	})
	state.OnFallback(func() error {
		return errors.New("umount: target is busy")
	})

	state.Fallback(discardLogger())

	assert.Equal(t, []string{"inner"}, ran)
	assert.True(t, state.FallenBack())
}

func TestStateFallbackRunsOnce(t *testing.T) {
	var (
		state boot.MigrationState
		runs  int
	)

	state.OnFallback(func() error {
		runs++
		return nil
	})

	state.Fallback(discardLogger())
	state.Fallback(discardLogger())

	assert.Equal(t, 1, runs)
}

func TestStateDoneIsNotFallback(t *testing.T) {
	var state boot.MigrationState

	require.NoError(t, state.Advance(boot.StageDone))

	ran := false

	state.OnFallback(func() error {
		ran = true
		return nil
	})

	state.Fallback(discardLogger())

	assert.False(t, ran)
	assert.False(t, state.FallenBack())
	assert.Equal(t, boot.StageDone, state.Stage())
}

func TestStatePopulated(t *testing.T) {
	var state boot.MigrationState

	assert.False(t, state.Populated())

	state.MarkPopulated()

	assert.True(t, state.Populated())
}

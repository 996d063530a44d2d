// SPDX-FileCopyrightText: 2025 Arne Thielen <arne@aethr.net>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package log

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWritesBootLogFile(t *testing.T) {
	dir := t.TempDir()

	logger, closeFn, err := New(Options{
		Dir:      dir,
		KmsgPath: filepath.Join(dir, "kmsg"),
	})
	require.NoError(t, err)

	logger.WithField("stage", "plan").Info("planning done")
	require.NoError(t, closeFn())

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.NotEmpty(t, entries)

	var content []byte

	for _, entry := range entries {
		if filepath.Ext(entry.Name()) != ".log" {
			continue
		}

		content, err = os.ReadFile(filepath.Join(dir, entry.Name()))
		require.NoError(t, err)
	}

	assert.Contains(t, string(content), "planning done")
	assert.Contains(t, string(content), "stage=plan")
}

func TestKmsgHookFire(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kmsg")
	require.NoError(t, os.WriteFile(path, nil, 0o600))

	hook, err := newKmsgHook(path)
	require.NoError(t, err)

	t.Cleanup(func() { _ = hook.Close() })

	err = hook.Fire(&logrus.Entry{
		Level:   logrus.ErrorLevel,
		Message: "copy timed out",
	})
	require.NoError(t, err)

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "<11>ramroot: copy timed out\n", string(content))
}

func TestKmsgHookLevels(t *testing.T) {
	hook := &kmsgHook{}

	assert.NotContains(t, hook.Levels(), logrus.DebugLevel)
	assert.Contains(t, hook.Levels(), logrus.InfoLevel)
}

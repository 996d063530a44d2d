// SPDX-FileCopyrightText: 2025 Arne Thielen <arne@aethr.net>
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package log sets up logging for the migration engine.
//
// Diagnostic detail goes to a file on physical storage, never onto the
// zram device, since the device itself may be the thing that failed.
// Entries at info level and above are mirrored into the kernel log
// buffer so they survive in dmesg even if the file is lost.
package log

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"
)

const logDirMode = 0o755

// Options controls logger construction.
type Options struct {
	// Dir is the directory on physical storage for the boot log file.
	// Empty disables file logging.
	Dir string

	// Debug lowers the level to debug.
	Debug bool

	// KmsgPath overrides the kernel log device, for tests. Defaults to
	// /dev/kmsg.
	KmsgPath string
}

// New builds a logger according to opts. The returned closer releases the
// file and kmsg handles and is safe to call on a partially constructed
// logger.
func New(opts Options) (*logrus.Logger, func() error, error) {
	logger := logrus.New()
	logger.SetOutput(os.Stderr)
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: time.RFC3339,
	})

	if opts.Debug {
		logger.SetLevel(logrus.DebugLevel)
	}

	var closers []io.Closer

	closeAll := func() error {
		var err error

		for _, c := range closers {
			if cerr := c.Close(); cerr != nil && err == nil {
				err = cerr
			}
		}

		return err
	}

	if opts.Dir != "" {
		file, err := openBootLog(opts.Dir)
		if err != nil {
			return nil, closeAll, fmt.Errorf("open log file: %w", err)
		}

		closers = append(closers, file)
		logger.SetOutput(io.MultiWriter(os.Stderr, file))
	}

	hook, err := newKmsgHook(opts.KmsgPath)
	if err == nil {
		closers = append(closers, hook)
		logger.AddHook(hook)
	}

	return logger, closeAll, nil
}

// openBootLog creates a log file named by boot attempt time so that
// consecutive attempts do not overwrite each other.
func openBootLog(dir string) (*os.File, error) {
	if err := os.MkdirAll(dir, logDirMode); err != nil {
		return nil, err
	}

	name := fmt.Sprintf("ramroot-%s.log", time.Now().Format("20060102-150405"))

	return os.OpenFile(
		filepath.Join(dir, name),
		os.O_CREATE|os.O_WRONLY|os.O_APPEND,
		0o600,
	)
}

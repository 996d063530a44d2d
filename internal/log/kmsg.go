// SPDX-FileCopyrightText: 2025 Arne Thielen <arne@aethr.net>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package log

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
)

const defaultKmsgPath = "/dev/kmsg"

// kmsg facility/severity values per printk. Messages are tagged as user
// space daemon output.
const (
	kmsgErr    = 11
	kmsgWarn   = 12
	kmsgNotice = 13
	kmsgInfo   = 14
)

// kmsgHook mirrors log entries into the kernel ring buffer.
type kmsgHook struct {
	file *os.File
}

func newKmsgHook(path string) (*kmsgHook, error) {
	if path == "" {
		path = defaultKmsgPath
	}

	file, err := os.OpenFile(path, os.O_WRONLY, 0)
	if err != nil {
		return nil, fmt.Errorf("open kmsg: %w", err)
	}

	return &kmsgHook{file: file}, nil
}

func (h *kmsgHook) Levels() []logrus.Level {
	return []logrus.Level{
		logrus.PanicLevel,
		logrus.FatalLevel,
		logrus.ErrorLevel,
		logrus.WarnLevel,
		logrus.InfoLevel,
	}
}

func (h *kmsgHook) Fire(entry *logrus.Entry) error {
	prio := kmsgInfo

	switch entry.Level {
	case logrus.PanicLevel, logrus.FatalLevel, logrus.ErrorLevel:
		prio = kmsgErr
	case logrus.WarnLevel:
		prio = kmsgWarn
	case logrus.InfoLevel:
		prio = kmsgNotice
	}

	_, err := fmt.Fprintf(h.file, "<%d>ramroot: %s\n", prio, entry.Message)

	return err
}

func (h *kmsgHook) Close() error {
	return h.file.Close()
}

// SPDX-FileCopyrightText: 2025 Arne Thielen <arne@aethr.net>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package boot

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/ini.v1"
)

// ErrHandoffExists guards the write-once discipline of the record.
var ErrHandoffExists = errors.New("handoff record already written")

// HandoffRecord tells the later mount stage which device to use as
// root. Its absence means "boot normally from disk".
type HandoffRecord struct {
	Device       string
	FSType       string
	MountOptions string
}

// WriteHandoff persists the record at path, once per attempt.
func WriteHandoff(path string, record HandoffRecord) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("%w: %s", ErrHandoffExists, path)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("handoff dir: %w", err)
	}

	file := ini.Empty()
	sec := file.Section("")
	sec.Key("device").SetValue(record.Device)
	sec.Key("fstype").SetValue(record.FSType)
	sec.Key("mount_options").SetValue(record.MountOptions)

	if err := file.SaveTo(path); err != nil {
		return fmt.Errorf("write handoff: %w", err)
	}

	return nil
}

// ReadHandoff loads the record. A missing or incomplete record is an
// error, callers treat both as "use normal boot".
func ReadHandoff(path string) (HandoffRecord, error) {
	file, err := ini.Load(path)
	if err != nil {
		return HandoffRecord{}, fmt.Errorf("read handoff: %w", err)
	}

	sec := file.Section("")

	record := HandoffRecord{
		Device:       sec.Key("device").String(),
		FSType:       sec.Key("fstype").String(),
		MountOptions: sec.Key("mount_options").String(),
	}

	if record.Device == "" || record.FSType == "" {
		return HandoffRecord{}, fmt.Errorf(
			"handoff %s: incomplete record", path,
		)
	}

	return record, nil
}

// RemoveHandoff deletes a stale or partially written record.
func RemoveHandoff(path string) error {
	err := os.Remove(path)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove handoff: %w", err)
	}

	return nil
}

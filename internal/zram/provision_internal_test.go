// SPDX-FileCopyrightText: 2025 Arne Thielen <arne@aethr.net>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package zram

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeSysfs lays out a zram sysfs tree backed by plain files.
type fakeSysfs struct {
	t    *testing.T
	root string
}

func newFakeSysfs(t *testing.T) *fakeSysfs {
	t.Helper()

	root := t.TempDir()
	control := filepath.Join(root, "class", "zram-control")
	require.NoError(t, os.MkdirAll(control, 0o755))
	require.NoError(t,
		os.WriteFile(filepath.Join(control, "hot_add"), []byte("9\n"), 0o600))

	return &fakeSysfs{t: t, root: root}
}

func (s *fakeSysfs) addDevice(num int) {
	s.t.Helper()

	dir := filepath.Join(s.root, "block", "zram"+itoa(num))
	require.NoError(s.t, os.MkdirAll(dir, 0o755))

	for _, attr := range []string{"disksize", "reset", "comp_algorithm"} {
		require.NoError(s.t,
			os.WriteFile(filepath.Join(dir, attr), []byte("0\n"), 0o600))
	}

	mmStat := "1048576 524288 786432 0 786432 0 0\n"
	require.NoError(s.t,
		os.WriteFile(filepath.Join(dir, "mm_stat"), []byte(mmStat), 0o600))
}

func (s *fakeSysfs) attr(num int, name string) string {
	s.t.Helper()

	raw, err := os.ReadFile(
		filepath.Join(s.root, "block", "zram"+itoa(num), name))
	require.NoError(s.t, err)

	return string(raw)
}

func itoa(n int) string {
	return string(rune('0' + n))
}

func newTestProvisioner(sysfs *fakeSysfs) *Provisioner {
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	return &Provisioner{
		sysRoot:      sysfs.root,
		devDir:       "/dev",
		log:          logger,
		swapOff:      func(string) error { return nil },
		unmount:      func(string) error { return nil },
		deviceMounts: func(string) ([]string, error) { return nil, nil },
	}
}

func TestProvision(t *testing.T) {
	sysfs := newFakeSysfs(t)
	sysfs.addDevice(0)

	p := newTestProvisioner(sysfs)

	dev, err := p.Provision(context.Background(), Request{
		SizeMiB:   2048,
		Algorithm: "zstd",
		Attempts:  3,
	})
	require.NoError(t, err)

	assert.Equal(t, 0, dev.Num)
	assert.Equal(t, "/dev/zram0", dev.Path())
	assert.Equal(t, int64(2048)<<20, dev.SizeBytes)
	assert.Equal(t, "zstd", sysfs.attr(0, "comp_algorithm"))
	assert.Equal(t, "2147483648", sysfs.attr(0, "disksize"))
	assert.Equal(t, "1", sysfs.attr(0, "reset"))
}

func TestProvisionSkipsReserved(t *testing.T) {
	sysfs := newFakeSysfs(t)
	sysfs.addDevice(1)

	p := newTestProvisioner(sysfs)

	dev, err := p.Provision(context.Background(), Request{
		SizeMiB:   512,
		Algorithm: "lz4",
		StartNum:  0,
		Reserved:  map[int]bool{0: true},
		Attempts:  3,
	})
	require.NoError(t, err)

	assert.Equal(t, 1, dev.Num)
}

func TestProvisionAdvancesOnFailure(t *testing.T) {
	sysfs := newFakeSysfs(t)
	sysfs.addDevice(0)
	sysfs.addDevice(1)

	// zram0 cannot be released.
	unmountErr := errors.New("target is busy")

	p := newTestProvisioner(sysfs)
	p.deviceMounts = func(dev string) ([]string, error) {
		if dev == "/dev/zram0" {
			return []string{"/mnt/stale"}, nil
		}

		return nil, nil
	}
	p.unmount = func(string) error { return unmountErr }

	dev, err := p.Provision(context.Background(), Request{
		SizeMiB:   512,
		Algorithm: "zstd",
		Attempts:  3,
	})
	require.NoError(t, err)

	assert.Equal(t, 1, dev.Num)
}

func TestProvisionExhausted(t *testing.T) {
	sysfs := newFakeSysfs(t)

	p := newTestProvisioner(sysfs)

	_, err := p.Provision(context.Background(), Request{
		SizeMiB:   512,
		Algorithm: "zstd",
		Attempts:  2,
	})
	require.ErrorIs(t, err, ErrExhausted)
}

func TestReleaseUnmountsAndResets(t *testing.T) {
	sysfs := newFakeSysfs(t)
	sysfs.addDevice(0)

	var (
		swappedOff []string
		unmounted  []string
	)

	p := newTestProvisioner(sysfs)
	p.swapOff = func(dev string) error {
		swappedOff = append(swappedOff, dev)
		return nil
	}
	p.deviceMounts = func(string) ([]string, error) {
		return []string{"/ram"}, nil
	}
	p.unmount = func(target string) error {
		unmounted = append(unmounted, target)
		return nil
	}

	dev, err := p.Attach(0)
	require.NoError(t, err)

	require.NoError(t, p.Release(dev))

	assert.Equal(t, []string{"/dev/zram0"}, swappedOff)
	assert.Equal(t, []string{"/ram"}, unmounted)
	assert.Equal(t, "1", sysfs.attr(0, "reset"))
}

func TestReadStats(t *testing.T) {
	sysfs := newFakeSysfs(t)
	sysfs.addDevice(0)

	p := newTestProvisioner(sysfs)

	dev, err := p.Attach(0)
	require.NoError(t, err)

	stats, err := dev.ReadStats()
	require.NoError(t, err)

	assert.Equal(t, int64(1048576), stats.OrigDataBytes)
	assert.Equal(t, int64(524288), stats.ComprDataBytes)
	assert.InDelta(t, 2.0, stats.Ratio(), 0.001)
}

func TestAttachMissing(t *testing.T) {
	sysfs := newFakeSysfs(t)

	p := newTestProvisioner(sysfs)

	_, err := p.Attach(5)
	require.Error(t, err)
}

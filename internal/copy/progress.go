// SPDX-FileCopyrightText: 2025 Arne Thielen <arne@aethr.net>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package copy

import "time"

// startMonitor launches the progress monitor and returns a channel that
// closes once the monitor has stopped. The monitor polls the
// destination size and reports the integer percentage whenever it
// changes, capped at 99 until the copy has really finished.
func (e *Engine) startMonitor(
	dst string,
	totalKiB int64,
	done <-chan struct{},
) <-chan struct{} {
	stopped := make(chan struct{})

	period := e.PollPeriod
	if period == 0 {
		period = defaultPollPeriod
	}

	go func() {
		defer close(stopped)

		ticker := time.NewTicker(period)
		defer ticker.Stop()

		last := -1

		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				percent := int(min(e.size(dst)*100/totalKiB, 99))

				if percent != last {
					last = percent
					e.emit(percent)
				}
			}
		}
	}()

	return stopped
}

func (e *Engine) emit(percent int) {
	if e.OnProgress != nil {
		e.OnProgress(percent)
	}
}

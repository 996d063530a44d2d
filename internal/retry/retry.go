// SPDX-FileCopyrightText: 2025 Arne Thielen <arne@aethr.net>
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package retry provides the bounded retry loop shared by device waits,
// zram provisioning and the copy workers.
package retry

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// ErrTimeout is returned by [Until] if the condition did not become true
// within the configured bound.
var ErrTimeout = errors.New("condition not met in time")

// Policy is a bounded retry loop with a constant pause between attempts.
type Policy struct {
	// Attempts is the total number of attempts, including the first one.
	// Zero is treated as one.
	Attempts uint64

	// Pause is the delay between attempts.
	Pause time.Duration
}

// Run invokes op until it succeeds, the attempt budget is exhausted or ctx
// is done. The last error is returned. Wrap an error with [Permanent] to
// stop retrying immediately.
func (p Policy) Run(ctx context.Context, op func() error) error {
	maxRetries := uint64(0)
	if p.Attempts > 0 {
		maxRetries = p.Attempts - 1
	}

	b := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(p.Pause), maxRetries),
		ctx,
	)

	return backoff.Retry(op, b)
}

// Permanent marks err as not retryable.
func Permanent(err error) error {
	return backoff.Permanent(err)
}

// Until polls cond with the given pause until it reports true or timeout
// elapses. It returns [ErrTimeout] if the bound is hit and the error of
// cond if cond failed permanently.
func Until(
	ctx context.Context,
	timeout, pause time.Duration,
	cond func() (bool, error),
) error {
	if pause <= 0 {
		pause = time.Second
	}

	attempts := uint64(timeout/pause) + 1

	policy := Policy{Attempts: attempts, Pause: pause}

	return policy.Run(ctx, func() error {
		ok, err := cond()
		if err != nil {
			return Permanent(err)
		}

		if !ok {
			return ErrTimeout
		}

		return nil
	})
}

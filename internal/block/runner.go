// SPDX-FileCopyrightText: 2025 Arne Thielen <arne@aethr.net>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package block

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// Runner abstracts the privileged block utilities the engine invokes.
// Callers consume typed results parsed from the output, never raw
// output, so tests can substitute a fake.
type Runner interface {
	// Run executes the named tool and returns its combined output with
	// surrounding whitespace trimmed. A non-zero exit status is
	// returned as an error wrapping [exec.ExitError].
	Run(ctx context.Context, name string, args ...string) (string, error)

	// LookPath reports where the named tool is installed.
	LookPath(name string) (string, error)
}

// ExecRunner runs tools via os/exec.
type ExecRunner struct{}

func (ExecRunner) Run(
	ctx context.Context,
	name string,
	args ...string,
) (string, error) {
	out, err := exec.CommandContext(ctx, name, args...).CombinedOutput()

	output := strings.TrimSpace(string(out))
	if err != nil {
		return output, fmt.Errorf("%s: %w: %s", name, err, output)
	}

	return output, nil
}

func (ExecRunner) LookPath(name string) (string, error) {
	return exec.LookPath(name)
}

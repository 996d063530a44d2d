// SPDX-FileCopyrightText: 2025 Arne Thielen <arne@aethr.net>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package block

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// FakeRunner is a [Runner] for tests. Results are keyed by the space
// joined command line. Unknown commands succeed with empty output so
// incidental calls (like udevadm settle) do not need scripting.
type FakeRunner struct {
	mu      sync.Mutex
	results map[string]FakeResult
	calls   []string

	// MissingTools are names LookPath fails for.
	MissingTools map[string]bool
}

// FakeResult is the scripted outcome of one command.
type FakeResult struct {
	Output string
	Err    error
}

// Script registers the result for the given command line.
func (f *FakeRunner) Script(cmdline string, result FakeResult) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.results == nil {
		f.results = make(map[string]FakeResult)
	}

	f.results[cmdline] = result
}

// Calls returns all command lines run so far.
func (f *FakeRunner) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()

	return append([]string(nil), f.calls...)
}

// CallCount returns how many times the given command line ran.
func (f *FakeRunner) CallCount(cmdline string) int {
	count := 0

	for _, call := range f.Calls() {
		if call == cmdline {
			count++
		}
	}

	return count
}

func (f *FakeRunner) Run(
	_ context.Context,
	name string,
	args ...string,
) (string, error) {
	cmdline := strings.Join(append([]string{name}, args...), " ")

	f.mu.Lock()
	f.calls = append(f.calls, cmdline)
	result, ok := f.results[cmdline]
	f.mu.Unlock()

	if !ok {
		return "", nil
	}

	return result.Output, result.Err
}

func (f *FakeRunner) LookPath(name string) (string, error) {
	if f.MissingTools[name] {
		return "", fmt.Errorf("exec: %q: executable file not found in $PATH", name)
	}

	return "/usr/bin/" + name, nil
}

// SPDX-FileCopyrightText: 2025 Arne Thielen <arne@aethr.net>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package copy

import (
	"fmt"
	"path"
	"strings"

	"github.com/gobwas/glob"
)

// DefaultExcludes are always active, with the lowest precedence.
var DefaultExcludes = []string{
	"/dev/*",
	"/proc/*",
	"/sys/*",
	"/tmp/*",
	"/run/*",
	"/mnt/*",
	"/media/*",
	"/lost+found",
	"/var/log/journal/*",
}

type pattern struct {
	raw  string
	glob glob.Glob
}

// Filter is the composed include/exclude rule set of a migration.
// Precedence, highest first: explicit includes, mount-on-disk
// exclusions, explicit excludes, built-in defaults.
type Filter struct {
	include []pattern
	exclude []pattern
}

// NewFilter compiles the configured pattern lists. Every mount-on-disk
// path is implicitly an exclusion since its content stays on physical
// storage.
func NewFilter(include, exclude, mountOnDisk []string) (*Filter, error) {
	f := &Filter{}

	if err := f.appendPatterns(&f.include, include); err != nil {
		return nil, err
	}

	for _, dir := range mountOnDisk {
		dir = strings.TrimSuffix(dir, "/")

		err := f.appendPatterns(&f.exclude, []string{dir})
		if err != nil {
			return nil, err
		}
	}

	if err := f.appendPatterns(&f.exclude, exclude); err != nil {
		return nil, err
	}

	if err := f.appendPatterns(&f.exclude, DefaultExcludes); err != nil {
		return nil, err
	}

	return f, nil
}

func (f *Filter) appendPatterns(dst *[]pattern, raw []string) error {
	for _, p := range raw {
		compiled, err := glob.Compile(p, '/')
		if err != nil {
			return fmt.Errorf("pattern %q: %w", p, err)
		}

		*dst = append(*dst, pattern{raw: p, glob: compiled})
	}

	return nil
}

// Allows reports whether the absolute path is copied. A matching
// include always wins; matching a directory implies matching its
// subtree, like rsync filters behave.
func (f *Filter) Allows(p string) bool {
	if matchesAny(f.include, p) {
		return true
	}

	return !matchesAny(f.exclude, p)
}

// matchesAny checks the path and all its ancestors against the
// patterns, so an excluded directory covers everything below it.
func matchesAny(patterns []pattern, p string) bool {
	for current := path.Clean(p); ; current = path.Dir(current) {
		for _, pat := range patterns {
			if pat.glob.Match(current) {
				return true
			}
		}

		if current == "/" || current == "." {
			return false
		}
	}
}

// CopiesUnit reports whether the unit's transfer runs at all. A unit
// whose directory is excluded is skipped entirely, unless an include
// points inside it and the transfer has to run for that include.
func (f *Filter) CopiesUnit(unit string) bool {
	if unit == RootFilesUnit {
		return true
	}

	if f.Allows("/" + unit) {
		return true
	}

	for _, pat := range f.include {
		if _, ok := rebaseOnUnit(pat.raw, unit); ok {
			return true
		}
	}

	return false
}

// RsyncArgsFor renders the filter as rsync arguments for one unit's
// transfer. Rsync anchors leading-slash patterns at the transfer root,
// which for a named unit is the unit directory itself, so every pattern
// is rebased onto the unit and patterns that cannot match anything
// inside it are dropped. The root files unit transfers from the source
// root with every directory excluded up front; only patterns that can
// match a top-level file survive there, in their absolute form.
//
// Rsync applies the first matching rule. Includes come first, preceded
// by their ancestor directories so rsync keeps descending into
// directories a later exclude would otherwise prune; each exclude then
// gets a subtree rule so the opened directories stay excluded.
func (f *Filter) RsyncArgsFor(unit string) []string {
	var includes, excludes []string

	for _, pat := range f.include {
		if rebased, ok := rebaseOnUnit(pat.raw, unit); ok {
			includes = append(includes, rebased)
		}
	}

	for _, pat := range f.exclude {
		if rebased, ok := rebaseOnUnit(pat.raw, unit); ok {
			excludes = append(excludes, rebased)
		}
	}

	var args []string

	for _, inc := range includes {
		for _, dir := range ancestorDirs(inc) {
			args = append(args, "--include="+dir)
		}

		args = append(args, "--include="+subtreePattern(inc))
	}

	for _, exc := range excludes {
		args = append(args, "--exclude="+exc)

		if sub := subtreePattern(exc); len(includes) > 0 && sub != exc {
			args = append(args, "--exclude="+sub)
		}
	}

	return args
}

// rebaseOnUnit maps an absolute pattern onto the transfer root of the
// named unit. ok is false if the pattern cannot match anything inside
// the unit.
func rebaseOnUnit(raw, unit string) (string, bool) {
	rel, anchored := strings.CutPrefix(raw, "/")
	if !anchored {
		// Unanchored patterns float and match at any depth.
		return raw, true
	}

	first, rest, _ := strings.Cut(rel, "/")

	if unit == RootFilesUnit {
		// The root files transfer runs from the source root and excludes
		// all directories up front, so a pattern pointing inside one can
		// never match.
		if rest != "" {
			return "", false
		}

		return raw, true
	}

	if !segmentMatches(first, unit) {
		return "", false
	}

	if rest == "" {
		// The pattern names the unit directory itself, so inside the
		// transfer it covers everything.
		return "/***", true
	}

	return "/" + rest, true
}

func segmentMatches(segment, unit string) bool {
	if segment == unit {
		return true
	}

	compiled, err := glob.Compile(segment, '/')

	return err == nil && compiled.Match(unit)
}

// ancestorDirs lists the directory prefixes of the pattern, each with a
// trailing slash so rsync matches directories only.
func ancestorDirs(p string) []string {
	var dirs []string

	for i := 1; i < len(p)-1; i++ {
		if p[i] == '/' {
			dirs = append(dirs, p[:i+1])
		}
	}

	return dirs
}

// subtreePattern extends the pattern to the whole tree below it, the
// same directory-covers-subtree reading [Filter.Allows] applies.
func subtreePattern(p string) string {
	if strings.HasSuffix(p, "***") {
		return p
	}

	return strings.TrimSuffix(p, "/") + "/***"
}

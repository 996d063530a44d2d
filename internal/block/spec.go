// SPDX-FileCopyrightText: 2025 Arne Thielen <arne@aethr.net>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package block

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// SpecKind is the form of a root specification.
type SpecKind int

const (
	SpecPath SpecKind = iota
	SpecUUID
	SpecLabel
	SpecPartUUID
)

func (k SpecKind) String() string {
	switch k {
	case SpecUUID:
		return "UUID"
	case SpecLabel:
		return "LABEL"
	case SpecPartUUID:
		return "PARTUUID"
	default:
		return "path"
	}
}

// RootSpec is the user supplied identifier of the source root device.
type RootSpec struct {
	Kind  SpecKind
	Value string
}

// ParseRootSpec parses raw specifications of the forms "UUID=...",
// "LABEL=...", "PARTUUID=..." and plain device paths.
func ParseRootSpec(raw string) (RootSpec, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return RootSpec{}, fmt.Errorf("%w: empty", ErrInvalidSpec)
	}

	prefix, value, hasPrefix := strings.Cut(raw, "=")
	if hasPrefix {
		switch strings.ToUpper(prefix) {
		case "UUID":
			if _, err := uuid.Parse(value); err != nil {
				return RootSpec{}, fmt.Errorf(
					"%w: UUID %q: %w", ErrInvalidSpec, value, err,
				)
			}

			return RootSpec{Kind: SpecUUID, Value: value}, nil
		case "LABEL":
			return RootSpec{Kind: SpecLabel, Value: value}, nil
		case "PARTUUID":
			return RootSpec{Kind: SpecPartUUID, Value: value}, nil
		}
	}

	if !strings.HasPrefix(raw, "/") {
		return RootSpec{}, fmt.Errorf("%w: %q", ErrInvalidSpec, raw)
	}

	return RootSpec{Kind: SpecPath, Value: raw}, nil
}

func (s RootSpec) String() string {
	if s.Kind == SpecPath {
		return s.Value
	}

	return s.Kind.String() + "=" + s.Value
}

// Container is the detected container kind of a resolved device.
type Container int

const (
	ContainerPlain Container = iota
	ContainerLUKS
	ContainerLVM
)

func (c Container) String() string {
	switch c {
	case ContainerLUKS:
		return "luks"
	case ContainerLVM:
		return "lvm"
	default:
		return "plain"
	}
}

// ResolvedDevice is the concrete block device the migration reads from.
// It is produced once per boot attempt and never mutated.
type ResolvedDevice struct {
	Path      string
	FSType    string
	Container Container
}

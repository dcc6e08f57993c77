package tree

import (
	"errors"
	"fmt"
	"strings"

	"github.com/AndreyAkinshin/gtm/internal/config"
)

// Separator joins id segments. Config validation rejects it inside paths and
// test file names, so splitting is unambiguous.
const Separator = config.ReservedSeparator

// Reasons an id fails to parse. Use errors.Is against an *IDError.
var (
	ErrEmptyID         = errors.New("empty id")
	ErrTooManySegments = errors.New("too many segments")
	ErrEmptyKind       = errors.New("empty runner kind segment")
	ErrUnknownKind     = errors.New("unknown runner kind")
	ErrEmptyFile       = errors.New("empty test file segment")
)

// IDError describes a malformed node id.
type IDError struct {
	ID      string
	Segment string
	Err     error
}

func (e *IDError) Error() string {
	if e.Segment != "" {
		return fmt.Sprintf("malformed node id %q: %v %q", e.ID, e.Err, e.Segment)
	}
	return fmt.Sprintf("malformed node id %q: %v", e.ID, e.Err)
}

func (e *IDError) Unwrap() error {
	return e.Err
}

// ID addresses a node in the test tree.
//
// A project id carries only Project, a runner group id adds Kind, and a leaf id
// adds File.
type ID struct {
	Project string
	Kind    config.RunnerKind
	File    string
}

// ProjectID returns the id of a project node.
func ProjectID(path string) ID {
	return ID{Project: path}
}

// GroupID returns the id of a runner group node.
func GroupID(path string, kind config.RunnerKind) ID {
	return ID{Project: path, Kind: kind}
}

// LeafID returns the id of a leaf node.
func LeafID(path string, kind config.RunnerKind, file string) ID {
	return ID{Project: path, Kind: kind, File: file}
}

// IsLeaf reports whether the id names a single test file.
func (id ID) IsLeaf() bool {
	return id.File != ""
}

// String encodes the id. It is the only place segments are joined.
func (id ID) String() string {
	return EncodeID(id)
}

// EncodeID joins the non-empty trailing segments of id with Separator.
func EncodeID(id ID) string {
	switch {
	case id.File != "":
		return strings.Join([]string{id.Project, string(id.Kind), id.File}, Separator)
	case id.Kind != "":
		return id.Project + Separator + string(id.Kind)
	default:
		return id.Project
	}
}

// ParseID splits an encoded id. The project segment may be empty when a kind
// follows, mirroring projects configured without a path.
func ParseID(s string) (ID, error) {
	if s == "" {
		return ID{}, &IDError{ID: s, Err: ErrEmptyID}
	}

	parts := strings.Split(s, Separator)
	if len(parts) > 3 {
		return ID{}, &IDError{ID: s, Err: ErrTooManySegments}
	}

	id := ID{Project: parts[0]}
	if len(parts) == 1 {
		return id, nil
	}

	kind := parts[1]
	if kind == "" {
		return ID{}, &IDError{ID: s, Err: ErrEmptyKind}
	}
	id.Kind = config.RunnerKind(kind)
	if !id.Kind.Valid() {
		return ID{}, &IDError{ID: s, Segment: kind, Err: ErrUnknownKind}
	}

	if len(parts) == 3 {
		if parts[2] == "" {
			return ID{}, &IDError{ID: s, Err: ErrEmptyFile}
		}
		id.File = parts[2]
	}

	return id, nil
}

// Package toolerr defines the tool-error taxonomy: conditions that abort
// the current phase rather than surface as a blocked operation.
package toolerr

import "errors"

var (
	// ErrUnreadableArtifact covers a plan or apply-record artifact that
	// cannot be read from disk by its caller.
	ErrUnreadableArtifact = errors.New("buildfix: unreadable artifact")

	// ErrUnparseableManifest covers a target manifest the edit engine
	// cannot structurally parse.
	ErrUnparseableManifest = errors.New("buildfix: unparseable manifest")

	// ErrEditRuleFailed covers a TomlTransform rule that cannot satisfy
	// its invariant against the current manifest shape.
	ErrEditRuleFailed = errors.New("buildfix: edit rule failed")

	// ErrUnreachableWrite covers a write path the applier cannot reach
	// (permission, missing parent, not a regular file).
	ErrUnreachableWrite = errors.New("buildfix: unreachable write path")

	// ErrInvalidPath covers a path that fails the canonicalization rules
	// of the data model: not repo-relative, backslash-separated, a
	// leading "./", or a trailing "/".
	ErrInvalidPath = errors.New("buildfix: invalid path")
)

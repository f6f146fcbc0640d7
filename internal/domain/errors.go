package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound means the referenced node does not exist.
	ErrNotFound = errors.New("node not found")

	// ErrParentNotFound means the referenced parent does not exist, is
	// not owned by the caller, or is not a directory.
	ErrParentNotFound = errors.New("parent directory not found")

	// ErrForbidden means the node exists but belongs to another user.
	ErrForbidden = errors.New("you do not have permission to access this node")

	// ErrNameConflict means a sibling with the same name already exists
	// under the same parent for the same owner.
	ErrNameConflict = errors.New("an item with this name already exists in this location")

	// ErrInvalidMove means a directory was moved into itself or into one
	// of its own descendants.
	ErrInvalidMove = errors.New("cannot move a directory into itself or its own subtree")

	// ErrAlreadyInLocation means the move target equals the current parent.
	ErrAlreadyInLocation = errors.New("item is already in this location")

	// ErrStorageWriteFailed means the object store rejected the upload.
	// No metadata row exists for the failed upload.
	ErrStorageWriteFailed = errors.New("failed to write file to storage")

	// ErrStorageDeleteFailed means the object store rejected a delete.
	ErrStorageDeleteFailed = errors.New("failed to delete file from storage")

	// ErrNotAFile means a file-only operation targeted a directory.
	ErrNotAFile = errors.New("node is not a file")

	// ErrNotADirectory means a directory-only operation targeted a file.
	ErrNotADirectory = errors.New("node is not a directory")

	// ErrEmptyDirectory means a directory archive was requested for a
	// directory that contains no files.
	ErrEmptyDirectory = errors.New("directory contains no files")
)

// InvalidNameError reports a violation of the naming policy together
// with a human-readable reason.
type InvalidNameError struct {
	Name   string
	Reason string
}

func (e *InvalidNameError) Error() string {
	return fmt.Sprintf("invalid name %q: %s", e.Name, e.Reason)
}

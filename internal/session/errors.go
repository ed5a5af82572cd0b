package session

import "errors"

var (
	// ErrNoRecords indicates an undo was requested with nothing to remove.
	ErrNoRecords = errors.New("no records to undo")
	// ErrReplyNotFound indicates the referenced message could not be resolved.
	ErrReplyNotFound = errors.New("referenced message not found")
)

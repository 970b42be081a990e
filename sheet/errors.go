package sheet

import "errors"

var (
	ErrLocked           = errors.New("sheet is locked by another editor")
	ErrBlockNotFound    = errors.New("block not found")
	ErrNoChange         = errors.New("no upstream change recorded for item")
	ErrNotMeasurable    = errors.New("block content is not attached to a measurable surface")
	ErrInvalidKey       = errors.New("invalid item key")
	ErrSnapshotNotFound = errors.New("snapshot not found")
	ErrSuperseded       = errors.New("auto-fit request superseded by a newer request")
	ErrNotOpen          = errors.New("editor is not open")
)

package meetings

import "errors"

var (
	// ErrNotFound means the referenced meeting, class, or student is missing.
	ErrNotFound = errors.New("not found")
	// ErrNotAuthorized means the viewer's scope does not include the target.
	ErrNotAuthorized = errors.New("not authorized")
	// ErrInvalidInput marks malformed operation parameters.
	ErrInvalidInput = errors.New("invalid input")
	// ErrPartialBatch means one chunk of a batched fetch failed. The whole
	// aggregation fails; incomplete statistics are never returned.
	ErrPartialBatch = errors.New("partial batch failure")
	// ErrReferentialIntegrity means a delete was blocked by dependent rows
	// the engine did not anticipate.
	ErrReferentialIntegrity = errors.New("dependent rows still reference meeting")
)

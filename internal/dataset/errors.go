package dataset

import "errors"

// Sentinel errors returned by the dataset layer. Handlers map these to HTTP
// status codes with errors.Is; anything else is treated as an I/O failure.
var (
	// ErrNotFound indicates a missing record in a single-record lookup.
	// Missing table files are NOT reported through this error by Query or
	// Districts; those degrade to empty results because a city may simply
	// have no filed transactions of a given type.
	ErrNotFound = errors.New("not found")

	// ErrBadInput indicates malformed request parameters (city, type, id).
	ErrBadInput = errors.New("bad input")

	// ErrTooLarge indicates an uploaded archive exceeded the configured
	// byte ceiling. Detected incrementally while the body streams in.
	ErrTooLarge = errors.New("archive too large")

	// ErrExtraction indicates the uploaded archive could not be unpacked
	// (unsupported or corrupt format).
	ErrExtraction = errors.New("archive extraction failed")
)

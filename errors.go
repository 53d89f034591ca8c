package keepbook

import "errors"

var (
	// ErrInvalidInput is returned for malformed caller input: dates, decimals,
	// granularity or strategy names.
	ErrInvalidInput = errors.New("invalid input")

	// ErrUnknownAccount is returned when the caller explicitly asks for an
	// account that storage does not know.
	ErrUnknownAccount = errors.New("unknown account")
)

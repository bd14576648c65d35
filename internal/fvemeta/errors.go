package fvemeta

import "errors"

var (
	errTruncatedEntry = errors.New("fvemeta: truncated entry")
	errTooDeep        = errors.New("fvemeta: nested entry depth exceeded")
)

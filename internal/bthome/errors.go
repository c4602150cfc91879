package bthome

import "errors"

var (
	ErrProtocolMismatch = errors.New("not a BTHome v2 payload")
	ErrTruncated        = errors.New("object value truncated")
	ErrUnknownObject    = errors.New("unknown object id")
)

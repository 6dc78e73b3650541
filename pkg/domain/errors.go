package domain

import "errors"

// ErrNotFound indicates a referenced feed, entry or job that doesn't exist or
// doesn't belong to the requesting user. Never retried by callers.
var ErrNotFound = errors.New("not found")

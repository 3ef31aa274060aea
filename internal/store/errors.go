package store

import "errors"

// ErrInvalidReference is returned when a supplied id is malformed or does
// not resolve to an existing document. Call sites decide whether that means
// 404 or "create a new one".
var ErrInvalidReference = errors.New("referenced document does not exist")

package repository

import "errors"

// ErrNotFound is returned when a row does not exist. Callers compare with
// errors.Is and translate it to their own not-found error.
var ErrNotFound = errors.New("not found")

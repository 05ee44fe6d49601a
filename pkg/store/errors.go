package store

import "errors"

// ErrBackend wraps any failure surfaced by the underlying bbolt database.
var ErrBackend = errors.New("store: backend error")

// ErrIO wraps filesystem failures encountered while opening or sizing the
// database file.
var ErrIO = errors.New("store: io error")

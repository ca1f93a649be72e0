// Package db holds the shared contracts and error types for the storage
// adapters.
package db

import (
	"errors"
	"fmt"
)

// ErrKeyNotFound signals a missing key in a KV store.
var ErrKeyNotFound = errors.New("key not found")

// Op identifies a store operation in errors.
type Op string

const (
	OpGet  Op = "get"
	OpSet  Op = "set"
	OpPing Op = "ping"
)

// Error wraps a store failure with the operation that produced it.
type Error struct {
	Op  Op
	Err error
}

func (e *Error) Error() string { return fmt.Sprintf("db %s: %v", e.Op, e.Err) }

func (e *Error) Unwrap() error { return e.Err }

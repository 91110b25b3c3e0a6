package kv

import (
	"errors"
	"fmt"
)

// ErrWrongType is returned when a write targets a key holding a different kind
var ErrWrongType = errors.New("wrong kind")

// ErrNotNumber is returned when a numeric operation meets a non-numeric payload
var ErrNotNumber = errors.New("value is not a number")

// ErrEmptyKey is returned for commands given an empty key
var ErrEmptyKey = errors.New("empty key")

// ErrBackendUnavailable is returned when the backend storage is unavailable
var ErrBackendUnavailable = errors.New("backend unavailable")

// TypeConflictError describes a write that expected Want on a key declared as Have.
type TypeConflictError struct {
	Key  string
	Want Kind
	Have Kind
}

func (e *TypeConflictError) Error() string {
	return fmt.Sprintf("cannot use %q as %s because it already exists as %s", e.Key, e.Want, e.Have)
}

// Is makes errors.Is(err, ErrWrongType) hold for every conflict.
func (e *TypeConflictError) Is(target error) bool {
	return target == ErrWrongType
}

// CheckKey rejects the empty key.
func CheckKey(key string) error {
	if key == "" {
		return ErrEmptyKey
	}
	return nil
}

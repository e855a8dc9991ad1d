// Package apperr holds the sentinel errors shared across layers.
package apperr

import "errors"

var (
	ErrNotFound       = errors.New("not found")
	ErrConflict       = errors.New("conflict")
	ErrAlreadyExists  = errors.New("already exists")
	ErrInvalidImage   = errors.New("invalid image")
	ErrNoActiveStroke = errors.New("no active stroke")
	ErrInvalidInput   = errors.New("invalid input")
)

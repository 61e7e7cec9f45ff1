package domain

import "errors"

// ErrInvalidInput marks a missing or malformed identifier or parameter.
var ErrInvalidInput = errors.New("invalid input")

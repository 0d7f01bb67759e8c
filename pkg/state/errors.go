package state

import "errors"

var (
	// ErrAlreadyRegistered is returned when a connection that already has an
	// identity is registered again. Callers must unregister first.
	ErrAlreadyRegistered = errors.New("connection is already registered")

	// ErrNotRegistered is returned when resolving the identity of a
	// connection the registry does not know about.
	ErrNotRegistered = errors.New("connection is not registered")

	// ErrNotInChannel is returned by Leave when the caller needs to
	// distinguish absence from success.
	ErrNotInChannel = errors.New("connection is not in this channel")
)

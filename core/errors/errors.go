// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package errors holds the error kinds surfaced by the simulated controller.
// Callers test for a kind with errors.Is; the concrete error carries the
// detail of the failing operation.
package errors

import (
	"github.com/juju/errors"
)

const (
	// ConnectionError is returned by every workload operation against a
	// container that cannot be connected to.
	ConnectionError = errors.ConstError("cannot connect to workload container")

	// NotFound is returned when a path, relation, secret, storage or other
	// entity is absent from the state.
	NotFound = errors.ConstError("not found")

	// PermissionDenied is returned when the unit lacks the rights for an
	// operation, such as a non-leader writing application data or a
	// non-owner managing a secret.
	PermissionDenied = errors.ConstError("permission denied")

	// ProtocolError is returned for malformed workload requests.
	ProtocolError = errors.ConstError("protocol error")

	// NotDirectory is returned when a path component that must be a
	// directory is not one.
	NotDirectory = errors.ConstError("not a directory")

	// AlreadyExists is returned when creating something that is already
	// present.
	AlreadyExists = errors.ConstError("already exists")

	// NotValid is returned when a value does not satisfy its declared schema.
	NotValid = errors.ConstError("not valid")

	// NotSupported is returned when an operation needs a newer controller
	// than the one being simulated.
	NotSupported = errors.ConstError("not supported")
)

const (
	// NotDeclared is returned when an event or operation references a
	// relation, container, storage, action or config key that the charm
	// metadata does not declare.
	NotDeclared = errors.ConstError("not declared in charm metadata")

	// NoMatchingExec is returned when a command is executed in a container
	// with no registered exec mock matching it.
	NoMatchingExec = errors.ConstError("no matching exec mock")

	// Inconsistent is returned when the input state and event cannot
	// describe a situation the real controller could produce.
	Inconsistent = errors.ConstError("inconsistent scenario")
)

// IsMisuse reports whether err is a harness misuse, which is fatal to a run
// and never downgraded to a default outcome.
func IsMisuse(err error) bool {
	return errors.Is(err, NotDeclared) ||
		errors.Is(err, NoMatchingExec) ||
		errors.Is(err, Inconsistent)
}

// Errorf returns an error formatted like errors.Errorf that also satisfies
// errors.Is(err, kind).
func Errorf(kind errors.ConstError, format string, args ...interface{}) error {
	err := errors.Errorf(format, args...)
	if e, ok := err.(*errors.Err); ok {
		e.SetLocation(1)
	}
	return errors.WithType(err, kind)
}

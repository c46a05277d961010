// Copyright (c) 2026 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package datastore

import "errors"

// Errors that can occur during driver registration.
var (
	// ErrDbTypeRegistered is returned when two different store drivers
	// attempt to register with the same type.
	ErrDbTypeRegistered = errors.New("store type already registered")
)

// Errors that the various store functions may return.
var (
	// ErrUnknownType is returned when there is no driver registered for
	// the specified store type.
	ErrUnknownType = errors.New("unknown store type")

	// ErrInvalidArgs is returned when a driver cannot make sense of its
	// open arguments.
	ErrInvalidArgs = errors.New("invalid store arguments")

	// ErrNotConnected is returned when a store is used before Connect or
	// after Disconnect.
	ErrNotConnected = errors.New("store not connected")

	// ErrInvalidNamespace is returned for an empty namespace.
	ErrInvalidNamespace = errors.New("invalid namespace")
)

// CheckNamespace returns ErrInvalidNamespace for an empty namespace.
func CheckNamespace(namespace string) error {
	if namespace == "" {
		return ErrInvalidNamespace
	}
	return nil
}

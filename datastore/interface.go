// Copyright (c) 2026 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package datastore defines the shared store mixing peers talk through and a
// registry of store drivers.
//
// A store is an append-only bulletin board partitioned into namespaces.
// Publish appends opaque bytes to a namespace and Poll returns everything
// published to it so far.  Nothing else is promised: callers must tolerate
// duplicate, missing and reordered messages, and treat every message as
// untrusted.
//
// Drivers register themselves from their package init functions, so a program
// imports the drivers it wants for their side effects:
//
//	import _ "github.com/btcsuite/coinmux/datastore/boltstore"
package datastore

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"sync"
)

// Store is the shared store capability.
type Store interface {
	// Connect opens the connection to the store.  It must be called
	// before any other method and may be called again after Disconnect.
	Connect(ctx context.Context) error

	// Disconnect releases the connection.
	Disconnect() error

	// Publish appends a message to the namespace.
	Publish(ctx context.Context, namespace string, msg []byte) error

	// Poll returns every message published to the namespace.
	Poll(ctx context.Context, namespace string) ([][]byte, error)
}

// Driver defines a structure for store drivers to use when they register
// themselves as a backend implementing the Store interface.
type Driver struct {
	// Type is the identifier used to uniquely identify a specific store
	// driver.  It doubles as the URI scheme of the driver.
	Type string

	// Open is the function that will be invoked with all user-specified
	// arguments to open the store.
	Open func(args ...interface{}) (Store, error)
}

var (
	driversMtx sync.RWMutex
	drivers    = make(map[string]*Driver)
)

// RegisterDriver adds a store driver to available interfaces.
// ErrDbTypeRegistered will be returned if the type for the driver has already
// been registered.
func RegisterDriver(driver Driver) error {
	driversMtx.Lock()
	defer driversMtx.Unlock()

	if _, exists := drivers[driver.Type]; exists {
		return ErrDbTypeRegistered
	}

	drivers[driver.Type] = &driver
	return nil
}

// SupportedDrivers returns a sorted slice of strings that represent the store
// drivers that have been registered and are therefore supported.
func SupportedDrivers() []string {
	driversMtx.RLock()
	defer driversMtx.RUnlock()

	supported := make([]string, 0, len(drivers))
	for _, drv := range drivers {
		supported = append(supported, drv.Type)
	}
	sort.Strings(supported)

	return supported
}

// Open opens a store of the given type.  The arguments are specific to the
// driver.  ErrUnknownType is returned if the type is not registered.
func Open(storeType string, args ...interface{}) (Store, error) {
	driversMtx.RLock()
	drv, exists := drivers[storeType]
	driversMtx.RUnlock()

	if !exists {
		return nil, fmt.Errorf("%w: %q (supported: %v)",
			ErrUnknownType, storeType, SupportedDrivers())
	}

	return drv.Open(args...)
}

// OpenURI opens the store a URI points at.  The scheme selects the driver,
// which receives the whole URI as its only argument.
func OpenURI(uri string) (Store, error) {
	u, err := url.Parse(uri)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidArgs, err)
	}
	if u.Scheme == "" {
		return nil, fmt.Errorf("%w: %q has no scheme", ErrInvalidArgs,
			uri)
	}

	return Open(u.Scheme, uri)
}

// URIArg extracts the URI argument drivers receive from Open and OpenURI.
func URIArg(driver string, args ...interface{}) (*url.URL, error) {
	if len(args) != 1 {
		return nil, fmt.Errorf("%w: %s expects a single URI argument",
			ErrInvalidArgs, driver)
	}

	raw, ok := args[0].(string)
	if !ok {
		return nil, fmt.Errorf("%w: first argument to %s is not a "+
			"string", ErrInvalidArgs, driver)
	}

	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidArgs, err)
	}
	if u.Scheme != driver {
		return nil, fmt.Errorf("%w: %q is not a %s URI",
			ErrInvalidArgs, raw, driver)
	}

	return u, nil
}

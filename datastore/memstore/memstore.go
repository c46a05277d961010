// Copyright (c) 2026 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package memstore implements an in-process store.  Stores opened with the
// same board name share their content, which lets several mixers in one
// process, or one test, run a session together.
package memstore

import (
	"context"
	"fmt"
	"sync"

	"github.com/btcsuite/coinmux/datastore"
)

const storeType = "memory"

// board is the content of a named store.
type board struct {
	mu         sync.RWMutex
	namespaces map[string][][]byte
}

var (
	boardsMtx sync.Mutex
	boards    = make(map[string]*board)
)

// boardFor returns the board with the given name, creating it if needed.
func boardFor(name string) *board {
	boardsMtx.Lock()
	defer boardsMtx.Unlock()

	b, ok := boards[name]
	if !ok {
		b = &board{namespaces: make(map[string][][]byte)}
		boards[name] = b
	}
	return b
}

// Store is a handle on a named in-memory board.
type Store struct {
	name string

	mu    sync.RWMutex
	board *board
}

// A compile-time assertion to ensure Store meets the datastore.Store
// interface.
var _ datastore.Store = (*Store)(nil)

// New returns a handle on the named board.  The handle must be connected
// before use.
func New(name string) *Store {
	return &Store{name: name}
}

// Connect implements datastore.Store.
func (s *Store) Connect(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.board = boardFor(s.name)
	return nil
}

// Disconnect implements datastore.Store.
func (s *Store) Disconnect() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.board = nil
	return nil
}

func (s *Store) connected() (*board, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.board == nil {
		return nil, datastore.ErrNotConnected
	}
	return s.board, nil
}

// Publish implements datastore.Store.
func (s *Store) Publish(_ context.Context, namespace string,
	msg []byte) error {

	if err := datastore.CheckNamespace(namespace); err != nil {
		return err
	}
	b, err := s.connected()
	if err != nil {
		return err
	}

	b.mu.Lock()
	b.namespaces[namespace] = append(b.namespaces[namespace],
		append([]byte(nil), msg...))
	b.mu.Unlock()

	datastore.Log.Tracef("Published %d bytes to %s/%s", len(msg),
		s.name, namespace)

	return nil
}

// Poll implements datastore.Store.
func (s *Store) Poll(_ context.Context, namespace string) ([][]byte, error) {
	if err := datastore.CheckNamespace(namespace); err != nil {
		return nil, err
	}
	b, err := s.connected()
	if err != nil {
		return nil, err
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	stored := b.namespaces[namespace]
	msgs := make([][]byte, len(stored))
	for i, msg := range stored {
		msgs[i] = append([]byte(nil), msg...)
	}

	return msgs, nil
}

// Reset drops the named board.  Handles connected to it keep the old
// content.
func Reset(name string) {
	boardsMtx.Lock()
	delete(boards, name)
	boardsMtx.Unlock()
}

// openDriver is the callback provided during driver registration.  It accepts
// either a board name or a memory://name URI.
func openDriver(args ...interface{}) (datastore.Store, error) {
	if len(args) == 1 {
		if raw, ok := args[0].(string); ok {
			u, err := datastore.URIArg(storeType, raw)
			if err == nil {
				return New(u.Host + u.Path), nil
			}
			return New(raw), nil
		}
	}

	return nil, fmt.Errorf("%w: %s expects a board name or URI",
		datastore.ErrInvalidArgs, storeType)
}

func init() {
	driver := datastore.Driver{
		Type: storeType,
		Open: openDriver,
	}
	if err := datastore.RegisterDriver(driver); err != nil {
		panic(fmt.Sprintf("Failed to register store driver '%s': %v",
			storeType, err))
	}
}

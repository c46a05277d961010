// Copyright (c) 2026 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package events delivers progress reports of a coin join to the caller.
package events

import (
	"fmt"
	"sync"

	"github.com/lightningnetwork/lnd/fn/v2"
)

// Source names the producer of an event.
type Source string

const (
	// SourceMixer marks events about the session as a whole.
	SourceMixer Source = "mixer"

	// SourceParticipant marks events about other participants.
	SourceParticipant Source = "participant"
)

// Type classifies an event.
type Type string

const (
	TypeProgress  Type = "progress"
	TypeWarning   Type = "warning"
	TypeCompleted Type = "completed"
	TypeFailed    Type = "failed"
	TypeCancelled Type = "cancelled"
)

// IsTerminal reports whether no event follows one of this type.
func (t Type) IsTerminal() bool {
	switch t {
	case TypeCompleted, TypeFailed, TypeCancelled:
		return true
	}
	return false
}

// Event is one progress report.
type Event struct {
	Source  Source
	Type    Type
	Message string
}

// String formats the event for display.
func (e Event) String() string {
	return fmt.Sprintf("[%s]: %s - %s", e.Source, e.Type, e.Message)
}

// defaultBufferSize is the size of the output buffer in front of the
// unbounded overflow.
const defaultBufferSize = 20

// Queue is an unbounded, ordered event queue with any number of producers
// and a single consumer.  The channel returned by Events is closed after a
// terminal event has been delivered or the queue is stopped.
type Queue struct {
	queue *fn.ConcurrentQueue[Event]
	out   chan Event

	// mu serializes producers and guards closed.
	mu     sync.Mutex
	closed bool

	started sync.Once
	stopped sync.Once
	quit    chan struct{}
	wg      sync.WaitGroup
}

// NewQueue returns a queue.  Start must be called before events are emitted.
func NewQueue() *Queue {
	return &Queue{
		queue: fn.NewConcurrentQueue[Event](defaultBufferSize),
		out:   make(chan Event),
		quit:  make(chan struct{}),
	}
}

// Start starts delivering events.
func (q *Queue) Start() {
	q.started.Do(func() {
		q.queue.Start()

		q.wg.Add(1)
		go q.forward()
	})
}

// Stop stops the queue.  Undelivered events are discarded.
func (q *Queue) Stop() {
	q.stopped.Do(func() {
		close(q.quit)
		q.wg.Wait()
		q.queue.Stop()
	})
}

// forward moves events to the consumer and closes its channel once a
// terminal event has been read.
func (q *Queue) forward() {
	defer q.wg.Done()
	defer close(q.out)

	for {
		select {
		case e := <-q.queue.ChanOut():
			select {
			case q.out <- e:
			case <-q.quit:
				return
			}

			if e.Type.IsTerminal() {
				return
			}

		case <-q.quit:
			return
		}
	}
}

// Emit queues the event.  Emit never blocks on the consumer.  It returns
// false when the event was dropped because a terminal event was already
// queued or the queue is stopped.
func (q *Queue) Emit(e Event) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}

	select {
	case q.queue.ChanIn() <- e:
	case <-q.quit:
		q.closed = true
		return false
	}

	if e.Type.IsTerminal() {
		q.closed = true
	}

	return true
}

// Events returns the channel events are delivered on.
func (q *Queue) Events() <-chan Event {
	return q.out
}

// Copyright (c) 2026 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package events

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// drain reads events until the channel closes.
func drain(t *testing.T, q *Queue) []Event {
	t.Helper()

	var got []Event
	timeout := time.After(5 * time.Second)
	for {
		select {
		case e, ok := <-q.Events():
			if !ok {
				return got
			}
			got = append(got, e)

		case <-timeout:
			t.Fatalf("queue not closed after %d events", len(got))
		}
	}
}

// TestQueueOrder checks that events of every producer arrive in order and
// that the terminal event closes the queue.
func TestQueueOrder(t *testing.T) {
	t.Parallel()

	q := NewQueue()
	q.Start()
	defer q.Stop()

	const (
		producers = 4
		perSource = 50
	)

	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for i := 0; i < perSource; i++ {
				require.True(t, q.Emit(Event{
					Source:  SourceParticipant,
					Type:    TypeProgress,
					Message: fmt.Sprintf("%d:%d", p, i),
				}))
			}
		}(p)
	}
	wg.Wait()

	require.True(t, q.Emit(Event{
		Source: SourceMixer, Type: TypeCompleted, Message: "done",
	}))
	require.False(t, q.Emit(Event{
		Source: SourceMixer, Type: TypeProgress, Message: "late",
	}))

	got := drain(t, q)
	require.Len(t, got, producers*perSource+1)
	require.Equal(t, TypeCompleted, got[len(got)-1].Type)

	next := make([]int, producers)
	for _, e := range got[:len(got)-1] {
		var p, i int
		_, err := fmt.Sscanf(e.Message, "%d:%d", &p, &i)
		require.NoError(t, err)
		require.Equal(t, next[p], i)
		next[p]++
	}
}

// TestQueueStop checks that stopping closes the consumer channel and drops
// later events.
func TestQueueStop(t *testing.T) {
	t.Parallel()

	q := NewQueue()
	q.Start()

	require.True(t, q.Emit(Event{
		Source: SourceMixer, Type: TypeWarning, Message: "slow store",
	}))

	e := <-q.Events()
	require.Equal(t, "[mixer]: warning - slow store", e.String())

	q.Stop()
	q.Stop()

	require.Empty(t, drain(t, q))
	require.False(t, q.Emit(Event{
		Source: SourceMixer, Type: TypeProgress, Message: "after stop",
	}))
}

// TestTerminalTypes checks which types end the stream.
func TestTerminalTypes(t *testing.T) {
	t.Parallel()

	require.False(t, TypeProgress.IsTerminal())
	require.False(t, TypeWarning.IsTerminal())
	require.True(t, TypeCompleted.IsTerminal())
	require.True(t, TypeFailed.IsTerminal())
	require.True(t, TypeCancelled.IsTerminal())
}

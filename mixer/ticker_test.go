// Copyright (c) 2026 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package mixer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// TestCalculateMinMax checks the interval bounds.
func TestCalculateMinMax(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name     string
		duration time.Duration
		scaler   float64
		min, max int64
	}{
		{
			name:     "no jitter",
			duration: time.Second,
			scaler:   0,
			min:      int64(time.Second),
			max:      int64(time.Second),
		},
		{
			name:     "ten percent",
			duration: time.Second,
			scaler:   0.1,
			min:      int64(900 * time.Millisecond),
			max:      int64(1100 * time.Millisecond),
		},
		{
			name:     "min clamped at zero",
			duration: time.Second,
			scaler:   1.5,
			min:      0,
			max:      int64(2500 * time.Millisecond),
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			min, max := calculateMinMax(tc.duration, tc.scaler)
			require.Equal(t, tc.min, min)
			require.Equal(t, tc.max, max)
		})
	}

	require.Panics(t, func() { calculateMinMax(time.Second, -1) })
}

// TestJitterTicker checks that ticks arrive within the bounds and stop when
// paused.
func TestJitterTicker(t *testing.T) {
	t.Parallel()

	const d = 20 * time.Millisecond
	jt := NewJitterTicker(d, 0.5)

	// Paused tickers do not tick.
	select {
	case <-jt.Ticks():
		t.Fatal("tick before resume")
	case <-time.After(3 * d):
	}

	jt.Resume()
	jt.Resume()

	start := time.Now()
	for i := 0; i < 3; i++ {
		select {
		case <-jt.Ticks():
		case <-time.After(time.Second):
			t.Fatal("no tick")
		}
	}
	require.GreaterOrEqual(t, time.Since(start), 3*d/2)

	jt.Pause()

	// Drain a tick sent right before pausing.
	select {
	case <-jt.Ticks():
	default:
	}

	select {
	case <-jt.Ticks():
		t.Fatal("tick after pause")
	case <-time.After(3 * d):
	}

	jt.Resume()
	select {
	case <-jt.Ticks():
	case <-time.After(time.Second):
		t.Fatal("no tick after resume")
	}
	jt.Stop()
	jt.Stop()
}

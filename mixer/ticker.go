// Copyright (c) 2026 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package mixer

import (
	"errors"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/lightningnetwork/lnd/ticker"
)

// JitterTicker is a ticker.Ticker whose intervals are drawn around a base
// duration.  Participants polling the same store then spread their requests
// instead of hitting it in lockstep.
type JitterTicker struct {
	// c is the internal channel that receives ticks.
	c chan time.Time

	// duration is the base duration of the ticker.
	duration time.Duration

	// min and max bound the interval.  They are duration * (1 - scaler)
	// and duration * (1 + scaler), with min clamped at zero.
	min int64
	max int64

	mu      sync.Mutex
	running bool
	pause   chan struct{}
	wg      sync.WaitGroup
}

// A compile-time assertion to ensure JitterTicker meets the ticker.Ticker
// interface.
var _ ticker.Ticker = (*JitterTicker)(nil)

// NewJitterTicker returns a paused ticker.  A scaler of zero gives a regular
// ticker.
func NewJitterTicker(d time.Duration, scaler float64) *JitterTicker {
	min, max := calculateMinMax(d, scaler)

	return &JitterTicker{
		c:        make(chan time.Time, 1),
		duration: d,
		min:      min,
		max:      max,
	}
}

// calculateMinMax calculates the min and max duration values.
func calculateMinMax(d time.Duration, scaler float64) (int64, int64) {
	if scaler < 0 {
		panic(errors.New("scaler must be positive"))
	}

	min := math.Floor(float64(d) * (1 - scaler))
	max := math.Ceil(float64(d) * (1 + scaler))
	if min < 0 {
		min = 0
	}

	return int64(min), int64(max)
}

// Ticks returns the channel ticks are delivered on.
func (jt *JitterTicker) Ticks() <-chan time.Time {
	return jt.c
}

// Resume starts or restarts delivering ticks.
func (jt *JitterTicker) Resume() {
	jt.mu.Lock()
	defer jt.mu.Unlock()

	if jt.running {
		return
	}
	jt.running = true
	jt.pause = make(chan struct{})

	jt.wg.Add(1)
	go jt.run(jt.pause)
}

// Pause suspends delivering ticks until Resume is called.
func (jt *JitterTicker) Pause() {
	jt.mu.Lock()
	if !jt.running {
		jt.mu.Unlock()
		return
	}
	jt.running = false
	close(jt.pause)
	jt.mu.Unlock()

	jt.wg.Wait()
}

// Stop stops the ticker.  It may be resumed again.
func (jt *JitterTicker) Stop() {
	jt.Pause()
}

func (jt *JitterTicker) run(pause chan struct{}) {
	defer jt.wg.Done()

	timer := time.NewTimer(jt.rand())
	defer timer.Stop()

	for {
		select {
		case t := <-timer.C:
			timer.Reset(jt.rand())

			// Ticks are dropped while the consumer is busy.
			select {
			case jt.c <- t:
			default:
			}

		case <-pause:
			return
		}
	}
}

// rand returns a random duration between the min and max values.
func (jt *JitterTicker) rand() time.Duration {
	if jt.max == jt.min {
		return jt.duration
	}

	d := rand.Int63n(jt.max-jt.min) + jt.min //nolint:gosec
	return time.Duration(d)
}

// Copyright (c) 2013-2026 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"os"
	"os/signal"
	"syscall"
)

// cancelRequests carries cancel requests from internal components, such as
// the session timeout, to the interrupt listener.
var cancelRequests = make(chan struct{}, 1)

// interruptSignals are the signals that cancel the session.
var interruptSignals = []os.Signal{os.Interrupt, syscall.SIGTERM}

// requestCancel asks the interrupt listener to cancel the session as if a
// SIGINT was received.
func requestCancel() {
	select {
	case cancelRequests <- struct{}{}:
	default:
	}
}

// interruptListener calls cancel on the first SIGINT (Ctrl+C), SIGTERM or
// cancel request.  Cancelling is cooperative, so later signals are only
// logged while the final status is published.  The listener exits once done
// is closed.
func interruptListener(cancel func(), done <-chan struct{}) {
	interruptChannel := make(chan os.Signal, 1)
	signal.Notify(interruptChannel, interruptSignals...)

	go func() {
		defer signal.Stop(interruptChannel)

		select {
		case sig := <-interruptChannel:
			log.Infof("Received signal (%s).  Cancelling the "+
				"session...", sig)

		case <-cancelRequests:
			log.Info("Received cancel request.  Cancelling the " +
				"session...")

		case <-done:
			return
		}

		cancel()

		for {
			select {
			case sig := <-interruptChannel:
				log.Infof("Received signal (%s).  Already "+
					"cancelling the session...", sig)

			case <-done:
				return
			}
		}
	}()
}

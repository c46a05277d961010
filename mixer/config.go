// Copyright (c) 2026 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package mixer

import (
	"fmt"
	"strings"
	"time"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcwallet/wallet/txrules"
	"github.com/btcsuite/coinmux/btccrypto"
	"github.com/btcsuite/coinmux/chain"
	"github.com/btcsuite/coinmux/coinjoin"
	"github.com/btcsuite/coinmux/datastore"
	"github.com/btcsuite/coinmux/events"
	"github.com/google/uuid"
	"github.com/lightningnetwork/lnd/ticker"
)

const (
	// DefaultPollInterval is the base interval between two steps.
	DefaultPollInterval = 5 * time.Second

	// pollJitter spreads the polls of participants sharing a store.
	pollJitter = 0.2
)

// Config holds everything a mixer needs.  Capabilities are injected so tests
// can run several mixers against shared in-memory backends.
type Config struct {
	// Keys is the key and address capability of the network.
	Keys *btccrypto.Keys

	// Store is the connected message store.
	Store datastore.Store

	// Chain is the chain oracle.
	Chain chain.Oracle

	// Events receives progress reports.  It must be started.
	Events *events.Queue

	// Ticker drives Run.  A JitterTicker over PollInterval is used when
	// nil.
	Ticker ticker.Ticker

	// PollInterval is the base interval of the default ticker.
	PollInterval time.Duration

	// Amount is the value of the mixed output.
	Amount btcutil.Amount

	// Participants is the number of participants to mix with, including
	// the local one.
	Participants int

	// FeeRate is the fee rate in satoshis per kvB.
	FeeRate btcutil.Amount

	// InputKey controls the address the funds are taken from.  It is
	// zeroed when the mixer finishes.
	InputKey *btcec.PrivateKey

	// OutputAddress receives the mixed amount.
	OutputAddress string

	// ChangeAddress receives the change.
	ChangeAddress string

	// SessionID joins a specific announced session when set.
	SessionID string

	// WarnThreshold is the number of invalid status claims after which a
	// participant is reported.
	WarnThreshold int
}

// ConfigError lists every problem of a Config.
type ConfigError struct {
	Problems []string
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	return "invalid mixer config: " + strings.Join(e.Problems, "; ")
}

func (e *ConfigError) add(format string, args ...interface{}) {
	e.Problems = append(e.Problems, fmt.Sprintf(format, args...))
}

// validate checks the config and fills in defaults.
func (c *Config) validate() error {
	errs := &ConfigError{}

	if c.Keys == nil {
		errs.add("missing key capability")
	}
	if c.Store == nil {
		errs.add("missing store")
	}
	if c.Chain == nil {
		errs.add("missing chain oracle")
	}
	if c.Events == nil {
		errs.add("missing event queue")
	}

	if c.Amount <= 0 {
		errs.add("amount must be positive")
	} else if coinjoin.IsDustAmount(c.Amount) {
		errs.add("amount %v is dust", c.Amount)
	} else if c.Amount > btcutil.MaxSatoshi {
		errs.add("amount %v exceeds the money supply", c.Amount)
	}

	if c.Participants < coinjoin.MinParticipants ||
		c.Participants > coinjoin.MaxParticipants {

		errs.add("participants must be between %d and %d",
			coinjoin.MinParticipants, coinjoin.MaxParticipants)
	}

	if c.FeeRate < txrules.DefaultRelayFeePerKb ||
		c.FeeRate > coinjoin.MaxFeeRate {

		errs.add("fee rate must be between %v and %v per kvB",
			txrules.DefaultRelayFeePerKb, coinjoin.MaxFeeRate)
	}

	if c.SessionID != "" {
		if _, err := uuid.Parse(c.SessionID); err != nil {
			errs.add("session %q is not a valid identifier",
				c.SessionID)
		}
	}

	var inputAddress string
	switch {
	case c.InputKey == nil:
		errs.add("missing input private key")

	case c.InputKey.Key.IsZero():
		errs.add("input private key is not a valid key")

	case c.Keys != nil:
		addr, err := c.Keys.AddressFromKey(c.InputKey.PubKey())
		if err != nil {
			errs.add("input key: %v", err)
		}
		inputAddress = addr
	}

	if c.Keys != nil {
		if !c.Keys.IsValidAddress(c.OutputAddress) {
			errs.add("output address %q is not a valid address",
				c.OutputAddress)
		}
		if !c.Keys.IsValidAddress(c.ChangeAddress) {
			errs.add("change address %q is not a valid address",
				c.ChangeAddress)
		}
	}

	if c.OutputAddress != "" && c.OutputAddress == c.ChangeAddress {
		errs.add("output and change address must differ")
	}
	if inputAddress != "" && (c.OutputAddress == inputAddress ||
		c.ChangeAddress == inputAddress) {

		errs.add("output and change address must differ from the " +
			"input address")
	}

	if c.PollInterval <= 0 {
		c.PollInterval = DefaultPollInterval
	}
	if c.Ticker == nil {
		c.Ticker = NewJitterTicker(c.PollInterval, pollJitter)
	}

	if len(errs.Problems) > 0 {
		return errs
	}

	return nil
}

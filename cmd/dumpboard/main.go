// Copyright (c) 2015-2026 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/coinmux/btccrypto"
	"github.com/btcsuite/coinmux/coinjoin"
	"github.com/btcsuite/coinmux/datastore"
	_ "github.com/btcsuite/coinmux/datastore/boltstore"
	_ "github.com/btcsuite/coinmux/datastore/sqlstore"
	"github.com/btcsuite/coinmux/message"
	"github.com/btcsuite/coinmux/mixer"
	"github.com/btcsuite/coinmux/netparams"
	"github.com/jessevdk/go-flags"
)

const defaultNet = "mainnet"

var datadir = btcutil.AppDataDir("coinmux", false)

// Flags.
var opts = struct {
	Store   string `long:"datastore" description:"URI of the message store"`
	Session string `long:"session" description:"Session to dump; the announcements are listed when empty"`
	Network string `long:"network" description:"Network of the addresses {mainnet, testnet3, regtest, simnet, signet}"`
}{
	Store:   "bolt://" + filepath.ToSlash(filepath.Join(datadir, "board.db")),
	Network: defaultNet,
}

func main() {
	_, err := flags.Parse(&opts)
	if err != nil {
		os.Exit(1)
	}

	os.Exit(mainInt())
}

func mainInt() int {
	params, err := netparams.ByName(opts.Network)
	if err != nil {
		fmt.Println(err)
		return 1
	}
	keys := btccrypto.New(params.Params)

	fmt.Println("Store:", opts.Store)
	store, err := datastore.OpenURI(opts.Store)
	if err != nil {
		fmt.Println("Failed to open store:", err)
		return 1
	}

	ctx := context.Background()
	if err := store.Connect(ctx); err != nil {
		fmt.Println("Failed to connect to store:", err)
		return 1
	}
	defer store.Disconnect()

	sessions, err := mixer.Announcements(ctx, store)
	if err != nil {
		fmt.Println("Failed to read announcements:", err)
		return 1
	}

	if opts.Session == "" {
		for _, s := range sessions {
			fmt.Printf("%v, fee rate %v/kvB\n", s, s.FeeRate)
		}
		return 0
	}

	var session *coinjoin.Session
	for _, s := range sessions {
		if s.Identifier == opts.Session {
			session = s
		}
	}
	if session == nil {
		fmt.Printf("%v: %s\n", mixer.ErrSessionNotFound, opts.Session)
		return 1
	}

	msgs, err := store.Poll(ctx, session.Namespace())
	if err != nil {
		fmt.Println("Failed to poll session:", err)
		return 1
	}

	fmt.Println("Session:", session)
	for i, data := range msgs {
		dumpEnvelope(os.Stdout, keys, session, i, data)
	}

	return 0
}

// dumpEnvelope prints one line describing a published message.
func dumpEnvelope(w io.Writer, keys *btccrypto.Keys,
	session *coinjoin.Session, i int, data []byte) {

	digest := chainhash.HashH(data)

	env, err := message.DecodeEnvelope(data)
	if err != nil {
		fmt.Fprintf(w, "%4d %v undecodable: %v\n", i, digest, err)
		return
	}

	sender := env.Sender
	if sender == "" {
		sender = "-"
	}
	prefix := fmt.Sprintf("%4d %-9s %s", i, env.Kind, sender)

	if err := env.Verify(keys, session.Identifier); err != nil {
		fmt.Fprintf(w, "%s rejected: %v\n", prefix, err)
		return
	}

	switch env.Kind {
	case message.KindInput:
		input, err := message.ParseInput(env.Payload, session, keys)
		if err != nil {
			fmt.Fprintf(w, "%s invalid: %v\n", prefix, err)
			return
		}
		fmt.Fprintf(w, "%s change %s\n", prefix, input.ChangeAddress)

	case message.KindStatus:
		status, err := message.DecodeStatus(env.Payload)
		if err != nil {
			fmt.Fprintf(w, "%s invalid: %v\n", prefix, err)
			return
		}
		fmt.Fprintf(w, "%s %v at %d/%d", prefix, status.State,
			status.UpdatedAt.BlockHeight, status.UpdatedAt.Nonce)
		status.TransactionID.WhenSome(func(txid chainhash.Hash) {
			fmt.Fprintf(w, " tx %v", txid)
		})
		fmt.Fprintln(w)

	case message.KindSignature:
		sig, err := message.ParseSignature(env.Payload)
		if err != nil {
			fmt.Fprintf(w, "%s invalid: %v\n", prefix, err)
			return
		}
		fmt.Fprintf(w, "%s input %d of %v\n", prefix, sig.InputIndex,
			sig.TransactionID)

	case message.KindFunding:
		funding, err := message.ParseFunding(env.Payload)
		if err != nil {
			fmt.Fprintf(w, "%s invalid: %v\n", prefix, err)
			return
		}
		fmt.Fprintf(w, "%s %d inputs worth %v, change %v\n", prefix,
			len(funding.Inputs), funding.Total(), funding.Change)

	default:
		fmt.Fprintf(w, "%s %v\n", prefix, digest)
	}
}

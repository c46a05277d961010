// Copyright (c) 2013-2026 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/wire"
	"github.com/btcsuite/coinmux/btccrypto"
	"github.com/btcsuite/coinmux/build"
	"github.com/btcsuite/coinmux/chain"
	"github.com/btcsuite/coinmux/datastore"
	_ "github.com/btcsuite/coinmux/datastore/boltstore"
	_ "github.com/btcsuite/coinmux/datastore/memstore"
	_ "github.com/btcsuite/coinmux/datastore/sqlstore"
	"github.com/btcsuite/coinmux/events"
	"github.com/btcsuite/coinmux/internal/prompt"
	"github.com/btcsuite/coinmux/internal/zero"
	"github.com/btcsuite/coinmux/mixer"
	"github.com/davecgh/go-spew/spew"
	"golang.org/x/sync/errgroup"
)

// successMessage is printed once the joint transaction confirmed.
const successMessage = "CoinJoin successfully created!"

var cfg *config

func main() {
	// Work around defer not working after os.Exit.
	if err := coinmuxMain(); err != nil {
		os.Exit(1)
	}
}

// coinmuxMain is a work-around main function that is required since deferred
// functions (such as log flushing) are not called with calls to os.Exit.
// Instead, main runs this function and checks for a non-nil error, at which
// point any defers have already run, and if the error is non-nil, the program
// can be exited with an error exit status.
func coinmuxMain() error {
	// Load configuration and parse command line.  This function also
	// initializes logging and configures it accordingly.
	tcfg, _, err := loadConfig()
	if err != nil {
		return err
	}
	cfg = tcfg
	defer func() {
		if logRotator != nil {
			logRotator.Close()
		}
	}()

	log.Infof("Version %s (%s, %v build, %v logging)", version(),
		activeNet.Params.Name, build.Deployment, build.LoggingType)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, err := datastore.OpenURI(cfg.Datastore)
	if err != nil {
		log.Errorf("Unable to open store %s: %v", cfg.Datastore, err)
		return err
	}
	if err := store.Connect(ctx); err != nil {
		log.Errorf("Unable to connect to store: %v", err)
		return err
	}
	defer store.Disconnect()

	keys := btccrypto.New(activeNet.Params)

	if cfg.List {
		return listSessions(ctx, os.Stdout, store, keys)
	}

	oracle, err := startChainOracle(ctx)
	if err != nil {
		log.Errorf("Unable to connect to the chain backend: %v", err)
		return err
	}
	defer oracle.Stop()

	reader := bufio.NewReader(os.Stdin)
	if activeNet.Params.Net == wire.MainNet {
		ok, err := prompt.ConfirmMainNet(reader)
		if err != nil {
			return err
		}
		if !ok {
			return errors.New("mixing on the main network declined")
		}
	}

	inputKey, err := readInputKey(reader, keys)
	if err != nil {
		log.Errorf("Unable to read the private key: %v", err)
		return err
	}

	queue := events.NewQueue()
	queue.Start()
	defer queue.Stop()

	m, err := mixer.New(mixer.Config{
		Keys:          keys,
		Store:         store,
		Chain:         oracle,
		Events:        queue,
		PollInterval:  cfg.PollInterval,
		Amount:        cfg.Amount.Amount,
		Participants:  cfg.Participants,
		FeeRate:       cfg.FeeRate.Amount,
		InputKey:      inputKey,
		OutputAddress: cfg.Output,
		ChangeAddress: cfg.Change,
		SessionID:     cfg.Session,
	})
	if err != nil {
		inputKey.Zero()

		var cfgErr *mixer.ConfigError
		if errors.As(err, &cfgErr) {
			for _, problem := range cfgErr.Problems {
				fmt.Fprintln(os.Stderr, problem)
			}
		}
		return err
	}

	runDone := make(chan struct{})
	interruptListener(m.Cancel, runDone)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer close(runDone)
		return m.Run(gctx)
	})
	g.Go(func() error {
		printEvents(os.Stdout, queue.Events())
		return nil
	})
	if cfg.Timeout > 0 {
		g.Go(func() error {
			watchTimeout(m, cfg.Timeout, runDone)
			return nil
		})
	}

	err = g.Wait()

	log.Tracef("Final session state: %v", newLogClosure(func() string {
		return spew.Sdump(m.Snapshot())
	}))

	if err != nil {
		log.Errorf("Session ended after %v: %v",
			m.Elapsed().Round(time.Second), err)
		return err
	}

	fmt.Println(successMessage)
	return nil
}

// startChainOracle connects to the RPC server of the chain backend and checks
// it serves the active network.
func startChainOracle(ctx context.Context) (*chain.RPCClient, error) {
	var certs []byte
	if !cfg.DisableClientTLS && cfg.CAFile != "" {
		var err error
		certs, err = os.ReadFile(cfg.CAFile)
		if err != nil {
			return nil, fmt.Errorf("unable to read certificate "+
				"file: %w", err)
		}
	}

	oracle, err := chain.NewRPCClient(&chain.RPCConfig{
		Host:         cfg.RPCConnect,
		User:         cfg.RPCUser,
		Pass:         cfg.RPCPass,
		DisableTLS:   cfg.DisableClientTLS,
		Certificates: certs,
		Chain:        activeNet.Params,
	})
	if err != nil {
		return nil, err
	}

	if err := oracle.Start(ctx); err != nil {
		oracle.Stop()
		return nil, err
	}

	return oracle, nil
}

// readInputKey decodes the configured private key, prompting for it when it
// was not given.  The typed-in bytes are zeroed once decoded.
func readInputKey(reader *bufio.Reader,
	keys *btccrypto.Keys) (*btcec.PrivateKey, error) {

	if cfg.PrivKey != "" {
		key, err := keys.DecodePrivateKey(cfg.PrivKey)
		cfg.PrivKey = ""
		return key, err
	}

	secret, err := prompt.PrivateKey(reader)
	if err != nil {
		return nil, err
	}
	defer zero.Bytes(secret)

	return keys.DecodePrivateKey(string(secret))
}

// printEvents writes every event until the queue closes.
func printEvents(w io.Writer, evs <-chan events.Event) {
	for e := range evs {
		fmt.Fprintln(w, e)
	}
}

// watchTimeout cancels the session once it ran longer than timeout.
func watchTimeout(m *mixer.Mixer, timeout time.Duration,
	done <-chan struct{}) {

	t := time.NewTicker(time.Second)
	defer t.Stop()

	for {
		select {
		case <-t.C:
			if m.Elapsed() < timeout {
				continue
			}

			log.Warnf("Session did not complete within %v", timeout)
			requestCancel()
			return

		case <-done:
			return
		}
	}
}

// listSessions prints the sessions announced in the store.
func listSessions(ctx context.Context, w io.Writer, store datastore.Store,
	keys *btccrypto.Keys) error {

	infos, err := mixer.AvailableSessions(ctx, store, keys)
	if err != nil {
		log.Errorf("Unable to list sessions: %v", err)
		return err
	}

	if len(infos) == 0 {
		fmt.Fprintln(w, "No sessions announced")
		return nil
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SESSION\tAMOUNT\tPARTICIPANTS\tFEE RATE\tSTATE")
	for _, info := range infos {
		s := info.Session
		state := info.State.String()
		if !info.Open() {
			state += " (closed)"
		}
		fmt.Fprintf(tw, "%s\t%v\t%d of %d\t%v/kvB\t%s\n",
			s.Identifier, s.Amount, info.Waiting, s.Participants,
			s.FeeRate, state)
	}

	if err := tw.Flush(); err != nil {
		return err
	}

	fmt.Fprintf(w, "%d %s announced\n", len(infos),
		pickNoun(len(infos), "session", "sessions"))

	return nil
}

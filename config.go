// Copyright (c) 2013-2026 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcwallet/wallet/txrules"
	"github.com/btcsuite/coinmux/internal/cfgutil"
	"github.com/btcsuite/coinmux/mixer"
	"github.com/btcsuite/coinmux/netparams"
	flags "github.com/jessevdk/go-flags"
)

const (
	defaultConfigFilename = "coinmux.conf"
	defaultLogLevel       = "info"
	defaultLogDirname     = "logs"
	defaultLogFilename    = "coinmux.log"
	defaultStoreFilename  = "board.db"
	defaultParticipants   = 5
	defaultRPCHost        = "localhost"
)

var (
	coinmuxHomeDir    = btcutil.AppDataDir("coinmux", false)
	btcdDefaultCAFile = filepath.Join(btcutil.AppDataDir("btcd", false),
		"rpc.cert")
	defaultConfigFile = filepath.Join(coinmuxHomeDir, defaultConfigFilename)
	defaultLogDir     = filepath.Join(coinmuxHomeDir, defaultLogDirname)
	defaultDatastore  = "bolt://" + filepath.ToSlash(
		filepath.Join(coinmuxHomeDir, defaultStoreFilename))
)

// activeNet is the network selected by the config.
var activeNet = &netparams.MainNetParams

type config struct {
	// General application behavior
	ConfigFile  string `short:"C" long:"configfile" description:"Path to configuration file"`
	ShowVersion bool   `short:"V" long:"version" description:"Display version information and exit"`
	TestNet3    bool   `long:"testnet" description:"Use the test Bitcoin network (version 3) (default mainnet)"`
	RegTest     bool   `long:"regtest" description:"Use the regression test network (default mainnet)"`
	SimNet      bool   `long:"simnet" description:"Use the simulation test network (default mainnet)"`
	SigNet      bool   `long:"signet" description:"Use the signet test network (default mainnet)"`
	DebugLevel  string `short:"d" long:"debuglevel" description:"Logging level for all subsystems {trace, debug, info, warn, error, critical, off} -- You may also specify <subsystem>=<level>,<subsystem2>=<level>,... to set the log level for individual subsystems -- Use show to list available subsystems"`
	LogDir      string `long:"logdir" description:"Directory to log output."`

	// Chain backend options
	RPCConnect       string `short:"c" long:"rpcconnect" description:"Hostname/IP and port of the btcd or bitcoind RPC server to connect to (default localhost:8332, testnet: localhost:18332, regtest: localhost:18443, simnet: localhost:18556, signet: localhost:38332)"`
	RPCUser          string `short:"u" long:"rpcuser" description:"Username for RPC authentication"`
	RPCPass          string `short:"P" long:"rpcpass" default-mask:"-" description:"Password for RPC authentication"`
	DisableClientTLS bool   `long:"noclienttls" description:"Disable TLS for the RPC client -- NOTE: This is only allowed if the RPC client is connecting to localhost"`
	CAFile           string `long:"cafile" description:"File containing root certificates to authenticate a TLS connection with the RPC server"`

	// Mixing options
	Datastore    string              `long:"datastore" description:"URI of the shared message store (memory://name, bolt:///path, sqlite:///path, postgres://...)"`
	Amount       *cfgutil.AmountFlag `short:"a" long:"amount" description:"Amount every participant receives, in BTC (a sat suffix reads satoshis)"`
	Participants int                 `short:"n" long:"participants" description:"Number of participants to mix with, including yourself"`
	PrivKey      string              `long:"privkey" default-mask:"-" description:"Private key of the input address, WIF or hex (prompted for when omitted)"`
	Output       string              `short:"o" long:"output" description:"Address receiving the mixed amount"`
	Change       string              `long:"change" description:"Address receiving the change"`
	FeeRate      *cfgutil.AmountFlag `long:"feerate" description:"Fee rate per kvB, in BTC (a sat suffix reads satoshis)"`
	Session      string              `long:"session" description:"Join the announced session with this identifier"`
	PollInterval time.Duration       `long:"pollinterval" description:"Base interval between two polls of the store"`
	Timeout      time.Duration       `long:"timeout" description:"Cancel the session when it has not completed after this long (0 waits forever)"`
	List         bool                `short:"l" long:"list" description:"List the sessions announced in the store and exit"`
}

// localhostAddrs are the hosts the RPC client may reach without TLS.
var localhostAddrs = map[string]struct{}{
	"localhost": {},
	"127.0.0.1": {},
	"::1":       {},
}

// loadConfig initializes and parses the config using a config file and command
// line options.
//
// The configuration proceeds as follows:
//  1. Start with a default config with sane settings
//  2. Pre-parse the command line to check for an alternative config file
//  3. Load configuration file overwriting defaults with any specified options
//  4. Parse CLI options and overwrite/add any specified options
//
// The above results in coinmux functioning properly without any config
// settings while still allowing the user to override settings with config files
// and command line options.  Command line options always take precedence.
func loadConfig() (*config, []string, error) {
	// Default config.
	cfg := config{
		DebugLevel:   defaultLogLevel,
		ConfigFile:   defaultConfigFile,
		LogDir:       defaultLogDir,
		RPCConnect:   defaultRPCHost,
		Datastore:    defaultDatastore,
		Amount:       cfgutil.NewAmountFlag(0),
		Participants: defaultParticipants,
		FeeRate:      cfgutil.NewAmountFlag(txrules.DefaultRelayFeePerKb),
		PollInterval: mixer.DefaultPollInterval,
	}

	// Pre-parse the command line options to see if an alternative config
	// file or the version flag was specified.
	preCfg := cfg
	preParser := flags.NewParser(&preCfg, flags.Default)
	_, err := preParser.Parse()
	if err != nil {
		var e *flags.Error
		if !errors.As(err, &e) || e.Type != flags.ErrHelp {
			preParser.WriteHelp(os.Stderr)
		}
		return nil, nil, err
	}

	// Show the version and exit if the version flag was specified.
	funcName := "loadConfig"
	appName := filepath.Base(os.Args[0])
	appName = strings.TrimSuffix(appName, filepath.Ext(appName))
	usageMessage := fmt.Sprintf("Use %s -h to show usage", appName)
	if preCfg.ShowVersion {
		fmt.Println(appName, "version", version())
		os.Exit(0)
	}

	// Load additional config from file.
	var configFileError error
	parser := flags.NewParser(&cfg, flags.Default)
	configFilePath := cfgutil.CleanAndExpandPath(preCfg.ConfigFile)
	err = flags.NewIniParser(parser).ParseFile(configFilePath)
	if err != nil {
		var pathErr *os.PathError
		if !errors.As(err, &pathErr) {
			fmt.Fprintln(os.Stderr, err)
			parser.WriteHelp(os.Stderr)
			return nil, nil, err
		}
		configFileError = err
	}

	// Parse command line options again to ensure they take precedence.
	remainingArgs, err := parser.Parse()
	if err != nil {
		var e *flags.Error
		if !errors.As(err, &e) || e.Type != flags.ErrHelp {
			parser.WriteHelp(os.Stderr)
		}
		return nil, nil, err
	}

	// Choose the active network params based on the selected network.
	// Multiple networks can't be selected simultaneously.
	numNets := 0
	if cfg.TestNet3 {
		activeNet = &netparams.TestNet3Params
		numNets++
	}
	if cfg.RegTest {
		activeNet = &netparams.RegressionNetParams
		numNets++
	}
	if cfg.SimNet {
		activeNet = &netparams.SimNetParams
		numNets++
	}
	if cfg.SigNet {
		activeNet = &netparams.SigNetParams
		numNets++
	}
	if numNets > 1 {
		str := "%s: The testnet, regtest, simnet and signet params " +
			"can't be used together -- choose one"
		err := fmt.Errorf(str, funcName)
		fmt.Fprintln(os.Stderr, err)
		parser.WriteHelp(os.Stderr)
		return nil, nil, err
	}

	// Append the network type to the log directory so it is "namespaced"
	// per network.
	cfg.LogDir = cfgutil.CleanAndExpandPath(cfg.LogDir)
	cfg.LogDir = filepath.Join(cfg.LogDir, activeNet.Params.Name)

	// Special show command to list supported subsystems and exit.
	if cfg.DebugLevel == "show" {
		fmt.Println("Supported subsystems", supportedSubsystems())
		os.Exit(0)
	}

	// Initialize log rotation.  After log rotation has been initialized,
	// the logger variables may be used.
	err = initLogRotator(filepath.Join(cfg.LogDir, defaultLogFilename))
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return nil, nil, err
	}

	// Parse, validate, and set debug log level(s).
	if err := parseAndSetDebugLevels(cfg.DebugLevel); err != nil {
		err := fmt.Errorf("%s: %v", funcName, err.Error())
		fmt.Fprintln(os.Stderr, err)
		fmt.Fprintln(os.Stderr, usageMessage)
		return nil, nil, err
	}

	// Warn about missing config file after the final command line parse
	// succeeds.  This prevents the warning on help messages and invalid
	// options.
	if configFileError != nil {
		log.Warnf("%v", configFileError)
	}

	// Add default port to connect flag if missing.
	cfg.RPCConnect, err = cfgutil.NormalizeAddress(cfg.RPCConnect,
		activeNet.RPCClientPort)
	if err != nil {
		fmt.Fprintf(os.Stderr,
			"Invalid rpcconnect network address: %v\n", err)
		return nil, nil, err
	}

	if cfg.DisableClientTLS {
		host, _, err := net.SplitHostPort(cfg.RPCConnect)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return nil, nil, err
		}
		if _, ok := localhostAddrs[host]; !ok {
			str := "%s: the --noclienttls option may not be used " +
				"when connecting RPC to non localhost " +
				"addresses: %s"
			err := fmt.Errorf(str, funcName, cfg.RPCConnect)
			fmt.Fprintln(os.Stderr, err)
			fmt.Fprintln(os.Stderr, usageMessage)
			return nil, nil, err
		}
	} else {
		// If CAFile is unset, choose the btcd cert when it exists.
		if cfg.CAFile == "" {
			exists, err := cfgutil.FileExists(btcdDefaultCAFile)
			if err != nil {
				fmt.Fprintln(os.Stderr, err)
				return nil, nil, err
			}
			if exists {
				cfg.CAFile = btcdDefaultCAFile
			}
		}
		cfg.CAFile = cfgutil.CleanAndExpandPath(cfg.CAFile)
	}

	// The store URI may carry a ~ in the bolt and sqlite forms.
	cfg.Datastore = expandStoreURI(cfg.Datastore)

	if cfg.PollInterval <= 0 {
		str := "%s: the poll interval must be positive"
		err := fmt.Errorf(str, funcName)
		fmt.Fprintln(os.Stderr, err)
		fmt.Fprintln(os.Stderr, usageMessage)
		return nil, nil, err
	}
	if cfg.Timeout < 0 {
		str := "%s: the timeout must not be negative"
		err := fmt.Errorf(str, funcName)
		fmt.Fprintln(os.Stderr, err)
		fmt.Fprintln(os.Stderr, usageMessage)
		return nil, nil, err
	}

	return &cfg, remainingArgs, nil
}

// expandStoreURI expands a leading ~ and environment variables in the path of
// a file backed store URI.
func expandStoreURI(uri string) string {
	for _, scheme := range []string{"bolt://", "sqlite://"} {
		path, ok := strings.CutPrefix(uri, scheme)
		if !ok || !strings.HasPrefix(path, "~") {
			continue
		}

		return scheme + filepath.ToSlash(cfgutil.CleanAndExpandPath(path))
	}

	return uri
}

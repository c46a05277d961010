// Copyright (c) 2015-2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package prompt

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// readSecretFunc reads a line from the terminal without echo.  It is a
// variable so tests can provide input without a tty.
var readSecretFunc = func() ([]byte, error) {
	return term.ReadPassword(int(os.Stdin.Fd()))
}

// isTerminalFunc reports whether stdin is an interactive terminal.
var isTerminalFunc = func() bool {
	return term.IsTerminal(int(os.Stdin.Fd()))
}

// PrivateKey prompts the user for the private key of the input address.  On a
// terminal the key is read without echo; otherwise a single line is read from
// the reader so keys can be piped in.  The caller owns the returned buffer and
// should zero it once the key is decoded.
func PrivateKey(reader *bufio.Reader) ([]byte, error) {
	const prefix = "Enter the private key of the input address (WIF or hex): "

	for {
		fmt.Print(prefix)

		var (
			key []byte
			err error
		)
		if isTerminalFunc() {
			key, err = readSecretFunc()
			fmt.Print("\n")
		} else {
			var line string
			line, err = reader.ReadString('\n')
			if err == io.EOF && len(line) > 0 {
				err = nil
			}
			key = []byte(line)
		}
		if err != nil {
			return nil, err
		}

		key = bytes.TrimSpace(key)
		if len(key) == 0 {
			continue
		}

		return key, nil
	}
}

// promptList prompts the user with the given prefix, list of valid responses,
// and default list entry to use.  The function will repeat the prompt to the
// user until they enter a valid response.
func promptList(reader *bufio.Reader, prefix string, validResponses []string,
	defaultEntry string) (string, error) {

	validStrings := strings.Join(validResponses, "/")
	var prompt string
	if defaultEntry != "" {
		prompt = fmt.Sprintf("%s (%s) [%s]: ", prefix, validStrings,
			defaultEntry)
	} else {
		prompt = fmt.Sprintf("%s (%s): ", prefix, validStrings)
	}

	for {
		fmt.Print(prompt)
		reply, err := reader.ReadString('\n')
		if err != nil {
			return "", err
		}
		reply = strings.TrimSpace(strings.ToLower(reply))
		if reply == "" {
			reply = defaultEntry
		}

		for _, validResponse := range validResponses {
			if reply == validResponse {
				return reply, nil
			}
		}
	}
}

// promptListBool prompts the user for a boolean (yes/no) with the given prefix.
// The function will repeat the prompt to the user until they enter a valid
// response.
func promptListBool(reader *bufio.Reader, prefix string,
	defaultEntry string) (bool, error) {

	valid := []string{"n", "no", "y", "yes"}
	response, err := promptList(reader, prefix, valid, defaultEntry)
	if err != nil {
		return false, err
	}
	return response == "yes" || response == "y", nil
}

// ConfirmMainNet asks the user to confirm mixing real coins on the main
// network.  It defaults to no.
func ConfirmMainNet(reader *bufio.Reader) (bool, error) {
	return promptListBool(reader, "You are about to mix coins on the "+
		"main network. Continue?", "no")
}

// Utility for generating and managing firmware signing keys

package main

import (
	"crypto/rand"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/deskbuddy/firmware-command/internal/log"
	"github.com/deskbuddy/firmware-command/pkg/cli"
	"github.com/deskbuddy/firmware-command/pkg/firmware"
)

func writeErr(format string, a ...interface{}) {
	fmt.Fprintf(os.Stderr, format, a...)
	fmt.Fprintf(os.Stderr, "\n")
}

const usageText = `
Creates or deletes the shared firmware signing key used by deskbuddy-firmware
and by the device's OTA verifier.

The create command draws 32 bytes from the operating system's secure random
source and prints them as 64 hex characters. With -key-name the key is also
saved to the system keyring; without it the key is printed only, and storing it
is up to you. The program never writes key material to a file.

The type of keyring and name of the key inside that keyring are controlled by
the command-line options below, or through the corresponding environment
variables.`

func cliUsage() {
	usage(flag.CommandLine.Output())
}

func usage(w io.Writer) {
	fmt.Fprintf(w, "usage: %s [OPTION...] create|delete|export\n", filepath.Base(os.Args[0]))
	fmt.Fprintln(w, usageText)
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "OPTIONS:")
	flag.PrintDefaults()
}

func main() {
	var (
		overwrite bool
		debug     bool
	)
	status := 1
	defer func() {
		os.Exit(status)
	}()

	config := cli.NewConfig(cli.FlagSigningKey)
	config.RegisterCommandLineFlags()
	flag.Usage = cliUsage
	flag.BoolVar(&overwrite, "f", false, "Overwrite existing key if it exists")
	flag.BoolVar(&debug, "debug", false, "Enable verbose debugging messages")
	flag.Parse()
	if debug {
		log.SetLevel(log.LevelDebug)
	}
	config.ReadFromEnvironment()

	if flag.NArg() != 1 {
		usage(os.Stderr)
		return
	}

	switch flag.Arg(0) {
	case "create":
		if config.KeyringKeyName != "" && !overwrite {
			// Print the existing key and exit if one is already enrolled.
			key, err := config.LoadKeyFromKeyring()
			if err == nil {
				fmt.Println(key.Hex())
				status = 0
				return
			}
			if !errors.Is(err, cli.ErrKeyNotFound) {
				log.Debug("No usable key in keyring: %s", err)
			}
		}
		key, err := firmware.GenerateKey(rand.Reader)
		if err != nil {
			writeErr("Failed to generate signing key: %s", err)
			return
		}
		if config.KeyringKeyName != "" {
			if err := config.SaveKey(key); err != nil {
				writeErr("Failed to save key to keyring: %s", err)
				return
			}
		} else {
			log.Warning("No -key-name given; the key below is not stored anywhere")
		}
		fmt.Println(key.Hex())
	case "delete":
		if err := config.DeleteSigningKey(); err != nil {
			writeErr("Failed to delete key: %s", err)
			return
		}
	case "export":
		key, err := config.SigningKey()
		if err != nil {
			writeErr("Failed to load key: %s", err)
			return
		}
		fmt.Println(key.Hex())
	default:
		writeErr("Unrecognized command-line argument.")
		writeErr("")
		usage(os.Stderr)
		return
	}
	status = 0
}

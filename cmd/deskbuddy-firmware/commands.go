package main

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/deskbuddy/firmware-command/pkg/cli"
	"github.com/deskbuddy/firmware-command/pkg/firmware"
	"github.com/deskbuddy/firmware-command/pkg/ota"
)

var (
	ErrCommandLineArgs = errors.New("invalid command line arguments")
	ErrUnknownCommand  = errors.New("unrecognized command")
)

type Argument struct {
	name string
	help string
}

type Handler func(ctx context.Context, env *environment, args map[string]string) error

type Command struct {
	help           string
	requiresKey    bool // True if the command needs the signing key.
	requiresDevice bool // True if the command talks to a device.
	args           []Argument
	optional       []Argument
	handler        Handler
}

// environment carries lazily resolved state shared by command handlers.
type environment struct {
	config *cli.Config
	device ota.Device
}

func (e *environment) signingKey() (firmware.Key, error) {
	return e.config.SigningKey()
}

func (e *environment) deviceClient() (ota.Device, error) {
	if e.device != nil {
		return e.device, nil
	}
	if e.config.DeviceAddr == "" {
		return nil, errors.New("no device address: use -device or set $" + cli.EnvDevice)
	}
	e.device = ota.NewClient(e.config.DeviceAddr)
	return e.device, nil
}

// defaultOutputPath derives the signed filename from the input filename by
// inserting "_signed" before the extension: firmware.bin -> firmware_signed.bin.
func defaultOutputPath(input string) string {
	ext := filepath.Ext(input)
	return strings.TrimSuffix(input, ext) + "_signed" + ext
}

func checkReadiness(commandName string, env *environment) (*Command, error) {
	info, ok := commands[commandName]
	if !ok {
		return nil, ErrUnknownCommand
	}
	if info.requiresKey {
		if _, err := env.signingKey(); err != nil {
			return nil, err
		}
	}
	if info.requiresDevice {
		if _, err := env.deviceClient(); err != nil {
			return nil, err
		}
	}
	return info, nil
}

func execute(ctx context.Context, env *environment, args []string) error {
	if len(args) == 0 {
		return errors.New("missing COMMAND")
	}

	info, err := checkReadiness(args[0], env)
	if err != nil {
		return err
	}

	if len(args)-1 < len(info.args) || len(args)-1 > len(info.args)+len(info.optional) {
		writeErr("Invalid number of command line arguments: %d (%d required, %d optional).", len(args)-1, len(info.args), len(info.optional))
		err = ErrCommandLineArgs
	} else {
		keywords := make(map[string]string)
		for i, argInfo := range info.args {
			keywords[argInfo.name] = args[i+1]
		}
		index := len(info.args) + 1
		for _, argInfo := range info.optional {
			if index >= len(args) {
				break
			}
			keywords[argInfo.name] = args[index]
			index++
		}
		err = info.handler(ctx, env, keywords)
	}

	if errors.Is(err, ErrCommandLineArgs) {
		info.Usage(args[0])
	}
	return err
}

func (c *Command) Usage(name string) {
	fmt.Printf("Usage: %s", name)
	maxLength := 0
	for _, arg := range c.args {
		fmt.Printf(" %s", arg.name)
		if len(arg.name) > maxLength {
			maxLength = len(arg.name)
		}
	}
	if len(c.optional) > 0 {
		fmt.Printf(" [")
	}
	for _, arg := range c.optional {
		fmt.Printf(" %s", arg.name)
		if len(arg.name) > maxLength {
			maxLength = len(arg.name)
		}
	}
	if len(c.optional) > 0 {
		fmt.Printf(" ]")
	}
	fmt.Printf("\n%s\n", c.help)
	maxLength++
	for _, arg := range c.args {
		fmt.Printf("    %s:%s%s\n", arg.name, strings.Repeat(" ", maxLength-len(arg.name)), arg.help)
	}
	for _, arg := range c.optional {
		fmt.Printf("    %s:%s%s\n", arg.name, strings.Repeat(" ", maxLength-len(arg.name)), arg.help)
	}
}

var commands = map[string]*Command{
	"sign": {
		help:        "Sign a firmware image",
		requiresKey: true,
		args: []Argument{
			{name: "FIRMWARE", help: "Input firmware binary"},
		},
		optional: []Argument{
			{name: "OUTPUT", help: "Signed output file. Defaults to FIRMWARE with _signed before the extension."},
		},
		handler: func(ctx context.Context, env *environment, args map[string]string) error {
			key, err := env.signingKey()
			if err != nil {
				return err
			}
			payload, err := os.ReadFile(args["FIRMWARE"])
			if err != nil {
				return err
			}
			output, ok := args["OUTPUT"]
			if !ok {
				output = defaultOutputPath(args["FIRMWARE"])
			}

			signed := firmware.Sign(key, payload)
			fmt.Printf("Firmware size: %d bytes\n", len(payload))
			fmt.Printf("Signature: %s\n", hex.EncodeToString(signed[len(payload):]))

			// The full envelope is assembled before this point, so a failed
			// write never leaves a file that passes verification by accident.
			if err := os.WriteFile(output, signed, 0644); err != nil {
				return err
			}
			fmt.Printf("Signed firmware: %s (%d bytes)\n", output, len(signed))
			return nil
		},
	},
	"verify": {
		help:        "Verify a signed firmware image",
		requiresKey: true,
		args: []Argument{
			{name: "FIRMWARE", help: "Signed firmware binary"},
		},
		optional: []Argument{
			{name: "OUTPUT", help: "Write the verified payload here. Omit to check only."},
		},
		handler: func(ctx context.Context, env *environment, args map[string]string) error {
			key, err := env.signingKey()
			if err != nil {
				return err
			}
			signed, err := os.ReadFile(args["FIRMWARE"])
			if err != nil {
				return err
			}
			payload, err := firmware.Verify(key, signed)
			if err != nil {
				return err
			}
			fmt.Printf("Signature OK (%d payload bytes)\n", len(payload))
			if output, ok := args["OUTPUT"]; ok {
				return os.WriteFile(output, payload, 0644)
			}
			return nil
		},
	},
	"inspect": {
		help: "Show the size and trailing tag of a signed image without verifying it",
		args: []Argument{
			{name: "FIRMWARE", help: "Signed firmware binary"},
		},
		handler: func(ctx context.Context, env *environment, args map[string]string) error {
			signed, err := os.ReadFile(args["FIRMWARE"])
			if err != nil {
				return err
			}
			if len(signed) < firmware.TagSize {
				return firmware.ErrEnvelopeTooShort
			}
			fmt.Printf("Payload: %d bytes\n", len(signed)-firmware.TagSize)
			fmt.Printf("Tag:     %s\n", hex.EncodeToString(signed[len(signed)-firmware.TagSize:]))
			fmt.Println("Note: the tag is unauthenticated until checked with verify")
			return nil
		},
	},
	"upload": {
		help:           "Install a signed firmware image on the device",
		requiresKey:    true,
		requiresDevice: true,
		args: []Argument{
			{name: "FIRMWARE", help: "Signed firmware binary"},
		},
		handler: func(ctx context.Context, env *environment, args map[string]string) error {
			key, err := env.signingKey()
			if err != nil {
				return err
			}
			device, err := env.deviceClient()
			if err != nil {
				return err
			}
			file, err := os.Open(args["FIRMWARE"])
			if err != nil {
				return err
			}
			defer file.Close()

			updater := &ota.Updater{Device: device, Key: key}
			if err := updater.Install(ctx, file); err != nil {
				return err
			}
			fmt.Println("Device installed new firmware")
			return nil
		},
	},
	"status": {
		help:           "Show the device's OTA state",
		requiresDevice: true,
		handler: func(ctx context.Context, env *environment, args map[string]string) error {
			device, err := env.deviceClient()
			if err != nil {
				return err
			}
			status, err := device.Status(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("State:     %s\n", status.State)
			fmt.Printf("Version:   %s\n", status.Version)
			fmt.Printf("Partition: %s\n", status.Partition)
			switch status.State {
			case ota.StateUploading, ota.StateVerifying, ota.StateInstalling:
				fmt.Printf("Progress:  %d%% (%d/%d bytes)\n", status.Progress, status.Received, status.Total)
			}
			if status.Error != "" {
				fmt.Printf("Error:     %s\n", status.Error)
			}
			return nil
		},
	},
	"rollback": {
		help:           "Ask the device to boot the previous firmware",
		requiresDevice: true,
		handler: func(ctx context.Context, env *environment, args map[string]string) error {
			device, err := env.deviceClient()
			if err != nil {
				return err
			}
			if err := device.Rollback(ctx); err != nil {
				return err
			}
			fmt.Println("Device is rolling back and restarting")
			return nil
		},
	},
}

/*
Package cli facilitates building command-line tools that handle firmware
signing keys. It defines a [Config] type that registers common command-line
flags (using the Golang flag package) and environment variable equivalents.

The package uses [keyring]'s platform-agnostic interface so that signing keys
can live in an OS-dependent credential store instead of plaintext files. The
tools themselves never write key material to disk; -key-file reads a hex file
that the operator manages.

# Example

	config := cli.NewConfig(cli.FlagSigningKey | cli.FlagDevice)
	config.RegisterCommandLineFlags()
	flag.Parse()
	config.ReadFromEnvironment() // Fills in missing fields from the environment

	key, err := config.SigningKey()
	if err != nil {
		panic(err)
	}
*/
package cli

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/99designs/keyring"

	"github.com/deskbuddy/firmware-command/internal/log"
	"github.com/deskbuddy/firmware-command/pkg/firmware"
)

// Environment variable names used by [Config.ReadFromEnvironment].
const (
	EnvKeyName      = "DESKBUDDY_KEY_NAME"
	EnvKeyFile      = "DESKBUDDY_KEY_FILE"
	EnvDevice       = "DESKBUDDY_DEVICE"
	EnvKeyringType  = "DESKBUDDY_KEYRING_TYPE"
	EnvKeyringPass  = "DESKBUDDY_KEYRING_PASSWORD"
	EnvKeyringPath  = "DESKBUDDY_KEYRING_PATH"
	EnvKeyringDebug = "DESKBUDDY_KEYRING_DEBUG"
)

// Flag controls what options should be scanned from the command line and/or
// environment variables.
type Flag int

func (f Flag) isSet(other Flag) bool {
	return (f & other) == other
}

const (
	FlagSigningKey Flag = 1 // Enable signing key options.
	FlagDevice     Flag = 2 // Enable device address options (OTA upload).
	FlagAll        Flag = FlagSigningKey | FlagDevice
)

var (
	// ErrNoKeySpecified indicates none of -key-hex, -key-file, or -key-name
	// were provided.
	ErrNoKeySpecified = errors.New("signing key location not provided")
	ErrKeyNotFound    = keyring.ErrKeyNotFound
)

// Config fields determine where the tools find the firmware signing key and
// the device to talk to.
type Config struct {
	Flags          Flag
	KeyHex         string // Key supplied directly on the command line.
	KeyFilename    string // File containing the key as hex text.
	KeyringKeyName string // Name of the key in the system keyring.
	DeviceAddr     string // host[:port] of the device's web server.
	Backend        keyring.Config
	BackendType    backendType
	Debug          bool // Enable keyring debug messages.

	password *string
	key      firmware.Key
}

func NewConfig(flags Flag) *Config {
	c := &Config{
		Flags: flags,
		Backend: keyring.Config{
			ServiceName:              keyringServiceName,
			KeychainTrustApplication: true,
			KeyCtlScope:              "user",
		},
	}
	c.BackendType = backendType{c}
	c.Backend.KeychainPasswordFunc = c.getPassword
	c.Backend.FilePasswordFunc = c.getPassword
	return c
}

func (c *Config) RegisterCommandLineFlags() {
	if c.Flags.isSet(FlagSigningKey) {
		flag.StringVar(&c.KeyHex, "key-hex", "", "Signing key as 64 `hex` characters. Prefer -key-name or -key-file.")
		flag.StringVar(&c.KeyFilename, "key-file", "", "A `file` containing the hex signing key. Defaults to $DESKBUDDY_KEY_FILE.")
		flag.StringVar(&c.KeyringKeyName, "key-name", "", "System keyring `name` for the signing key. Defaults to $DESKBUDDY_KEY_NAME.")

		var names []string
		for _, name := range keyring.AvailableBackends() {
			names = append(names, string(name))
		}
		sort.Strings(names)
		flag.Var(&c.BackendType, "keyring-type", "Keyring `type` ("+strings.Join(names, "|")+"). Defaults to $DESKBUDDY_KEYRING_TYPE.")
		flag.StringVar(&c.Backend.FileDir, "keyring-file-dir", keyringDirectory, "keyring `directory` for file-backed keyring types")
		flag.BoolVar(&c.Debug, "keyring-debug", false, "Enable keyring debug logging")
	}
	if c.Flags.isSet(FlagDevice) {
		flag.StringVar(&c.DeviceAddr, "device", "", "Device `address` (host[:port]). Defaults to $DESKBUDDY_DEVICE.")
	}
}

// ReadFromEnvironment populates c using environment variables. Values that are
// already populated are not overwritten, so call this after flag.Parse() to
// keep explicit command-line parameters authoritative.
func (c *Config) ReadFromEnvironment() {
	if c.Flags.isSet(FlagSigningKey) {
		if c.KeyHex == "" && c.KeyFilename == "" && c.KeyringKeyName == "" {
			c.KeyringKeyName = os.Getenv(EnvKeyName)
			log.Debug("Set key name to '%s'", c.KeyringKeyName)

			c.KeyFilename = os.Getenv(EnvKeyFile)
			log.Debug("Set key file to '%s'", c.KeyFilename)
		}
		if c.BackendType.String() == string(keyring.InvalidBackend) {
			if err := c.BackendType.Set(os.Getenv(EnvKeyringType)); err == nil {
				log.Debug("Set keyring type to '%s'", c.BackendType)
			}
		}
		if c.password == nil {
			password := os.Getenv(EnvKeyringPass)
			c.password = &password
			if len(password) > 0 {
				log.Debug("Read keyring password from environment")
			}
		}
		if c.Backend.FileDir == "" {
			c.Backend.FileDir = os.Getenv(EnvKeyringPath)
			log.Debug("Set keyring file path to '%s'", c.Backend.FileDir)
		}
		if !c.Debug {
			_, c.Debug = os.LookupEnv(EnvKeyringDebug)
		}
	}
	if c.Flags.isSet(FlagDevice) {
		if c.DeviceAddr == "" {
			c.DeviceAddr = os.Getenv(EnvDevice)
			log.Debug("Set device address to '%s'", c.DeviceAddr)
		}
	}
}

// SigningKey resolves the signing key from the location specified in c,
// preferring an explicit hex key over a key file over the system keyring. The
// key is cached after it is first loaded.
func (c *Config) SigningKey() (firmware.Key, error) {
	if c.key != nil {
		return c.key, nil
	}
	if !c.Flags.isSet(FlagSigningKey) {
		return nil, ErrNoKeySpecified
	}
	var key firmware.Key
	var err error
	switch {
	case c.KeyHex != "":
		key, err = firmware.ParseKey(c.KeyHex)
	case c.KeyFilename != "":
		key, err = loadKeyFile(c.KeyFilename)
	case c.KeyringKeyName != "":
		key, err = c.LoadKeyFromKeyring()
	default:
		return nil, ErrNoKeySpecified
	}
	if err != nil {
		return nil, err
	}
	c.key = key
	return key, nil
}

// SaveKey writes the signing key to the system keyring. Keys are never written
// to files by the tools; only the keyring is a supported storage destination.
func (c *Config) SaveKey(key firmware.Key) error {
	if c.KeyringKeyName == "" {
		return ErrNoKeySpecified
	}
	return c.saveKeyToKeyring(key)
}

func loadKeyFile(filename string) (firmware.Key, error) {
	contents, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("could not read key file: %w", err)
	}
	return firmware.ParseKey(strings.TrimSpace(string(contents)))
}

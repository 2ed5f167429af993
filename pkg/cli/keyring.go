package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/99designs/keyring"
	"golang.org/x/term"

	"github.com/deskbuddy/firmware-command/pkg/firmware"
)

const (
	keyringServiceName = "com.deskbuddy.firmware"
	keyringKeyService  = "firmwareSigningKey"
	keyringDirectory   = "~/.deskbuddy_keys"
)

type backendType struct {
	config *Config
}

func (b backendType) String() string {
	if b.config == nil || len(b.config.Backend.AllowedBackends) == 0 {
		return string(keyring.InvalidBackend)
	}
	return string(b.config.Backend.AllowedBackends[0])
}

func (b backendType) Set(v string) error {
	value := keyring.BackendType(v)
	if b.config == nil {
		return fmt.Errorf("invalid backendType")
	}
	if v == "" {
		return nil
	}
	for _, name := range keyring.AvailableBackends() {
		if name == value {
			b.config.Backend.AllowedBackends = []keyring.BackendType{name}
			return nil
		}
	}
	return fmt.Errorf("unsupported credential storage")
}

func (c *Config) getPassword(prompt string) (string, error) {
	if c.password != nil && *c.password != "" {
		return *c.password, nil
	}

	var w io.Writer
	fd := int(os.Stdout.Fd())
	if !term.IsTerminal(fd) {
		fd = int(os.Stderr.Fd())
		if !term.IsTerminal(fd) {
			return "", fmt.Errorf("no terminal output available for password prompt")
		}
		w = os.Stderr
	} else {
		w = os.Stdout
	}

	fmt.Fprintf(w, "%s: ", prompt)
	b, err := term.ReadPassword(int(os.Stdin.Fd()))
	if err != nil {
		return "", err
	}
	fmt.Fprintln(w)
	password := string(b)
	c.password = &password
	return password, nil
}

func (c *Config) openKeyring() (keyring.Keyring, error) {
	if c.Debug {
		keyring.Debug = true
	}
	return keyring.Open(c.Backend)
}

func (c *Config) fullKeyName() string {
	return keyringKeyService + "." + c.KeyringKeyName
}

// LoadKeyFromKeyring reads the signing key from the system keyring. The key is
// stored as its raw 32 bytes; hex encoding is only used at interchange
// boundaries.
func (c *Config) LoadKeyFromKeyring() (firmware.Key, error) {
	kr, err := c.openKeyring()
	if err != nil {
		return nil, err
	}
	item, err := kr.Get(c.fullKeyName())
	if err != nil {
		return nil, fmt.Errorf("could not load key: %w", err)
	}
	key, err := firmware.NewKey(item.Data)
	if err != nil {
		return nil, fmt.Errorf("keyring entry is not a valid signing key: %w", err)
	}
	return key, nil
}

func (c *Config) saveKeyToKeyring(key firmware.Key) error {
	kr, err := c.openKeyring()
	if err != nil {
		return err
	}
	if err := kr.Set(keyring.Item{
		Key:  c.fullKeyName(),
		Data: []byte(key),
	}); err != nil {
		return fmt.Errorf("failed to enroll key in keyring: %w", err)
	}
	return nil
}

// DeleteSigningKey removes the signing key from the system keyring.
func (c *Config) DeleteSigningKey() error {
	if c.KeyringKeyName == "" {
		return ErrNoKeySpecified
	}
	kr, err := c.openKeyring()
	if err != nil {
		return err
	}
	return kr.Remove(c.fullKeyName())
}

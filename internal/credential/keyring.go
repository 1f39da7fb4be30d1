package credential

import (
	"errors"
	"fmt"
	"strings"

	"github.com/99designs/keyring"
)

const serviceName = "ghwatch"

// KeyringPrefix marks a secret reference stored in the system keyring.
const KeyringPrefix = "keyring:"

// openKeyring returns the ghwatch keyring. Tests replace it with an
// in-memory keyring.
var openKeyring = func() (keyring.Keyring, error) {
	ring, err := keyring.Open(keyring.Config{
		ServiceName: serviceName,
		AllowedBackends: []keyring.BackendType{
			keyring.KeychainBackend,
			keyring.SecretServiceBackend,
			keyring.WinCredBackend,
			keyring.PassBackend,
			keyring.FileBackend,
		},
		FileDir:                  "~/.config/ghwatch/credentials",
		FilePasswordFunc:         keyring.FixedStringPrompt("ghwatch-file-key"),
		KeychainTrustApplication: true,
	})
	if err != nil {
		return nil, fmt.Errorf("opening keyring: %w", err)
	}
	return ring, nil
}

// KeyringRef builds a reference to key in the system keyring.
func KeyringRef(key string) string {
	return KeyringPrefix + key
}

// keyringKey extracts the keyring key from a "keyring:<key>" ref.
func keyringKey(ref string) (string, bool) {
	key, ok := strings.CutPrefix(ref, KeyringPrefix)
	if !ok {
		return "", false
	}
	return strings.TrimSpace(key), true
}

// SaveRef stores value under key and returns the ref that resolves to it.
func SaveRef(key, value string) (string, error) {
	if strings.TrimSpace(key) == "" {
		return "", errors.New("empty keyring key")
	}
	if err := Set(key, value); err != nil {
		return "", err
	}
	return KeyringRef(key), nil
}

// Get reads a credential from the system keyring. A missing or empty entry
// is reported as ErrMissing.
func Get(key string) (string, error) {
	ring, err := openKeyring()
	if err != nil {
		return "", err
	}

	item, err := ring.Get(key)
	if errors.Is(err, keyring.ErrKeyNotFound) {
		return "", fmt.Errorf("keyring entry %q: %w", key, ErrMissing)
	}
	if err != nil {
		return "", fmt.Errorf("getting credential %q: %w", key, err)
	}
	if len(item.Data) == 0 {
		return "", fmt.Errorf("keyring entry %q: %w", key, ErrMissing)
	}
	return string(item.Data), nil
}

// Set stores a credential in the system keyring, replacing any previous
// value.
func Set(key string, value string) error {
	ring, err := openKeyring()
	if err != nil {
		return err
	}

	err = ring.Set(keyring.Item{
		Key:         key,
		Data:        []byte(value),
		Label:       "ghwatch " + key,
		Description: "ghwatch secret referenced as " + KeyringRef(key),
	})
	if err != nil {
		return fmt.Errorf("setting credential %q: %w", key, err)
	}
	return nil
}

// Delete removes a credential from the system keyring. Deleting an absent
// key is not an error.
func Delete(key string) error {
	ring, err := openKeyring()
	if err != nil {
		return err
	}

	if err := ring.Remove(key); err != nil && !errors.Is(err, keyring.ErrKeyNotFound) {
		return fmt.Errorf("deleting credential %q: %w", key, err)
	}
	return nil
}

package credential

import (
	"fmt"

	"github.com/99designs/keyring"
)

const serviceName = "syncback"

// openKeyring returns a configured keyring instance.
func openKeyring() (keyring.Keyring, error) {
	ring, err := keyring.Open(keyring.Config{
		ServiceName: serviceName,
		AllowedBackends: []keyring.BackendType{
			keyring.KeychainBackend,
			keyring.SecretServiceBackend,
			keyring.WinCredBackend,
			keyring.PassBackend,
			keyring.FileBackend,
		},
		FileDir:                  "~/.config/syncback/credentials",
		FilePasswordFunc:         keyring.FixedStringPrompt("syncback-file-key"),
		KeychainTrustApplication: true,
	})
	if err != nil {
		return nil, fmt.Errorf("opening keyring: %w", err)
	}
	return ring, nil
}

// IMAPPasswordKey returns the keyring key holding an account's IMAP
// password.
func IMAPPasswordKey(accountID string) string {
	return "imap-" + accountID
}

// IMAPPassword loads the IMAP password stored for accountID.
func IMAPPassword(accountID string) (string, error) {
	return Get(IMAPPasswordKey(accountID))
}

// SetIMAPPassword stores the IMAP password for accountID.
func SetIMAPPassword(accountID, password string) error {
	return Set(IMAPPasswordKey(accountID), password)
}

// Get retrieves a credential value by key from the system keyring.
func Get(key string) (string, error) {
	ring, err := openKeyring()
	if err != nil {
		return "", err
	}

	item, err := ring.Get(key)
	if err != nil {
		return "", fmt.Errorf("getting credential %q: %w", key, err)
	}

	return string(item.Data), nil
}

// Set stores a credential value by key in the system keyring.
func Set(key string, value string) error {
	ring, err := openKeyring()
	if err != nil {
		return err
	}

	err = ring.Set(keyring.Item{
		Key:   key,
		Label: fmt.Sprintf("%s: %s", serviceName, key),
		Data:  []byte(value),
	})
	if err != nil {
		return fmt.Errorf("setting credential %q: %w", key, err)
	}

	return nil
}

// Delete removes a credential by key from the system keyring.
func Delete(key string) error {
	ring, err := openKeyring()
	if err != nil {
		return err
	}

	if err := ring.Remove(key); err != nil {
		return fmt.Errorf("deleting credential %q: %w", key, err)
	}

	return nil
}

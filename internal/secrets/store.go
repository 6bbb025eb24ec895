// Package secrets stores per-account credentials in the system keyring,
// falling back to an encrypted file backend on headless machines.
package secrets

import (
	"errors"
	"fmt"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/99designs/keyring"
	"golang.org/x/term"
	"gopkg.in/yaml.v3"

	"mailport/internal/config"
	"mailport/internal/provider"
)

const (
	keyringPasswordEnv = "MAILPORT_KEYRING_PASSWORD" //nolint:gosec // env var name, not a credential
	keyringBackendEnv  = "MAILPORT_KEYRING_BACKEND"  //nolint:gosec // env var name, not a credential
)

var (
	ErrSecretNotFound = errors.New("secret not found")

	errMissingAccount        = errors.New("missing account name")
	errNoTTY                 = errors.New("no TTY available for keyring file backend password prompt")
	errInvalidKeyringBackend = errors.New("invalid keyring backend")
	errKeyringTimeout        = errors.New("keyring connection timed out")

	openKeyringFunc = openKeyring
	keyringOpenFunc = keyring.Open
)

// keyringOpenTimeout bounds keyring.Open. On headless Linux, D-Bus
// SecretService can hang indefinitely when gnome-keyring is installed but
// not running.
const keyringOpenTimeout = 5 * time.Second

func resolveBackend() (string, error) {
	if v := strings.ToLower(strings.TrimSpace(os.Getenv(keyringBackendEnv))); v != "" {
		return v, nil
	}
	return "auto", nil
}

func allowedBackends(backend string) ([]keyring.BackendType, error) {
	switch backend {
	case "", "auto":
		return nil, nil
	case "keychain":
		return []keyring.BackendType{keyring.KeychainBackend}, nil
	case "file":
		return []keyring.BackendType{keyring.FileBackend}, nil
	default:
		return nil, fmt.Errorf("%w: %q (expected auto, keychain, or file)", errInvalidKeyringBackend, backend)
	}
}

func fileKeyringPasswordFunc() keyring.PromptFunc {
	password, passwordSet := os.LookupEnv(keyringPasswordEnv)
	// "Set to empty string" is intentional; an empty passphrase is valid.
	if passwordSet {
		return keyring.FixedStringPrompt(password)
	}
	if term.IsTerminal(int(os.Stdin.Fd())) {
		return keyring.TerminalPrompt
	}
	return func(_ string) (string, error) {
		return "", fmt.Errorf("%w; set %s", errNoTTY, keyringPasswordEnv)
	}
}

func openKeyring() (keyring.Keyring, error) {
	keyringDir, err := config.EnsureKeyringDir()
	if err != nil {
		return nil, fmt.Errorf("ensure keyring dir: %w", err)
	}

	backend, err := resolveBackend()
	if err != nil {
		return nil, err
	}
	backends, err := allowedBackends(backend)
	if err != nil {
		return nil, err
	}

	dbusAddr := os.Getenv("DBUS_SESSION_BUS_ADDRESS")
	// On Linux with "auto" backend and no D-Bus session, force the file
	// backend instead of hanging on SecretService.
	if runtime.GOOS == "linux" && backend == "auto" && dbusAddr == "" {
		backends = []keyring.BackendType{keyring.FileBackend}
	}

	cfg := keyring.Config{
		ServiceName:              config.AppName,
		KeychainTrustApplication: false,
		AllowedBackends:          backends,
		FileDir:                  keyringDir,
		FilePasswordFunc:         fileKeyringPasswordFunc(),
	}

	if runtime.GOOS == "linux" && backend == "auto" && dbusAddr != "" {
		return openKeyringWithTimeout(cfg, keyringOpenTimeout)
	}

	ring, err := keyringOpenFunc(cfg)
	if err != nil {
		return nil, fmt.Errorf("open keyring: %w", err)
	}
	return ring, nil
}

type keyringResult struct {
	ring keyring.Keyring
	err  error
}

func openKeyringWithTimeout(cfg keyring.Config, timeout time.Duration) (keyring.Keyring, error) {
	ch := make(chan keyringResult, 1)
	go func() {
		ring, err := keyringOpenFunc(cfg)
		ch <- keyringResult{ring, err}
	}()

	select {
	case res := <-ch:
		if res.err != nil {
			return nil, fmt.Errorf("open keyring: %w", res.err)
		}
		return res.ring, nil
	case <-time.After(timeout):
		return nil, fmt.Errorf("%w after %v (D-Bus SecretService may be unresponsive); "+
			"set %s=file and %s=<password> to use encrypted file storage instead",
			errKeyringTimeout, timeout, keyringBackendEnv, keyringPasswordEnv)
	}
}

func setSecret(key string, value []byte) error {
	ring, err := openKeyringFunc()
	if err != nil {
		return err
	}
	item := keyring.Item{Key: key, Data: value, Label: config.AppName}
	if err := ring.Set(item); err != nil {
		return fmt.Errorf("store secret: %w", err)
	}
	return nil
}

func getSecret(key string) ([]byte, error) {
	ring, err := openKeyringFunc()
	if err != nil {
		return nil, err
	}
	item, err := ring.Get(key)
	if err != nil {
		if errors.Is(err, keyring.ErrKeyNotFound) {
			return nil, ErrSecretNotFound
		}
		return nil, fmt.Errorf("read secret: %w", err)
	}
	return item.Data, nil
}

func deleteSecret(key string) error {
	ring, err := openKeyringFunc()
	if err != nil {
		return err
	}
	if err := ring.Remove(key); err != nil && !errors.Is(err, keyring.ErrKeyNotFound) {
		return fmt.Errorf("remove secret: %w", err)
	}
	return nil
}

func credentialsKey(account string) string {
	return "account:" + strings.ToLower(strings.TrimSpace(account)) + ":credentials"
}

// SetCredentials stores the full credential set of one account as a single
// keyring entry.
func SetCredentials(account string, creds provider.Credentials) error {
	if strings.TrimSpace(account) == "" {
		return errMissingAccount
	}
	data, err := yaml.Marshal(creds)
	if err != nil {
		return err
	}
	return setSecret(credentialsKey(account), data)
}

// GetCredentials loads an account's credentials; ErrSecretNotFound when none
// were stored.
func GetCredentials(account string) (provider.Credentials, error) {
	var creds provider.Credentials
	if strings.TrimSpace(account) == "" {
		return creds, errMissingAccount
	}
	data, err := getSecret(credentialsKey(account))
	if err != nil {
		return creds, err
	}
	if err := yaml.Unmarshal(data, &creds); err != nil {
		return creds, fmt.Errorf("parse stored credentials: %w", err)
	}
	return creds, nil
}

// DeleteCredentials removes an account's stored credentials, if any.
func DeleteCredentials(account string) error {
	if strings.TrimSpace(account) == "" {
		return errMissingAccount
	}
	return deleteSecret(credentialsKey(account))
}

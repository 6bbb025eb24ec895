package cli

import (
	"errors"
	"fmt"
	"os"

	"golang.org/x/term"

	"mailport/internal/config"
	"mailport/internal/model"
	"mailport/internal/provider"
	"mailport/internal/provider/factory"
	"mailport/internal/secrets"
)

// resolveAccount loads the registry and resolves an account by name (or the
// configured default when name is empty).
func resolveAccount(name string) (model.Account, string, error) {
	cfg, err := config.Load()
	if err != nil {
		return model.Account{}, "", err
	}
	return cfg.Account(name)
}

// loadCredentials prefers the MAILPORT_PASSWORD env var for IMAP/JMAP
// accounts, then falls back to the keyring.
func loadCredentials(account model.Account, name string) (provider.Credentials, error) {
	if password, ok := os.LookupEnv("MAILPORT_PASSWORD"); ok && account.Type != model.AccountGmail {
		return provider.Credentials{Password: password}, nil
	}
	creds, err := secrets.GetCredentials(name)
	if err != nil {
		if errors.Is(err, secrets.ErrSecretNotFound) {
			return provider.Credentials{}, fmt.Errorf("no credentials stored for %q; run: mailport auth login %s", name, name)
		}
		return provider.Credentials{}, err
	}
	return creds, nil
}

// openProvider resolves an account and constructs its provider via the
// factory. The returned provider is disconnected; the caller owns the
// connect/disconnect lifecycle.
func openProvider(name string) (provider.Provider, string, error) {
	account, resolved, err := resolveAccount(name)
	if err != nil {
		return nil, "", err
	}
	creds, err := loadCredentials(account, resolved)
	if err != nil {
		return nil, "", err
	}
	p, err := factory.New(account, creds)
	if err != nil {
		return nil, "", err
	}
	return p, resolved, nil
}

func promptPassword(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)
	data, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

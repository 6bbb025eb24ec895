package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"mailport/internal/model"
)

// Config is the account registry. Secrets never land here; they live in the
// keyring (internal/secrets).
type Config struct {
	DefaultAccount string                   `mapstructure:"default_account" yaml:"default_account,omitempty"`
	Accounts       map[string]model.Account `mapstructure:"accounts" yaml:"accounts"`
}

func DefaultConfig() Config {
	return Config{Accounts: map[string]model.Account{}}
}

func ConfigPath() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

func Load() (Config, error) {
	cfg := DefaultConfig()

	path, err := ConfigPath()
	if err != nil {
		return cfg, err
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("MAILPORT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) || os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, err
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, err
	}
	if cfg.Accounts == nil {
		cfg.Accounts = map[string]model.Account{}
	}

	return cfg, nil
}

func Save(cfg Config) (string, error) {
	path, err := ConfigPath()
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return "", err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return "", err
	}

	if err := os.WriteFile(path, data, 0o600); err != nil {
		return "", err
	}

	return path, nil
}

// Account resolves a named account, falling back to the default when name is
// empty.
func (c Config) Account(name string) (model.Account, string, error) {
	if name == "" {
		name = c.DefaultAccount
	}
	if name == "" {
		return model.Account{}, "", fmt.Errorf("no account given and no default_account configured")
	}
	account, ok := c.Accounts[name]
	if !ok {
		return model.Account{}, "", fmt.Errorf("unknown account %q", name)
	}
	return account, name, nil
}

// AccountNames returns the registered names sorted.
func (c Config) AccountNames() []string {
	names := make([]string, 0, len(c.Accounts))
	for name := range c.Accounts {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func Validate(cfg Config) error {
	for name, account := range cfg.Accounts {
		if err := account.Validate(); err != nil {
			return fmt.Errorf("account %q: %w", name, err)
		}
	}
	if cfg.DefaultAccount != "" {
		if _, ok := cfg.Accounts[cfg.DefaultAccount]; !ok {
			return fmt.Errorf("default_account %q is not a configured account", cfg.DefaultAccount)
		}
	}
	return nil
}

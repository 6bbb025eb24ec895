package model

import "fmt"

// AccountType discriminates the protocol an account speaks.
type AccountType string

const (
	AccountIMAP  AccountType = "imap"
	AccountGmail AccountType = "gmail"
	AccountJMAP  AccountType = "jmap"
)

// Account holds the non-secret connection parameters of one mail account.
// Credentials live in the keyring, never here.
type Account struct {
	Type AccountType `mapstructure:"type" yaml:"type" json:"type"`
	IMAP IMAPAccount `mapstructure:"imap" yaml:"imap,omitempty" json:"imap,omitempty"`
	JMAP JMAPAccount `mapstructure:"jmap" yaml:"jmap,omitempty" json:"jmap,omitempty"`
}

type IMAPAccount struct {
	Host               string `mapstructure:"host" yaml:"host,omitempty" json:"host,omitempty"`
	Port               int    `mapstructure:"port" yaml:"port,omitempty" json:"port,omitempty"`
	Secure             bool   `mapstructure:"secure" yaml:"secure" json:"secure"`
	StartTLS           bool   `mapstructure:"starttls" yaml:"starttls,omitempty" json:"starttls,omitempty"`
	InsecureSkipVerify bool   `mapstructure:"insecure_skip_verify" yaml:"insecure_skip_verify,omitempty" json:"insecureSkipVerify,omitempty"`
	Username           string `mapstructure:"username" yaml:"username,omitempty" json:"username,omitempty"`
}

type JMAPAccount struct {
	SessionURL string `mapstructure:"session_url" yaml:"session_url,omitempty" json:"sessionUrl,omitempty"`
	Username   string `mapstructure:"username" yaml:"username,omitempty" json:"username,omitempty"`
}

// Validate checks that the variant-specific parameters are present.
func (a Account) Validate() error {
	switch a.Type {
	case AccountIMAP:
		if a.IMAP.Host == "" {
			return fmt.Errorf("imap account: host is required")
		}
		if a.IMAP.Username == "" {
			return fmt.Errorf("imap account: username is required")
		}
	case AccountGmail:
		// The Gmail endpoint is fixed; everything lives in the credentials.
	case AccountJMAP:
		if a.JMAP.SessionURL == "" {
			return fmt.Errorf("jmap account: session_url is required")
		}
		if a.JMAP.Username == "" {
			return fmt.Errorf("jmap account: username is required")
		}
	default:
		return fmt.Errorf("unknown account type %q", a.Type)
	}
	return nil
}

// Package factory constructs the provider matching an account's type.
package factory

import (
	"fmt"

	"mailport/internal/model"
	"mailport/internal/provider"
	"mailport/internal/provider/gmail"
	"mailport/internal/provider/imap"
	"mailport/internal/provider/jmap"
)

// New selects and constructs the provider for the account. The returned
// instance is disconnected; the caller owns the connect/disconnect lifecycle.
func New(account model.Account, creds provider.Credentials) (provider.Provider, error) {
	if err := account.Validate(); err != nil {
		return nil, err
	}
	switch account.Type {
	case model.AccountIMAP:
		return imap.New(account, creds), nil
	case model.AccountGmail:
		return gmail.New(creds), nil
	case model.AccountJMAP:
		return jmap.New(account, creds), nil
	default:
		return nil, fmt.Errorf("unknown account type %q", account.Type)
	}
}

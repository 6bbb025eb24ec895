package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"mailport/internal/config"
	"mailport/internal/model"
	"mailport/internal/secrets"
)

func newAccountsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "accounts",
		Short: "Manage the account registry",
	}
	cmd.AddCommand(newAccountsAddCmd())
	cmd.AddCommand(newAccountsListCmd())
	cmd.AddCommand(newAccountsRemoveCmd())
	return cmd
}

func newAccountsAddCmd() *cobra.Command {
	var (
		accountType string
		setDefault  bool

		imapHost     string
		imapPort     int
		imapSecure   bool
		imapStartTLS bool
		imapInsecure bool
		username     string

		sessionURL string
	)

	cmd := &cobra.Command{
		Use:   "add <name>",
		Short: "Register an account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := args[0]

			cfg, err := config.Load()
			if err != nil {
				return err
			}

			account := model.Account{Type: model.AccountType(accountType)}
			switch account.Type {
			case model.AccountIMAP:
				account.IMAP = model.IMAPAccount{
					Host:               imapHost,
					Port:               imapPort,
					Secure:             imapSecure,
					StartTLS:           imapStartTLS,
					InsecureSkipVerify: imapInsecure,
					Username:           username,
				}
			case model.AccountJMAP:
				account.JMAP = model.JMAPAccount{
					SessionURL: sessionURL,
					Username:   username,
				}
			case model.AccountGmail:
				// Endpoint is fixed; credentials arrive via auth login.
			}
			if err := account.Validate(); err != nil {
				return err
			}

			cfg.Accounts[name] = account
			if setDefault || cfg.DefaultAccount == "" {
				cfg.DefaultAccount = name
			}
			if err := config.Validate(cfg); err != nil {
				return err
			}
			path, err := config.Save(cfg)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Account %q saved to %s\n", name, path)
			return nil
		},
	}

	cmd.Flags().StringVar(&accountType, "type", "imap", "Account type: imap, gmail or jmap")
	cmd.Flags().BoolVar(&setDefault, "default", false, "Make this the default account")

	cmd.Flags().StringVar(&imapHost, "host", "", "IMAP host")
	cmd.Flags().IntVar(&imapPort, "port", 993, "IMAP port")
	cmd.Flags().BoolVar(&imapSecure, "tls", true, "Use implicit TLS")
	cmd.Flags().BoolVar(&imapStartTLS, "starttls", false, "Use STARTTLS")
	cmd.Flags().BoolVar(&imapInsecure, "insecure", false, "Skip TLS verification")
	cmd.Flags().StringVar(&username, "username", "", "Username (IMAP and JMAP)")

	cmd.Flags().StringVar(&sessionURL, "session-url", "", "JMAP session resource URL")

	return cmd
}

func newAccountsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List registered accounts",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			for _, name := range cfg.AccountNames() {
				account := cfg.Accounts[name]
				marker := " "
				if name == cfg.DefaultAccount {
					marker = "*"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s %-20s %s\n", marker, name, account.Type)
			}
			return nil
		},
	}
}

func newAccountsRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove <name>",
		Short: "Remove an account and its stored credentials",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := args[0]
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if _, ok := cfg.Accounts[name]; !ok {
				return fmt.Errorf("unknown account %q", name)
			}
			delete(cfg.Accounts, name)
			if cfg.DefaultAccount == name {
				cfg.DefaultAccount = ""
			}
			if _, err := config.Save(cfg); err != nil {
				return err
			}
			if err := secrets.DeleteCredentials(name); err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "warning: %v\n", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Account %q removed\n", name)
			return nil
		},
	}
}

package cli

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"mailport/internal/model"
	"mailport/internal/provider"
	"mailport/internal/provider/gmail"
	"mailport/internal/secrets"
)

func newAuthCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Store account credentials",
	}
	cmd.AddCommand(newAuthLoginCmd())
	cmd.AddCommand(newAuthLogoutCmd())
	return cmd
}

func newAuthLoginCmd() *cobra.Command {
	var (
		password     string
		clientID     string
		clientSecret string
	)

	cmd := &cobra.Command{
		Use:   "login <account>",
		Short: "Store the password or run the Gmail authorization flow",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			account, name, err := resolveAccount(args[0])
			if err != nil {
				return err
			}

			var creds provider.Credentials
			switch account.Type {
			case model.AccountIMAP, model.AccountJMAP:
				if password == "" {
					password, err = promptPassword(fmt.Sprintf("Password for %s: ", name))
					if err != nil {
						return err
					}
				}
				if password == "" {
					return fmt.Errorf("password must not be empty")
				}
				creds = provider.Credentials{Password: password}

			case model.AccountGmail:
				if clientID == "" || clientSecret == "" {
					return fmt.Errorf("--client-id and --client-secret are required for gmail accounts")
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Open this URL in a browser and authorize access:\n\n  %s\n\n", gmail.AuthURL(clientID, clientSecret))
				fmt.Fprint(cmd.OutOrStdout(), "Paste the authorization code: ")
				reader := bufio.NewReader(os.Stdin)
				code, err := reader.ReadString('\n')
				if err != nil {
					return err
				}
				refreshToken, err := gmail.Exchange(cmd.Context(), clientID, clientSecret, strings.TrimSpace(code))
				if err != nil {
					return err
				}
				creds = provider.Credentials{
					ClientID:     clientID,
					ClientSecret: clientSecret,
					RefreshToken: refreshToken,
				}
			}

			if err := secrets.SetCredentials(name, creds); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Credentials for %q stored in keyring\n", name)
			return nil
		},
	}

	cmd.Flags().StringVar(&password, "password", "", "Password (prompted when omitted)")
	cmd.Flags().StringVar(&clientID, "client-id", "", "OAuth2 client ID (gmail)")
	cmd.Flags().StringVar(&clientSecret, "client-secret", "", "OAuth2 client secret (gmail)")

	return cmd
}

func newAuthLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout <account>",
		Short: "Remove stored credentials",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, name, err := resolveAccount(args[0])
			if err != nil {
				return err
			}
			if err := secrets.DeleteCredentials(name); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Credentials for %q removed\n", name)
			return nil
		},
	}
}

package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "mailport",
		Short:        "mailport backs up and migrates email across IMAP, Gmail and JMAP accounts",
		SilenceUsage: true,
	}

	cmd.AddCommand(newAccountsCmd())
	cmd.AddCommand(newAuthCmd())
	cmd.AddCommand(newTestCmd())
	cmd.AddCommand(newFoldersCmd())
	cmd.AddCommand(newBackupCmd())
	cmd.AddCommand(newRestoreCmd())

	cmd.SetErr(os.Stderr)
	cmd.SetOut(os.Stdout)

	return cmd
}

func Execute() {
	ExecuteContext(context.Background())
}

func ExecuteContext(ctx context.Context) {
	if err := NewRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

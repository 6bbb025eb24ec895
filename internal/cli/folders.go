package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"mailport/internal/model"
)

func newTestCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "test [account]",
		Short: "Check whether the stored credentials work",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := ""
			if len(args) > 0 {
				name = args[0]
			}
			p, resolved, err := openProvider(name)
			if err != nil {
				return err
			}
			defer func() { _ = p.Disconnect() }()

			if p.TestConnection(cmd.Context()) {
				fmt.Fprintf(cmd.OutOrStdout(), "%s: OK\n", resolved)
				return nil
			}
			return fmt.Errorf("%s: connection failed", resolved)
		},
	}
}

func newFoldersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "folders [account]",
		Short: "Print the folder tree with message counts",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := ""
			if len(args) > 0 {
				name = args[0]
			}
			p, _, err := openProvider(name)
			if err != nil {
				return err
			}
			if err := p.Connect(cmd.Context()); err != nil {
				return err
			}
			defer func() { _ = p.Disconnect() }()

			folders, err := p.GetFolders(cmd.Context())
			if err != nil {
				return err
			}
			printFolders(cmd, folders, 0)
			return nil
		},
	}
}

func printFolders(cmd *cobra.Command, folders []model.Folder, depth int) {
	for _, f := range folders {
		fmt.Fprintf(cmd.OutOrStdout(), "%s%s (%d messages, %d unread)\n",
			strings.Repeat("  ", depth), f.Name, f.MessageCount, f.UnreadCount)
		printFolders(cmd, f.Children, depth+1)
	}
}

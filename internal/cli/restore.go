package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"mailport/internal/export"
	"mailport/internal/provider"
)

func newRestoreCmd() *cobra.Command {
	var (
		folder       string
		createFolder bool
	)

	cmd := &cobra.Command{
		Use:   "restore <account> <file.mbox>",
		Short: "Upload the messages of an MBOX file into a folder",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			msgs, err := export.ImportMBOX(args[1])
			if err != nil {
				return err
			}
			if len(msgs) == 0 {
				return fmt.Errorf("%s contains no messages", args[1])
			}

			p, resolved, err := openProvider(args[0])
			if err != nil {
				return err
			}
			if err := p.Connect(cmd.Context()); err != nil {
				return err
			}
			defer func() { _ = p.Disconnect() }()

			if createFolder {
				if err := p.CreateFolder(cmd.Context(), folder); err != nil {
					var provErr *provider.ProviderError
					// An existing folder is fine here.
					if !errors.As(err, &provErr) {
						return err
					}
				}
			}

			if err := p.UploadMessages(cmd.Context(), folder, msgs); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Restored %d messages to %s on %s\n", len(msgs), folder, resolved)
			return nil
		},
	}

	cmd.Flags().StringVar(&folder, "folder", "INBOX", "Target folder path")
	cmd.Flags().BoolVar(&createFolder, "create-folder", false, "Create the target folder first")

	return cmd
}

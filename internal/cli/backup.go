package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"mailport/internal/export"
	"mailport/internal/model"
)

func newBackupCmd() *cobra.Command {
	var (
		folders []string
		formats []string
		output  string
		limit   int
	)

	cmd := &cobra.Command{
		Use:   "backup [account]",
		Short: "Export folders to MBOX, EML or JSON files",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, format := range formats {
				switch format {
				case "mbox", "eml", "json":
				default:
					return fmt.Errorf("unknown format %q (expected mbox, eml or json)", format)
				}
			}

			name := ""
			if len(args) > 0 {
				name = args[0]
			}
			p, resolved, err := openProvider(name)
			if err != nil {
				return err
			}
			if err := p.Connect(cmd.Context()); err != nil {
				return err
			}
			defer func() { _ = p.Disconnect() }()

			targets := folders
			if len(targets) == 0 {
				tree, err := p.GetFolders(cmd.Context())
				if err != nil {
					return err
				}
				for _, f := range model.FlattenFolders(tree) {
					targets = append(targets, f.Path)
				}
			}

			for _, folder := range targets {
				// Cancellation is observed between folders; the in-flight
				// fetch for the current folder completes first.
				if err := cmd.Context().Err(); err != nil {
					return err
				}

				msgs, err := p.GetMessages(cmd.Context(), folder, limit)
				if err != nil {
					return fmt.Errorf("fetch %s: %w", folder, err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s: %d messages\n", folder, len(msgs))

				for _, format := range formats {
					switch format {
					case "mbox":
						path, err := export.ExportFolderMBOX(output, folder, msgs)
						if err != nil {
							return err
						}
						fmt.Fprintf(cmd.OutOrStdout(), "  wrote %s\n", path)
					case "eml":
						paths, err := export.ExportFolderEML(output, folder, msgs)
						if err != nil {
							return err
						}
						fmt.Fprintf(cmd.OutOrStdout(), "  wrote %d .eml files\n", len(paths))
					case "json":
						path, err := export.ExportFolderJSON(output, folder, msgs)
						if err != nil {
							return err
						}
						fmt.Fprintf(cmd.OutOrStdout(), "  wrote %s\n", path)
					}
				}
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Backup of %s complete\n", resolved)
			return nil
		},
	}

	cmd.Flags().StringSliceVar(&folders, "folder", nil, "Folder path to back up (repeatable; all folders when unset)")
	cmd.Flags().StringSliceVar(&formats, "format", []string{"mbox"}, "Output format: mbox, eml or json (repeatable)")
	cmd.Flags().StringVar(&output, "output", "backup", "Output directory")
	cmd.Flags().IntVar(&limit, "limit", 0, "Fetch at most this many messages per folder (0 = all)")

	return cmd
}

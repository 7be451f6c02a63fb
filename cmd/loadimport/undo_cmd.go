package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newUndoCmd(root *rootOptions) *cobra.Command {
	var (
		sessionID string
		user      string
		yes       bool
	)

	cmd := &cobra.Command{
		Use:   "undo",
		Short: "Soft-delete every load written by one import",
		RunE: func(cmd *cobra.Command, args []string) error {
			if sessionID == "" || user == "" {
				return withCode(exitUsage, fmt.Errorf("--session and --user are required"))
			}
			if !yes {
				return withCode(exitUsage, fmt.Errorf("undo requires --yes"))
			}

			a, err := openApp(cmd.Context(), root.configPath)
			if err != nil {
				return err
			}
			defer a.Close()

			receipt, err := a.Imports.Undo(cmd.Context(), sessionID, user)
			if err != nil {
				return classifyImportError(err)
			}
			return writeJSON(cmd.OutOrStdout(), receipt)
		},
	}

	cmd.Flags().StringVar(&sessionID, "session", "", "Import session id (required)")
	cmd.Flags().StringVar(&user, "user", "", "User performing the undo (required)")
	cmd.Flags().BoolVar(&yes, "yes", false, "Confirm the undo")
	return cmd
}

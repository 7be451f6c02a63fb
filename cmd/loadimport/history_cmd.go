package main

import (
	"fmt"
	"strings"

	"github.com/ignite/loadboard/internal/bulkimport"
	"github.com/ignite/loadboard/internal/domain"
	"github.com/spf13/cobra"
)

type historyOutput struct {
	RecentUploads []domain.PostedLoad    `json:"recent_uploads"`
	LastImport    *domain.ImportSession `json:"last_import"`
}

func newHistoryCmd(root *rootOptions) *cobra.Command {
	var (
		user  string
		limit int
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show a user's recent uploads and last import",
		RunE: func(cmd *cobra.Command, args []string) error {
			if user == "" {
				return withCode(exitUsage, fmt.Errorf("--user is required"))
			}
			if limit < 1 {
				return withCode(exitUsage, fmt.Errorf("--limit must be positive"))
			}

			a, err := openApp(cmd.Context(), root.configPath)
			if err != nil {
				return err
			}
			defer a.Close()

			recent, err := a.Imports.RecentUploads(cmd.Context(), user, limit)
			if err != nil {
				return withCode(exitDB, err)
			}
			last, err := a.Imports.LastImport(cmd.Context(), user)
			if err != nil {
				return classifyImportError(err)
			}
			if recent == nil {
				recent = []domain.PostedLoad{}
			}
			return writeJSON(cmd.OutOrStdout(), historyOutput{RecentUploads: recent, LastImport: last})
		},
	}

	cmd.Flags().StringVar(&user, "user", "", "Carrier user id (required)")
	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum recent uploads to list")
	return cmd
}

func newTemplatesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "templates",
		Short: "Print the header line of every template",
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, t := range bulkimport.Templates() {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", t.Name, strings.Join(t.Headers, ","))
			}
			return nil
		},
	}
}

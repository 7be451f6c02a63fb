package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/ignite/loadboard/internal/bulkimport"
	"github.com/ignite/loadboard/internal/domain"
	"github.com/spf13/cobra"
)

type importOutput struct {
	Command     string                   `json:"command"`
	DurationMS  int64                    `json:"duration_ms"`
	PreviewID   string                   `json:"preview_id"`
	Counts      map[domain.RowStatus]int `json:"counts"`
	FlaggedRows []int                    `json:"flagged_rows,omitempty"`
	Notice      string                   `json:"notice,omitempty"`
	DryRun      bool                     `json:"dry_run,omitempty"`
	Result      *bulkimport.ImportResult `json:"result,omitempty"`
	SkippedOut  string                   `json:"skipped_out,omitempty"`
	SkippedRows int                      `json:"skipped_rows,omitempty"`
	Error       string                   `json:"error,omitempty"`
}

type importOptions struct {
	file        string
	template    string
	user        string
	autoConfirm bool
	dryRun      bool
	skippedOut  string
}

func newImportCmd(root *rootOptions) *cobra.Command {
	opts := importOptions{}

	cmd := &cobra.Command{
		Use:   "import",
		Short: "Preview a CSV file and import its valid rows",
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.user == "" {
				return withCode(exitUsage, fmt.Errorf("--user is required"))
			}
			data, err := os.ReadFile(opts.file)
			if err != nil {
				return withCode(exitUsage, fmt.Errorf("read --file: %w", err))
			}

			a, err := openApp(cmd.Context(), root.configPath)
			if err != nil {
				return err
			}
			defer a.Close()

			start := time.Now()
			p, err := a.Imports.Preview(cmd.Context(), bulkimport.PreviewRequest{
				UserID:   opts.user,
				FileName: filepath.Base(opts.file),
				Template: domain.TemplateType(opts.template),
				Data:     data,
			})
			if err != nil {
				return classifyImportError(err)
			}

			out := importOutput{
				Command:     "import",
				PreviewID:   p.ID,
				Counts:      p.Counts(),
				FlaggedRows: bulkimport.FlaggedRows(p.Rows, p.Matches),
				Notice:      p.Notice,
				DryRun:      opts.dryRun,
			}
			if opts.dryRun {
				out.DurationMS = time.Since(start).Milliseconds()
				return writeJSON(cmd.OutOrStdout(), out)
			}

			var confirmed []int
			if opts.autoConfirm {
				confirmed = out.FlaggedRows
			}
			committed, res, runErr := a.Imports.Commit(cmd.Context(), p.ID, opts.user, confirmed)
			out.Result = res
			if committed != nil {
				out.Counts = committed.Counts()
			}
			if runErr != nil {
				out.Error = bulkimport.FriendlyMessage(runErr)
			}

			if opts.skippedOut != "" && committed != nil {
				n, err := writeSkippedFile(opts.skippedOut, committed.Rows)
				if err != nil {
					return withCode(exitUsage, err)
				}
				out.SkippedOut, out.SkippedRows = opts.skippedOut, n
			}

			out.DurationMS = time.Since(start).Milliseconds()
			if err := writeJSON(cmd.OutOrStdout(), out); err != nil {
				return err
			}
			return classifyImportError(runErr)
		},
	}

	cmd.Flags().StringVar(&opts.file, "file", "", "CSV file to import (required)")
	cmd.Flags().StringVar(&opts.template, "template", string(domain.TemplateSimple), "Template: simple, standard or complete")
	cmd.Flags().StringVar(&opts.user, "user", "", "Carrier user id that owns the loads (required)")
	cmd.Flags().BoolVar(&opts.autoConfirm, "auto-confirm", false, "Apply every flagged similarity suggestion")
	cmd.Flags().BoolVar(&opts.dryRun, "dry-run", false, "Preview only, write nothing")
	cmd.Flags().StringVar(&opts.skippedOut, "skipped-out", "", "Write invalid and duplicate rows to this CSV file")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func writeSkippedFile(path string, rows []domain.NormalizedRow) (int, error) {
	f, err := os.Create(path)
	if err != nil {
		return 0, fmt.Errorf("create --skipped-out: %w", err)
	}
	n, err := bulkimport.WriteSkippedRows(f, rows)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	return n, err
}

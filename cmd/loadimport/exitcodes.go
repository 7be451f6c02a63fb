package main

import (
	"errors"

	"github.com/ignite/loadboard/internal/bulkimport"
)

type cliError struct {
	code int
	err  error
}

func (e *cliError) Error() string {
	return e.err.Error()
}

func (e *cliError) Unwrap() error {
	return e.err
}

const (
	exitOK         = 0
	exitValidation = 2
	exitUsage      = 3
	exitDB         = 4
	exitDBWrite    = 5
	exitSafetyNet  = 6
)

func withCode(code int, err error) error {
	if err == nil {
		return nil
	}
	return &cliError{code: code, err: err}
}

func exitCode(err error) int {
	if err == nil {
		return exitOK
	}
	var ce *cliError
	if errors.As(err, &ce) {
		return ce.code
	}
	return 1
}

// classifyImportError picks the exit code of a pipeline error.
func classifyImportError(err error) error {
	var (
		hdr   *bulkimport.HeaderError
		pre   *bulkimport.PreflightError
		batch *bulkimport.BatchError
	)
	switch {
	case err == nil:
		return nil
	case errors.As(err, &hdr),
		errors.Is(err, bulkimport.ErrUnknownTemplate),
		errors.Is(err, bulkimport.ErrExcelNotSupported),
		errors.Is(err, bulkimport.ErrUnsupportedFileType),
		errors.Is(err, bulkimport.ErrUnreadableFile),
		errors.Is(err, bulkimport.ErrNoDataRows),
		errors.Is(err, bulkimport.ErrTooManyRows),
		errors.Is(err, bulkimport.ErrNothingToImport),
		errors.Is(err, bulkimport.ErrAlreadyImported):
		return withCode(exitValidation, err)
	case errors.Is(err, bulkimport.ErrImportInFlight),
		errors.Is(err, bulkimport.ErrAlreadyUndone),
		errors.Is(err, bulkimport.ErrNotOwner):
		return withCode(exitSafetyNet, err)
	case errors.Is(err, bulkimport.ErrSessionNotFound), errors.Is(err, bulkimport.ErrPreviewNotFound):
		return withCode(exitUsage, err)
	case errors.As(err, &pre):
		return withCode(exitDB, err)
	case errors.As(err, &batch):
		return withCode(exitDBWrite, err)
	}
	return err
}

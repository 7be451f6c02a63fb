package bulkimport

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/smithy-go"
)

var (
	ErrUnreadableFile      = errors.New("file could not be read")
	ErrNoDataRows          = errors.New("no data rows found")
	ErrTooManyRows         = errors.New("too many rows")
	ErrExcelNotSupported   = errors.New("excel files are not supported, export the sheet as CSV")
	ErrUnsupportedFileType = errors.New("unsupported file type, upload a CSV file")
	ErrUnknownTemplate     = errors.New("unknown template")
	ErrImportInFlight      = errors.New("an import is already running for this user")
	ErrNothingToImport     = errors.New("no valid rows to import")
	ErrAlreadyImported     = errors.New("every valid row is already on the board")
	ErrPreviewNotFound     = errors.New("preview not found or expired")
	ErrSessionNotFound     = errors.New("import session not found")
	ErrNotOwner            = errors.New("import belongs to another user")
	ErrAlreadyUndone       = errors.New("import was already undone")
	ErrInvalidTransition   = errors.New("invalid import state transition")
)

// HeaderError lists every column that breaks the template header contract.
type HeaderError struct {
	Template string
	Problems []string
}

func (e *HeaderError) Error() string {
	return fmt.Sprintf("header does not match %s template: %s", e.Template, strings.Join(e.Problems, "; "))
}

// PreflightError means the permission probe failed before any write.
type PreflightError struct {
	Op  string // "read" or "write"
	Err error
}

func (e *PreflightError) Error() string { return fmt.Sprintf("preflight %s check failed: %v", e.Op, e.Err) }
func (e *PreflightError) Unwrap() error { return e.Err }

// BatchError stops an import. Written loads stay written.
type BatchError struct {
	BatchIndex int
	Written    int
	Err        error
}

func (e *BatchError) Error() string {
	return fmt.Sprintf("batch %d failed after %d loads were written: %v", e.BatchIndex+1, e.Written, e.Err)
}
func (e *BatchError) Unwrap() error { return e.Err }

// =============================================================================
// USER-FACING MESSAGES
// =============================================================================

const maxMessageLen = 100

const (
	msgPermission = "The load store denied access. Check your account rules."
	msgQuota      = "The load store is rate limiting. Try again in a minute."
	msgNetwork    = "Network error. Check your connection or ad blocker."
	msgTimeout    = "The load store timed out. Try a smaller file."
)

// FriendlyMessage turns any pipeline error into short text for people.
// Known failure kinds get canned wording; the rest is truncated.
func FriendlyMessage(err error) string {
	if err == nil {
		return ""
	}

	var hdr *HeaderError
	var batch *BatchError
	var pre *PreflightError
	switch {
	case errors.As(err, &hdr):
		msg := fmt.Sprintf("Header does not match the %s template", hdr.Template)
		if len(hdr.Problems) > 0 {
			msg += ": " + hdr.Problems[0]
			if n := len(hdr.Problems) - 1; n > 0 {
				msg += fmt.Sprintf(" (+%d more)", n)
			}
		}
		return truncate(msg)
	case errors.As(err, &batch):
		return truncate(fmt.Sprintf("Import stopped after %d loads were saved. %s", batch.Written, classify(batch.Err)))
	case errors.As(err, &pre):
		return truncate(fmt.Sprintf("Cannot %s loads. %s", pre.Op, classify(pre.Err)))
	}
	return classify(err)
}

func classify(err error) string {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		code := apiErr.ErrorCode()
		switch {
		case strings.Contains(code, "AccessDenied"), strings.Contains(code, "Unauthorized"), code == "UnrecognizedClientException":
			return msgPermission
		case strings.Contains(code, "Throttl"), strings.Contains(code, "ThroughputExceeded"), code == "RequestLimitExceeded", strings.Contains(code, "Quota"):
			return msgQuota
		case strings.Contains(code, "Timeout"):
			return msgTimeout
		}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return msgTimeout
	}

	text := err.Error()
	lower := strings.ToLower(text)
	switch {
	case containsAny(lower, "permission-denied", "permission denied", "access denied", "accessdenied", "unauthorized", "forbidden"):
		return msgPermission
	case containsAny(lower, "quota", "resource-exhausted", "throttl", "rate exceeded", "too many requests"):
		return msgQuota
	case containsAny(lower, "network", "connection refused", "connection reset", "no such host", "failed to fetch", "dial tcp"):
		return msgNetwork
	case containsAny(lower, "timeout", "timed out", "deadline exceeded"):
		return msgTimeout
	}
	return truncate(text)
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

func truncate(s string) string {
	r := []rune(s)
	if len(r) <= maxMessageLen {
		return s
	}
	return string(r[:maxMessageLen-3]) + "..."
}

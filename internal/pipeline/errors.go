package pipeline

import (
	"context"
	"errors"
	"strings"

	"contract-backend/internal/extract"
)

// Sentinel errors surfaced by the service layer.
var (
	ErrNotFound     = errors.New("run not found")
	ErrInvalidInput = errors.New("invalid input")
)

// Stable error codes persisted on failed runs.
const (
	CodeExtractFailed   = "extract_failed"
	CodeUnsupportedType = "unsupported_file_type"
	CodeCanceled        = "canceled"
	CodeTimeout         = "timeout"
	CodeInternal        = "internal_error"
)

// classifyFailure maps a run-fatal error onto a stable error code for storage
// and metrics. Degraded stages never reach here; only extraction failures and
// cancellation abort a run.
func classifyFailure(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, extract.ErrUnsupportedType):
		return CodeUnsupportedType
	case errors.Is(err, extract.ErrExtraction):
		return CodeExtractFailed
	case errors.Is(err, context.Canceled):
		return CodeCanceled
	case errors.Is(err, context.DeadlineExceeded):
		return CodeTimeout
	default:
		return CodeInternal
	}
}

const maxStoredErrorLen = 500

// sanitizeError trims an error message for storage. Anything that might carry
// document text is cut at a fixed length; newlines are flattened so the value
// stays a single log-friendly line.
func sanitizeError(err error) string {
	if err == nil {
		return ""
	}
	msg := strings.Join(strings.Fields(err.Error()), " ")
	if len(msg) > maxStoredErrorLen {
		msg = msg[:maxStoredErrorLen]
	}
	return msg
}

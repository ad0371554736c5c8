package session

import (
	"errors"
	"fmt"
	"strings"

	"github.com/insightdelivered/bank-statement-extractor/internal/gateway"
	"github.com/insightdelivered/bank-statement-extractor/internal/models"
	"github.com/insightdelivered/bank-statement-extractor/internal/normalize"
	"github.com/insightdelivered/bank-statement-extractor/internal/writer"
)

// Message converts an error into the sentence shown to the user.
func Message(err error) string {
	var (
		failure *gateway.ExtractionFailure
		rowErr  *normalize.MalformedRowError
	)
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrUnsupportedDocument):
		return "Please upload a PDF file."
	case errors.Is(err, ErrTextMissing):
		return "Please paste the statement text."
	case errors.Is(err, ErrFileMissing):
		return "Please upload a file."
	case errors.Is(err, gateway.ErrInputMissing):
		return "Please provide either statement text or a PDF file."
	case errors.Is(err, ErrExtractionInProgress):
		return "An extraction is still in progress. Please wait for it to finish."
	case errors.Is(err, writer.ErrEmptyExport):
		return "No transactions to export."
	case errors.Is(err, models.ErrUnknownBank):
		return "Please select a supported bank."
	case errors.Is(err, models.ErrUnknownEntity):
		return "Please select a supported entity."
	case errors.As(err, &failure):
		return failure.Cause
	case errors.As(err, &rowErr):
		return fmt.Sprintf("The extracted data is malformed (row %d, %s: %s). Please try again.", rowErr.Row, rowErr.Field, rowErr.Reason)
	}
	return "An unexpected error occurred: " + err.Error()
}

func isBlank(s string) bool { return strings.TrimSpace(s) == "" }

func trimmed(s string) string { return strings.TrimSpace(s) }

// Package normalize turns loosely-typed oracle rows into canonical
// transactions.
package normalize

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/insightdelivered/bank-statement-extractor/internal/models"
)

// MalformedRowError reports the first row of an oracle response that could
// not be coerced into a transaction. Row is 1-based in response order.
type MalformedRowError struct {
	Row    int
	Field  string
	Reason string
}

func (e *MalformedRowError) Error() string {
	return fmt.Sprintf("malformed transaction in row %d: %s: %s", e.Row, e.Field, e.Reason)
}

// Validate coerces rows into transactions, preserving their order. A single
// malformed row fails the whole batch and no transactions are returned.
// Rows whose fields are all blank are padding and are dropped.
func Validate(rows []models.RawRow, format models.NumberFormat) ([]models.Transaction, error) {
	txns := make([]models.Transaction, 0, len(rows))

	for i, row := range rows {
		if isBlank(row) {
			continue
		}

		date, err := coerceText(row.Date)
		if err != nil {
			return nil, &MalformedRowError{Row: i + 1, Field: "date", Reason: err.Error()}
		}
		detail, err := coerceText(row.Detail)
		if err != nil {
			return nil, &MalformedRowError{Row: i + 1, Field: "detail", Reason: err.Error()}
		}
		movement, err := coerceAmount(row.Movement, format)
		if err != nil {
			return nil, &MalformedRowError{Row: i + 1, Field: "movement", Reason: err.Error()}
		}
		balance, err := coerceAmount(row.Balance, format)
		if err != nil {
			return nil, &MalformedRowError{Row: i + 1, Field: "balance", Reason: err.Error()}
		}

		txns = append(txns, models.Transaction{
			Date:     strings.TrimSpace(date),
			Detail:   detail,
			Movement: movement,
			Balance:  balance,
		})
	}

	return txns, nil
}

// coerceText returns the raw text of v, which must be non-empty once
// trimmed. The returned value itself is not trimmed.
func coerceText(v any) (string, error) {
	var s string
	switch t := v.(type) {
	case nil:
		return "", errMissing
	case string:
		s = t
	case json.Number:
		s = t.String()
	default:
		return "", fmt.Errorf("%w %T", errUnsupported, v)
	}
	if strings.TrimSpace(s) == "" {
		return "", fmt.Errorf("value is empty")
	}
	return s, nil
}

func isBlank(row models.RawRow) bool {
	for _, v := range []any{row.Date, row.Detail, row.Movement, row.Balance} {
		switch t := v.(type) {
		case nil:
		case string:
			if strings.TrimSpace(t) != "" {
				return false
			}
		default:
			return false
		}
	}
	return true
}

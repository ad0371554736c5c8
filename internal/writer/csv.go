package writer

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"
	"unicode"

	"github.com/shopspring/decimal"

	"github.com/insightdelivered/bank-statement-extractor/internal/models"
)

const (
	// Header is the fixed first line of every export.
	Header = "Fecha|Detalle|Movimiento|Saldo|Entidad"
	// ContentType is served with exported files.
	ContentType = "text/csv;charset=utf-8"

	delimiter = "|"
	bom       = "\ufeff"
)

// ErrEmptyExport is returned when there is nothing to export. No bytes are
// produced in that case.
var ErrEmptyExport = errors.New("no transactions to export")

// Encode serializes transactions into the export format: UTF-8 with a BOM,
// pipe-delimited, comma decimals, and the entity on every row. Rows are
// joined by "\n" without a trailing newline. Output is deterministic.
func Encode(txns []models.Transaction, entity models.Entity) ([]byte, error) {
	var buf bytes.Buffer
	if err := Write(&buf, txns, entity); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Write writes the export to out. Nothing is written on error.
func Write(out io.Writer, txns []models.Transaction, entity models.Entity) error {
	if len(txns) == 0 {
		return ErrEmptyExport
	}
	if _, err := models.ParseEntity(string(entity)); err != nil {
		return err
	}

	var sb strings.Builder
	sb.WriteString(bom)
	sb.WriteString(Header)
	for _, txn := range txns {
		sb.WriteByte('\n')
		sb.WriteString(formatRow(txn, entity))
	}

	if _, err := io.WriteString(out, sb.String()); err != nil {
		return fmt.Errorf("failed to write CSV: %w", err)
	}
	return nil
}

// WriteToFile writes the export to a file at the given path.
func WriteToFile(path string, txns []models.Transaction, entity models.Entity) error {
	data, err := Encode(txns, entity)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to create output file %q: %w", path, err)
	}
	return nil
}

// Filename returns the download name of an export made for bank on the
// given day (UTC).
func Filename(bank models.Bank, now time.Time) string {
	name := strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return '_'
		}
		return r
	}, string(bank))
	return fmt.Sprintf("extracto_%s_%s.csv", name, now.UTC().Format("2006-01-02"))
}

func formatRow(txn models.Transaction, entity models.Entity) string {
	return strings.Join([]string{
		txn.Date,
		quote(txn.Detail),
		formatAmount(txn.Movement),
		formatAmount(txn.Balance),
		string(entity),
	}, delimiter)
}

// quote always wraps s in double quotes, doubling any embedded quote.
func quote(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

// formatAmount renders two fractional digits with a decimal comma and no
// thousands separator.
func formatAmount(amount float64) string {
	return strings.Replace(decimal.NewFromFloat(amount).StringFixed(2), ".", ",", 1)
}

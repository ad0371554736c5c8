package oracle

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/insightdelivered/bank-statement-extractor/internal/models"
)

// ErrMalformedResponse is returned when the model's answer is not the JSON
// document it was asked for.
var ErrMalformedResponse = errors.New("oracle returned an unparseable response")

// Keys accepted for each field, in priority order. The requested name
// comes first so it wins when the model also emits an alias.
var (
	dateKeys     = []string{"date", "fecha"}
	detailKeys   = []string{"detail", "detalle", "description", "descripcion", "descripción", "concepto"}
	movementKeys = []string{"movement", "movimiento", "amount", "valor"}
	balanceKeys  = []string{"balance", "saldo"}
	envelopeKeys = []string{"transactions", "transacciones", "movimientos"}
)

// ParseRows decodes the model's answer into raw rows. It accepts either
// {"transactions": [...]} or a bare array, optionally wrapped in a Markdown
// code fence. Numbers are kept as json.Number so no precision is lost
// before validation.
func ParseRows(content string) ([]models.RawRow, error) {
	content = stripFence(content)
	if content == "" {
		return nil, fmt.Errorf("%w: empty content", ErrMalformedResponse)
	}

	var items []map[string]any
	if strings.HasPrefix(content, "[") {
		if err := decode(content, &items); err != nil {
			return nil, err
		}
	} else {
		var envelope map[string]json.RawMessage
		if err := decode(content, &envelope); err != nil {
			return nil, err
		}
		raw, ok := lookup(envelope, envelopeKeys...)
		if !ok {
			return nil, fmt.Errorf("%w: missing transactions array", ErrMalformedResponse)
		}
		if err := decode(string(raw), &items); err != nil {
			return nil, err
		}
	}

	rows := make([]models.RawRow, 0, len(items))
	for _, item := range items {
		var row models.RawRow
		row.Date, _ = lookup(item, dateKeys...)
		row.Detail, _ = lookup(item, detailKeys...)
		row.Movement, _ = lookup(item, movementKeys...)
		row.Balance, _ = lookup(item, balanceKeys...)
		rows = append(rows, row)
	}
	return rows, nil
}

// stripFence removes a ```json ... ``` wrapper some models add.
func stripFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if i := strings.IndexByte(s, '\n'); i >= 0 && !strings.ContainsAny(s[:i], "{[") {
		s = s[i+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

// decode reads exactly one JSON value from s. Anything after it other than
// whitespace makes the response malformed.
func decode(s string, v any) error {
	dec := json.NewDecoder(strings.NewReader(s))
	dec.UseNumber()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if _, err := dec.Token(); err != io.EOF {
		return fmt.Errorf("%w: unexpected data after the JSON document", ErrMalformedResponse)
	}
	return nil
}

// lookup returns the value of the first key present, matched
// case-insensitively. Keys of m are visited in sorted order so the result
// never depends on map iteration.
func lookup[V any](m map[string]V, keys ...string) (V, bool) {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	slices.Sort(names)
	for _, want := range keys {
		if v, ok := m[want]; ok {
			return v, true
		}
		for _, name := range names {
			if strings.EqualFold(strings.TrimSpace(name), want) {
				return m[name], true
			}
		}
	}
	var zero V
	return zero, false
}

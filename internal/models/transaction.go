package models

// Transaction represents a single validated bank statement transaction.
// Movement sign conventions are bank-defined and are not normalized.
type Transaction struct {
	Date     string  `json:"date"`
	Detail   string  `json:"detail"`
	Movement float64 `json:"movement"`
	Balance  float64 `json:"balance"`
}

// RawRow is a loosely-typed transaction candidate as proposed by the
// extraction oracle. Values are whatever the oracle produced: strings,
// json.Number, float64, or nil when the field was absent.
type RawRow struct {
	Date     any `json:"date"`
	Detail   any `json:"detail"`
	Movement any `json:"movement"`
	Balance  any `json:"balance"`
}

// InputMode selects how the statement is supplied.
type InputMode string

const (
	InputText InputMode = "text"
	InputFile InputMode = "file"
)

// StatementInput carries the statement content. Exactly one of Text or PDF
// is expected to be set.
type StatementInput struct {
	Text     string
	PDF      []byte
	FileName string
}

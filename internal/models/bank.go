package models

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrUnknownBank   = errors.New("unknown bank")
	ErrUnknownEntity = errors.New("unknown entity")
)

// Bank is one of the supported institutions. The value doubles as the UI
// label and the hint passed to the extraction oracle.
type Bank string

const (
	BankPopular     Bank = "Banco Popular"
	BankOccidente   Bank = "Banco Occidente"
	BankDavivienda  Bank = "Davivienda"
	BankBogota      Bank = "Banco Bogota"
	BankBBVA        Bank = "Banco BBVA"
	BankBancoomeva  Bank = "Bancoomeva"
	BankBancolombia Bank = "Bancolombia"
	BankAvVillas    Bank = "AvVillas"
	BankAgrario     Bank = "Banco Agrario"
)

// Banks lists every supported bank in display order.
var Banks = []Bank{
	BankPopular,
	BankOccidente,
	BankDavivienda,
	BankBogota,
	BankBBVA,
	BankBancoomeva,
	BankBancolombia,
	BankAvVillas,
	BankAgrario,
}

const DefaultBank = BankPopular

// ParseBank resolves a bank by its exact label, ignoring case and
// surrounding whitespace.
func ParseBank(s string) (Bank, error) {
	s = strings.TrimSpace(s)
	for _, b := range Banks {
		if strings.EqualFold(string(b), s) {
			return b, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownBank, s)
}

// Entity tags every row of an export with its organizational owner.
type Entity string

const (
	EntityGVAL Entity = "GVAL"
	EntityVEDU Entity = "VEDU"
)

var Entities = []Entity{EntityGVAL, EntityVEDU}

const DefaultEntity = EntityGVAL

func ParseEntity(s string) (Entity, error) {
	s = strings.TrimSpace(s)
	for _, e := range Entities {
		if strings.EqualFold(string(e), s) {
			return e, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownEntity, s)
}

// NumberFormat is the decimal convention a bank prints amounts in. It only
// settles amounts whose single separator is ambiguous, such as "1.234".
type NumberFormat int

const (
	DecimalPoint NumberFormat = iota // 1,234.56
	DecimalComma                     // 1.234,56
)

func (f NumberFormat) String() string {
	if f == DecimalComma {
		return "comma"
	}
	return "point"
}

func (f NumberFormat) MarshalText() ([]byte, error) {
	return []byte(f.String()), nil
}

func (f *NumberFormat) UnmarshalText(text []byte) error {
	switch strings.ToLower(strings.TrimSpace(string(text))) {
	case "point", "dot", ".":
		*f = DecimalPoint
	case "comma", ",":
		*f = DecimalComma
	default:
		return fmt.Errorf("invalid number format %q (want point or comma)", text)
	}
	return nil
}

// BankProfile holds the per-bank quirks the pipeline needs.
type BankProfile struct {
	Format NumberFormat `yaml:"number_format" json:"numberFormat"`
	// Notes are appended to the oracle prompt for this bank.
	Notes string `yaml:"notes" json:"notes,omitempty"`
}

// DefaultProfiles returns the built-in profile of every bank. Callers get a
// fresh map they may modify.
func DefaultProfiles() map[Bank]BankProfile {
	return map[Bank]BankProfile{
		BankPopular:     {Format: DecimalComma, Notes: "Debits may be printed with a trailing minus sign."},
		BankOccidente:   {Format: DecimalPoint, Notes: "Debit and credit amounts are printed in separate columns."},
		BankDavivienda:  {Format: DecimalPoint, Notes: "Amounts carry a leading $ sign."},
		BankBogota:      {Format: DecimalPoint},
		BankBBVA:        {Format: DecimalComma},
		BankBancoomeva:  {Format: DecimalComma},
		BankBancolombia: {Format: DecimalPoint, Notes: "Debits are printed with a leading minus sign."},
		BankAvVillas:    {Format: DecimalPoint},
		BankAgrario:     {Format: DecimalComma, Notes: "Debits may be printed in parentheses."},
	}
}

package writer

import (
	"bytes"
	"encoding/csv"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/insightdelivered/bank-statement-extractor/internal/models"
)

func TestEncode(t *testing.T) {
	txns := []models.Transaction{
		{Date: "01/01/2024", Detail: "ATM W/D", Movement: -50000, Balance: 150000},
	}

	data, err := Encode(txns, models.EntityGVAL)
	require.NoError(t, err)

	want := "\ufeffFecha|Detalle|Movimiento|Saldo|Entidad\n" +
		`01/01/2024|"ATM W/D"|-50000,00|150000,00|GVAL`
	assert.Equal(t, want, string(data))
}

func TestEncodeLayout(t *testing.T) {
	txns := []models.Transaction{
		{Date: "15/01/2024", Detail: "PAGO PSE", Movement: -25.99, Balance: 1234.56},
		{Date: "16/01/2024", Detail: "NOMINA", Movement: 2500, Balance: 3734.56},
		{Date: "17/01/2024", Detail: "AJUSTE", Movement: 0, Balance: 3734.56},
	}

	data, err := Encode(txns, models.EntityVEDU)
	require.NoError(t, err)

	assert.True(t, bytes.HasPrefix(data, []byte{0xEF, 0xBB, 0xBF}), "expected UTF-8 BOM")
	assert.False(t, bytes.HasSuffix(data, []byte("\n")), "expected no trailing newline")

	lines := strings.Split(strings.TrimPrefix(string(data), "\ufeff"), "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, Header, lines[0])
	// rows keep input order
	assert.Equal(t, `15/01/2024|"PAGO PSE"|-25,99|1234,56|VEDU`, lines[1])
	assert.Equal(t, `16/01/2024|"NOMINA"|2500,00|3734,56|VEDU`, lines[2])
	assert.Equal(t, `17/01/2024|"AJUSTE"|0,00|3734,56|VEDU`, lines[3])
}

func TestEncodeQuotesDetail(t *testing.T) {
	txns := []models.Transaction{
		{Date: "01/02/2024", Detail: `He said "ok"`, Movement: 1, Balance: 1},
	}

	data, err := Encode(txns, models.EntityGVAL)
	require.NoError(t, err)
	assert.Contains(t, string(data), `|"He said ""ok"""|`)
}

func TestEncodeIdempotent(t *testing.T) {
	txns := []models.Transaction{
		{Date: "01/01/2024", Detail: `A "B" | C, D`, Movement: -0.1, Balance: 99.999},
		{Date: "02/01/2024", Detail: "E", Movement: 1e6, Balance: -3},
	}

	first, err := Encode(txns, models.EntityGVAL)
	require.NoError(t, err)
	second, err := Encode(txns, models.EntityGVAL)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestEncodeRoundTrip(t *testing.T) {
	txns := []models.Transaction{
		{Date: "01/01/2024", Detail: "ATM W/D", Movement: -50000, Balance: 150000},
		{Date: "02/01/2024", Detail: `TRANSFER "SAVINGS" | REF 1,2`, Movement: 1234.5, Balance: 151234.5},
		{Date: "03/01/2024", Detail: "MULTI\nLINE", Movement: -0.75, Balance: 151233.75},
	}

	data, err := Encode(txns, models.EntityGVAL)
	require.NoError(t, err)

	r := csv.NewReader(bytes.NewReader(bytes.TrimPrefix(data, []byte("\ufeff"))))
	r.Comma = '|'
	records, err := r.ReadAll()
	require.NoError(t, err)
	require.Len(t, records, len(txns)+1)
	assert.Equal(t, strings.Split(Header, "|"), records[0])

	for i, rec := range records[1:] {
		require.Len(t, rec, 5)
		assert.Equal(t, txns[i].Date, rec[0])
		assert.Equal(t, txns[i].Detail, rec[1])
		assert.InDelta(t, txns[i].Movement, parseCommaDecimal(t, rec[2]), 0.005)
		assert.InDelta(t, txns[i].Balance, parseCommaDecimal(t, rec[3]), 0.005)
		assert.Equal(t, "GVAL", rec[4])
	}
}

func TestEncodeEmpty(t *testing.T) {
	data, err := Encode(nil, models.EntityGVAL)
	assert.ErrorIs(t, err, ErrEmptyExport)
	assert.Nil(t, data)

	var buf bytes.Buffer
	err = Write(&buf, []models.Transaction{}, models.EntityGVAL)
	assert.ErrorIs(t, err, ErrEmptyExport)
	assert.Zero(t, buf.Len())
}

func TestEncodeUnknownEntity(t *testing.T) {
	_, err := Encode([]models.Transaction{{Date: "d", Detail: "x"}}, models.Entity("ACME"))
	assert.ErrorIs(t, err, models.ErrUnknownEntity)
}

func TestFormatAmount(t *testing.T) {
	tests := []struct {
		input    float64
		expected string
	}{
		{-1234.5, "-1234,50"},
		{0, "0,00"},
		{1234.5, "1234,50"},
		{25.99, "25,99"},
		{2500.00, "2500,00"},
		{1e6, "1000000,00"},
		{0.1 + 0.2, "0,30"},
		{-50000, "-50000,00"},
	}

	for _, tt := range tests {
		got := formatAmount(tt.input)
		assert.Equal(t, tt.expected, got, "formatAmount(%v)", tt.input)
	}
}

func TestFilename(t *testing.T) {
	day := time.Date(2024, 3, 9, 23, 30, 0, 0, time.FixedZone("COT", -5*3600))

	assert.Equal(t, "extracto_Banco_Popular_2024-03-10.csv", Filename(models.BankPopular, day))
	assert.Equal(t, "extracto_Bancolombia_2024-03-10.csv", Filename(models.BankBancolombia, day))
	assert.Equal(t, "extracto_Banco_Agrario_2024-03-10.csv", Filename(models.BankAgrario, day))
}

func TestWriteToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.csv")
	txns := []models.Transaction{{Date: "01/01/2024", Detail: "X", Movement: 1, Balance: 2}}

	require.NoError(t, WriteToFile(path, txns, models.EntityGVAL))

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	want, err := Encode(txns, models.EntityGVAL)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func parseCommaDecimal(t *testing.T, s string) float64 {
	t.Helper()
	f, err := strconv.ParseFloat(strings.Replace(s, ",", ".", 1), 64)
	require.NoError(t, err)
	return f
}

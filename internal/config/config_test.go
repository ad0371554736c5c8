package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/insightdelivered/bank-statement-extractor/internal/models"
)

func TestLoadProfilesDefaults(t *testing.T) {
	got, err := LoadProfiles("")
	require.NoError(t, err)
	assert.Equal(t, models.DefaultProfiles(), got)
}

func TestParseProfilesOverrides(t *testing.T) {
	doc := []byte(`
banks:
  bancolombia:
    number_format: comma
  Banco Popular:
    notes: Amounts are in COP.
`)
	got, err := ParseProfiles(doc)
	require.NoError(t, err)

	defaults := models.DefaultProfiles()
	assert.Equal(t, models.DecimalComma, got[models.BankBancolombia].Format)
	assert.Equal(t, defaults[models.BankBancolombia].Notes, got[models.BankBancolombia].Notes)
	assert.Equal(t, defaults[models.BankPopular].Format, got[models.BankPopular].Format)
	assert.Equal(t, "Amounts are in COP.", got[models.BankPopular].Notes)
	assert.Equal(t, defaults[models.BankAgrario], got[models.BankAgrario])
}

func TestParseProfilesErrors(t *testing.T) {
	tests := map[string]string{
		"unknown bank":   "banks:\n  Banco Imaginario:\n    number_format: point\n",
		"bad format":     "banks:\n  Bancolombia:\n    number_format: hex\n",
		"not a mapping":  "banks: [1, 2]\n",
		"invalid syntax": "banks:\n\t- :\n",
	}
	for name, doc := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := ParseProfiles([]byte(doc))
			assert.Error(t, err)
		})
	}
}

func TestParseProfilesUnknownBank(t *testing.T) {
	_, err := ParseProfiles([]byte("banks:\n  Banco Imaginario: {}\n"))
	assert.ErrorIs(t, err, models.ErrUnknownBank)
}

func TestSaveRoundTrip(t *testing.T) {
	profiles := models.DefaultProfiles()
	profiles[models.BankBogota] = models.BankProfile{Format: models.DecimalComma, Notes: "custom"}

	path := filepath.Join(t.TempDir(), "banks.yaml")
	require.NoError(t, Save(path, profiles))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "number_format: comma")

	got, err := LoadProfiles(path)
	require.NoError(t, err)
	assert.Equal(t, profiles, got)
}

func TestLoadProfilesNotFound(t *testing.T) {
	_, err := LoadProfiles(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

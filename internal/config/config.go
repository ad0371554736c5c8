// Package config loads the optional bank-profile file.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/insightdelivered/bank-statement-extractor/internal/models"
)

// File is the layout of a bank-profile YAML file:
//
//	banks:
//	  Bancolombia:
//	    number_format: point
//	    notes: Debits are printed with a leading minus sign.
type File struct {
	Banks map[string]ProfileOverride `yaml:"banks"`
}

// ProfileOverride replaces the fields it sets on a built-in profile.
type ProfileOverride struct {
	Format *models.NumberFormat `yaml:"number_format,omitempty"`
	Notes  *string              `yaml:"notes,omitempty"`
}

// LoadProfiles returns the built-in bank profiles with the overrides from
// the file at path applied. An empty path returns the built-in profiles.
func LoadProfiles(path string) (map[models.Bank]models.BankProfile, error) {
	if path == "" {
		return models.DefaultProfiles(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading bank profiles: %w", err)
	}
	return ParseProfiles(data)
}

// ParseProfiles is LoadProfiles for an in-memory document.
func ParseProfiles(data []byte) (map[models.Bank]models.BankProfile, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing bank profiles: %w", err)
	}
	return f.Apply(models.DefaultProfiles())
}

// Apply merges the overrides into profiles. Bank names are matched the way
// ParseBank matches them; an unknown name is an error.
func (f File) Apply(profiles map[models.Bank]models.BankProfile) (map[models.Bank]models.BankProfile, error) {
	for name, o := range f.Banks {
		bank, err := models.ParseBank(name)
		if err != nil {
			return nil, fmt.Errorf("bank profiles: %w", err)
		}
		p := profiles[bank]
		if o.Format != nil {
			p.Format = *o.Format
		}
		if o.Notes != nil {
			p.Notes = *o.Notes
		}
		profiles[bank] = p
	}
	return profiles, nil
}

// Save writes the profiles to path in the format LoadProfiles reads.
func Save(path string, profiles map[models.Bank]models.BankProfile) error {
	f := File{Banks: make(map[string]ProfileOverride, len(profiles))}
	for bank, p := range profiles {
		format, notes := p.Format, p.Notes
		f.Banks[string(bank)] = ProfileOverride{Format: &format, Notes: &notes}
	}
	data, err := yaml.Marshal(f)
	if err != nil {
		return fmt.Errorf("marshaling bank profiles: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing bank profiles: %w", err)
	}
	return nil
}

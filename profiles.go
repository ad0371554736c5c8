package main

import (
	"github.com/rs/zerolog/log"

	"github.com/insightdelivered/bank-statement-extractor/internal/config"
)

// ProfilesCmd writes the effective bank profiles, built-ins merged with
// BANK_PROFILES, as a file that BANK_PROFILES can load back.
type ProfilesCmd struct {
	Output string `arg:"" help:"Path of the YAML file to write"`
}

func (c *ProfilesCmd) Run(g *Globals) error {
	profiles, err := config.LoadProfiles(g.BankProfiles)
	if err != nil {
		return err
	}
	if err := config.Save(c.Output, profiles); err != nil {
		return err
	}
	log.Info().Int("banks", len(profiles)).Str("output", c.Output).Msg("bank profiles written")
	return nil
}

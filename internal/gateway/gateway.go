// Package gateway runs one extraction: it calls the oracle once, validates
// what comes back, and maps every failure to a typed error.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/insightdelivered/bank-statement-extractor/internal/models"
	"github.com/insightdelivered/bank-statement-extractor/internal/normalize"
	"github.com/insightdelivered/bank-statement-extractor/internal/prom"
)

// ErrInputMissing means the caller supplied neither statement text nor a
// document, or both at once.
var ErrInputMissing = errors.New("statement input is missing")

// ExtractionFailure is returned when the oracle call fails or yields
// nothing usable. Cause is meant to be shown to the user as-is.
type ExtractionFailure struct {
	Cause string
	Err   error
}

func (e *ExtractionFailure) Error() string {
	return e.Cause
}

func (e *ExtractionFailure) Unwrap() error { return e.Err }

// Oracle proposes loosely-typed transaction rows for a statement.
type Oracle interface {
	Extract(ctx context.Context, in models.StatementInput, bank models.Bank) ([]models.RawRow, error)
}

type Gateway struct {
	oracle   Oracle
	profiles map[models.Bank]models.BankProfile
	stats    *prom.Stats
}

func New(oracle Oracle, profiles map[models.Bank]models.BankProfile, stats *prom.Stats) *Gateway {
	if profiles == nil {
		profiles = models.DefaultProfiles()
	}
	return &Gateway{oracle: oracle, profiles: profiles, stats: stats}
}

// Extract returns the validated transactions of a statement in oracle
// order. It never retries and never returns a partial list.
func (g *Gateway) Extract(ctx context.Context, in models.StatementInput, bank models.Bank) ([]models.Transaction, error) {
	if err := checkInput(in); err != nil {
		return nil, err
	}
	if _, err := models.ParseBank(string(bank)); err != nil {
		return nil, err
	}

	start := time.Now()
	rows, err := g.oracle.Extract(ctx, in, bank)
	if err != nil {
		// A cancelled extraction was abandoned by its caller, which
		// accounts for it.
		if ctx.Err() == nil {
			g.stats.Extraction(prom.ResultFailure, 0)
			log.Warn().Err(err).Str("bank", string(bank)).Msg("extraction oracle call failed")
		} else {
			log.Debug().Err(err).Str("bank", string(bank)).Msg("extraction cancelled")
		}
		return nil, &ExtractionFailure{Cause: fmt.Sprintf("Extraction failed: %v", err), Err: err}
	}
	if len(rows) == 0 {
		g.stats.Extraction(prom.ResultFailure, 0)
		return nil, &ExtractionFailure{Cause: "No transactions were found in the statement."}
	}

	txns, err := normalize.Validate(rows, g.profiles[bank].Format)
	if err != nil {
		g.stats.Extraction(prom.ResultMalformed, 0)
		log.Warn().Err(err).Str("bank", string(bank)).Int("rows", len(rows)).Msg("oracle returned malformed rows")
		return nil, err
	}
	if len(txns) == 0 {
		g.stats.Extraction(prom.ResultFailure, 0)
		return nil, &ExtractionFailure{Cause: "No transactions were found in the statement."}
	}

	g.stats.Extraction(prom.ResultSuccess, len(txns))
	log.Info().
		Str("bank", string(bank)).
		Int("transactions", len(txns)).
		Dur("took", time.Since(start)).
		Msg("statement extracted")
	return txns, nil
}

func checkInput(in models.StatementInput) error {
	hasText := strings.TrimSpace(in.Text) != ""
	hasPDF := len(in.PDF) > 0
	switch {
	case !hasText && !hasPDF:
		return ErrInputMissing
	case hasText && hasPDF:
		return fmt.Errorf("%w: supply either text or a document, not both", ErrInputMissing)
	}
	return nil
}

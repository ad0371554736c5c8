package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog/log"

	"github.com/insightdelivered/bank-statement-extractor/internal/extractor"
	"github.com/insightdelivered/bank-statement-extractor/internal/models"
	"github.com/insightdelivered/bank-statement-extractor/internal/session"
	"github.com/insightdelivered/bank-statement-extractor/internal/writer"
)

type ConvertCmd struct {
	Input  string `arg:"" help:"Statement to convert: a PDF, a text file, or - to read text from stdin"`
	Bank   string `short:"b" help:"Bank that issued the statement" default:"Banco Popular"`
	Entity string `short:"e" help:"Entity written to every row (GVAL or VEDU)" default:"GVAL"`
	Output string `short:"o" help:"Output CSV path (defaults to extracto_<bank>_<date>.csv)"`
}

func (c *ConvertCmd) Run(g *Globals) error {
	bank, err := models.ParseBank(c.Bank)
	if err != nil {
		return err
	}
	entity, err := models.ParseEntity(c.Entity)
	if err != nil {
		return err
	}
	in, err := readStatement(c.Input)
	if err != nil {
		return err
	}

	gw, err := g.gateway(nil)
	if err != nil {
		return err
	}

	ctx := context.Background()
	if g.OracleTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.OracleTimeout)
		defer cancel()
	}

	start := time.Now()
	txns, err := gw.Extract(ctx, in, bank)
	if err != nil {
		return err
	}

	out := c.Output
	if out == "" {
		out = writer.Filename(bank, time.Now())
	}
	if err := writer.WriteToFile(out, txns, entity); err != nil {
		return err
	}

	log.Info().
		Str("bank", string(bank)).
		Str("entity", string(entity)).
		Int("rows", len(txns)).
		Dur("took", time.Since(start)).
		Str("output", out).
		Msg("statement converted")
	return nil
}

// readStatement loads the input as a PDF when it carries the PDF signature
// and as pasted text when it is valid UTF-8 text. Other binaries such as
// images or spreadsheets are rejected.
func readStatement(path string) (models.StatementInput, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return models.StatementInput{}, fmt.Errorf("reading statement: %w", err)
	}

	if extractor.IsPDF(data) {
		return models.StatementInput{PDF: data, FileName: path}, nil
	}
	if !utf8.Valid(data) || !strings.HasPrefix(http.DetectContentType(data), "text/plain") {
		return models.StatementInput{}, fmt.Errorf("%s: %w", path, session.ErrUnsupportedDocument)
	}
	return models.StatementInput{Text: string(data)}, nil
}

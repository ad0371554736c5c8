// Package session holds the state of one user's work: the current bank and
// entity selection, the statement input, the last extracted transactions,
// and the loading/error flags. State changes only through the transition
// methods below.
package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/insightdelivered/bank-statement-extractor/internal/extractor"
	"github.com/insightdelivered/bank-statement-extractor/internal/models"
	"github.com/insightdelivered/bank-statement-extractor/internal/prom"
	"github.com/insightdelivered/bank-statement-extractor/internal/writer"
)

var (
	ErrUnsupportedDocument  = errors.New("only PDF documents are supported")
	ErrTextMissing          = errors.New("statement text is missing")
	ErrFileMissing          = errors.New("statement file is missing")
	ErrExtractionInProgress = errors.New("an extraction is in progress")
	ErrSuperseded           = errors.New("extraction was superseded by a newer request")
	ErrUnknownInputMode     = errors.New("unknown input mode")
)

// Extractor turns a statement into validated transactions.
type Extractor interface {
	Extract(ctx context.Context, in models.StatementInput, bank models.Bank) ([]models.Transaction, error)
}

// Document is an uploaded statement file.
type Document struct {
	Name string
	Data []byte
}

// Options tune a session. Zero values are valid.
type Options struct {
	// Timeout bounds a single extraction. Zero means no limit.
	Timeout time.Duration
	Stats   *prom.Stats
	Now     func() time.Time
}

type Session struct {
	ID string

	mu        sync.Mutex
	extractor Extractor
	opts      Options

	bank         models.Bank
	entity       models.Entity
	mode         models.InputMode
	text         string
	file         *Document
	transactions []models.Transaction
	loading      bool
	err          error

	seq       uint64
	cancel    context.CancelFunc
	updatedAt time.Time
}

// State is a read-only snapshot of a session.
type State struct {
	ID           string               `json:"id"`
	Bank         models.Bank          `json:"bank"`
	Entity       models.Entity        `json:"entity"`
	Mode         models.InputMode     `json:"mode"`
	Text         string               `json:"text,omitempty"`
	FileName     string               `json:"fileName,omitempty"`
	Transactions []models.Transaction `json:"transactions"`
	Loading      bool                 `json:"loading"`
	Error        string               `json:"error,omitempty"`
	CanProcess   bool                 `json:"canProcess"`
	CanExport    bool                 `json:"canExport"`
	UpdatedAt    time.Time            `json:"updatedAt"`
}

// Ticket identifies one extraction started by Begin.
type Ticket struct {
	Seq   uint64
	Input models.StatementInput
	Bank  models.Bank
	ctx   context.Context
}

// Context is cancelled when the extraction is superseded, finished, or
// times out.
func (t Ticket) Context() context.Context { return t.ctx }

func New(id string, ex Extractor, opts Options) *Session {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Session{
		ID:        id,
		extractor: ex,
		opts:      opts,
		bank:      models.DefaultBank,
		entity:    models.DefaultEntity,
		mode:      models.InputText,
		updatedAt: opts.Now(),
	}
}

func (s *Session) SetBank(bank models.Bank) error {
	b, err := models.ParseBank(string(bank))
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bank = b
	s.touch()
	return nil
}

func (s *Session) SetEntity(entity models.Entity) error {
	e, err := models.ParseEntity(string(entity))
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entity = e
	s.touch()
	return nil
}

// SetInputMode switches between pasted text and file upload. Switching
// clears the other mode's input, the error, and the transactions, and
// supersedes any extraction in flight.
func (s *Session) SetInputMode(mode models.InputMode) error {
	mode, err := ParseInputMode(string(mode))
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.mode == mode {
		return nil
	}

	s.mode = mode
	if mode == models.InputText {
		s.file = nil
	} else {
		s.text = ""
	}
	s.err = nil
	s.transactions = nil
	s.supersede()
	s.touch()
	return nil
}

// ParseInputMode validates an input mode name.
func ParseInputMode(s string) (models.InputMode, error) {
	switch m := models.InputMode(s); m {
	case models.InputText, models.InputFile:
		return m, nil
	}
	return "", ErrUnknownInputMode
}

func (s *Session) SetText(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.text = text
	s.touch()
}

// SetFile accepts a PDF statement. Anything else is rejected, the current
// file is dropped, and the session error is set.
func (s *Session) SetFile(doc Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touch()

	if !extractor.IsPDF(doc.Data) {
		s.file = nil
		s.err = ErrUnsupportedDocument
		return ErrUnsupportedDocument
	}
	s.file = &doc
	s.text = ""
	s.err = nil
	return nil
}

func (s *Session) ClearFile() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.file = nil
	s.touch()
}

// Begin starts an extraction of the current input. Any extraction still in
// flight is superseded and its context cancelled. The previous transactions
// and error are cleared.
func (s *Session) Begin(parent context.Context) (Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touch()

	in, err := s.input()
	if err != nil {
		s.err = err
		return Ticket{}, err
	}

	s.supersede()
	s.seq++
	s.loading = true
	s.err = nil
	s.transactions = nil

	var ctx context.Context
	if s.opts.Timeout > 0 {
		ctx, s.cancel = context.WithTimeout(parent, s.opts.Timeout)
	} else {
		ctx, s.cancel = context.WithCancel(parent)
	}

	return Ticket{Seq: s.seq, Input: in, Bank: s.bank, ctx: ctx}, nil
}

// Complete stores the result of the extraction identified by seq. Results
// of superseded extractions are discarded and false is returned.
func (s *Session) Complete(seq uint64, txns []models.Transaction) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.current(seq) {
		return false
	}
	s.finish()
	s.transactions = txns
	return true
}

// Fail records the error of the extraction identified by seq. Errors of
// superseded extractions are discarded and false is returned.
func (s *Session) Fail(seq uint64, err error) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.current(seq) {
		return false
	}
	s.finish()
	s.err = err
	return true
}

// Process runs a full extraction of the current input: Begin, the
// extractor call without holding the lock, then Complete or Fail.
func (s *Session) Process(ctx context.Context) error {
	ticket, err := s.Begin(ctx)
	if err != nil {
		return err
	}

	txns, err := s.extractor.Extract(ticket.Context(), ticket.Input, ticket.Bank)
	if err != nil {
		if !s.Fail(ticket.Seq, err) {
			return ErrSuperseded
		}
		return err
	}
	if !s.Complete(ticket.Seq, txns) {
		return ErrSuperseded
	}
	return nil
}

// Export encodes the current transactions for the selected entity and
// returns the download name and bytes.
func (s *Session) Export() (string, []byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touch()

	if s.loading {
		return "", nil, ErrExtractionInProgress
	}
	data, err := writer.Encode(s.transactions, s.entity)
	if err != nil {
		s.err = err
		return "", nil, err
	}

	s.opts.Stats.Export(string(s.entity), len(s.transactions))
	log.Info().
		Str("session", s.ID).
		Str("entity", string(s.entity)).
		Int("rows", len(s.transactions)).
		Msg("transactions exported")
	return writer.Filename(s.bank, s.opts.Now()), data, nil
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := State{
		ID:           s.ID,
		Bank:         s.bank,
		Entity:       s.entity,
		Mode:         s.mode,
		Text:         s.text,
		Transactions: append([]models.Transaction{}, s.transactions...),
		Loading:      s.loading,
		CanExport:    len(s.transactions) > 0 && !s.loading,
		UpdatedAt:    s.updatedAt,
	}
	if s.file != nil {
		st.FileName = s.file.Name
	}
	if s.err != nil {
		st.Error = Message(s.err)
	}
	_, inputErr := s.input()
	st.CanProcess = !s.loading && inputErr == nil
	return st
}

// Close supersedes any extraction in flight.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.supersede()
}

func (s *Session) idleSince() (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updatedAt, s.loading
}

// input returns the statement for the current mode. Callers hold s.mu.
func (s *Session) input() (models.StatementInput, error) {
	if s.mode == models.InputFile {
		if s.file == nil {
			return models.StatementInput{}, ErrFileMissing
		}
		return models.StatementInput{PDF: s.file.Data, FileName: s.file.Name}, nil
	}
	if isBlank(s.text) {
		return models.StatementInput{}, ErrTextMissing
	}
	return models.StatementInput{Text: trimmed(s.text)}, nil
}

// supersede abandons the extraction in flight, if any. Callers hold s.mu.
func (s *Session) supersede() {
	if !s.loading {
		return
	}
	s.seq++
	s.loading = false
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.opts.Stats.Extraction(prom.ResultSuperseded, 0)
	log.Debug().Str("session", s.ID).Msg("in-flight extraction superseded")
}

// current reports whether seq is the live extraction. Callers hold s.mu.
func (s *Session) current(seq uint64) bool {
	if seq != s.seq || !s.loading {
		log.Debug().Str("session", s.ID).Uint64("seq", seq).Msg("discarding stale extraction result")
		return false
	}
	return true
}

// finish ends the live extraction. Callers hold s.mu.
func (s *Session) finish() {
	s.loading = false
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.touch()
}

func (s *Session) touch() {
	s.updatedAt = s.opts.Now()
}

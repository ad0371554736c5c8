package session

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/insightdelivered/bank-statement-extractor/internal/gateway"
	"github.com/insightdelivered/bank-statement-extractor/internal/models"
	"github.com/insightdelivered/bank-statement-extractor/internal/writer"
)

var samplePDF = []byte("%PDF-1.4\n1 0 obj\n<<>>\nendobj\n")

var sampleTxns = []models.Transaction{
	{Date: "01/01/2024", Detail: "ATM W/D", Movement: -50000, Balance: 150000},
}

type stubExtractor struct {
	txns  []models.Transaction
	err   error
	calls int
	in    models.StatementInput
	bank  models.Bank
}

func (f *stubExtractor) Extract(_ context.Context, in models.StatementInput, bank models.Bank) ([]models.Transaction, error) {
	f.calls++
	f.in = in
	f.bank = bank
	return f.txns, f.err
}

type call struct {
	ctx   context.Context
	in    models.StatementInput
	reply chan []models.Transaction
}

// blockingExtractor hands every call to the test and waits for its reply.
type blockingExtractor struct {
	calls chan *call
}

func (b *blockingExtractor) Extract(ctx context.Context, in models.StatementInput, _ models.Bank) ([]models.Transaction, error) {
	c := &call{ctx: ctx, in: in, reply: make(chan []models.Transaction)}
	b.calls <- c
	return <-c.reply, nil
}

func fixedClock() func() time.Time {
	return func() time.Time { return time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC) }
}

func TestNewDefaults(t *testing.T) {
	st := New("s1", &stubExtractor{}, Options{}).State()

	assert.Equal(t, "s1", st.ID)
	assert.Equal(t, models.DefaultBank, st.Bank)
	assert.Equal(t, models.DefaultEntity, st.Entity)
	assert.Equal(t, models.InputText, st.Mode)
	assert.Empty(t, st.Transactions)
	assert.False(t, st.Loading)
	assert.False(t, st.CanProcess)
	assert.False(t, st.CanExport)
}

func TestSetBankAndEntity(t *testing.T) {
	s := New("s1", &stubExtractor{}, Options{})

	require.NoError(t, s.SetBank("bancolombia"))
	require.NoError(t, s.SetEntity("vedu"))
	assert.Equal(t, models.BankBancolombia, s.State().Bank)
	assert.Equal(t, models.EntityVEDU, s.State().Entity)

	assert.ErrorIs(t, s.SetBank("Banco Imaginario"), models.ErrUnknownBank)
	assert.ErrorIs(t, s.SetEntity("XYZ"), models.ErrUnknownEntity)
	assert.Equal(t, models.BankBancolombia, s.State().Bank)
	assert.Equal(t, models.EntityVEDU, s.State().Entity)
}

func TestProcess(t *testing.T) {
	ex := &stubExtractor{txns: sampleTxns}
	s := New("s1", ex, Options{})
	require.NoError(t, s.SetBank(models.BankBBVA))
	s.SetText("  statement text  ")
	assert.True(t, s.State().CanProcess)

	require.NoError(t, s.Process(context.Background()))

	assert.Equal(t, 1, ex.calls)
	assert.Equal(t, "statement text", ex.in.Text)
	assert.Equal(t, models.BankBBVA, ex.bank)

	st := s.State()
	assert.Equal(t, sampleTxns, st.Transactions)
	assert.False(t, st.Loading)
	assert.Empty(t, st.Error)
	assert.True(t, st.CanExport)
}

func TestProcessFile(t *testing.T) {
	ex := &stubExtractor{txns: sampleTxns}
	s := New("s1", ex, Options{})
	require.NoError(t, s.SetInputMode(models.InputFile))
	require.NoError(t, s.SetFile(Document{Name: "march.pdf", Data: samplePDF}))

	require.NoError(t, s.Process(context.Background()))
	assert.Equal(t, samplePDF, ex.in.PDF)
	assert.Equal(t, "march.pdf", ex.in.FileName)
	assert.Empty(t, ex.in.Text)
}

func TestProcessMissingInput(t *testing.T) {
	tests := map[string]struct {
		mode    models.InputMode
		wantErr error
		wantMsg string
	}{
		"text": {models.InputText, ErrTextMissing, "Please paste the statement text."},
		"file": {models.InputFile, ErrFileMissing, "Please upload a file."},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			ex := &stubExtractor{}
			s := New("s1", ex, Options{})
			require.NoError(t, s.SetInputMode(tc.mode))
			s.SetText("   ")

			err := s.Process(context.Background())
			assert.ErrorIs(t, err, tc.wantErr)
			assert.Zero(t, ex.calls)
			assert.Equal(t, tc.wantMsg, s.State().Error)
			assert.False(t, s.State().Loading)
		})
	}
}

func TestProcessFailureKeepsSessionUsable(t *testing.T) {
	ex := &stubExtractor{err: &gateway.ExtractionFailure{Cause: "No transactions were found in the statement."}}
	s := New("s1", ex, Options{})
	s.SetText("statement")

	err := s.Process(context.Background())
	var failure *gateway.ExtractionFailure
	require.ErrorAs(t, err, &failure)

	st := s.State()
	assert.Equal(t, "No transactions were found in the statement.", st.Error)
	assert.False(t, st.Loading)
	assert.Empty(t, st.Transactions)
	assert.True(t, st.CanProcess)

	ex.err = nil
	ex.txns = sampleTxns
	require.NoError(t, s.Process(context.Background()))
	assert.Empty(t, s.State().Error)
	assert.Equal(t, sampleTxns, s.State().Transactions)
}

func TestProcessReplacesTransactions(t *testing.T) {
	ex := &stubExtractor{txns: sampleTxns}
	s := New("s1", ex, Options{})
	s.SetText("statement")
	require.NoError(t, s.Process(context.Background()))

	next := []models.Transaction{{Date: "05/01/2024", Detail: "PAGO", Movement: 10, Balance: 20}}
	ex.txns = next
	require.NoError(t, s.Process(context.Background()))
	assert.Equal(t, next, s.State().Transactions)
}

func TestSetFileRejectsNonPDF(t *testing.T) {
	s := New("s1", &stubExtractor{}, Options{})
	require.NoError(t, s.SetInputMode(models.InputFile))
	require.NoError(t, s.SetFile(Document{Name: "a.pdf", Data: samplePDF}))

	err := s.SetFile(Document{Name: "photo.png", Data: []byte("\x89PNG\r\n\x1a\n....")})
	assert.ErrorIs(t, err, ErrUnsupportedDocument)

	st := s.State()
	assert.Empty(t, st.FileName)
	assert.Equal(t, "Please upload a PDF file.", st.Error)
	assert.False(t, st.CanProcess)
}

func TestSetInputModeClearsState(t *testing.T) {
	ex := &stubExtractor{txns: sampleTxns}
	s := New("s1", ex, Options{})
	s.SetText("statement")
	require.NoError(t, s.Process(context.Background()))

	require.NoError(t, s.SetInputMode(models.InputFile))
	st := s.State()
	assert.Equal(t, models.InputFile, st.Mode)
	assert.Empty(t, st.Text)
	assert.Empty(t, st.Transactions)
	assert.Empty(t, st.Error)

	require.NoError(t, s.SetFile(Document{Name: "a.pdf", Data: samplePDF}))
	require.NoError(t, s.SetInputMode(models.InputText))
	assert.Empty(t, s.State().FileName)

	assert.ErrorIs(t, s.SetInputMode("fax"), ErrUnknownInputMode)
}

func TestSetInputModeSameModeKeepsState(t *testing.T) {
	s := New("s1", &stubExtractor{txns: sampleTxns}, Options{})
	s.SetText("statement")
	require.NoError(t, s.Process(context.Background()))

	require.NoError(t, s.SetInputMode(models.InputText))
	assert.Equal(t, "statement", s.State().Text)
	assert.Equal(t, sampleTxns, s.State().Transactions)
}

func TestStaleResultsAreDiscarded(t *testing.T) {
	s := New("s1", &stubExtractor{}, Options{})
	s.SetText("statement")

	first, err := s.Begin(context.Background())
	require.NoError(t, err)
	second, err := s.Begin(context.Background())
	require.NoError(t, err)
	assert.Greater(t, second.Seq, first.Seq)
	assert.ErrorIs(t, first.Context().Err(), context.Canceled)

	assert.False(t, s.Complete(first.Seq, sampleTxns))
	assert.False(t, s.Fail(first.Seq, errors.New("late")))
	assert.True(t, s.State().Loading)

	assert.True(t, s.Complete(second.Seq, nil))
	assert.False(t, s.State().Loading)
	assert.Empty(t, s.State().Error)
	assert.False(t, s.Complete(second.Seq, sampleTxns))
	assert.Empty(t, s.State().Transactions)
}

func TestConcurrentProcessSupersedes(t *testing.T) {
	ex := &blockingExtractor{calls: make(chan *call)}
	s := New("s1", ex, Options{})

	s.SetText("first")
	errFirst := make(chan error, 1)
	go func() { errFirst <- s.Process(context.Background()) }()
	first := <-ex.calls
	assert.True(t, s.State().Loading)

	s.SetText("second")
	errSecond := make(chan error, 1)
	go func() { errSecond <- s.Process(context.Background()) }()
	second := <-ex.calls

	assert.Equal(t, "first", first.in.Text)
	assert.Equal(t, "second", second.in.Text)
	assert.ErrorIs(t, first.ctx.Err(), context.Canceled)
	assert.NoError(t, second.ctx.Err())

	want := []models.Transaction{{Date: "02/01/2024", Detail: "SECOND", Movement: 2, Balance: 2}}
	second.reply <- want
	require.NoError(t, <-errSecond)

	first.reply <- sampleTxns
	assert.ErrorIs(t, <-errFirst, ErrSuperseded)

	st := s.State()
	assert.Equal(t, want, st.Transactions)
	assert.False(t, st.Loading)
}

func TestModeSwitchSupersedesInFlight(t *testing.T) {
	ex := &blockingExtractor{calls: make(chan *call)}
	s := New("s1", ex, Options{})
	s.SetText("statement")

	errc := make(chan error, 1)
	go func() { errc <- s.Process(context.Background()) }()
	c := <-ex.calls

	require.NoError(t, s.SetInputMode(models.InputFile))
	assert.ErrorIs(t, c.ctx.Err(), context.Canceled)
	assert.False(t, s.State().Loading)

	c.reply <- sampleTxns
	assert.ErrorIs(t, <-errc, ErrSuperseded)
	assert.Empty(t, s.State().Transactions)
}

func TestExtractionTimeout(t *testing.T) {
	s := New("s1", &stubExtractor{}, Options{Timeout: time.Millisecond})
	s.SetText("statement")

	ticket, err := s.Begin(context.Background())
	require.NoError(t, err)
	<-ticket.Context().Done()
	assert.ErrorIs(t, ticket.Context().Err(), context.DeadlineExceeded)
}

func TestExport(t *testing.T) {
	s := New("s1", &stubExtractor{txns: sampleTxns}, Options{Now: fixedClock()})
	require.NoError(t, s.SetBank(models.BankPopular))
	s.SetText("statement")
	require.NoError(t, s.Process(context.Background()))

	name, data, err := s.Export()
	require.NoError(t, err)
	assert.Equal(t, "extracto_Banco_Popular_2024-03-15.csv", name)
	assert.True(t, strings.HasPrefix(string(data), "\ufeff"+writer.Header))
	assert.Contains(t, string(data), `01/01/2024|"ATM W/D"|-50000,00|150000,00|GVAL`)

	require.NoError(t, s.SetEntity(models.EntityVEDU))
	_, data, err = s.Export()
	require.NoError(t, err)
	assert.Contains(t, string(data), "|VEDU")
}

func TestExportEmpty(t *testing.T) {
	s := New("s1", &stubExtractor{}, Options{})

	_, data, err := s.Export()
	assert.ErrorIs(t, err, writer.ErrEmptyExport)
	assert.Nil(t, data)
	assert.Equal(t, "No transactions to export.", s.State().Error)
}

func TestExportDuringExtraction(t *testing.T) {
	s := New("s1", &stubExtractor{}, Options{})
	s.SetText("statement")
	ticket, err := s.Begin(context.Background())
	require.NoError(t, err)

	_, _, err = s.Export()
	assert.ErrorIs(t, err, ErrExtractionInProgress)
	assert.False(t, s.State().CanExport)

	s.Complete(ticket.Seq, sampleTxns)
	_, _, err = s.Export()
	assert.NoError(t, err)
}

func TestStateIsSnapshot(t *testing.T) {
	s := New("s1", &stubExtractor{txns: []models.Transaction{
		{Date: "01/01/2024", Detail: "A", Movement: 1, Balance: 1},
	}}, Options{})
	s.SetText("statement")
	require.NoError(t, s.Process(context.Background()))

	st := s.State()
	st.Transactions[0].Detail = "changed"
	assert.Equal(t, "A", s.State().Transactions[0].Detail)
}

func TestParseInputMode(t *testing.T) {
	m, err := ParseInputMode("file")
	require.NoError(t, err)
	assert.Equal(t, models.InputFile, m)

	for _, s := range []string{"", "fax", "FILE"} {
		_, err := ParseInputMode(s)
		assert.ErrorIs(t, err, ErrUnknownInputMode, s)
	}
}

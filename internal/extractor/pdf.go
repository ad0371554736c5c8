// Package extractor reads the text layer of uploaded PDF statements so it
// can be handed to the extraction oracle.
package extractor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"os"
	"os/exec"
	"sort"
	"strings"
	"unicode"

	"github.com/ledongthuc/pdf"
	"github.com/rs/zerolog/log"
)

// PageBreak separates pages in the combined text sent to the oracle.
const PageBreak = "\n--- PAGE BREAK ---\n"

var (
	ErrNotPDF           = errors.New("document is not a PDF")
	ErrUnreadable       = errors.New("no readable text could be extracted from the PDF; it may be scanned or image-based")
	ErrPdftotextMissing = errors.New("pdftotext not available")
)

// IsPDF reports whether data carries the PDF signature.
func IsPDF(data []byte) bool {
	return http.DetectContentType(data) == "application/pdf"
}

// ExtractText returns the text of each page of the PDF in data. The
// ledongthuc/pdf reader is tried first; pdftotext (poppler-utils) is the
// fallback for documents the library cannot decode. Garbage text is never
// returned.
func ExtractText(ctx context.Context, data []byte) ([]string, error) {
	if !IsPDF(data) {
		return nil, ErrNotPDF
	}

	pages, libErr := extractWithLibrary(data)
	if libErr == nil && isReadableText(pages) {
		return pages, nil
	}
	log.Debug().AnErr("libraryErr", libErr).Msg("PDF library produced no readable text, trying pdftotext")

	popplerPages, popplerErr := extractWithPdftotext(ctx, data)
	if popplerErr == nil && isReadableText(popplerPages) {
		return popplerPages, nil
	}
	log.Debug().AnErr("pdftotextErr", popplerErr).Msg("pdftotext produced no readable text")

	if libErr != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreadable, libErr)
	}
	return nil, ErrUnreadable
}

// ExtractTextCombined returns all pages joined with PageBreak.
func ExtractTextCombined(ctx context.Context, data []byte) (string, error) {
	pages, err := ExtractText(ctx, data)
	if err != nil {
		return "", err
	}
	return strings.Join(pages, PageBreak), nil
}

// PageCount returns the number of pages the PDF declares, or 0 when it
// cannot be opened.
func PageCount(data []byte) (n int) {
	defer func() {
		if recover() != nil {
			n = 0
		}
	}()
	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return 0
	}
	return r.NumPage()
}

func extractWithLibrary(data []byte) (pages []string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("PDF library crashed: %v", r)
		}
	}()

	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, err
	}

	numPages := r.NumPage()
	if numPages == 0 {
		return nil, fmt.Errorf("PDF has no pages")
	}

	pages = extractByRow(r, numPages)
	if isReadableText(pages) {
		return pages, nil
	}

	pages = extractByContent(r, numPages)
	if isReadableText(pages) {
		return pages, nil
	}

	plainText := extractByReaderPlainText(r)
	if isReadableText([]string{plainText}) {
		return []string{plainText}, nil
	}

	return pages, nil
}

// extractByRow keeps the library's own row grouping.
func extractByRow(r *pdf.Reader, numPages int) []string {
	var pages []string
	for i := 1; i <= numPages; i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		rows, err := page.GetTextByRow()
		if err != nil {
			continue
		}
		var lines []string
		for _, row := range rows {
			parts := make([]string, 0, len(row.Content))
			for _, word := range row.Content {
				parts = append(parts, word.S)
			}
			if line := strings.TrimSpace(strings.Join(parts, " ")); line != "" {
				lines = append(lines, line)
			}
		}
		pages = append(pages, strings.Join(lines, "\n"))
	}
	return pages
}

// extractByContent rebuilds rows from raw text objects: pieces are grouped
// by rounded Y (top to bottom) and ordered by X, with wide gaps kept as
// column breaks.
func extractByContent(r *pdf.Reader, numPages int) []string {
	type piece struct {
		x float64
		s string
	}

	var pages []string
	for i := 1; i <= numPages; i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		content := page.Content()
		if len(content.Text) == 0 {
			continue
		}

		rowMap := make(map[int][]piece)
		for _, t := range content.Text {
			if strings.TrimSpace(t.S) == "" {
				continue
			}
			y := int(math.Round(t.Y))
			rowMap[y] = append(rowMap[y], piece{x: t.X, s: t.S})
		}

		ys := make([]int, 0, len(rowMap))
		for y := range rowMap {
			ys = append(ys, y)
		}
		sort.Sort(sort.Reverse(sort.IntSlice(ys)))

		var lines []string
		for _, y := range ys {
			row := rowMap[y]
			sort.Slice(row, func(a, b int) bool { return row[a].x < row[b].x })

			var sb strings.Builder
			for j, p := range row {
				if j > 0 && p.x-row[j-1].x > 15 {
					sb.WriteString("  ")
				}
				sb.WriteString(p.s)
			}
			if line := strings.TrimSpace(sb.String()); line != "" {
				lines = append(lines, line)
			}
		}
		pages = append(pages, strings.Join(lines, "\n"))
	}
	return pages
}

func extractByReaderPlainText(r *pdf.Reader) string {
	reader, err := r.GetPlainText()
	if err != nil {
		return ""
	}
	data, err := io.ReadAll(reader)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

// extractWithPdftotext shells out to poppler's pdftotext with layout
// preserved. Pages come back separated by form feeds.
func extractWithPdftotext(ctx context.Context, data []byte) ([]string, error) {
	bin, err := exec.LookPath("pdftotext")
	if err != nil {
		return nil, ErrPdftotextMissing
	}

	tmp, err := os.CreateTemp("", "statement-*.pdf")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return nil, fmt.Errorf("failed to save PDF: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return nil, err
	}

	out, err := exec.CommandContext(ctx, bin, "-layout", tmp.Name(), "-").Output()
	if err != nil {
		return nil, fmt.Errorf("pdftotext failed: %w", err)
	}

	var pages []string
	for _, page := range strings.Split(string(out), "\f") {
		if page = strings.TrimSpace(page); page != "" {
			pages = append(pages, page)
		}
	}
	if len(pages) == 0 {
		return nil, fmt.Errorf("pdftotext produced no output")
	}
	return pages, nil
}

// statementWords appear in virtually every statement. Text with none of
// them is almost certainly undecoded font garbage.
var statementWords = []string{
	"banco", "bank", "cuenta", "account", "saldo", "balance", "fecha", "date",
	"extracto", "statement", "movimiento", "valor", "total", "debito",
	"débito", "credito", "crédito", "retiro", "consignacion", "consignación",
	"transferencia", "pago", "periodo", "período",
}

// textQuality returns the share of runes that are letters (including
// accented Latin), digits, whitespace or common punctuation.
func textQuality(pages []string) float64 {
	total, readable := 0, 0
	for _, page := range pages {
		for _, r := range page {
			total++
			if r <= unicode.MaxLatin1 && (unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsSpace(r) || unicode.IsPunct(r) || unicode.IsSymbol(r)) {
				readable++
			}
		}
	}
	if total == 0 {
		return 0
	}
	return float64(readable) / float64(total)
}

func containsStatementWords(pages []string) bool {
	combined := strings.ToLower(strings.Join(pages, " "))
	for _, word := range statementWords {
		if strings.Contains(combined, word) {
			return true
		}
	}
	return false
}

// isReadableText requires more than 50 characters, over 60% readable runes
// and at least one statement word.
func isReadableText(pages []string) bool {
	if totalTextLen(pages) <= 50 {
		return false
	}
	if textQuality(pages) <= 0.6 {
		return false
	}
	return containsStatementWords(pages)
}

func totalTextLen(pages []string) int {
	n := 0
	for _, p := range pages {
		n += len(strings.TrimSpace(p))
	}
	return n
}

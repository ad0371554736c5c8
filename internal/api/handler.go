package api

import (
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"

	"github.com/insightdelivered/bank-statement-extractor/internal/extractor"
	"github.com/insightdelivered/bank-statement-extractor/internal/models"
	"github.com/insightdelivered/bank-statement-extractor/internal/session"
	"github.com/insightdelivered/bank-statement-extractor/internal/writer"
)

// Converter turns a statement into validated transactions.
type Converter interface {
	Extract(ctx context.Context, in models.StatementInput, bank models.Bank) ([]models.Transaction, error)
}

// ConvertResponse is the JSON response from the /api/convert endpoint.
type ConvertResponse struct {
	Success      bool                 `json:"success"`
	Error        string               `json:"error,omitempty"`
	Bank         models.Bank          `json:"bank,omitempty"`
	Entity       models.Entity        `json:"entity,omitempty"`
	Transactions []models.Transaction `json:"transactions"`
	CSV          string               `json:"csv,omitempty"`
	Filename     string               `json:"filename,omitempty"`
	Count        int                  `json:"count"`
	Version      string               `json:"version,omitempty"`
}

// OptionsResponse lists the selectable banks and entities.
type OptionsResponse struct {
	Banks         []models.Bank   `json:"banks"`
	Entities      []models.Entity `json:"entities"`
	DefaultBank   models.Bank     `json:"defaultBank"`
	DefaultEntity models.Entity   `json:"defaultEntity"`
}

// SessionUpdate is the body of PATCH /api/sessions/:id. Absent fields are
// left unchanged. Mode is applied first since switching mode clears input.
type SessionUpdate struct {
	Bank   *string `json:"bank"`
	Entity *string `json:"entity"`
	Mode   *string `json:"mode"`
	Text   *string `json:"text"`
}

// Handler holds the HTTP handlers for the API.
type Handler struct {
	Converter Converter
	Sessions  *session.Store
	Version   string

	// Timeout bounds a one-shot conversion. Zero means no limit.
	Timeout time.Duration
	Now     func() time.Time
}

func (h *Handler) now() time.Time {
	if h.Now != nil {
		return h.Now()
	}
	return time.Now()
}

// RegisterRoutes sets up the API routes on app.
func (h *Handler) RegisterRoutes(app *fiber.App) {
	api := app.Group("/api")
	api.Get("/health", h.HandleHealth)
	api.Get("/options", h.HandleOptions)
	api.Post("/convert", h.HandleConvert)

	sessions := api.Group("/sessions")
	sessions.Post("/", h.HandleCreateSession)
	sessions.Get("/:id", h.HandleGetSession)
	sessions.Patch("/:id", h.HandleUpdateSession)
	sessions.Delete("/:id", h.HandleDeleteSession)
	sessions.Put("/:id/file", h.HandleSetFile)
	sessions.Delete("/:id/file", h.HandleClearFile)
	sessions.Post("/:id/extract", h.HandleExtract)
	sessions.Get("/:id/export", h.HandleExport)
}

func (h *Handler) HandleHealth(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":  "ok",
		"version": h.Version,
		"engine":  "fiber",
	})
}

func (h *Handler) HandleOptions(c *fiber.Ctx) error {
	return c.JSON(OptionsResponse{
		Banks:         models.Banks,
		Entities:      models.Entities,
		DefaultBank:   models.DefaultBank,
		DefaultEntity: models.DefaultEntity,
	})
}

// HandleConvert extracts a statement in one request. The statement comes
// from the multipart field "file" or the form field "text". With
// format=csv the CSV file is returned as an attachment.
func (h *Handler) HandleConvert(c *fiber.Ctx) error {
	bank, err := models.ParseBank(formOr(c, "bank", string(models.DefaultBank)))
	if err != nil {
		return err
	}
	entity, err := models.ParseEntity(formOr(c, "entity", string(models.DefaultEntity)))
	if err != nil {
		return err
	}

	in := models.StatementInput{Text: c.FormValue("text")}
	if fh, err := c.FormFile("file"); err == nil {
		doc, err := readUpload(fh)
		if err != nil {
			return err
		}
		if !extractor.IsPDF(doc.Data) {
			log.Debug().Str("file", doc.Name).Msg("rejected non-PDF upload")
			return session.ErrUnsupportedDocument
		}
		in.PDF, in.FileName = doc.Data, doc.Name
	}

	ctx := c.UserContext()
	if h.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.Timeout)
		defer cancel()
	}
	txns, err := h.Converter.Extract(ctx, in, bank)
	if err != nil {
		return err
	}
	data, err := writer.Encode(txns, entity)
	if err != nil {
		return err
	}
	filename := writer.Filename(bank, h.now())

	if c.Query("format") == "csv" || c.FormValue("format") == "csv" {
		return sendCSV(c, filename, data)
	}
	return c.JSON(ConvertResponse{
		Success:      true,
		Bank:         bank,
		Entity:       entity,
		Transactions: txns,
		CSV:          string(data),
		Filename:     filename,
		Count:        len(txns),
		Version:      h.Version,
	})
}

func (h *Handler) HandleCreateSession(c *fiber.Ctx) error {
	s := h.Sessions.Create()
	return c.Status(fiber.StatusCreated).JSON(s.State())
}

func (h *Handler) HandleGetSession(c *fiber.Ctx) error {
	s, err := h.Sessions.Get(c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(s.State())
}

func (h *Handler) HandleUpdateSession(c *fiber.Ctx) error {
	s, err := h.Sessions.Get(c.Params("id"))
	if err != nil {
		return err
	}
	var upd SessionUpdate
	if err := c.BodyParser(&upd); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, fmt.Sprintf("Invalid request body: %v", err))
	}

	// Validate every field before applying any, so a rejected update
	// leaves the session untouched.
	var (
		mode   models.InputMode
		bank   models.Bank
		entity models.Entity
	)
	if upd.Mode != nil {
		if mode, err = session.ParseInputMode(*upd.Mode); err != nil {
			return err
		}
	}
	if upd.Bank != nil {
		if bank, err = models.ParseBank(*upd.Bank); err != nil {
			return err
		}
	}
	if upd.Entity != nil {
		if entity, err = models.ParseEntity(*upd.Entity); err != nil {
			return err
		}
	}

	if upd.Mode != nil {
		if err := s.SetInputMode(mode); err != nil {
			return err
		}
	}
	if upd.Bank != nil {
		if err := s.SetBank(bank); err != nil {
			return err
		}
	}
	if upd.Entity != nil {
		if err := s.SetEntity(entity); err != nil {
			return err
		}
	}
	if upd.Text != nil {
		s.SetText(*upd.Text)
	}
	return c.JSON(s.State())
}

func (h *Handler) HandleDeleteSession(c *fiber.Ctx) error {
	if err := h.Sessions.Delete(c.Params("id")); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *Handler) HandleSetFile(c *fiber.Ctx) error {
	s, err := h.Sessions.Get(c.Params("id"))
	if err != nil {
		return err
	}
	fh, err := c.FormFile("file")
	if err != nil {
		return session.ErrFileMissing
	}
	doc, err := readUpload(fh)
	if err != nil {
		return err
	}
	if err := s.SetFile(doc); err != nil {
		return err
	}
	return c.JSON(s.State())
}

func (h *Handler) HandleClearFile(c *fiber.Ctx) error {
	s, err := h.Sessions.Get(c.Params("id"))
	if err != nil {
		return err
	}
	s.ClearFile()
	return c.JSON(s.State())
}

// HandleExtract runs an extraction for the session and returns its state.
// The request blocks until the oracle answers.
func (h *Handler) HandleExtract(c *fiber.Ctx) error {
	s, err := h.Sessions.Get(c.Params("id"))
	if err != nil {
		return err
	}
	if err := s.Process(c.UserContext()); err != nil {
		return err
	}
	return c.JSON(s.State())
}

func (h *Handler) HandleExport(c *fiber.Ctx) error {
	s, err := h.Sessions.Get(c.Params("id"))
	if err != nil {
		return err
	}
	filename, data, err := s.Export()
	if err != nil {
		return err
	}
	return sendCSV(c, filename, data)
}

func sendCSV(c *fiber.Ctx, filename string, data []byte) error {
	c.Attachment(filename)
	c.Set(fiber.HeaderContentType, writer.ContentType)
	return c.Send(data)
}

func readUpload(fh *multipart.FileHeader) (session.Document, error) {
	f, err := fh.Open()
	if err != nil {
		return session.Document{}, fmt.Errorf("opening upload: %w", err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return session.Document{}, fmt.Errorf("reading upload: %w", err)
	}
	return session.Document{Name: fh.Filename, Data: data}, nil
}

func formOr(c *fiber.Ctx, key, def string) string {
	if v := c.FormValue(key); v != "" {
		return v
	}
	return def
}

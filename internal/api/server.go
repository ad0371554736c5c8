package api

import (
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/rs/zerolog/log"

	"github.com/insightdelivered/bank-statement-extractor/internal/extractor"
	"github.com/insightdelivered/bank-statement-extractor/internal/gateway"
	"github.com/insightdelivered/bank-statement-extractor/internal/models"
	"github.com/insightdelivered/bank-statement-extractor/internal/normalize"
	"github.com/insightdelivered/bank-statement-extractor/internal/session"
	"github.com/insightdelivered/bank-statement-extractor/internal/writer"
)

// MaxUploadSize bounds request bodies, uploaded PDFs included.
const MaxUploadSize = 32 << 20

// Options are the optional net/http handlers mounted next to the API.
type Options struct {
	MetricsPath string
	Metrics     http.Handler
	Landing     http.Handler
}

// NewApp builds the fiber app serving h.
func NewApp(h *Handler, opts Options) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:               "bank-statement-extractor",
		BodyLimit:             MaxUploadSize,
		DisableStartupMessage: true,
		ErrorHandler:          ErrorHandler,
	})
	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowMethods: "GET,POST,PATCH,PUT,DELETE,OPTIONS",
		AllowHeaders: "Content-Type",
	}))

	h.RegisterRoutes(app)

	if opts.Metrics != nil {
		path := opts.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		app.Get(path, adaptor.HTTPHandler(opts.Metrics))
	}
	if opts.Landing != nil {
		app.Get("/", adaptor.HTTPHandler(opts.Landing))
	}
	return app
}

// ErrorHandler writes every error as {"success":false,"error":...} with the
// status that matches its kind.
func ErrorHandler(c *fiber.Ctx, err error) error {
	status, msg := StatusFor(err), session.Message(err)

	var fe *fiber.Error
	if errors.As(err, &fe) {
		status, msg = fe.Code, fe.Message
	}

	if status >= fiber.StatusInternalServerError {
		log.Error().Err(err).Str("path", c.Path()).Int("status", status).Msg("request failed")
	} else {
		log.Debug().Err(err).Str("path", c.Path()).Int("status", status).Msg("request rejected")
	}
	return c.Status(status).JSON(ConvertResponse{Success: false, Error: msg})
}

// StatusFor maps an error to an HTTP status code.
func StatusFor(err error) int {
	var (
		failure *gateway.ExtractionFailure
		rowErr  *normalize.MalformedRowError
	)
	switch {
	case errors.Is(err, session.ErrSessionNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, session.ErrUnsupportedDocument):
		return fiber.StatusUnsupportedMediaType
	case errors.Is(err, session.ErrExtractionInProgress), errors.Is(err, session.ErrSuperseded):
		return fiber.StatusConflict
	case errors.Is(err, gateway.ErrInputMissing),
		errors.Is(err, session.ErrTextMissing),
		errors.Is(err, session.ErrFileMissing),
		errors.Is(err, session.ErrUnknownInputMode),
		errors.Is(err, models.ErrUnknownBank),
		errors.Is(err, models.ErrUnknownEntity),
		errors.Is(err, writer.ErrEmptyExport):
		return fiber.StatusBadRequest
	case errors.Is(err, extractor.ErrUnreadable), errors.Is(err, extractor.ErrNotPDF):
		return fiber.StatusUnprocessableEntity
	case errors.As(err, &failure):
		if failure.Err == nil {
			return fiber.StatusUnprocessableEntity
		}
		return fiber.StatusBadGateway
	case errors.As(err, &rowErr):
		return fiber.StatusBadGateway
	}
	return fiber.StatusInternalServerError
}

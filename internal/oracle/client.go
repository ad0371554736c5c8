// Package oracle asks a generative model to propose the transactions of a
// statement. Its answers are untrusted and must be validated by the caller.
package oracle

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sashabaranov/go-openai"

	"github.com/insightdelivered/bank-statement-extractor/internal/extractor"
	"github.com/insightdelivered/bank-statement-extractor/internal/models"
	"github.com/insightdelivered/bank-statement-extractor/internal/prom"
)

const DefaultModel = "gpt-4o-mini"

// ErrNotConfigured is returned by New when no API key is set.
var ErrNotConfigured = errors.New("no oracle API key configured (set OPENAI_API_KEY or AZURE_API_KEY)")

// Error kinds recorded in metrics and CallError.
const (
	KindAuth      = "auth"
	KindQuota     = "quota"
	KindTimeout   = "timeout"
	KindCanceled  = "canceled"
	KindNetwork   = "network"
	KindAPI       = "api"
	KindMalformed = "malformed"
	KindDocument  = "document"
)

// CallError wraps a failed model call with a coarse kind.
type CallError struct {
	Kind string
	Err  error
}

func (e *CallError) Error() string {
	var msg string
	switch e.Kind {
	case KindAuth:
		msg = "oracle authentication failed"
	case KindQuota:
		msg = "oracle quota or rate limit exceeded"
	case KindTimeout:
		msg = "oracle request timed out"
	case KindCanceled:
		msg = "oracle request was cancelled"
	default:
		msg = "oracle request failed"
	}
	return fmt.Sprintf("%s: %v", msg, e.Err)
}

func (e *CallError) Unwrap() error { return e.Err }

type Config struct {
	APIKey        string
	BaseURL       string
	Model         string
	AzureAPIKey   string
	AzureEndpoint string
	MaxTokens     int
	HTTPClient    *http.Client
}

// Client talks to any OpenAI-compatible chat completion endpoint.
type Client struct {
	api       *openai.Client
	model     string
	maxTokens int
	profiles  map[models.Bank]models.BankProfile
	stats     *prom.Stats
}

func New(cfg Config, profiles map[models.Bank]models.BankProfile, stats *prom.Stats) (*Client, error) {
	var oc openai.ClientConfig
	switch {
	case cfg.AzureAPIKey != "":
		if cfg.AzureEndpoint == "" {
			return nil, errors.New("azure endpoint is required if an azure API key is provided")
		}
		oc = openai.DefaultAzureConfig(cfg.AzureAPIKey, cfg.AzureEndpoint)
	case cfg.APIKey != "":
		oc = openai.DefaultConfig(cfg.APIKey)
		if cfg.BaseURL != "" {
			oc.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
		}
	default:
		return nil, ErrNotConfigured
	}
	if cfg.HTTPClient != nil {
		oc.HTTPClient = cfg.HTTPClient
	}

	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}
	if profiles == nil {
		profiles = models.DefaultProfiles()
	}

	return &Client{
		api:       openai.NewClientWithConfig(oc),
		model:     model,
		maxTokens: cfg.MaxTokens,
		profiles:  profiles,
		stats:     stats,
	}, nil
}

// Extract performs exactly one model call for the statement. PDF input is
// reduced to its text layer first.
func (c *Client) Extract(ctx context.Context, in models.StatementInput, bank models.Bank) ([]models.RawRow, error) {
	text := in.Text
	if len(in.PDF) > 0 {
		combined, err := extractor.ExtractTextCombined(ctx, in.PDF)
		if err != nil {
			c.stats.OracleError(KindDocument)
			return nil, fmt.Errorf("reading PDF %q: %w", in.FileName, err)
		}
		log.Debug().
			Str("file", in.FileName).
			Int("pages", extractor.PageCount(in.PDF)).
			Int("chars", len(combined)).
			Msg("statement text extracted")
		text = combined
	}

	req := openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: c.userPrompt(text, bank)},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		MaxTokens: c.maxTokens,
	}

	c.stats.OracleCall()
	start := time.Now()
	resp, err := c.api.CreateChatCompletion(ctx, req)
	if err != nil {
		kind := classify(err)
		c.stats.OracleError(kind)
		return nil, &CallError{Kind: kind, Err: err}
	}
	c.stats.Tokens(resp.Usage.PromptTokens, resp.Usage.CompletionTokens, resp.Usage.TotalTokens)

	log.Debug().
		Str("bank", string(bank)).
		Str("model", c.model).
		Int("promptTokens", resp.Usage.PromptTokens).
		Int("completionTokens", resp.Usage.CompletionTokens).
		Dur("took", time.Since(start)).
		Msg("oracle call finished")

	if len(resp.Choices) == 0 {
		c.stats.OracleError(KindMalformed)
		return nil, fmt.Errorf("%w: no choices", ErrMalformedResponse)
	}

	rows, err := ParseRows(resp.Choices[0].Message.Content)
	if err != nil {
		c.stats.OracleError(KindMalformed)
		return nil, err
	}
	return rows, nil
}

func classify(err error) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return KindTimeout
	case errors.Is(err, context.Canceled):
		return KindCanceled
	}

	status := 0
	var apiErr *openai.APIError
	var reqErr *openai.RequestError
	switch {
	case errors.As(err, &apiErr):
		status = apiErr.HTTPStatusCode
	case errors.As(err, &reqErr):
		status = reqErr.HTTPStatusCode
	default:
		return KindNetwork
	}

	switch status {
	case http.StatusUnauthorized, http.StatusForbidden:
		return KindAuth
	case http.StatusTooManyRequests, http.StatusPaymentRequired:
		return KindQuota
	default:
		return KindAPI
	}
}

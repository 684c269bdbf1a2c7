package gemini

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"google.golang.org/genai"
)

const DefaultModel = "gemini-2.5-flash"

// Replies used when the service is not configured or a call fails.
const (
	SupportUnavailable  = "I'm sorry, I can't connect to the AI service right now. (Missing API Key)"
	SupportFailed       = "Sorry, I'm having trouble thinking right now."
	SupportEmpty        = "I couldn't generate a response."
	AnalysisUnavailable = "Analytics service unavailable."
	AnalysisFailed      = "Failed to analyze data."
	AnalysisEmpty       = "No insights available."
)

var ErrGenerateFailed = errors.New("failed to generate content")

// Client answers support questions and summarizes ride data. It never
// fails: every problem is turned into one of the fixed replies above.
type Client interface {
	SupportResponse(ctx context.Context, prompt, appContext string) string
	AnalyzeRideData(ctx context.Context, summaryJSON string) string
}

type Config struct {
	APIKey string
	Model  string
	// BaseURL overrides the Gemini API endpoint.
	BaseURL string
	Logger  *slog.Logger
}

// HTTPClient implements Client on the Gemini API through the genai SDK.
// Without an API key no SDK client is built and every call returns the
// unavailable reply.
type HTTPClient struct {
	models *genai.Models
	model  string
	logger *slog.Logger
}

func NewHTTPClient(ctx context.Context, cfg Config) (*HTTPClient, error) {
	c := &HTTPClient{
		model:  cfg.Model,
		logger: cfg.Logger,
	}
	if c.model == "" {
		c.model = DefaultModel
	}
	if c.logger == nil {
		c.logger = slog.New(slog.DiscardHandler)
	}
	if cfg.APIKey == "" {
		return c, nil
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		HTTPOptions: genai.HTTPOptions{
			BaseURL: cfg.BaseURL,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	c.models = client.Models
	return c, nil
}

func (c *HTTPClient) SupportResponse(ctx context.Context, prompt, appContext string) string {
	if c.models == nil {
		return SupportUnavailable
	}

	text, err := c.generate(ctx, fmt.Sprintf(`System Context: You are a helpful AI support assistant for GoCab, a ride-sharing app.
Current App Context: %s

User Query: %s

Provide a concise, helpful response. If analyzing data, keep it brief.`, appContext, prompt))
	if err != nil {
		c.logger.ErrorContext(ctx, "support response failed", "error", err)
		return SupportFailed
	}
	if text == "" {
		return SupportEmpty
	}
	return text
}

func (c *HTTPClient) AnalyzeRideData(ctx context.Context, summaryJSON string) string {
	if c.models == nil {
		return AnalysisUnavailable
	}

	text, err := c.generate(ctx, fmt.Sprintf(`Analyze this ride data and provide 3 key insights for the admin dashboard.
Data: %s`, summaryJSON))
	if err != nil {
		c.logger.ErrorContext(ctx, "ride analysis failed", "error", err)
		return AnalysisFailed
	}
	if text == "" {
		return AnalysisEmpty
	}
	return text
}

// generate returns the text of the first candidate, or "" when the model
// produced none.
func (c *HTTPClient) generate(ctx context.Context, prompt string) (string, error) {
	resp, err := c.models.GenerateContent(ctx, c.model, genai.Text(prompt), nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrGenerateFailed, err)
	}
	return strings.TrimSpace(resp.Text()), nil
}

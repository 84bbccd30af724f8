package analysis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/infblueocean/newsmap/internal/feed"
	"github.com/infblueocean/newsmap/internal/otel"
)

const (
	// DefaultBaseURL is the API root; requests go to <base>/chat/completions.
	DefaultBaseURL = "https://api.openai.com/v1"
	DefaultModel   = "gpt-3.5-turbo-0125"
)

// ErrNotConfigured is returned by Classify when no API key is set.
var ErrNotConfigured = errors.New("openai classifier not configured: missing API key")

const systemPrompt = `You are an expert news analyst. Analyze the article you are given and reply with a single valid JSON object using exactly the keys requested by the user. Output the JSON object only, with no text before or after it.`

const userPromptTemplate = `Article data: title: %q, description: %q, link: %q, pubDate: %q.

Produce one JSON object with these keys:
{
  "titre": original article title,
  "categorie": one of flash, economie, environnement, tech, culture, urgent, international (lowercase, no accents; default "flash"),
  "importance": decimal score from 0.0 (low) to 1.0 (high); international impact scores high, "urgent" weighs up, local news scores low,
  "lien": original article link,
  "localisation": main geographic location such as "Paris, France", or "N/A" when not specific,
  "date": publication date as YYYY-MM-DD when possible, otherwise the given date,
  "description": short relevant description, at most 150 characters,
  "imageUrl": the article image URL if provided, otherwise "",
  "latitude": approximate latitude of localisation, or null when localisation is "N/A",
  "longitude": approximate longitude of localisation, or null when localisation is "N/A"
}
Do not invent or rewrite the original title, link or description.`

// OpenAIClassifier classifies articles with an OpenAI-compatible
// chat-completions API in JSON mode.
type OpenAIClassifier struct {
	apiKey string
	model  string
	client *openai.Client
	logger *otel.Logger
}

// NewOpenAIClassifier creates a classifier. Empty model and baseURL select
// the defaults.
func NewOpenAIClassifier(apiKey, model, baseURL string, l *otel.Logger) *OpenAIClassifier {
	if model == "" {
		model = DefaultModel
	}
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	cfg := openai.DefaultConfig(apiKey)
	cfg.BaseURL = strings.TrimRight(baseURL, "/")
	cfg.HTTPClient = &http.Client{
		Timeout: 60 * time.Second,
	}
	return &OpenAIClassifier{
		apiKey: apiKey,
		model:  model,
		client: openai.NewClientWithConfig(cfg),
		logger: l,
	}
}

func (o *OpenAIClassifier) Available() bool {
	return o.apiKey != ""
}

// Classify sends one article and decodes the JSON reply. The result is not
// normalized; Analyze does that.
func (o *OpenAIClassifier) Classify(ctx context.Context, a feed.RawArticle) (Result, error) {
	if !o.Available() {
		return Result{}, ErrNotConfigured
	}
	start := time.Now()

	description := a.Description
	if description == "" {
		description = "No description."
	}
	pubDate := a.PubDate
	if pubDate == "" {
		pubDate = "N/A"
	}

	resp, err := o.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: o.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: fmt.Sprintf(userPromptTemplate, a.Title, description, a.Link, pubDate)},
		},
		Temperature: 0.2,
		TopP:        0.9,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	if err != nil {
		return Result{}, o.fail(a, start, apiError(err))
	}
	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		return Result{}, o.fail(a, start, errors.New("no response content from API"))
	}

	var r Result
	if err := json.Unmarshal([]byte(resp.Choices[0].Message.Content), &r); err != nil {
		return Result{}, o.fail(a, start, fmt.Errorf("invalid classification JSON: %w", err))
	}

	o.logger.Emit(otel.Event{
		Level:  otel.LevelInfo,
		Kind:   otel.KindAnalyzeComplete,
		Comp:   "analysis",
		Source: a.Source,
		URL:    a.Link,
		Dur:    time.Since(start),
		Extra:  map[string]any{"model": resp.Model, "category": r.Category},
	})
	return r, nil
}

// apiError labels non-2xx replies with their status code.
func apiError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return fmt.Errorf("API error (status %d): %s", apiErr.HTTPStatusCode, apiErr.Message)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return fmt.Errorf("API error (status %d): %w", reqErr.HTTPStatusCode, reqErr.Err)
	}
	return fmt.Errorf("request failed: %w", err)
}

func (o *OpenAIClassifier) fail(a feed.RawArticle, start time.Time, err error) error {
	o.logger.Emit(otel.Event{
		Level:  otel.LevelWarn,
		Kind:   otel.KindAnalyzeError,
		Comp:   "analysis",
		Source: a.Source,
		URL:    a.Link,
		Dur:    time.Since(start),
		Err:    err.Error(),
	})
	return err
}

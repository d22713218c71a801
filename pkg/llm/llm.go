// Package llm asks a chat-completion model for the difficult phrases in a text.
package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"
	"go.uber.org/zap"

	"github.com/japaniel/annotator/pkg/annotate"
)

const (
	// DefaultBaseURL is Gemini's OpenAI-compatible endpoint.
	DefaultBaseURL = "https://generativelanguage.googleapis.com/v1beta/openai/"
	// DefaultModel is the model used when none is configured.
	DefaultModel = "gemini-2.0-flash-lite"
)

// ErrNoContent is returned when the model answers without any text.
var ErrNoContent = errors.New("model returned success but no annotations")

// Client requests annotation tuples from a chat-completion endpoint.
type Client struct {
	client   oai.Client
	model    string
	jsonMode bool
	logger   *zap.Logger
}

type config struct {
	baseURL    string
	model      string
	timeout    time.Duration
	maxRetries int
	httpClient *http.Client
	jsonMode   bool
	logger     *zap.Logger
}

// Option configures a Client.
type Option func(*config)

// WithBaseURL overrides the endpoint.
func WithBaseURL(url string) Option {
	return func(c *config) { c.baseURL = url }
}

// WithModel overrides the model name.
func WithModel(model string) Option {
	return func(c *config) { c.model = model }
}

// WithTimeout sets a per-request HTTP timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *config) { c.timeout = d }
}

// WithMaxRetries sets how often failed requests are retried.
func WithMaxRetries(n int) Option {
	return func(c *config) { c.maxRetries = n }
}

// WithHTTPClient sets the HTTP client used for requests.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *config) { c.httpClient = hc }
}

// WithJSONResponse controls whether requests ask for a JSON response
// (response_format json_object). It is on by default. Endpoints that force a
// top-level object in JSON mode need it off, since the answer is an array.
func WithJSONResponse(on bool) Option {
	return func(c *config) { c.jsonMode = on }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *config) { c.logger = l }
}

// New constructs a Client. An empty API key is an error.
func New(apiKey string, opts ...Option) (*Client, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.New("llm: API key not configured")
	}
	cfg := &config{baseURL: DefaultBaseURL, model: DefaultModel, maxRetries: 2, jsonMode: true}
	for _, o := range opts {
		o(cfg)
	}
	if cfg.model == "" {
		return nil, errors.New("llm: model must not be empty")
	}
	if cfg.logger == nil {
		cfg.logger = zap.NewNop()
	}

	reqOpts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithBaseURL(cfg.baseURL),
		option.WithMaxRetries(cfg.maxRetries),
	}
	switch {
	case cfg.httpClient != nil:
		reqOpts = append(reqOpts, option.WithHTTPClient(cfg.httpClient))
	case cfg.timeout > 0:
		reqOpts = append(reqOpts, option.WithHTTPClient(&http.Client{Timeout: cfg.timeout}))
	}

	return &Client{
		client:   oai.NewClient(reqOpts...),
		model:    cfg.model,
		jsonMode: cfg.jsonMode,
		logger:   cfg.logger.Named("llm"),
	}, nil
}

// Model returns the configured model name.
func (c *Client) Model() string { return c.model }

// Annotations asks the model for the difficult phrases in text.
func (c *Client) Annotations(ctx context.Context, text string) ([]annotate.Tuple, error) {
	if strings.TrimSpace(text) == "" {
		return nil, errors.New("llm: no text to analyze")
	}
	c.logger.Info("requesting annotations", zap.String("model", c.model), zap.Int("chars", len(text)))

	params := oai.ChatCompletionNewParams{
		Model:    shared.ChatModel(c.model),
		Messages: []oai.ChatCompletionMessageParamUnion{oai.UserMessage(Prompt(text))},
	}
	if c.jsonMode {
		params.ResponseFormat = oai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &shared.ResponseFormatJSONObjectParam{},
		}
	}
	resp, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, c.describe(err)
	}
	if len(resp.Choices) == 0 {
		return nil, ErrNoContent
	}

	choice := resp.Choices[0]
	content := strings.TrimSpace(choice.Message.Content)
	if content == "" {
		if reason := string(choice.FinishReason); reason != "" && reason != "stop" {
			return nil, fmt.Errorf("model stopped: %s", reason)
		}
		return nil, ErrNoContent
	}

	tuples, err := Parse(content, c.logger)
	if err != nil {
		c.logger.Warn("could not parse model output", zap.Error(err), zap.String("raw", content))
		return nil, err
	}
	c.logger.Info("parsed annotations", zap.Int("count", len(tuples)))
	return tuples, nil
}

// describe turns API failures into messages a user can act on.
func (c *Client) describe(err error) error {
	var apiErr *oai.Error
	if !errors.As(err, &apiErr) {
		return fmt.Errorf("network error: %w", err)
	}
	switch {
	case apiErr.StatusCode == http.StatusUnauthorized,
		apiErr.StatusCode == http.StatusBadRequest && strings.Contains(apiErr.Message+apiErr.Error(), "API key not valid"):
		return fmt.Errorf("API error (%d): invalid API key, check the stored key: %w", apiErr.StatusCode, err)
	case apiErr.StatusCode == http.StatusNotFound:
		return fmt.Errorf("API error (%d): model %q not found or inaccessible: %w", apiErr.StatusCode, c.model, err)
	default:
		return fmt.Errorf("API error (%d): %w", apiErr.StatusCode, err)
	}
}

// item mirrors one array element; string fields reject other JSON types.
type item struct {
	Phrase           string `json:"phrase"`
	ShortExplanation string `json:"short_explanation"`
	LongExplanation  string `json:"long_explanation"`
	Translation      string `json:"vietnamese_translation"`
}

// Parse decodes the model's answer into tuples. The answer must be a JSON
// array, optionally wrapped in a markdown code fence. Elements that are not
// objects with string fields are dropped and logged.
func Parse(content string, logger *zap.Logger) ([]annotate.Tuple, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	raw, err := decodeArray(content)
	if err != nil {
		cleaned := stripFence(content)
		if cleaned == content {
			return nil, fmt.Errorf("failed parse: %w", err)
		}
		if raw, err = decodeArray(cleaned); err != nil {
			return nil, fmt.Errorf("failed parse (tried cleaning): %w", err)
		}
	}

	tuples := make([]annotate.Tuple, 0, len(raw))
	for i, r := range raw {
		var it item
		if err := json.Unmarshal(r, &it); err != nil || !isObject(r) {
			logger.Warn("dropping malformed annotation", zap.Int("index", i), zap.ByteString("item", r))
			continue
		}
		tuples = append(tuples, annotate.Tuple{
			Phrase:           it.Phrase,
			ShortExplanation: it.ShortExplanation,
			LongExplanation:  it.LongExplanation,
			Translation:      it.Translation,
		})
	}
	return tuples, nil
}

func decodeArray(s string) ([]json.RawMessage, error) {
	if !strings.HasPrefix(strings.TrimSpace(s), "[") {
		return nil, errors.New("not a JSON array")
	}
	var raw []json.RawMessage
	if err := json.Unmarshal([]byte(s), &raw); err != nil {
		return nil, err
	}
	return raw, nil
}

func isObject(r json.RawMessage) bool {
	s := strings.TrimSpace(string(r))
	return strings.HasPrefix(s, "{")
}

// stripFence removes a surrounding ``` or ```json fence.
func stripFence(s string) string {
	t := strings.TrimSpace(s)
	if !strings.HasPrefix(t, "```") {
		return s
	}
	t = strings.TrimPrefix(t, "```")
	t = strings.TrimPrefix(t, "json")
	t = strings.TrimSuffix(strings.TrimSpace(t), "```")
	return strings.TrimSpace(t)
}

package embedding

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/generative-ai-go/genai"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/openai"
	"google.golang.org/api/option"
)

// Provider names accepted by New.
const (
	ProviderGemini = "gemini"
	ProviderOpenAI = "openai"
)

// DefaultGeminiModel is the Gemini embedding model used when none is configured.
const DefaultGeminiModel = "text-embedding-004"

// Config selects and configures an embedding provider.
type Config struct {
	Provider string
	Model    string
	// BaseURL is the OpenAI-compatible endpoint; ignored for Gemini.
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// New creates the embedder described by cfg.
func New(ctx context.Context, cfg Config) (Embedder, error) {
	switch cfg.Provider {
	case ProviderGemini, "":
		return NewGeminiEmbedder(ctx, cfg)
	case ProviderOpenAI:
		return NewOpenAIEmbedder(cfg)
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", cfg.Provider)
	}
}

func timeoutOr(d time.Duration) time.Duration {
	if d <= 0 {
		return DefaultTimeout
	}
	return d
}

// GeminiEmbedder embeds text with a Gemini embedding model.
type GeminiEmbedder struct {
	client  *genai.Client
	model   *genai.EmbeddingModel
	timeout time.Duration
	logger  *slog.Logger
}

// NewGeminiEmbedder creates a Gemini embedder.
func NewGeminiEmbedder(ctx context.Context, cfg Config) (*GeminiEmbedder, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("API key is required")
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(cfg.APIKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	model := cfg.Model
	if model == "" {
		model = DefaultGeminiModel
	}
	return &GeminiEmbedder{
		client:  client,
		model:   client.EmbeddingModel(model),
		timeout: timeoutOr(cfg.Timeout),
		logger:  slog.Default().With("component", "gemini-embedder"),
	}, nil
}

// Embed returns the normalized embedding of text.
func (e *GeminiEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	text, err := prepare(text)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	e.logger.Debug("generating embedding", "length", len(text))
	res, err := e.model.EmbedContent(ctx, genai.Text(text))
	if err != nil {
		return nil, unavailable(ProviderGemini, err)
	}
	if res == nil || res.Embedding == nil || len(res.Embedding.Values) == 0 {
		return nil, unavailable(ProviderGemini, fmt.Errorf("empty embedding"))
	}
	return Normalize(res.Embedding.Values), nil
}

// Close releases the underlying client.
func (e *GeminiEmbedder) Close() error {
	return e.client.Close()
}

// OpenAIEmbedder embeds text through any OpenAI-compatible embeddings API.
type OpenAIEmbedder struct {
	embedder embeddings.Embedder
	timeout  time.Duration
	logger   *slog.Logger
}

// NewOpenAIEmbedder creates an embedder for cfg.BaseURL.
func NewOpenAIEmbedder(cfg Config) (*OpenAIEmbedder, error) {
	if cfg.Model == "" {
		return nil, fmt.Errorf("embedding model is required")
	}
	token := cfg.APIKey
	if token == "" {
		// local OpenAI-compatible servers usually accept any token
		token = "none"
	}
	opts := []openai.Option{
		openai.WithToken(token),
		openai.WithEmbeddingModel(cfg.Model),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
	}
	client, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create OpenAI client: %w", err)
	}
	embedder, err := embeddings.NewEmbedder(client, embeddings.WithStripNewLines(true))
	if err != nil {
		return nil, fmt.Errorf("failed to create embedder: %w", err)
	}
	return &OpenAIEmbedder{
		embedder: embedder,
		timeout:  timeoutOr(cfg.Timeout),
		logger:   slog.Default().With("component", "openai-embedder"),
	}, nil
}

// Embed returns the normalized embedding of text.
func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	text, err := prepare(text)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	e.logger.Debug("generating embedding", "length", len(text))
	vec, err := e.embedder.EmbedQuery(ctx, text)
	if err != nil {
		return nil, unavailable(ProviderOpenAI, err)
	}
	if len(vec) == 0 {
		return nil, unavailable(ProviderOpenAI, fmt.Errorf("empty embedding"))
	}
	return Normalize(vec), nil
}

var (
	_ Embedder = (*GeminiEmbedder)(nil)
	_ Embedder = (*OpenAIEmbedder)(nil)
)

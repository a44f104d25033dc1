// Package openai implements the embedder.Provider interface on top of the
// OpenAI Embeddings API. Any OpenAI-compatible endpoint works through BaseURL.
package openai

import (
	"context"
	"errors"
	"fmt"

	openai "github.com/sashabaranov/go-openai"
)

// defaultModel is used when no model is configured.
const defaultModel = "text-embedding-3-small"

// defaultDimensions matches text-embedding-3-small.
const defaultDimensions = 1536

// Client is an OpenAI embedding client.
type Client struct {
	client     *openai.Client
	model      openai.EmbeddingModel
	dimensions int
	// shorten requests reduced-dimension vectors. Only set when the
	// configured dimensions differ from the model default, since older
	// models reject the parameter.
	shorten bool
}

// Config configures the OpenAI embedding client.
type Config struct {
	// APIKey is the OpenAI API key (required).
	APIKey string

	// Model is the embedding model name. Defaults to "text-embedding-3-small".
	Model string

	// BaseURL overrides the API endpoint for OpenAI-compatible services.
	BaseURL string

	// Dimensions is the expected vector size. Defaults to 1536. For
	// text-embedding-3 models a smaller value is passed through to the API
	// to request truncated vectors.
	Dimensions int
}

// NewClient creates a new OpenAI embedding client.
//
// Parameters:
//   - cfg: Client configuration containing APIKey, Model, BaseURL, Dimensions
//
// Returns the client, or an error if the configuration is invalid.
func NewClient(cfg *Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("openai embedder: api key is required")
	}

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}

	model := cfg.Model
	if model == "" {
		model = defaultModel
	}

	dimensions := cfg.Dimensions
	if dimensions == 0 {
		dimensions = defaultDimensions
	}

	return &Client{
		client:     openai.NewClientWithConfig(clientConfig),
		model:      openai.EmbeddingModel(model),
		dimensions: dimensions,
		shorten:    dimensions != defaultDimensions && model != string(openai.AdaEmbeddingV2),
	}, nil
}

// Embed converts a single text into a vector.
//
// Parameters:
//   - ctx: Context for cancellation and timeout
//   - text: The input text to embed
//
// Returns the embedding vector, or an error if the API call fails.
func (c *Client) Embed(ctx context.Context, text string) ([]float64, error) {
	vectors, err := c.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedBatch converts multiple texts into vectors in one API call.
//
// Parameters:
//   - ctx: Context for cancellation and timeout
//   - texts: Texts to embed; the output order matches the input order
//
// Returns one vector per input text, or an error if the API call fails or
// returns a result count that does not match the input.
func (c *Client) EmbedBatch(ctx context.Context, texts []string) ([][]float64, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	req := openai.EmbeddingRequest{
		Input: texts,
		Model: c.model,
	}
	if c.shorten {
		req.Dimensions = c.dimensions
	}

	resp, err := c.client.CreateEmbeddings(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("EmbedBatch: %w", err)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("EmbedBatch: got %d embeddings for %d inputs", len(resp.Data), len(texts))
	}

	vectors := make([][]float64, len(texts))
	for i, data := range resp.Data {
		vec := make([]float64, len(data.Embedding))
		for j, v := range data.Embedding {
			vec[j] = float64(v)
		}
		vectors[i] = vec
	}
	return vectors, nil
}

// Dimensions returns the vector size this client produces.
func (c *Client) Dimensions() int {
	return c.dimensions
}

// Model returns the embedding model name.
func (c *Client) Model() string {
	return string(c.model)
}

// Close releases client resources. The underlying SDK holds no persistent
// connections, so this always succeeds.
func (c *Client) Close() error {
	return nil
}

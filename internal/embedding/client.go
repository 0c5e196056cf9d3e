package embedding

import (
	"fmt"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

const (
	// DefaultBaseURL is TogetherAI's OpenAI-compatible endpoint.
	DefaultBaseURL = "https://api.together.xyz/v1"

	// DefaultModel is the retrieval model used when none is configured.
	DefaultModel = "togethercomputer/m2-bert-80M-8k-retrieval"

	// DefaultDimension is the vector size produced by DefaultModel.
	DefaultDimension = 768
)

// ClientConfig selects the embedding provider. Any service that speaks the
// OpenAI embeddings API works.
type ClientConfig struct {
	BaseURL string
	APIKey  string
	Model   string
}

// Client wraps the OpenAI client for embedding generation.
type Client struct {
	client *openai.Client
	model  string
}

// NewClient creates a client for the configured provider. The API key is required.
func NewClient(cfg ClientConfig) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: api key not set", ErrMissingConfig)
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}

	// Retries are handled by the embedder so that only rate limits are retried.
	client := openai.NewClient(
		option.WithAPIKey(cfg.APIKey),
		option.WithBaseURL(strings.TrimRight(cfg.BaseURL, "/")+"/"),
		option.WithMaxRetries(0),
	)

	return &Client{client: &client, model: cfg.Model}, nil
}

// Model returns the configured embedding model name.
func (c *Client) Model() string {
	return c.model
}

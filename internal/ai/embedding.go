package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"docquery/internal/domain"
)

// EmbeddingConfig holds API settings for text embedding
// (OpenAI-compatible). Dimension, when positive, is validated against
// every vector the provider returns.
type EmbeddingConfig struct {
	BaseURL   string
	APIKey    string
	Model     string
	Dimension int
}

// Embed returns the embedding vector for the given text. Empty text is
// a caller error; provider failures surface as ErrEmbeddingUnavailable.
func (c *OpenAICompatibleClient) Embed(ctx context.Context, cfg EmbeddingConfig, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%w: embedding input is empty", domain.ErrInvalidInput)
	}
	vectors, err := c.embedRequest(ctx, cfg, text)
	if err != nil {
		return nil, err
	}
	if len(vectors) != 1 {
		return nil, fmt.Errorf("%w: expected 1 embedding, got %d", domain.ErrEmbeddingUnavailable, len(vectors))
	}
	return vectors[0], nil
}

// EmbedBatch returns one embedding per input text, in input order. All
// texts must be non-empty: a provider silently dropping blank inputs
// would shift the pairing between texts and vectors, so blanks are
// rejected here instead.
func (c *OpenAICompatibleClient) EmbedBatch(ctx context.Context, cfg EmbeddingConfig, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	for i, t := range texts {
		if strings.TrimSpace(t) == "" {
			return nil, fmt.Errorf("%w: embedding input %d is empty", domain.ErrInvalidInput, i)
		}
	}
	vectors, err := c.embedRequest(ctx, cfg, texts)
	if err != nil {
		return nil, err
	}
	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("%w: expected %d embeddings, got %d", domain.ErrEmbeddingUnavailable, len(texts), len(vectors))
	}
	return vectors, nil
}

func (c *OpenAICompatibleClient) embedRequest(ctx context.Context, cfg EmbeddingConfig, input interface{}) ([][]float32, error) {
	reqBody := map[string]interface{}{
		"model": cfg.Model,
		"input": input,
	}
	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal embedding request failed: %w", err)
	}

	url := strings.TrimRight(cfg.BaseURL, "/") + "/embeddings"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, fmt.Errorf("build embedding request failed: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+cfg.APIKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, callFailure(domain.ErrEmbeddingUnavailable, "embedding request", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, callFailure(domain.ErrEmbeddingUnavailable, "read embedding response", err)
	}
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: embedding response status %d: %s", domain.ErrEmbeddingUnavailable, resp.StatusCode, string(raw))
	}

	// The provider reports an index per embedding; pair by it rather
	// than trusting response ordering.
	var parsed struct {
		Data []struct {
			Index     int       `json:"index"`
			Embedding []float32 `json:"embedding"`
		} `json:"data"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("%w: parse embedding json failed: %v", domain.ErrEmbeddingUnavailable, err)
	}

	vectors := make([][]float32, len(parsed.Data))
	for _, d := range parsed.Data {
		if d.Index < 0 || d.Index >= len(vectors) {
			return nil, fmt.Errorf("%w: embedding index %d out of range", domain.ErrEmbeddingUnavailable, d.Index)
		}
		if len(d.Embedding) == 0 {
			return nil, fmt.Errorf("%w: empty embedding at index %d", domain.ErrEmbeddingUnavailable, d.Index)
		}
		if cfg.Dimension > 0 && len(d.Embedding) != cfg.Dimension {
			return nil, fmt.Errorf("%w: embedding dimension %d, expected %d", domain.ErrEmbeddingUnavailable, len(d.Embedding), cfg.Dimension)
		}
		vectors[d.Index] = d.Embedding
	}
	for i, v := range vectors {
		if v == nil {
			return nil, fmt.Errorf("%w: missing embedding at index %d", domain.ErrEmbeddingUnavailable, i)
		}
	}
	return vectors, nil
}

package embeddings

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const (
	localDefaultURL     = "http://127.0.0.1:11435"
	localDefaultModel   = "sup-simcse-roberta-base"
	localDefaultTimeout = 60 * time.Second
)

// LocalConfig configures the local provider.
type LocalConfig struct {
	BaseURL string
	Model   string
	Timeout time.Duration
}

// LocalProvider talks to a local embedding server exposing the
// OpenAI-compatible /v1/embeddings endpoint. The dimension is learned from
// the first response.
type LocalProvider struct {
	baseURL    string
	model      string
	httpClient *http.Client
	dimensions int
}

// NewLocalProvider builds a local provider.
func NewLocalProvider(cfg LocalConfig) *LocalProvider {
	if cfg.BaseURL == "" {
		cfg.BaseURL = localDefaultURL
	}
	if cfg.Model == "" {
		cfg.Model = localDefaultModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = localDefaultTimeout
	}
	return &LocalProvider{
		baseURL:    cfg.BaseURL,
		model:      cfg.Model,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}
}

type localRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type localResponse struct {
	Data []struct {
		Embedding Vector `json:"embedding"`
	} `json:"data"`
}

// Embed implements Provider.
func (p *LocalProvider) Embed(ctx context.Context, texts []string) ([]Vector, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	body, err := json.Marshal(localRequest{Model: p.model, Input: texts})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/v1/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("embedding server request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("embedding server error %d: %s", resp.StatusCode, msg)
	}

	var result localResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if len(result.Data) != len(texts) {
		return nil, fmt.Errorf("expected %d embeddings, got %d", len(texts), len(result.Data))
	}

	vectors := make([]Vector, len(result.Data))
	for i, d := range result.Data {
		vectors[i] = d.Embedding
	}
	if p.dimensions == 0 && len(vectors) > 0 {
		p.dimensions = len(vectors[0])
	}
	return vectors, nil
}

// Dimensions implements Provider. Zero until the first successful call.
func (p *LocalProvider) Dimensions() int { return p.dimensions }

// Model implements Provider.
func (p *LocalProvider) Model() string { return p.model }

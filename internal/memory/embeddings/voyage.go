package embeddings

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"golang.org/x/time/rate"
)

const (
	voyageAPIURL           = "https://api.voyageai.com/v1/embeddings"
	voyageDefaultModel     = "voyage-3"
	voyageDefaultRateLimit = 10.0 // requests per second
	voyageDefaultTimeout   = 30 * time.Second
	voyageDimensions       = 1024
)

// VoyageConfig configures the Voyage provider. Zero values use defaults;
// the API key falls back to VOYAGE_API_KEY.
type VoyageConfig struct {
	APIKey    string
	Model     string
	RateLimit float64
	Timeout   time.Duration
}

// VoyageProvider generates embeddings with the Voyage AI API.
type VoyageProvider struct {
	apiKey     string
	model      string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewVoyageProvider builds a Voyage provider.
func NewVoyageProvider(cfg VoyageConfig) (*VoyageProvider, error) {
	if cfg.APIKey == "" {
		cfg.APIKey = os.Getenv("VOYAGE_API_KEY")
	}
	if cfg.APIKey == "" {
		return nil, errors.New("voyage API key required: set VOYAGE_API_KEY")
	}
	if cfg.Model == "" {
		cfg.Model = voyageDefaultModel
	}
	if cfg.RateLimit <= 0 {
		cfg.RateLimit = voyageDefaultRateLimit
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = voyageDefaultTimeout
	}

	return &VoyageProvider{
		apiKey:  cfg.APIKey,
		model:   cfg.Model,
		limiter: rate.NewLimiter(rate.Limit(cfg.RateLimit), 1),
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}, nil
}

type voyageRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type voyageResponse struct {
	Data []struct {
		Embedding Vector `json:"embedding"`
		Index     int    `json:"index"`
	} `json:"data"`
}

// Embed implements Provider.
func (p *VoyageProvider) Embed(ctx context.Context, texts []string) ([]Vector, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	if err := p.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}

	body, err := json.Marshal(voyageRequest{Model: p.model, Input: texts})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, voyageAPIURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+p.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("voyage request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("voyage API error %d: %s", resp.StatusCode, msg)
	}

	var result voyageResponse
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
	return vectors, nil
}

// Dimensions implements Provider.
func (p *VoyageProvider) Dimensions() int { return voyageDimensions }

// Model implements Provider.
func (p *VoyageProvider) Model() string { return p.model }

// Package retrieval scores past cases against a new query with a trained
// pairwise relevance model: both texts are embedded independently,
// concatenated, and passed through a small classification head. The head is
// trained offline and loaded read-only here; retrieval never updates it.
package retrieval

import (
	"encoding/json"
	"fmt"
	"math"
	"os"

	"github.com/rand/memento/internal/memory/embeddings"
)

// Head is the binary classification head over a concatenated (query, case)
// embedding pair. Layout: tanh hidden layer, two output logits, softmax.
type Head struct {
	InputDim  int         `json:"input_dim"`
	HiddenDim int         `json:"hidden_dim"`
	W1        [][]float32 `json:"w1"` // [hidden][input]
	B1        []float32   `json:"b1"` // [hidden]
	W2        [][]float32 `json:"w2"` // [2][hidden]
	B2        []float32   `json:"b2"` // [2]
}

// LoadHead reads a head checkpoint exported by offline training.
func LoadHead(path string) (*Head, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read head checkpoint: %w", err)
	}
	var h Head
	if err := json.Unmarshal(data, &h); err != nil {
		return nil, fmt.Errorf("parse head checkpoint %s: %w", path, err)
	}
	if err := h.validate(); err != nil {
		return nil, fmt.Errorf("head checkpoint %s: %w", path, err)
	}
	return &h, nil
}

func (h *Head) validate() error {
	if h.InputDim <= 0 || h.HiddenDim <= 0 {
		return fmt.Errorf("bad dims input=%d hidden=%d", h.InputDim, h.HiddenDim)
	}
	if len(h.W1) != h.HiddenDim || len(h.B1) != h.HiddenDim {
		return fmt.Errorf("w1/b1 shape mismatch: got %d/%d rows, want %d", len(h.W1), len(h.B1), h.HiddenDim)
	}
	for i, row := range h.W1 {
		if len(row) != h.InputDim {
			return fmt.Errorf("w1 row %d has %d cols, want %d", i, len(row), h.InputDim)
		}
	}
	if len(h.W2) != 2 || len(h.B2) != 2 {
		return fmt.Errorf("w2/b2 must have 2 outputs, got %d/%d", len(h.W2), len(h.B2))
	}
	for i, row := range h.W2 {
		if len(row) != h.HiddenDim {
			return fmt.Errorf("w2 row %d has %d cols, want %d", i, len(row), h.HiddenDim)
		}
	}
	return nil
}

// Score returns the relevance probability in [0, 1] for a concatenated
// (query, case) embedding pair.
func (h *Head) Score(pair embeddings.Vector) (float64, error) {
	if len(pair) != h.InputDim {
		return 0, fmt.Errorf("pair has dim %d, head expects %d", len(pair), h.InputDim)
	}

	hidden := make([]float64, h.HiddenDim)
	for i := range hidden {
		sum := float64(h.B1[i])
		row := h.W1[i]
		for j, x := range pair {
			sum += float64(row[j]) * float64(x)
		}
		hidden[i] = math.Tanh(sum)
	}

	var logits [2]float64
	for k := 0; k < 2; k++ {
		sum := float64(h.B2[k])
		row := h.W2[k]
		for j, v := range hidden {
			sum += float64(row[j]) * v
		}
		logits[k] = sum
	}

	// Numerically stable two-class softmax.
	return 1 / (1 + math.Exp(logits[0]-logits[1])), nil
}

package llm

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// Per-message overhead covering role tags and separators.
const roleOverheadTokens = 4

// Estimator estimates the encoded token count of message content.
// Estimation is backend-specific, so callers pick the estimator that
// matches their model.
type Estimator interface {
	Count(text string) int
}

// EstimateMessage returns the estimated cost of one message.
func EstimateMessage(m Message, est Estimator) int {
	n := roleOverheadTokens + est.Count(m.Content)
	for _, tc := range m.ToolCalls {
		n += est.Count(tc.Name) + est.Count(tc.Arguments)
	}
	return n
}

// EstimateHistory returns the estimated cost of a whole history, including
// the reply priming overhead.
func EstimateHistory(messages []Message, est Estimator) int {
	total := 2
	for _, m := range messages {
		total += EstimateMessage(m, est)
	}
	return total
}

// HeuristicEstimator approximates one token per four bytes of content.
// It needs no encoding tables and overestimates slightly on prose, which
// errs on the safe side of the budget.
type HeuristicEstimator struct{}

func (HeuristicEstimator) Count(text string) int {
	return (len(text) + 3) / 4
}

// TiktokenEstimator counts tokens with a real BPE encoding.
type TiktokenEstimator struct {
	enc *tiktoken.Tiktoken
}

var (
	tiktokenOnce sync.Once
	tiktokenEnc  *tiktoken.Tiktoken
	tiktokenErr  error
)

// NewTiktokenEstimator returns an estimator for the given model, falling
// back to cl100k_base for models tiktoken does not know.
func NewTiktokenEstimator(model string) (*TiktokenEstimator, error) {
	if enc, err := tiktoken.EncodingForModel(model); err == nil {
		return &TiktokenEstimator{enc: enc}, nil
	}
	tiktokenOnce.Do(func() {
		tiktokenEnc, tiktokenErr = tiktoken.GetEncoding("cl100k_base")
	})
	if tiktokenErr != nil {
		return nil, tiktokenErr
	}
	return &TiktokenEstimator{enc: tiktokenEnc}, nil
}

func (e *TiktokenEstimator) Count(text string) int {
	return len(e.enc.Encode(text, nil, nil))
}

// EstimatorForModel returns a tiktoken estimator when the encoding tables
// are available and the heuristic otherwise.
func EstimatorForModel(model string) Estimator {
	if est, err := NewTiktokenEstimator(model); err == nil {
		return est
	}
	return HeuristicEstimator{}
}

// Package tokens provides token count estimation for budget accounting.
package tokens

import (
	"github.com/pkoukk/tiktoken-go"
)

// Estimator estimates how many tokens a piece of text consumes.
type Estimator interface {
	Estimate(text string) int
}

// Tiktoken estimates using a BPE encoding, falling back to a character
// heuristic when the encoding data is unavailable (offline builds).
type Tiktoken struct {
	encoding *tiktoken.Tiktoken
}

// NewEstimator returns a tiktoken-backed estimator. It never fails: when the
// cl100k_base encoding cannot be loaded, estimates degrade to the heuristic.
func NewEstimator() *Tiktoken {
	enc, err := tiktoken.GetEncoding("cl100k_base")
	if err != nil {
		return &Tiktoken{}
	}
	return &Tiktoken{encoding: enc}
}

// Estimate returns the token count for text.
func (t *Tiktoken) Estimate(text string) int {
	if t.encoding == nil {
		return Heuristic{}.Estimate(text)
	}
	return len(t.encoding.Encode(text, nil, nil))
}

// Heuristic estimates roughly 4 characters per token, which tracks English
// prose and source code closely enough for budget decisions.
type Heuristic struct{}

// Estimate returns the heuristic token count for text.
func (Heuristic) Estimate(text string) int {
	if len(text) == 0 {
		return 0
	}
	n := len(text) / 4
	if n == 0 {
		n = 1
	}
	return n
}

// Package tokens estimates LLM token counts for stored content.
package tokens

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

const defaultEncoding = "cl100k_base"

// Estimator counts tokens with a BPE encoding. When the encoding cannot be
// loaded (e.g. offline without a cached vocabulary) it falls back to one
// token per four bytes.
type Estimator struct {
	once sync.Once
	enc  *tiktoken.Tiktoken
	err  error
}

func NewEstimator() *Estimator {
	return &Estimator{}
}

func (e *Estimator) load() {
	e.once.Do(func() {
		e.enc, e.err = tiktoken.GetEncoding(defaultEncoding)
	})
}

func (e *Estimator) Count(text string) int {
	if text == "" {
		return 0
	}
	e.load()
	if e.err != nil || e.enc == nil {
		return Approximate(text)
	}
	return len(e.enc.Encode(text, nil, nil))
}

// Exact reports whether counts come from the real encoding.
func (e *Estimator) Exact() bool {
	e.load()
	return e.err == nil && e.enc != nil
}

func Approximate(text string) int {
	n := (len(text) + 3) / 4
	if n == 0 && text != "" {
		n = 1
	}
	return n
}

package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"strings"
	"unicode"

	"devmemory-be/pkg/vector"
)

// HashProvider is an offline embedder: each lower-cased word is hashed into
// a signed bucket. Identical texts map to identical vectors, and texts that
// share words score higher than texts that do not. Used for local
// development and tests; it carries no semantics beyond word overlap.
type HashProvider struct {
	dimension int
}

func NewHashProvider(dimension int) *HashProvider {
	return &HashProvider{dimension: dimension}
}

func (p *HashProvider) Name() string   { return ProviderHash }
func (p *HashProvider) Model() string  { return "feature-hash" }
func (p *HashProvider) Dimension() int { return p.dimension }

func (p *HashProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	values := make([]float32, p.dimension)
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for _, word := range words {
		sum := sha256.Sum256([]byte(word))
		bucket := binary.BigEndian.Uint32(sum[:4]) % uint32(p.dimension)
		if sum[4]&1 == 0 {
			values[bucket]++
		} else {
			values[bucket]--
		}
	}
	if len(words) == 0 {
		values[0] = 1
	}
	return vector.Normalize(values), nil
}

package embeddings

import (
	"context"
	"math"
)

// Alphabet is the symbol set CharEmbedder counts, in vector order.
const Alphabet = "abcdefghijklmnopqrstuvwxyz0123456789"

// CharDimensions is the length of a CharEmbedder vector.
const CharDimensions = len(Alphabet)

// CharEmbedder projects text onto per-symbol counts over Alphabet and
// L2-normalises the result. Text with no alphabet symbols embeds to the
// zero vector. Longer documents are not penalised beyond the
// normalisation, so very short texts can score high on common letters.
type CharEmbedder struct{}

// NewCharEmbedder returns the character-frequency embedder.
func NewCharEmbedder() *CharEmbedder { return &CharEmbedder{} }

func (CharEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out[i] = CharVector(t)
	}
	return out, nil
}

func (CharEmbedder) Dimensions() int { return CharDimensions }

func (CharEmbedder) Name() string { return "char-36" }

// CharVector embeds a single text. Uppercase ASCII letters fold to
// lowercase; every other rune is ignored.
func CharVector(text string) []float32 {
	var counts [CharDimensions]float64
	for _, r := range text {
		switch {
		case r >= 'a' && r <= 'z':
			counts[r-'a']++
		case r >= 'A' && r <= 'Z':
			counts[r-'A']++
		case r >= '0' && r <= '9':
			counts[26+r-'0']++
		}
	}

	var norm float64
	for _, c := range counts {
		norm += c * c
	}
	norm = math.Sqrt(norm)

	vec := make([]float32, CharDimensions)
	if norm == 0 {
		return vec
	}
	for i, c := range counts {
		vec[i] = float32(c / norm)
	}
	return vec
}

package embed

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
)

// StaticDimensions is the vector size of the offline embedder.
const StaticDimensions = 256

// StaticEmbedder produces deterministic vectors from word and trigram
// hashes. It needs no external service, which makes it useful for
// tests and air-gapped deployments, at the cost of semantic quality.
type StaticEmbedder struct{}

var _ Embedder = (*StaticEmbedder)(nil)

func NewStaticEmbedder() *StaticEmbedder {
	return &StaticEmbedder{}
}

func (e *StaticEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	return embedStatic(text), nil
}

func (e *StaticEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	vecs := make([][]float32, len(texts))
	for i, text := range texts {
		vecs[i] = embedStatic(text)
	}
	return vecs, nil
}

func (e *StaticEmbedder) Dimensions() int { return StaticDimensions }

func (e *StaticEmbedder) ModelName() string { return "static-hash-v1" }

func (e *StaticEmbedder) Available(_ context.Context) bool { return true }

func (e *StaticEmbedder) Close() error { return nil }

// embedStatic accumulates hashed word and character-trigram features
// into a fixed-size vector, then L2-normalizes it so cosine distance
// behaves sensibly.
func embedStatic(text string) []float32 {
	vec := make([]float32, StaticDimensions)
	lower := strings.ToLower(text)

	for _, word := range strings.Fields(lower) {
		addFeature(vec, word, 1.0)
		runes := []rune(word)
		for i := 0; i+3 <= len(runes); i++ {
			addFeature(vec, "tri:"+string(runes[i:i+3]), 0.5)
		}
	}

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm > 0 {
		inv := float32(1.0 / math.Sqrt(norm))
		for i := range vec {
			vec[i] *= inv
		}
	}
	return vec
}

func addFeature(vec []float32, feature string, weight float32) {
	h := fnv.New64a()
	_, _ = h.Write([]byte(feature))
	sum := h.Sum64()

	idx := sum % StaticDimensions
	// Half the hash space contributes negatively so vectors spread over
	// the whole sphere instead of one orthant.
	sign := float32(1)
	if sum&(1<<63) != 0 {
		sign = -1
	}
	vec[idx] += sign * weight
}

package questionnaire

import "math/rand/v2"

// Shuffler supplies uniform random indexes in [0, n).
type Shuffler interface {
	IntN(n int) int
}

// NewShuffler returns a Shuffler seeded from the runtime's random source.
func NewShuffler() Shuffler {
	return rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
}

// SeededShuffler returns a deterministic Shuffler.
func SeededShuffler(seed uint64) Shuffler {
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

// BuildQueue flattens the bank and applies a single Fisher-Yates pass.
func BuildQueue(b Bank, rng Shuffler) []Prompt {
	queue := b.Prompts()
	for i := len(queue) - 1; i > 0; i-- {
		j := rng.IntN(i + 1)
		queue[i], queue[j] = queue[j], queue[i]
	}
	return queue
}

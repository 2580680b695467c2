// Package toy provides a tiny deterministic recurrent language model. It has
// no trained weights; it exists so the CLI, the server and tests have a
// Model to drive without a native evaluator.
package toy

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"math/rand"

	"github.com/zeebo/blake3"

	"github.com/samcharles93/strand/internal/inference"
)

// mat is a dense row-major matrix.
type mat struct {
	r, c int
	data []float32
}

func newMat(r, c int) mat {
	return mat{r: r, c: c, data: make([]float32, r*c)}
}

func (m *mat) row(i int) []float32 {
	return m.data[i*m.c : (i+1)*m.c]
}

// fillRand fills m with uniform values in [-scale, scale).
func fillRand(m *mat, rng *rand.Rand, scale float32) {
	for i := range m.data {
		m.data[i] = (rng.Float32()*2 - 1) * scale
	}
}

// Model is a single-layer Elman network:
//
//	h' = tanh(decay*h + R*h + E[token])
//	logits = h'*W + bias
//
// The state is h. Every call returns freshly allocated logits and state.
type Model struct {
	Vocab  int
	Hidden int

	emb   mat // [Vocab x Hidden]
	rec   mat // [Hidden x Hidden]
	out   mat // [Hidden x Vocab]
	bias  []float32
	decay float32
	seed  int64
}

// New builds a model whose weights are derived from seed.
func New(vocab, hidden int, seed int64) *Model {
	if vocab <= 0 || hidden <= 0 {
		panic(fmt.Sprintf("toy: invalid shape vocab=%d hidden=%d", vocab, hidden))
	}
	rng := rand.New(rand.NewSource(seed))
	m := &Model{
		Vocab:  vocab,
		Hidden: hidden,
		emb:    newMat(vocab, hidden),
		rec:    newMat(hidden, hidden),
		out:    newMat(hidden, vocab),
		bias:   make([]float32, vocab),
		decay:  0.5,
		seed:   seed,
	}
	fillRand(&m.emb, rng, 1)
	fillRand(&m.rec, rng, 1/float32(hidden))
	fillRand(&m.out, rng, 4/float32(math.Sqrt(float64(hidden))))
	for i := range m.bias {
		m.bias[i] = (rng.Float32()*2 - 1) * 0.1
	}
	return m
}

// Fingerprint identifies the weights: two models with the same shape and
// seed evaluate identically.
func (m *Model) Fingerprint() [32]byte {
	var buf [32]byte
	b := append(buf[:0], "toy/v1"...)
	b = binary.LittleEndian.AppendUint64(b, uint64(m.Vocab))
	b = binary.LittleEndian.AppendUint64(b, uint64(m.Hidden))
	b = binary.LittleEndian.AppendUint64(b, uint64(m.seed))
	return blake3.Sum256(b)
}

// Eval implements inference.Model.
func (m *Model) Eval(ctx context.Context, token int, state inference.State) ([]float32, inference.State, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	if token < 0 || token >= m.Vocab {
		return nil, nil, fmt.Errorf("toy: token %d outside vocabulary of %d", token, m.Vocab)
	}
	if state != nil && len(state) != m.Hidden {
		return nil, nil, fmt.Errorf("toy: state has %d values, want %d", len(state), m.Hidden)
	}

	h := make(inference.State, m.Hidden)
	e := m.emb.row(token)
	for i := range h {
		v := e[i]
		if state != nil {
			v += m.decay * state[i]
			r := m.rec.row(i)
			for j, s := range state {
				v += r[j] * s
			}
		}
		h[i] = float32(math.Tanh(float64(v)))
	}

	logits := make([]float32, m.Vocab)
	copy(logits, m.bias)
	for i, hv := range h {
		r := m.out.row(i)
		for k := range logits {
			logits[k] += hv * r[k]
		}
	}
	return logits, h, nil
}

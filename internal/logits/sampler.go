package logits

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sort"
)

// ErrInvalidParams is returned for out-of-range sampling parameters.
var ErrInvalidParams = errors.New("logits: invalid sampling parameters")

// Source is the randomness a Sampler draws from. *rand.Rand satisfies it.
type Source interface {
	Float64() float64
}

// Params configures a single Sample call.
type Params struct {
	// Temperature 0 selects the argmax; 1 leaves the distribution unchanged.
	Temperature float64
	// TopP in [0,1]; 0 and 1 both disable nucleus truncation.
	TopP float64
	// PresencePenalty is subtracted once from every logit with a count.
	PresencePenalty float64
	// FrequencyPenalty is subtracted per occurrence.
	FrequencyPenalty float64
	// LogitBias is added to log-probabilities before truncation.
	LogitBias map[int]float64
}

// Validate checks the parameter ranges.
func (p Params) Validate() error {
	if math.IsNaN(p.Temperature) || p.Temperature < 0 {
		return fmt.Errorf("%w: temperature %v must be >= 0", ErrInvalidParams, p.Temperature)
	}
	if math.IsNaN(p.TopP) || p.TopP < 0 || p.TopP > 1 {
		return fmt.Errorf("%w: top_p %v must be in [0, 1]", ErrInvalidParams, p.TopP)
	}
	return nil
}

// Sampler turns a logits vector into a token id. It holds scratch buffers
// and is not safe for concurrent use.
type Sampler struct {
	rng    Source
	prob   []float64
	sorted []float64
}

// NewSampler returns a sampler drawing from a math/rand source seeded with
// seed.
func NewSampler(seed int64) *Sampler {
	return NewSamplerWithSource(rand.New(rand.NewSource(seed)))
}

// NewSamplerWithSource returns a sampler drawing from src.
func NewSamplerWithSource(src Source) *Sampler {
	return &Sampler{rng: src}
}

// Sample draws one index from logits. logits is never modified. The steps
// are:
//
//  1. Subtract presence + frequency*count from every counted logit.
//  2. Softmax with max subtraction.
//  3. With a logit bias, add it in log space and softmax again.
//  4. Temperature 0 returns the argmax, lowest index on ties.
//  5. TopP < 1 zeroes every probability strictly below the value at which
//     the descending cumulative mass first exceeds TopP. Ties at that value
//     survive.
//  6. Temperature != 1 raises the survivors to 1/temperature.
//  7. The result is renormalised and sampled.
func (s *Sampler) Sample(logits []float32, p Params, counts map[int]int) (int, error) {
	if err := p.Validate(); err != nil {
		return 0, err
	}
	if len(logits) == 0 {
		return 0, fmt.Errorf("%w: empty logits", ErrInvalidParams)
	}

	if cap(s.prob) < len(logits) {
		s.prob = make([]float64, len(logits))
	}
	prob := s.prob[:len(logits)]
	for i, l := range logits {
		prob[i] = float64(l)
	}

	for id, n := range counts {
		if id >= 0 && id < len(prob) && n > 0 {
			prob[id] -= p.PresencePenalty + p.FrequencyPenalty*float64(n)
		}
	}

	softmax(prob)

	if len(p.LogitBias) > 0 {
		for i := range prob {
			prob[i] = math.Log(prob[i])
		}
		for id, b := range p.LogitBias {
			if id >= 0 && id < len(prob) {
				prob[id] += b
			}
		}
		softmax(prob)
	}

	if p.Temperature == 0 {
		return argmax(prob), nil
	}

	topP := p.TopP
	if topP == 0 {
		topP = 1
	}
	if topP < 1 {
		cutoff := s.nucleusCutoff(prob, topP)
		for i := range prob {
			if prob[i] < cutoff {
				prob[i] = 0
			}
		}
	}

	if p.Temperature != 1 {
		inv := 1 / p.Temperature
		for i := range prob {
			if prob[i] > 0 {
				prob[i] = math.Pow(prob[i], inv)
			}
		}
	}

	return s.draw(prob), nil
}

// nucleusCutoff returns the smallest probability kept by top-p truncation.
func (s *Sampler) nucleusCutoff(prob []float64, topP float64) float64 {
	s.sorted = append(s.sorted[:0], prob...)
	sort.Sort(sort.Reverse(sort.Float64Slice(s.sorted)))

	var cum float64
	for _, v := range s.sorted {
		cum += v
		if cum > topP {
			return v
		}
	}
	// Rounding kept the total at or below topP; keep everything.
	return 0
}

func (s *Sampler) draw(prob []float64) int {
	var total float64
	last := -1
	for i, v := range prob {
		if v > 0 && !math.IsInf(v, 0) {
			total += v
			last = i
		}
	}
	if last < 0 || total == 0 || math.IsInf(total, 0) {
		return argmax(prob)
	}

	r := s.rng.Float64() * total
	var c float64
	for i, v := range prob {
		if v <= 0 || math.IsInf(v, 0) {
			continue
		}
		c += v
		if r < c {
			return i
		}
	}
	return last
}

// softmax normalises x in place. +Inf entries share all of the mass; a
// vector whose maximum is -Inf becomes uniform.
func softmax(x []float64) {
	maxv := math.Inf(-1)
	for _, v := range x {
		if v > maxv {
			maxv = v
		}
	}
	if math.IsInf(maxv, 1) {
		var n float64
		for _, v := range x {
			if math.IsInf(v, 1) {
				n++
			}
		}
		for i, v := range x {
			if math.IsInf(v, 1) {
				x[i] = 1 / n
			} else {
				x[i] = 0
			}
		}
		return
	}
	if math.IsInf(maxv, -1) {
		u := 1 / float64(len(x))
		for i := range x {
			x[i] = u
		}
		return
	}
	var sum float64
	for i, v := range x {
		e := math.Exp(v - maxv)
		x[i] = e
		sum += e
	}
	inv := 1 / sum
	for i := range x {
		x[i] *= inv
	}
}

// Softmax returns the probability distribution for logits.
func Softmax(logits []float32) []float64 {
	out := make([]float64, len(logits))
	for i, l := range logits {
		out[i] = float64(l)
	}
	softmax(out)
	return out
}

// argmax returns the index of the maximum value; the first one wins ties.
// If the slice is empty it panics.
func argmax[T float32 | float64](x []T) int {
	if len(x) == 0 {
		panic("argmax: empty slice")
	}
	bestI := 0
	bestV := x[0]
	for i := 1; i < len(x); i++ {
		if x[i] > bestV {
			bestV = x[i]
			bestI = i
		}
	}
	return bestI
}

// Argmax returns the index of the largest logit, lowest index on ties.
func Argmax(logits []float32) int {
	return argmax(logits)
}

package mathx

import "hash/fnv"

const golden = 0x9e3779b97f4a7c15

func finalize(z uint64) uint64 {
	z = (z ^ (z >> 30)) * 0xbf58476d1ce4e5b9
	z = (z ^ (z >> 27)) * 0x94d049bb133111eb
	return z ^ (z >> 31)
}

func mix64(z uint64) uint64 {
	return finalize(z + golden)
}

// Hash1 maps any seed, including negative and extreme values, to a well-mixed word.
func Hash1(seed int64) uint64 {
	return mix64(uint64(seed) ^ 0x243f6a8885a308d3)
}

// HashLabel derives an independent sub-seed for a named subsystem.
func HashLabel(seed int64, label string) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(label))
	return mix64(uint64(seed) ^ h.Sum64())
}

// Stream is a splitmix64 sequence. The same seed and label always yield the same
// draws in the same order on every platform.
type Stream struct {
	state uint64
}

func NewStream(seed int64, label string) *Stream {
	return &Stream{state: HashLabel(seed, label)}
}

func (s *Stream) Next() uint64 {
	s.state += golden
	return finalize(s.state)
}

// Float64 returns a value in [0, 1) built from the top 53 bits.
func (s *Stream) Float64() float64 {
	return float64(s.Next()>>11) / (1 << 53)
}

// Range returns a value in [lo, hi).
func (s *Stream) Range(lo, hi float64) float64 {
	// The conversion forbids fused multiply-add so results are identical across architectures.
	return lo + float64(s.Float64()*(hi-lo))
}

func (s *Stream) Intn(n int) int {
	if n <= 0 {
		return 0
	}
	return int(s.Next() % uint64(n))
}

func Clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

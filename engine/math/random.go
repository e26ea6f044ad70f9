package math

const randomRange = 1 << 32

// PseudoRandom is the deterministic linear congruential generator used to
// scatter fish. Resetting it every frame keeps every fish on the same path.
type PseudoRandom struct {
	seed uint64
}

func (r *PseudoRandom) Reset() {
	r.seed = 0
}

// Next returns a value in [0, 1).
func (r *PseudoRandom) Next() float64 {
	r.seed = (134775813*r.seed + 1) % randomRange
	return float64(r.seed) / randomRange
}

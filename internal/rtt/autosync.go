package rtt

import "math"

// Bayesian likelihoods from spec.md §4.8.
const (
	pIncrementAligned    = 1 - 1e-2
	pIncrementMisaligned = 0.5
	pNaNAligned          = 1e-9
	pNaNMisaligned       = 1.0 / 256.0

	// entropyThreshold is -(0.5*log2(0.5)*2)/2 = 0.5 bits.
	entropyThreshold = 0.5
)

// AutoSync maintains a probability mass function over the packetSize
// possible byte-alignments of a raw RTT byte stream, converging on the
// true framing offset without ever halting the target. It is an
// alternative to halt-drain-resume synchronization (spec.md §4.8).
type AutoSync struct {
	schema     Schema
	packetSize int
	pmf        []float64
	buf        []byte

	converged bool
	offset    int
}

// NewAutoSync starts a fresh, uniform-prior synchronizer for schema.
func NewAutoSync(schema Schema) *AutoSync {
	n := schema.PacketSize()
	pmf := make([]float64, n)
	for i := range pmf {
		pmf[i] = 1.0 / float64(n)
	}
	return &AutoSync{schema: schema, packetSize: n, pmf: pmf}
}

// Converged reports whether an alignment has been declared, and which.
func (a *AutoSync) Converged() (offset int, ok bool) { return a.offset, a.converged }

// PMF returns a copy of the current probability mass function, indexed by
// byte offset.
func (a *AutoSync) PMF() []float64 {
	out := make([]float64, len(a.pmf))
	copy(out, a.pmf)
	return out
}

// Feed appends newly received stream bytes and processes every complete
// group of packetSize packets this makes available, for every candidate
// offset, updating the PMF after each group. It stops processing once an
// alignment has converged.
func (a *AutoSync) Feed(data []byte) {
	a.buf = append(a.buf, data...)

	groupBytes := a.packetSize * a.packetSize
	for !a.converged && len(a.buf) >= groupBytes+a.packetSize-1 {
		a.processOneGroup()
		a.buf = a.buf[a.packetSize:]
	}
}

// processOneGroup evaluates, for every candidate offset, one group of
// packetSize consecutive packets and Bayesian-updates the PMF.
func (a *AutoSync) processOneGroup() {
	groupBytes := a.packetSize * a.packetSize
	likelihood := make([]float64, a.packetSize)

	for o := 0; o < a.packetSize; o++ {
		window := a.buf[o : o+groupBytes]
		likelihood[o] = a.groupLikelihood(window)
	}

	var total float64
	for o := range a.pmf {
		a.pmf[o] *= likelihood[o]
		total += a.pmf[o]
	}
	if total > 0 {
		for o := range a.pmf {
			a.pmf[o] /= total
		}
	}

	if h := entropy(a.pmf); h < entropyThreshold {
		a.converged = true
		a.offset = argmax(a.pmf)
	}
}

// groupLikelihood computes the joint likelihood of one packetSize-packet
// group at a given candidate alignment, combining the monotonic-timestamp
// and NaN-rejection criteria across every packet and field in the group.
func (a *AutoSync) groupLikelihood(window []byte) float64 {
	likelihood := 1.0
	var lastTS uint32
	haveLast := false

	for i := 0; i < a.packetSize; i++ {
		pkt, err := a.schema.Decode(window[i*a.packetSize : (i+1)*a.packetSize])
		if err != nil {
			continue
		}

		if pkt.HasTimestamp {
			if haveLast {
				if pkt.TimestampUS > lastTS {
					likelihood *= pIncrementAligned / pIncrementMisaligned
				} else {
					likelihood *= (1 - pIncrementAligned) / (1 - pIncrementMisaligned)
				}
			}
			lastTS = pkt.TimestampUS
			haveLast = true
		}

		for fi, f := range a.schema.Fields {
			if f.Kind != Float {
				continue
			}
			if math.IsNaN(float64(pkt.Values[fi])) {
				likelihood *= pNaNAligned / pNaNMisaligned
			} else {
				likelihood *= (1 - pNaNAligned) / (1 - pNaNMisaligned)
			}
		}
	}
	return likelihood
}

// entropy is the Shannon entropy, in bits, of a probability distribution.
func entropy(pmf []float64) float64 {
	var h float64
	for _, p := range pmf {
		if p <= 0 {
			continue
		}
		h -= p * math.Log2(p)
	}
	return h
}

func argmax(pmf []float64) int {
	best := 0
	for i, p := range pmf {
		if p > pmf[best] {
			best = i
		}
	}
	return best
}

package simulation

import (
	crand "crypto/rand"
	"encoding/binary"
	"math"
	"math/big"
	"math/rand/v2"

	"gonum.org/v1/gonum/stat/distuv"
	"gonum.org/v1/gonum/stat/sampleuv"
	"lukechampine.com/blake3"
)

// Randomness is every draw the engine makes. Implementations must be
// deterministic for a given seed so that simulations can be replayed.
type Randomness interface {
	// Integer returns a uniform integer in [low, high].
	Integer(low, high int) int
	// Categorical returns an index into weights, chosen proportionally.
	Categorical(weights []float64) int
	// Sample returns k distinct integers from [low, high].
	Sample(low, high, k int) []int
}

// seedConst is mixed into every hash source seed so that short seeds still
// hash a full block.
var seedConst = []byte("invalidationgame/prng/v1")

// HashSource is a deterministic pseudorandom source built on a blake3 hash
// chain: hash(seed || counter) yields 32 bytes consumed 8 at a time.
// It satisfies both the math/rand Source64 and math/rand/v2 Source interfaces.
type HashSource struct {
	seed   [32]byte
	idx    uint64
	cached [32]byte
	offset int
}

// NewHashSource creates a hash-chain source from an arbitrary seed.
func NewHashSource(seed []byte) *HashSource {
	s := &HashSource{}
	s.reset(seed)
	return s
}

func (s *HashSource) reset(seed []byte) {
	data := make([]byte, 0, len(seed)+len(seedConst))
	data = append(data, seed...)
	data = append(data, seedConst...)
	s.seed = blake3.Sum256(data)
	s.idx = 0
	s.refill()
}

func (s *HashSource) refill() {
	var data [40]byte
	copy(data[:], s.seed[:])
	binary.BigEndian.PutUint64(data[32:], s.idx)
	s.cached = blake3.Sum256(data[:])
	s.idx++
	s.offset = 0
}

// Uint64 returns the next 64 pseudorandom bits.
func (s *HashSource) Uint64() uint64 {
	if s.offset > len(s.cached)-8 {
		s.refill()
	}
	r := binary.BigEndian.Uint64(s.cached[s.offset : s.offset+8])
	s.offset += 8
	return r
}

// Int63 returns a non-negative pseudorandom 63-bit integer.
func (s *HashSource) Int63() int64 {
	return int64(s.Uint64() >> 1)
}

// Seed resets the source to the integer seed.
func (s *HashSource) Seed(seed int64) {
	s.reset(seedBytes(seed))
}

func seedBytes(seed int64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], uint64(seed))
	return b[:]
}

// DeriveSeed returns the seed of simulation i in a batch seeded with master.
// Seeds depend only on (master, i), never on scheduling.
func DeriveSeed(master int64, i int) int64 {
	var b [16]byte
	binary.BigEndian.PutUint64(b[:8], uint64(master))
	binary.BigEndian.PutUint64(b[8:], uint64(i))
	sum := blake3.Sum256(b[:])
	return int64(binary.BigEndian.Uint64(sum[:8]) >> 1)
}

// RandomSeed returns a seed read from crypto/rand.
func RandomSeed() (int64, error) {
	seed, err := crand.Int(crand.Reader, big.NewInt(math.MaxInt64))
	if err != nil {
		return 0, err
	}
	return seed.Int64(), nil
}

// Drawer implements Randomness on top of a math/rand/v2 source. The gonum
// samplers draw from the same source, so one seed fixes every draw.
type Drawer struct {
	src  rand.Source
	rand *rand.Rand
}

// NewDrawer returns a Drawer backed by a HashSource seeded with seed.
func NewDrawer(seed int64) *Drawer {
	return NewDrawerFromSource(NewHashSource(seedBytes(seed)))
}

// NewDrawerFromSource wraps any math/rand/v2 source.
func NewDrawerFromSource(src rand.Source) *Drawer {
	return &Drawer{src: src, rand: rand.New(src)}
}

// Integer returns a uniform integer in [low, high].
func (d *Drawer) Integer(low, high int) int {
	if high <= low {
		return low
	}
	return low + d.rand.IntN(high-low+1)
}

// Categorical returns index i with probability weights[i]/sum(weights).
// Non-positive weights are never chosen. It returns -1 if no weight is positive.
func (d *Drawer) Categorical(weights []float64) int {
	positive := make([]float64, 0, len(weights))
	index := make([]int, 0, len(weights))
	for i, w := range weights {
		if w > 0 {
			positive = append(positive, w)
			index = append(index, i)
		}
	}
	if len(positive) == 0 {
		return -1
	}
	pick := int(distuv.NewCategorical(positive, d.src).Rand())
	return index[pick]
}

// Sample returns k distinct integers from [low, high]. If k exceeds the
// population the whole population is returned in random order.
func (d *Drawer) Sample(low, high, k int) []int {
	n := high - low + 1
	if n <= 0 || k <= 0 {
		return nil
	}
	idxs := make([]int, min(k, n))
	sampleuv.WithoutReplacement(idxs, n, d.src)
	for i := range idxs {
		idxs[i] += low
	}
	return idxs
}

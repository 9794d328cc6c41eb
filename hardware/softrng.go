package hardware

import (
	"crypto/rand"
	"crypto/sha256"
	"io"
	"sync"
)

// SoftRng implements the hardware RNG interface over crypto/rand.
// Supplied entropy is folded into a whitening pool mixed into every
// output, so AddEntropy has an observable effect even though the
// underlying source is already well seeded.
type SoftRng struct {
	mu   sync.Mutex
	pool [sha256.Size]byte
}

// NewSoftRng creates a software entropy source.
func NewSoftRng() *SoftRng {
	return &SoftRng{}
}

// AddEntropy folds data into the whitening pool.
func (r *SoftRng) AddEntropy(data []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	h := sha256.New()
	h.Write(r.pool[:])
	h.Write(data)
	copy(r.pool[:], h.Sum(nil))
	return nil
}

// GetRandomBytes returns n random bytes.
func (r *SoftRng) GetRandomBytes(n int) ([]byte, error) {
	out := make([]byte, n)
	if _, err := io.ReadFull(rand.Reader, out); err != nil {
		return nil, err
	}

	r.mu.Lock()
	mask := sha256.Sum256(r.pool[:])
	r.mu.Unlock()
	for i := range out {
		out[i] ^= mask[i%len(mask)]
	}
	return out, nil
}

package keymaster

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/ruteri/tee-keymaster-core/interfaces"
)

const (
	callsBetweenRngReseeds = 32
	rngReseedSize          = 64
)

// RngGate enforces the reseed policy over the hardware entropy source: a
// reseed before first use and another every 32nd gated call. A failed
// reseed leaves the gate not ready and is retried on the next call rather
// than surfaced.
type RngGate struct {
	hw  interfaces.HardwareRng
	log *slog.Logger

	mu               sync.Mutex
	initialized      bool
	callsSinceReseed int
}

// NewRngGate creates a gate over the given entropy source.
func NewRngGate(hw interfaces.HardwareRng, log *slog.Logger) *RngGate {
	return &RngGate{hw: hw, log: log}
}

// SeedIfNeeded runs the reseed policy and reports whether the gate is
// ready for use.
func (g *RngGate) SeedIfNeeded() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.shouldReseed() {
		g.reseed()
	}
	return g.initialized
}

func (g *RngGate) shouldReseed() bool {
	if !g.initialized {
		g.log.Info("RNG not initialized, reseed")
		return true
	}
	g.callsSinceReseed++
	if g.callsSinceReseed%callsBetweenRngReseeds == 0 {
		g.log.Info("periodic RNG reseed")
		return true
	}
	return false
}

func (g *RngGate) reseed() {
	seed, err := g.hw.GetRandomBytes(rngReseedSize)
	if err != nil {
		g.log.Error("failed to get bytes from HW RNG", "err", err)
		return
	}
	if err := g.hw.AddEntropy(seed); err != nil {
		g.log.Error("failed to fold reseed entropy", "err", err)
		return
	}
	g.log.Info("reseeded from HW RNG", "bytes", rngReseedSize)
	g.initialized = true
}

// AddEntropy forwards externally supplied entropy to the hardware pool.
func (g *RngGate) AddEntropy(data []byte) error {
	if err := g.hw.AddEntropy(data); err != nil {
		return fmt.Errorf("%w: add entropy: %v", interfaces.ErrSecureHwCommunicationFailed, err)
	}
	return nil
}

// GetRandomBytes returns gated hardware randomness.
func (g *RngGate) GetRandomBytes(n int) ([]byte, error) {
	if !g.SeedIfNeeded() {
		return nil, fmt.Errorf("%w: rng not ready", interfaces.ErrSecureHwCommunicationFailed)
	}
	data, err := g.hw.GetRandomBytes(n)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", interfaces.ErrSecureHwCommunicationFailed, err)
	}
	return data, nil
}

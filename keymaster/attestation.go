package keymaster

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ruteri/tee-keymaster-core/interfaces"
)

// Fixed non-secret fallback material. Deliberately not valid DER so that
// nothing downstream can mistake it for provisioned hardware-backed
// attestation material.
var (
	softAttestationKeyPrefix   = []byte("SOFT-ATTESTATION-TEST-KEY:")
	softAttestationChainPrefix = []byte("SOFT-ATTESTATION-TEST-CERT:")
)

// AttestationGate retrieves provisioned attestation keys and certificate
// chains and gates certificate generation by algorithm.
//
// When SoftFallback is enabled, a read failure substitutes a fixed
// non-secret test key or chain. That switch exists for development builds
// only; production configurations must leave it off.
type AttestationGate struct {
	storage      interfaces.SecureStorage
	certGen      interfaces.CertificateGenerator
	softFallback bool
	log          *slog.Logger
}

// NewAttestationGate creates a gate over secure storage and the external
// certificate generator.
func NewAttestationGate(storage interfaces.SecureStorage, certGen interfaces.CertificateGenerator, softFallback bool, log *slog.Logger) *AttestationGate {
	return &AttestationGate{storage: storage, certGen: certGen, softFallback: softFallback, log: log}
}

func attestationSlot(alg interfaces.Algorithm) (interfaces.AttestationKeySlot, error) {
	switch alg {
	case interfaces.AlgorithmRSA:
		return interfaces.AttestationSlotRSA, nil
	case interfaces.AlgorithmEC:
		return interfaces.AttestationSlotECDSA, nil
	default:
		return 0, fmt.Errorf("%w: no attestation key for %s", interfaces.ErrUnsupportedAlgorithm, alg)
	}
}

// GetAttestationKey reads the provisioned attestation key for the
// algorithm. Only RSA and EC are provisioned.
func (g *AttestationGate) GetAttestationKey(ctx context.Context, alg interfaces.Algorithm) ([]byte, error) {
	slot, err := attestationSlot(alg)
	if err != nil {
		return nil, err
	}

	if g.storage == nil {
		g.log.Error("no secure storage session for attestation key")
		return nil, interfaces.ErrSecureHwCommunicationFailed
	}

	key, err := g.storage.ReadKey(ctx, slot)
	if err != nil && g.softFallback {
		g.log.Info("failed to read attestation key from secure storage, falling back to test key", "slot", slot, "err", err)
		return append([]byte{}, append(softAttestationKeyPrefix, slot.String()...)...), nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: read attestation key: %v", interfaces.ErrSecureHwCommunicationFailed, err)
	}
	return key, nil
}

// GetAttestationChain reads the provisioned certificate chain for the
// algorithm.
func (g *AttestationGate) GetAttestationChain(ctx context.Context, alg interfaces.Algorithm) ([][]byte, error) {
	slot, err := attestationSlot(alg)
	if err != nil {
		return nil, err
	}

	if g.storage == nil {
		g.log.Error("no secure storage session for attestation chain")
		return nil, interfaces.ErrSecureHwCommunicationFailed
	}

	chain, err := g.storage.ReadCertChain(ctx, slot)
	if (err != nil || len(chain) == 0) && g.softFallback {
		g.log.Info("failed to read attestation chain from secure storage, falling back to test chain", "slot", slot, "err", err)
		return [][]byte{append([]byte{}, append(softAttestationChainPrefix, slot.String()...)...)}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: read attestation chain: %v", interfaces.ErrSecureHwCommunicationFailed, err)
	}
	if len(chain) == 0 {
		return nil, fmt.Errorf("%w: empty attestation chain", interfaces.ErrSecureHwCommunicationFailed)
	}
	return chain, nil
}

func keyAlgorithm(key interfaces.Key) (interfaces.Algorithm, error) {
	raw, ok := key.HwEnforced().GetEnum(interfaces.TagAlgorithm)
	if !ok {
		raw, ok = key.SwEnforced().GetEnum(interfaces.TagAlgorithm)
	}
	if !ok {
		return 0, fmt.Errorf("%w: key has no algorithm", interfaces.ErrUnknown)
	}
	return interfaces.Algorithm(raw), nil
}

// GenerateAttestation builds an attestation certificate chain for an
// asymmetric key, delegating certificate construction.
func (g *AttestationGate) GenerateAttestation(key interfaces.Key, attestParams *interfaces.Set, attestKey interfaces.Key, issuerSubject []byte) ([][]byte, error) {
	alg, err := keyAlgorithm(key)
	if err != nil {
		return nil, err
	}
	if alg != interfaces.AlgorithmRSA && alg != interfaces.AlgorithmEC {
		return nil, interfaces.ErrIncompatibleAlgorithm
	}
	if g.certGen == nil {
		return nil, interfaces.ErrUnimplemented
	}
	return g.certGen.GenerateAttestation(key, attestParams, attestKey, issuerSubject)
}

// GenerateSelfSignedCertificate builds a self-signed certificate for an
// asymmetric key, delegating certificate construction.
func (g *AttestationGate) GenerateSelfSignedCertificate(key interfaces.Key, certParams *interfaces.Set) ([][]byte, error) {
	alg, err := keyAlgorithm(key)
	if err != nil {
		return nil, err
	}
	if alg != interfaces.AlgorithmRSA && alg != interfaces.AlgorithmEC {
		return nil, interfaces.ErrIncompatibleAlgorithm
	}
	if g.certGen == nil {
		return nil, interfaces.ErrUnimplemented
	}
	return g.certGen.GenerateSelfSigned(key, certParams)
}

package keymaster

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/ruteri/tee-keymaster-core/authorization"
	"github.com/ruteri/tee-keymaster-core/interfaces"
	"github.com/ruteri/tee-keymaster-core/keyblob"
)

// Config wires a Context to its hardware collaborators and sets the
// device build capabilities.
type Config struct {
	Kdf              interfaces.HardwareKdf
	Rng              interfaces.HardwareRng
	SecureStorage    interfaces.SecureStorage
	CertGen          interfaces.CertificateGenerator
	WrappedKeyParser interfaces.WrappedKeyParser

	// Factories maps each supported algorithm to its key factory.
	Factories map[interfaces.Algorithm]interfaces.KeyFactory

	// MasterKeySize selects the blob-wrapping key size; zero means the
	// current 32-byte size. Devices upgraded from old firmware set 16 to
	// keep their blobs decryptable.
	MasterKeySize int

	StorageKeySupport      bool
	FingerprintAuthSupport bool

	// AcceptLegacyBlobs keeps the legacy-format compatibility relaxation
	// on; see keyblob.Config.
	AcceptLegacyBlobs bool

	// SoftAttestationFallback substitutes fixed test attestation material
	// when secure storage reads fail. Development builds only.
	SoftAttestationFallback bool

	// Debug seeds fake boot parameters on SetSystemVersion if the
	// bootloader never supplied any. Never enable on shipping devices.
	Debug bool

	Log *slog.Logger
}

// Context is the security-policy and key-lifecycle coordinator. It owns
// the RNG gate, master key derivation, root-of-trust state, the blob
// lifecycle, attestation, and the key-unwrap protocol, composing them
// over the narrow hardware interfaces in Config.
//
// The surrounding dispatcher serializes commands, so Context assumes one
// call at a time; individual components still guard their own state for
// safety.
type Context struct {
	cfg *Config
	log *slog.Logger

	rng    *RngGate
	master *MasterKeyDeriver
	rot    *RootOfTrustState
	attest *AttestationGate
	blobs  *keyblob.Manager

	authTokenMu  sync.Mutex
	authTokenKey []byte
}

// New creates a Context from the configuration.
func New(cfg *Config) (*Context, error) {
	log := cfg.Log
	if log == nil {
		log = slog.Default()
	}
	log.Debug("creating keymaster context")

	keySize := cfg.MasterKeySize
	if keySize == 0 {
		keySize = MasterKeySizeCurrent
	}

	master, err := NewMasterKeyDeriver(cfg.Kdf, keySize, log)
	if err != nil {
		return nil, err
	}

	c := &Context{
		cfg:    cfg,
		log:    log,
		rng:    NewRngGate(cfg.Rng, log),
		master: master,
		rot:    NewRootOfTrustState(log),
		attest: NewAttestationGate(cfg.SecureStorage, cfg.CertGen, cfg.SoftAttestationFallback, log),
	}

	c.blobs = keyblob.NewManager(&keyblob.Config{
		Master:    c.master,
		Versions:  c.rot,
		Boot:      c.rot,
		Factories: c,
		Random:    c.rng,
		Classifier: authorization.Options{
			StorageKeySupport:      cfg.StorageKeySupport,
			FingerprintAuthSupport: cfg.FingerprintAuthSupport,
		},
		AcceptLegacyBlobs: cfg.AcceptLegacyBlobs,
		Log:               log,
	})

	return c, nil
}

// KeyFactory returns the factory for the algorithm, or nil.
func (c *Context) KeyFactory(alg interfaces.Algorithm) interfaces.KeyFactory {
	return c.cfg.Factories[alg]
}

// SupportedAlgorithms lists the algorithms with a registered factory.
func (c *Context) SupportedAlgorithms() []interfaces.Algorithm {
	all := []interfaces.Algorithm{
		interfaces.AlgorithmRSA,
		interfaces.AlgorithmEC,
		interfaces.AlgorithmAES,
		interfaces.AlgorithmHMAC,
		interfaces.AlgorithmTripleDES,
	}
	supported := make([]interfaces.Algorithm, 0, len(all))
	for _, alg := range all {
		if c.cfg.Factories[alg] != nil {
			supported = append(supported, alg)
		}
	}
	return supported
}

// OperationFactory returns the operation factory for an algorithm and
// purpose, or nil.
func (c *Context) OperationFactory(alg interfaces.Algorithm, purpose interfaces.Purpose) interfaces.OperationFactory {
	factory := c.KeyFactory(alg)
	if factory == nil {
		return nil
	}
	return factory.OperationFactory(purpose)
}

// CreateKeyBlob builds an encrypted blob for new key material.
func (c *Context) CreateKeyBlob(description *interfaces.Set, origin interfaces.KeyOrigin, keyMaterial []byte) (blob []byte, hwEnforced, swEnforced *interfaces.Set, err error) {
	return c.blobs.CreateKeyBlob(description, origin, keyMaterial)
}

// ParseKeyBlob decrypts a blob and materializes the typed key.
func (c *Context) ParseKeyBlob(blob []byte, additionalParams *interfaces.Set) (interfaces.Key, error) {
	return c.blobs.ParseKeyBlob(blob, additionalParams, false)
}

// UpgradeKeyBlob re-binds a blob to the current system version. A nil
// result with nil error means the blob is already current.
func (c *Context) UpgradeKeyBlob(blob []byte, upgradeParams *interfaces.Set) ([]byte, error) {
	return c.blobs.UpgradeKeyBlob(blob, upgradeParams)
}

// SeedRngIfNeeded runs the RNG reseed policy.
func (c *Context) SeedRngIfNeeded() bool {
	return c.rng.SeedIfNeeded()
}

// AddRngEntropy forwards caller-supplied entropy to the hardware RNG.
func (c *Context) AddRngEntropy(data []byte) error {
	return c.rng.AddEntropy(data)
}

// SetBootParams records bootloader-reported boot state, once per boot.
func (c *Context) SetBootParams(verifiedBootKey []byte, state interfaces.VerifiedBootState, deviceLocked bool, verifiedBootHash []byte) error {
	return c.rot.SetBootParams(verifiedBootKey, state, deviceLocked, verifiedBootHash)
}

// GetVerifiedBootParams returns the current root-of-trust snapshot.
func (c *Context) GetVerifiedBootParams() interfaces.RootOfTrust {
	return c.rot.RootOfTrust()
}

// SetSystemVersion records the OS version info delivered by
// configuration. First call wins; repeats are ignored.
func (c *Context) SetSystemVersion(osVersion, osPatchlevel uint32) {
	c.rot.SetSystemVersion(osVersion, osPatchlevel)

	if c.cfg.Debug {
		// Stand in for a bootloader on development hardware that never
		// calls SetBootParams. Ignored once real parameters exist.
		fakeKey := []byte("00011122233344455566677788899900")
		err := c.rot.SetBootParams(fakeKey, interfaces.VerifiedBootVerified, true, nil)
		if err != nil && !errors.Is(err, interfaces.ErrRootOfTrustAlreadySet) {
			c.log.Error("failed to set debug boot params", "err", err)
		}
	}
}

// GetSystemVersion returns the recorded OS version info.
func (c *Context) GetSystemVersion() (osVersion, osPatchlevel uint32) {
	return c.rot.SystemVersion()
}

// GetAttestationKey reads the provisioned attestation key for the
// algorithm.
func (c *Context) GetAttestationKey(ctx context.Context, alg interfaces.Algorithm) ([]byte, error) {
	return c.attest.GetAttestationKey(ctx, alg)
}

// GetAttestationChain reads the provisioned attestation certificate chain
// for the algorithm.
func (c *Context) GetAttestationChain(ctx context.Context, alg interfaces.Algorithm) ([][]byte, error) {
	return c.attest.GetAttestationChain(ctx, alg)
}

// GenerateAttestation builds an attestation chain for a key.
func (c *Context) GenerateAttestation(key interfaces.Key, attestParams *interfaces.Set, attestKey interfaces.Key, issuerSubject []byte) ([][]byte, error) {
	return c.attest.GenerateAttestation(key, attestParams, attestKey, issuerSubject)
}

// GenerateSelfSignedCertificate builds a self-signed certificate for a
// key.
func (c *Context) GenerateSelfSignedCertificate(key interfaces.Key, certParams *interfaces.Set) ([][]byte, error) {
	return c.attest.GenerateSelfSignedCertificate(key, certParams)
}

package interfaces

import "context"

// Key is a decrypted, typed key together with its authorization sets.
// Implementations are produced by the algorithm-specific KeyFactory
// collaborators; this layer treats them opaquely apart from the
// accessors below.
type Key interface {
	// KeyMaterial returns the raw key bytes.
	KeyMaterial() []byte
	// HwEnforced returns the hardware-enforced authorization set. The
	// blob lifecycle mutates it in place during upgrades.
	HwEnforced() *Set
	// SwEnforced returns the software-enforced authorization set.
	SwEnforced() *Set
	// Factory returns the factory that loaded this key.
	Factory() KeyFactory
}

// KeyFactory materializes typed keys from recovered key material and
// hands out operation factories per purpose.
type KeyFactory interface {
	LoadKey(material []byte, additionalParams, hwEnforced, swEnforced *Set) (Key, error)
	OperationFactory(purpose Purpose) OperationFactory
}

// OperationFactory creates operations bound to a key and begin params.
type OperationFactory interface {
	New(key Key, params *Set) (Operation, error)
}

// Operation is a begin/update/finish cryptographic operation. Update and
// Finish both may produce output; callers concatenate.
type Operation interface {
	Begin(params *Set) (*Set, error)
	Update(params *Set, input []byte) (output []byte, err error)
	Finish(params *Set, input []byte) (output []byte, err error)
}

// RawKey is a plain Key implementation for factories that keep key
// material as-is.
type RawKey struct {
	Material []byte
	Hw       *Set
	Sw       *Set
	Fac      KeyFactory
}

func (k *RawKey) KeyMaterial() []byte { return k.Material }
func (k *RawKey) HwEnforced() *Set    { return k.Hw }
func (k *RawKey) SwEnforced() *Set    { return k.Sw }
func (k *RawKey) Factory() KeyFactory { return k.Fac }

// WrappedKeyData is the parsed form of an externally wrapped key
// container. The binary schema is owned by the wrapped-key format spec;
// this layer only consumes the extracted fields.
type WrappedKeyData struct {
	IV           []byte
	TransitKey   []byte
	SecureKey    []byte
	Tag          []byte
	Description  []byte
	AuthList     *Set
	KeyFormat    KeyFormat
}

// WrappedKeyParser parses a wrapped key container.
type WrappedKeyParser interface {
	Parse(wrappedKeyBlob []byte) (*WrappedKeyData, error)
}

// SecureStorage reads provisioned attestation material from tamper-proof
// persistent storage (RPMB or an external secret store standing in for
// it during development).
type SecureStorage interface {
	ReadKey(ctx context.Context, slot AttestationKeySlot) ([]byte, error)
	ReadCertChain(ctx context.Context, slot AttestationKeySlot) ([][]byte, error)
}

// HardwareRng is the hardware entropy source.
type HardwareRng interface {
	// AddEntropy folds caller-supplied entropy into the pool.
	AddEntropy(data []byte) error
	// GetRandomBytes returns n bytes of hardware randomness.
	GetRandomBytes(n int) ([]byte, error)
}

// KdfSession is an open session against the hardware key-derivation
// service.
type KdfSession interface {
	// Derive runs the versioned KDF over the hardware-unique secret with
	// the given domain-separation label, producing length bytes.
	Derive(version uint32, label []byte, length int) ([]byte, error)
	Close() error
}

// HardwareKdf opens sessions to the hardware key-derivation service
// backed by the device-unique secret.
type HardwareKdf interface {
	OpenSession() (KdfSession, error)
}

// CertificateGenerator constructs attestation and self-signed certificate
// chains. DER encoding and signing live behind this interface.
type CertificateGenerator interface {
	GenerateAttestation(key Key, attestParams *Set, attestKey Key, issuerSubject []byte) ([][]byte, error)
	GenerateSelfSigned(key Key, certParams *Set) ([][]byte, error)
}

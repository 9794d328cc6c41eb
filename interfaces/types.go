package interfaces

// Algorithm identifies an asymmetric or symmetric key algorithm. Values
// match the keymaster wire enumeration.
type Algorithm uint32

const (
	AlgorithmRSA       Algorithm = 1
	AlgorithmEC        Algorithm = 3
	AlgorithmAES       Algorithm = 32
	AlgorithmTripleDES Algorithm = 33
	AlgorithmHMAC      Algorithm = 128
)

// String returns the algorithm name.
func (a Algorithm) String() string {
	switch a {
	case AlgorithmRSA:
		return "RSA"
	case AlgorithmEC:
		return "EC"
	case AlgorithmAES:
		return "AES"
	case AlgorithmTripleDES:
		return "3DES"
	case AlgorithmHMAC:
		return "HMAC"
	default:
		return "unknown"
	}
}

// Purpose describes what a key may be used for.
type Purpose uint32

const (
	PurposeEncrypt   Purpose = 0
	PurposeDecrypt   Purpose = 1
	PurposeSign      Purpose = 2
	PurposeVerify    Purpose = 3
	PurposeDeriveKey Purpose = 4
	PurposeWrap      Purpose = 5
	PurposeAgreeKey  Purpose = 6
	PurposeAttestKey Purpose = 7
)

// Digest identifies a hash function.
type Digest uint32

const (
	DigestNone   Digest = 0
	DigestMD5    Digest = 1
	DigestSHA1   Digest = 2
	DigestSHA224 Digest = 3
	DigestSHA256 Digest = 4
	DigestSHA384 Digest = 5
	DigestSHA512 Digest = 6
)

// PaddingMode identifies a cipher or signature padding scheme.
type PaddingMode uint32

const (
	PaddingNone             PaddingMode = 1
	PaddingRSAOAEP          PaddingMode = 2
	PaddingRSAPSS           PaddingMode = 3
	PaddingRSAPKCS1Encrypt  PaddingMode = 4
	PaddingRSAPKCS1Sign     PaddingMode = 5
	PaddingPKCS7            PaddingMode = 64
)

// BlockMode identifies a symmetric cipher block mode.
type BlockMode uint32

const (
	BlockModeECB BlockMode = 1
	BlockModeCBC BlockMode = 2
	BlockModeCTR BlockMode = 3
	BlockModeGCM BlockMode = 32
)

// KeyOrigin records how key material came to exist inside the trusted
// environment.
type KeyOrigin uint32

const (
	OriginGenerated        KeyOrigin = 0
	OriginDerived          KeyOrigin = 1
	OriginImported         KeyOrigin = 2
	OriginUnknown          KeyOrigin = 3
	OriginSecurelyImported KeyOrigin = 4
)

// KeyFormat identifies the serialization of externally supplied key
// material.
type KeyFormat uint32

const (
	KeyFormatX509  KeyFormat = 0
	KeyFormatPKCS8 KeyFormat = 1
	KeyFormatRaw   KeyFormat = 3
)

// VerifiedBootState reflects the bootloader's verdict on the booted image.
type VerifiedBootState uint32

const (
	VerifiedBootVerified   VerifiedBootState = 0
	VerifiedBootSelfSigned VerifiedBootState = 1
	VerifiedBootUnverified VerifiedBootState = 2
	VerifiedBootFailed     VerifiedBootState = 3
)

// HardwareAuthenticatorType is a bitmask of authentication factors the
// trusted environment can verify.
type HardwareAuthenticatorType uint32

const (
	HardwareAuthNone        HardwareAuthenticatorType = 0
	HardwareAuthPassword    HardwareAuthenticatorType = 1 << 0
	HardwareAuthFingerprint HardwareAuthenticatorType = 1 << 1
	HardwareAuthAny         HardwareAuthenticatorType = 0xffffffff
)

// RootOfTrust is the boot-state snapshot bound into every key blob.
// VerifiedBootKey is empty or up to 32 bytes of boot key digest.
type RootOfTrust struct {
	VerifiedBootKey   []byte
	VerifiedBootHash  []byte
	VerifiedBootState VerifiedBootState
	DeviceLocked      bool
}

// AttestationKeySlot selects a provisioned attestation key in secure
// storage.
type AttestationKeySlot int

const (
	AttestationSlotRSA AttestationKeySlot = iota
	AttestationSlotECDSA
)

// String returns the slot name used by storage backends.
func (s AttestationKeySlot) String() string {
	switch s {
	case AttestationSlotRSA:
		return "rsa"
	case AttestationSlotECDSA:
		return "ecdsa"
	default:
		return "unknown"
	}
}

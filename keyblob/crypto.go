package keyblob

import (
	"crypto/aes"
	"crypto/cipher"
	"fmt"

	"github.com/ruteri/tee-keymaster-core/interfaces"
)

const (
	nonceSize = 12
	tagSize   = 16
)

// RandomSource supplies nonces for blob encryption.
type RandomSource interface {
	GetRandomBytes(n int) ([]byte, error)
}

// gcmAAD builds the associated data binding a blob to its hidden
// authorizations and, in the current format, to both enforcement sets.
// The legacy format predates authenticating the enforcement sets and
// binds only the hidden authorizations.
func gcmAAD(format byte, hwEnforced, swEnforced, hidden *interfaces.Set) []byte {
	aad := hidden.Serialize()
	if format == FormatGCMWithSwEnforced {
		aad = append(aad, hwEnforced.Serialize()...)
		aad = append(aad, swEnforced.Serialize()...)
	}
	return aad
}

// EncryptKey authenticated-encrypts key material under the master key,
// bound to the enforcement sets and the hidden authorizations.
func EncryptKey(material []byte, format byte, hwEnforced, swEnforced, hidden *interfaces.Set, masterKey []byte, random RandomSource) (EncryptedKey, error) {
	block, err := aes.NewCipher(masterKey)
	if err != nil {
		return EncryptedKey{}, fmt.Errorf("%w: master key: %v", interfaces.ErrUnknown, err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return EncryptedKey{}, fmt.Errorf("%w: gcm init: %v", interfaces.ErrUnknown, err)
	}

	nonce, err := random.GetRandomBytes(nonceSize)
	if err != nil {
		return EncryptedKey{}, fmt.Errorf("%w: nonce: %v", interfaces.ErrSecureHwCommunicationFailed, err)
	}

	sealed := gcm.Seal(nil, nonce, material, gcmAAD(format, hwEnforced, swEnforced, hidden))
	split := len(sealed) - tagSize
	return EncryptedKey{
		Format:     format,
		Nonce:      nonce,
		Ciphertext: sealed[:split],
		Tag:        sealed[split:],
	}, nil
}

// DecryptKey recovers key material from an envelope. A mismatch anywhere
// in the binding, including the recomputed hidden authorizations, fails
// with ErrAuthenticationFailure and no indication of what differed.
func DecryptKey(e *Envelope, hidden *interfaces.Set, masterKey []byte) ([]byte, error) {
	block, err := aes.NewCipher(masterKey)
	if err != nil {
		return nil, fmt.Errorf("%w: master key: %v", interfaces.ErrUnknown, err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("%w: gcm init: %v", interfaces.ErrUnknown, err)
	}
	if len(e.Nonce) != nonceSize || len(e.Tag) != tagSize {
		return nil, interfaces.ErrInvalidKeyBlob
	}

	sealed := append(append([]byte{}, e.Ciphertext...), e.Tag...)
	material, err := gcm.Open(nil, e.Nonce, sealed, gcmAAD(e.Format, e.HwEnforced, e.SwEnforced, hidden))
	if err != nil {
		return nil, interfaces.ErrAuthenticationFailure
	}
	return material, nil
}

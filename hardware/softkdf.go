package hardware

import (
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"

	"github.com/ruteri/tee-keymaster-core/interfaces"
)

// SoftKdf implements the hardware KDF interface over a provisioned
// device-unique secret using HKDF-SHA256. The KDF version becomes part
// of the HKDF salt, so bumping the version changes every derived key.
type SoftKdf struct {
	secret []byte
}

// NewSoftKdf creates a software KDF. The device secret must be at least
// 32 bytes.
func NewSoftKdf(deviceSecret []byte) (*SoftKdf, error) {
	if len(deviceSecret) < 32 {
		return nil, errors.New("device secret must be at least 32 bytes")
	}
	secret := make([]byte, len(deviceSecret))
	copy(secret, deviceSecret)
	return &SoftKdf{secret: secret}, nil
}

// OpenSession opens a derivation session.
func (k *SoftKdf) OpenSession() (interfaces.KdfSession, error) {
	return &softKdfSession{secret: k.secret}, nil
}

type softKdfSession struct {
	secret []byte
	closed bool
}

func (s *softKdfSession) Derive(version uint32, label []byte, length int) ([]byte, error) {
	if s.closed {
		return nil, errors.New("kdf session closed")
	}
	if length <= 0 {
		return nil, fmt.Errorf("invalid derivation length %d", length)
	}

	salt := make([]byte, 4)
	binary.LittleEndian.PutUint32(salt, version)

	out := make([]byte, length)
	if _, err := io.ReadFull(hkdf.New(sha256.New, s.secret, salt, label), out); err != nil {
		return nil, fmt.Errorf("hkdf read: %w", err)
	}
	return out, nil
}

func (s *softKdfSession) Close() error {
	s.closed = true
	return nil
}

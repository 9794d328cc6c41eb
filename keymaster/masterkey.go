package keymaster

import (
	"fmt"
	"log/slog"

	"github.com/ruteri/tee-keymaster-core/interfaces"
)

// kdfVersion pins the versioned hardware KDF used for master key
// derivation. Bumping it invalidates every existing blob.
const kdfVersion = 1

// masterKeyDerivationLabel is the fixed domain-separation label, padded
// with zeros up to the wrapping key size.
const masterKeyDerivationLabel = "KeymasterMaster"

// Wrapping key sizes. Devices issued before the key-size expansion keep
// the 16-byte key so their existing blobs stay decryptable; new devices
// use 32.
const (
	MasterKeySizeLegacy  = 16
	MasterKeySizeCurrent = 32
)

// MasterKeyDeriver derives the symmetric blob-wrapping key from the
// hardware-unique secret. Each call opens a fresh KDF session and closes
// it before returning; nothing is cached across calls.
type MasterKeyDeriver struct {
	kdf     interfaces.HardwareKdf
	keySize int
	log     *slog.Logger
}

// NewMasterKeyDeriver creates a deriver producing keys of the given size.
func NewMasterKeyDeriver(kdf interfaces.HardwareKdf, keySize int, log *slog.Logger) (*MasterKeyDeriver, error) {
	if keySize != MasterKeySizeLegacy && keySize != MasterKeySizeCurrent {
		return nil, fmt.Errorf("%w: master key size %d", interfaces.ErrInvalidArgument, keySize)
	}
	return &MasterKeyDeriver{kdf: kdf, keySize: keySize, log: log}, nil
}

// DeriveMasterKey derives the blob-wrapping key.
func (d *MasterKeyDeriver) DeriveMasterKey() ([]byte, error) {
	d.log.Debug("deriving master key")

	session, err := d.kdf.OpenSession()
	if err != nil {
		return nil, fmt.Errorf("%w: open kdf session: %v", interfaces.ErrSecureHwCommunicationFailed, err)
	}
	defer session.Close()

	label := make([]byte, d.keySize)
	copy(label, masterKeyDerivationLabel)

	key, err := session.Derive(kdfVersion, label, d.keySize)
	if err != nil {
		d.log.Error("error deriving master key", "err", err)
		return nil, fmt.Errorf("%w: derive: %v", interfaces.ErrSecureHwCommunicationFailed, err)
	}
	return key, nil
}

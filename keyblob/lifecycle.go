package keyblob

import (
	"bytes"
	"fmt"
	"log/slog"

	"github.com/ruteri/tee-keymaster-core/authorization"
	"github.com/ruteri/tee-keymaster-core/interfaces"
)

// MasterKeySource derives the blob-wrapping master key.
type MasterKeySource interface {
	DeriveMasterKey() ([]byte, error)
}

// VersionSource reports the currently booted OS version and patchlevel.
type VersionSource interface {
	SystemVersion() (osVersion, osPatchlevel uint32)
}

// BootStateSource reports the current root-of-trust snapshot.
type BootStateSource interface {
	RootOfTrust() interfaces.RootOfTrust
}

// FactorySource resolves the key factory for an algorithm, or nil.
type FactorySource interface {
	KeyFactory(alg interfaces.Algorithm) interfaces.KeyFactory
}

// Config wires a Manager to its collaborators.
type Config struct {
	Master    MasterKeySource
	Versions  VersionSource
	Boot      BootStateSource
	Factories FactorySource
	Random    RandomSource

	Classifier authorization.Options

	// AcceptLegacyBlobs keeps parsing legacy-format blobs even when the
	// caller disallowed them. The strict behavior would be to demand an
	// upgrade first, but upgrade handling of legacy storage-key blobs is
	// broken upstream, so acceptance stays on until that is fixed.
	AcceptLegacyBlobs bool

	Log *slog.Logger
}

// Manager creates, parses, and upgrades encrypted key blobs. Blobs are
// immutable: an upgrade produces a new independent blob and never touches
// the old one. The Manager itself is stateless between calls.
type Manager struct {
	cfg *Config
	log *slog.Logger
}

// NewManager creates a blob lifecycle manager.
func NewManager(cfg *Config) *Manager {
	log := cfg.Log
	if log == nil {
		log = slog.Default()
	}
	return &Manager{cfg: cfg, log: log}
}

// CreateKeyBlob classifies the key description, binds the result to the
// current application and boot state, and produces an encrypted blob.
// The returned enforcement sets are what the blob actually carries.
func (m *Manager) CreateKeyBlob(description *interfaces.Set, origin interfaces.KeyOrigin, keyMaterial []byte) (blob []byte, hwEnforced, swEnforced *interfaces.Set, err error) {
	osVersion, osPatchlevel := m.cfg.Versions.SystemVersion()
	hwEnforced, swEnforced, err = authorization.Classify(description, origin, osVersion, osPatchlevel, m.cfg.Classifier)
	if err != nil {
		return nil, nil, nil, err
	}

	blob, err = m.encryptBlob(description, keyMaterial, hwEnforced, swEnforced)
	if err != nil {
		return nil, nil, nil, err
	}
	return blob, hwEnforced, swEnforced, nil
}

// encryptBlob derives the master key, builds hidden authorizations from
// the description, and seals the material into a current-format blob.
func (m *Manager) encryptBlob(description *interfaces.Set, keyMaterial []byte, hwEnforced, swEnforced *interfaces.Set) ([]byte, error) {
	hidden, err := authorization.BuildHidden(description, m.cfg.Boot.RootOfTrust())
	if err != nil {
		return nil, err
	}

	masterKey, err := m.cfg.Master.DeriveMasterKey()
	if err != nil {
		return nil, err
	}

	encrypted, err := EncryptKey(keyMaterial, FormatGCMWithSwEnforced, hwEnforced, swEnforced, hidden, masterKey, m.cfg.Random)
	if err != nil {
		return nil, err
	}

	e := &Envelope{EncryptedKey: encrypted, HwEnforced: hwEnforced, SwEnforced: swEnforced}
	return e.Serialize(), nil
}

// ParseKeyBlob decrypts and materializes a key from a blob.
//
// Blobs may carry the fixed compatibility prefix; a hardware key type
// strips it, a software key type is rejected, anything else is invalid.
// The hidden authorizations are rebuilt from additionalParams, so a
// caller that supplies different application id/data than at create time
// gets ErrAuthenticationFailure, not a parse error.
func (m *Manager) ParseKeyBlob(blob []byte, additionalParams *interfaces.Set, allowLegacy bool) (interfaces.Key, error) {
	if len(blob) >= keystoreBlobPrefixSize && bytes.Equal(blob[:len(keystoreBlobMagic)], keystoreBlobMagic) {
		switch blob[keystoreKeyTypeOffset] {
		case keystoreKeyTypeHardware:
			blob = blob[keystoreBlobPrefixSize:]
		case keystoreKeyTypeSoftware:
			m.log.Error("software key blobs are not supported")
			return nil, fmt.Errorf("%w: software key blob", interfaces.ErrInvalidKeyBlob)
		default:
			m.log.Error("invalid keystore blob prefix", "keyType", blob[keystoreKeyTypeOffset])
			return nil, fmt.Errorf("%w: unknown prefixed key type", interfaces.ErrInvalidKeyBlob)
		}
	}

	envelope, err := Deserialize(blob)
	if err != nil {
		return nil, err
	}

	if envelope.Format == FormatLegacy && !allowLegacy {
		if !m.cfg.AcceptLegacyBlobs {
			return nil, interfaces.ErrKeyRequiresUpgrade
		}
		m.log.Debug("accepting legacy-format blob", "format", envelope.Format)
	}

	masterKey, err := m.cfg.Master.DeriveMasterKey()
	if err != nil {
		return nil, err
	}

	hidden, err := authorization.BuildHidden(additionalParams, m.cfg.Boot.RootOfTrust())
	if err != nil {
		return nil, err
	}

	keyMaterial, err := DecryptKey(envelope, hidden, masterKey)
	if err != nil {
		return nil, err
	}

	rawAlg, ok := envelope.HwEnforced.GetEnum(interfaces.TagAlgorithm)
	if !ok {
		return nil, fmt.Errorf("%w: missing algorithm", interfaces.ErrInvalidKeyBlob)
	}

	factory := m.cfg.Factories.KeyFactory(interfaces.Algorithm(rawAlg))
	if factory == nil {
		return nil, fmt.Errorf("%w: algorithm %d", interfaces.ErrUnsupportedAlgorithm, rawAlg)
	}
	return factory.LoadKey(keyMaterial, additionalParams, envelope.HwEnforced, envelope.SwEnforced)
}

// upgradeIntegerTag moves tag forward to value: absent tags are added,
// equal values are left alone, smaller stored values are raised. A stored
// value greater than the current one reports failure.
func upgradeIntegerTag(set *interfaces.Set, tag interfaces.Tag, value uint32, setChanged *bool) bool {
	i := set.Find(tag)
	if i == -1 {
		*setChanged = true
		set.Add(interfaces.UintParam(tag, value))
		return true
	}

	stored := set.Params()[i].Value
	if stored > uint64(value) {
		return false
	}
	if stored != uint64(value) {
		*setChanged = true
		set.SetValue(tag, uint64(value))
	}
	return true
}

// UpgradeKeyBlob re-binds a blob to the current OS version and
// patchlevel. Version fields move forward only; a blob recorded under a
// newer version than the running one fails with ErrInvalidArgument. When
// nothing would change, it returns (nil, nil) and the caller keeps using
// the old blob.
func (m *Manager) UpgradeKeyBlob(blob []byte, upgradeParams *interfaces.Set) ([]byte, error) {
	key, err := m.ParseKeyBlob(blob, upgradeParams, true)
	if err != nil {
		return nil, err
	}
	m.log.Info("upgrading key blob")

	setChanged := false
	osVersion, osPatchlevel := m.cfg.Versions.SystemVersion()

	if osVersion == 0 {
		// Moving from a numbered release to an unnumbered development
		// build is the one permitted version downgrade.
		if i := key.SwEnforced().Find(interfaces.TagOSVersion); i != -1 && key.SwEnforced().Params()[i].Value != 0 {
			setChanged = true
			key.SwEnforced().SetValue(interfaces.TagOSVersion, 0)
		}
	}

	if !upgradeIntegerTag(key.HwEnforced(), interfaces.TagOSVersion, osVersion, &setChanged) ||
		!upgradeIntegerTag(key.HwEnforced(), interfaces.TagOSPatchlevel, osPatchlevel, &setChanged) {
		// One of the version fields would have been a downgrade.
		return nil, interfaces.ErrInvalidArgument
	}

	if !setChanged {
		return nil, nil
	}

	return m.encryptBlob(upgradeParams, key.KeyMaterial(), key.HwEnforced(), key.SwEnforced())
}

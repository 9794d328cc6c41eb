package keymaster

import (
	"bytes"
	"fmt"
	"log/slog"
	"sync"

	"github.com/ruteri/tee-keymaster-core/interfaces"
)

// unboundBootKey is what blobs bind to when the bootloader never reported
// boot parameters.
var unboundBootKey = []byte("Unbound")

const maxVerifiedBootKeySize = 32

// RootOfTrustState holds the boot-state facts blobs are bound to. Boot
// parameters are settable exactly once per boot; the OS version info is
// settable once separately, because it arrives from configuration rather
// than from the bootloader.
type RootOfTrustState struct {
	log *slog.Logger

	mu sync.RWMutex

	rootOfTrustSet    bool
	verifiedBootKey   []byte
	verifiedBootHash  []byte
	verifiedBootState interfaces.VerifiedBootState
	deviceLocked      bool

	versionInfoSet   bool
	bootOSVersion    uint32
	bootOSPatchlevel uint32
}

// NewRootOfTrustState creates state with the unbound boot key default.
func NewRootOfTrustState(log *slog.Logger) *RootOfTrustState {
	return &RootOfTrustState{
		log:               log,
		verifiedBootKey:   bytes.Clone(unboundBootKey),
		verifiedBootState: interfaces.VerifiedBootUnverified,
	}
}

// SetBootParams records the bootloader-supplied boot state. A second call
// always fails with ErrRootOfTrustAlreadySet regardless of arguments.
//
// A verified or self-signed state without a boot key degrades to
// unverified and unlocked; any unsigned state forces the device-locked
// flag off.
func (s *RootOfTrustState) SetBootParams(verifiedBootKey []byte, state interfaces.VerifiedBootState, deviceLocked bool, verifiedBootHash []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.rootOfTrustSet {
		return interfaces.ErrRootOfTrustAlreadySet
	}
	if len(verifiedBootKey) > maxVerifiedBootKeySize {
		return fmt.Errorf("%w: verified boot key longer than %d bytes", interfaces.ErrInvalidArgument, maxVerifiedBootKeySize)
	}

	s.rootOfTrustSet = true
	s.verifiedBootHash = bytes.Clone(verifiedBootHash)
	s.verifiedBootState = state
	s.deviceLocked = deviceLocked
	s.verifiedBootKey = []byte{}

	if state == interfaces.VerifiedBootVerified || state == interfaces.VerifiedBootSelfSigned {
		if len(verifiedBootKey) > 0 {
			s.verifiedBootKey = bytes.Clone(verifiedBootKey)
		} else {
			// No boot key means the state cannot be trusted.
			s.verifiedBootState = interfaces.VerifiedBootUnverified
			s.deviceLocked = false
		}
	} else {
		// An unsigned image cannot be locked.
		s.deviceLocked = false
	}

	s.log.Info("boot parameters set",
		"state", s.verifiedBootState,
		"deviceLocked", s.deviceLocked,
		"bootKeyLen", len(s.verifiedBootKey))
	return nil
}

// SetSystemVersion records the OS version and patchlevel. Only the first
// call takes effect; later calls are ignored so that repeated
// configuration is harmless.
func (s *RootOfTrustState) SetSystemVersion(osVersion, osPatchlevel uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.versionInfoSet {
		return
	}
	s.bootOSVersion = osVersion
	s.bootOSPatchlevel = osPatchlevel
	s.versionInfoSet = true
}

// SystemVersion returns the recorded OS version and patchlevel, zero if
// never set.
func (s *RootOfTrustState) SystemVersion() (osVersion, osPatchlevel uint32) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.bootOSVersion, s.bootOSPatchlevel
}

// RootOfTrust returns a snapshot of the verified boot facts.
func (s *RootOfTrustState) RootOfTrust() interfaces.RootOfTrust {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return interfaces.RootOfTrust{
		VerifiedBootKey:   bytes.Clone(s.verifiedBootKey),
		VerifiedBootHash:  bytes.Clone(s.verifiedBootHash),
		VerifiedBootState: s.verifiedBootState,
		DeviceLocked:      s.deviceLocked,
	}
}

package authorization

import (
	"errors"
	"fmt"

	"github.com/ruteri/tee-keymaster-core/interfaces"
)

// policyClass is the routing decision for one tag in a key description.
type policyClass int

const (
	// classForbidden tags must never appear in a key description.
	classForbidden policyClass = iota
	// classCertificateOnly tags inform certificate creation and are
	// dropped from blobs.
	classCertificateOnly
	// classRejectedUnimplemented tags fail the request.
	classRejectedUnimplemented
	// classDroppedUnimplemented tags are silently ignored.
	classDroppedUnimplemented
	// classDroppedObsolete tags are silently ignored.
	classDroppedObsolete
	// classDroppedSetLater tags are ignored here because the classifier
	// itself sets their authoritative values.
	classDroppedSetLater
	// classHardware tags are copied to hw_enforced.
	classHardware
	// classHardwareAuthType is hardware-enforced with the supported
	// auth-factor mask applied.
	classHardwareAuthType
	// classStorageKey is accepted or rejected by build capability.
	classStorageKey
	// classSoftware tags are copied to sw_enforced (keystore-enforced).
	classSoftware
)

// rejection maps a tag to its specific failure when its class rejects.
type policyEntry struct {
	class  policyClass
	reject error
}

// policyTable routes every known tag to exactly one class. Kept total
// over interfaces.AllTags; the exhaustiveness test enforces it.
var policyTable = map[interfaces.Tag]policyEntry{
	// Tags that should never appear in key descriptions.
	interfaces.TagAssociatedData:        {class: classForbidden},
	interfaces.TagAuthToken:             {class: classForbidden},
	interfaces.TagBootloaderOnly:        {class: classForbidden},
	interfaces.TagInvalid:               {class: classForbidden},
	interfaces.TagMacLength:             {class: classForbidden},
	interfaces.TagNonce:                 {class: classForbidden},
	interfaces.TagRootOfTrust:           {class: classForbidden},
	interfaces.TagUniqueID:              {class: classForbidden},
	interfaces.TagIdentityCredentialKey: {class: classForbidden},

	// Certificate-creation inputs, not blob content.
	interfaces.TagAttestationApplicationID:  {class: classCertificateOnly},
	interfaces.TagAttestationChallenge:      {class: classCertificateOnly},
	interfaces.TagAttestationIDBrand:        {class: classCertificateOnly},
	interfaces.TagAttestationIDDevice:       {class: classCertificateOnly},
	interfaces.TagAttestationIDIMEI:         {class: classCertificateOnly},
	interfaces.TagAttestationIDManufacturer: {class: classCertificateOnly},
	interfaces.TagAttestationIDMEID:         {class: classCertificateOnly},
	interfaces.TagAttestationIDModel:        {class: classCertificateOnly},
	interfaces.TagAttestationIDProduct:      {class: classCertificateOnly},
	interfaces.TagAttestationIDSerial:       {class: classCertificateOnly},
	interfaces.TagCertificateNotAfter:       {class: classCertificateOnly},
	interfaces.TagCertificateNotBefore:      {class: classCertificateOnly},
	interfaces.TagCertificateSerial:         {class: classCertificateOnly},
	interfaces.TagCertificateSubject:        {class: classCertificateOnly},
	interfaces.TagResetSinceIDRotation:      {class: classCertificateOnly},

	// Unimplemented, rejected with a specific error.
	interfaces.TagRollbackResistance:      {class: classRejectedUnimplemented, reject: interfaces.ErrRollbackResistanceUnavailable},
	interfaces.TagDeviceUniqueAttestation: {class: classRejectedUnimplemented, reject: interfaces.ErrInvalidArgument},

	// Unimplemented, silently dropped.
	interfaces.TagAllowWhileOnBody: {class: classDroppedUnimplemented},

	// Obsolete, silently dropped.
	interfaces.TagAllApplications:   {class: classDroppedObsolete},
	interfaces.TagRollbackResistant: {class: classDroppedObsolete},
	interfaces.TagConfirmationToken: {class: classDroppedObsolete},

	// Never stored in blobs; they bind via hidden authorizations instead.
	interfaces.TagApplicationID:   {class: classDroppedObsolete},
	interfaces.TagApplicationData: {class: classDroppedObsolete},

	// Set authoritatively below, input values ignored.
	interfaces.TagBootPatchlevel:   {class: classDroppedSetLater},
	interfaces.TagOrigin:           {class: classDroppedSetLater},
	interfaces.TagOSPatchlevel:     {class: classDroppedSetLater},
	interfaces.TagOSVersion:        {class: classDroppedSetLater},
	interfaces.TagVendorPatchlevel: {class: classDroppedSetLater},

	// Hardware-enforced.
	interfaces.TagAlgorithm:                    {class: classHardware},
	interfaces.TagAuthTimeout:                  {class: classHardware},
	interfaces.TagBlobUsageRequirements:        {class: classHardware},
	interfaces.TagBlockMode:                    {class: classHardware},
	interfaces.TagCallerNonce:                  {class: classHardware},
	interfaces.TagDigest:                       {class: classHardware},
	interfaces.TagEarlyBootOnly:                {class: classHardware},
	interfaces.TagECIESSingleHashMode:          {class: classHardware},
	interfaces.TagECCurve:                      {class: classHardware},
	interfaces.TagKdf:                          {class: classHardware},
	interfaces.TagKeySize:                      {class: classHardware},
	interfaces.TagMaxUsesPerBoot:               {class: classHardware},
	interfaces.TagMinMacLength:                 {class: classHardware},
	interfaces.TagMinSecondsBetweenOps:         {class: classHardware},
	interfaces.TagNoAuthRequired:               {class: classHardware},
	interfaces.TagPadding:                      {class: classHardware},
	interfaces.TagPurpose:                      {class: classHardware},
	interfaces.TagRSAOAEPMGFDigest:             {class: classHardware},
	interfaces.TagRSAPublicExponent:            {class: classHardware},
	interfaces.TagTrustedConfirmationRequired:  {class: classHardware},
	interfaces.TagTrustedUserPresenceRequired:  {class: classHardware},
	interfaces.TagUnlockedDeviceRequired:       {class: classHardware},
	interfaces.TagUserSecureID:                 {class: classHardware},

	interfaces.TagUserAuthType: {class: classHardwareAuthType},
	interfaces.TagStorageKey:   {class: classStorageKey},

	// Keystore-enforced.
	interfaces.TagActiveDatetime:            {class: classSoftware},
	interfaces.TagAllUsers:                  {class: classSoftware},
	interfaces.TagCreationDatetime:          {class: classSoftware},
	interfaces.TagExportable:                {class: classSoftware},
	interfaces.TagIncludeUniqueID:           {class: classSoftware},
	interfaces.TagMaxBootLevel:              {class: classSoftware},
	interfaces.TagOriginationExpireDatetime: {class: classSoftware},
	interfaces.TagUsageCountLimit:           {class: classSoftware},
	interfaces.TagUsageExpireDatetime:       {class: classSoftware},
	interfaces.TagUserID:                    {class: classSoftware},
}

// Options carries the build capabilities that vary per device.
type Options struct {
	// StorageKeySupport accepts TagStorageKey as hardware-enforced when
	// true; otherwise the tag fails with ErrUnimplemented.
	StorageKeySupport bool
	// FingerprintAuthSupport widens the supported auth-factor mask from
	// password-only to password+fingerprint.
	FingerprintAuthSupport bool
}

func (o Options) supportedAuthMask() uint64 {
	mask := uint64(interfaces.HardwareAuthPassword)
	if o.FingerprintAuthSupport {
		mask |= uint64(interfaces.HardwareAuthFingerprint)
	}
	return mask
}

func translateSetError(err error) error {
	if errors.Is(err, interfaces.ErrMalformedSet) {
		return fmt.Errorf("%w: %v", interfaces.ErrInvalidKeyBlob, err)
	}
	return fmt.Errorf("%w: %v", interfaces.ErrMemoryAllocationFailed, err)
}

// Classify routes every tag of a requested key description into the
// hardware- or software-enforced set, drops what must not be persisted,
// and rejects what cannot be honored. After routing it stamps ORIGIN and
// the current OS version and patchlevel into hw_enforced. It is a pure
// function of its arguments.
func Classify(description *interfaces.Set, origin interfaces.KeyOrigin, osVersion, osPatchlevel uint32, opts Options) (hwEnforced, swEnforced *interfaces.Set, err error) {
	hwEnforced = interfaces.NewSet()
	swEnforced = interfaces.NewSet()

	for _, entry := range description.Params() {
		policy, known := policyTable[entry.Tag]
		if !known {
			// Unknown tags cannot be enforced by anyone.
			return nil, nil, fmt.Errorf("%w: unknown tag %#x", interfaces.ErrInvalidKeyBlob, uint32(entry.Tag))
		}

		switch policy.class {
		case classForbidden:
			return nil, nil, fmt.Errorf("%w: tag %#x not allowed in key description", interfaces.ErrInvalidKeyBlob, uint32(entry.Tag))

		case classRejectedUnimplemented:
			return nil, nil, policy.reject

		case classCertificateOnly, classDroppedUnimplemented, classDroppedObsolete, classDroppedSetLater:
			// Dropped.

		case classHardware:
			hwEnforced.Add(entry)

		case classHardwareAuthType:
			masked := entry
			masked.Value = entry.Value & opts.supportedAuthMask()
			hwEnforced.Add(masked)

		case classStorageKey:
			if !opts.StorageKeySupport {
				return nil, nil, interfaces.ErrUnimplemented
			}
			hwEnforced.Add(entry)

		case classSoftware:
			swEnforced.Add(entry)
		}
	}

	hwEnforced.Add(interfaces.EnumParam(interfaces.TagOrigin, uint32(origin)))
	// Zero when the bootloader never reported them.
	hwEnforced.Add(interfaces.UintParam(interfaces.TagOSVersion, osVersion))
	hwEnforced.Add(interfaces.UintParam(interfaces.TagOSPatchlevel, osPatchlevel))

	if err := swEnforced.Validate(); err != nil {
		return nil, nil, translateSetError(err)
	}
	if err := hwEnforced.Validate(); err != nil {
		return nil, nil, translateSetError(err)
	}
	return hwEnforced, swEnforced, nil
}

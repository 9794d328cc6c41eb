package interfaces

// TagType encodes the payload type of an authorization tag in its top
// four bits, matching the keymaster tag numbering scheme.
type TagType uint32

const (
	TypeInvalid   TagType = 0 << 28
	TypeEnum      TagType = 1 << 28
	TypeEnumRep   TagType = 2 << 28
	TypeUint      TagType = 3 << 28
	TypeUintRep   TagType = 4 << 28
	TypeUlong     TagType = 5 << 28
	TypeDate      TagType = 6 << 28
	TypeBool      TagType = 7 << 28
	TypeBignum    TagType = 8 << 28
	TypeBytes     TagType = 9 << 28
	TypeUlongRep  TagType = 10 << 28
	tagTypeMask           = 0xf << 28
)

// Tag identifies a key authorization. The value is the tag type ORed with
// the tag number, so the payload type is recoverable from the id.
type Tag uint32

const (
	TagInvalid Tag = Tag(TypeInvalid) | 0

	TagPurpose                      Tag = Tag(TypeEnumRep) | 1
	TagAlgorithm                    Tag = Tag(TypeEnum) | 2
	TagKeySize                      Tag = Tag(TypeUint) | 3
	TagBlockMode                    Tag = Tag(TypeEnumRep) | 4
	TagDigest                       Tag = Tag(TypeEnumRep) | 5
	TagPadding                      Tag = Tag(TypeEnumRep) | 6
	TagCallerNonce                  Tag = Tag(TypeBool) | 7
	TagMinMacLength                 Tag = Tag(TypeUint) | 8
	TagKdf                          Tag = Tag(TypeEnumRep) | 9
	TagECCurve                      Tag = Tag(TypeEnum) | 10
	TagRSAPublicExponent            Tag = Tag(TypeUlong) | 200
	TagECIESSingleHashMode          Tag = Tag(TypeBool) | 201
	TagIncludeUniqueID              Tag = Tag(TypeBool) | 202
	TagRSAOAEPMGFDigest             Tag = Tag(TypeEnumRep) | 203
	TagBlobUsageRequirements        Tag = Tag(TypeEnum) | 301
	TagBootloaderOnly               Tag = Tag(TypeBool) | 302
	TagRollbackResistance           Tag = Tag(TypeBool) | 303
	TagEarlyBootOnly                Tag = Tag(TypeBool) | 305
	TagActiveDatetime               Tag = Tag(TypeDate) | 400
	TagOriginationExpireDatetime    Tag = Tag(TypeDate) | 401
	TagUsageExpireDatetime          Tag = Tag(TypeDate) | 402
	TagMinSecondsBetweenOps         Tag = Tag(TypeUint) | 403
	TagMaxUsesPerBoot               Tag = Tag(TypeUint) | 404
	TagUsageCountLimit              Tag = Tag(TypeUint) | 405
	TagAllUsers                     Tag = Tag(TypeBool) | 500
	TagUserID                       Tag = Tag(TypeUint) | 501
	TagUserSecureID                 Tag = Tag(TypeUlongRep) | 502
	TagNoAuthRequired               Tag = Tag(TypeBool) | 503
	TagUserAuthType                 Tag = Tag(TypeEnum) | 504
	TagAuthTimeout                  Tag = Tag(TypeUint) | 505
	TagAllowWhileOnBody             Tag = Tag(TypeBool) | 506
	TagTrustedUserPresenceRequired  Tag = Tag(TypeBool) | 507
	TagTrustedConfirmationRequired  Tag = Tag(TypeBool) | 508
	TagUnlockedDeviceRequired       Tag = Tag(TypeBool) | 509
	TagAllApplications              Tag = Tag(TypeBool) | 600
	TagApplicationID                Tag = Tag(TypeBytes) | 601
	TagExportable                   Tag = Tag(TypeBool) | 602
	TagApplicationData              Tag = Tag(TypeBytes) | 700
	TagCreationDatetime             Tag = Tag(TypeDate) | 701
	TagOrigin                       Tag = Tag(TypeEnum) | 702
	TagRollbackResistant            Tag = Tag(TypeBool) | 703
	TagRootOfTrust                  Tag = Tag(TypeBytes) | 704
	TagOSVersion                    Tag = Tag(TypeUint) | 705
	TagOSPatchlevel                 Tag = Tag(TypeUint) | 706
	TagUniqueID                     Tag = Tag(TypeBytes) | 707
	TagAttestationChallenge         Tag = Tag(TypeBytes) | 708
	TagAttestationApplicationID     Tag = Tag(TypeBytes) | 709
	TagAttestationIDBrand           Tag = Tag(TypeBytes) | 710
	TagAttestationIDDevice          Tag = Tag(TypeBytes) | 711
	TagAttestationIDProduct         Tag = Tag(TypeBytes) | 712
	TagAttestationIDSerial          Tag = Tag(TypeBytes) | 713
	TagAttestationIDIMEI            Tag = Tag(TypeBytes) | 714
	TagAttestationIDMEID            Tag = Tag(TypeBytes) | 715
	TagAttestationIDManufacturer    Tag = Tag(TypeBytes) | 716
	TagAttestationIDModel           Tag = Tag(TypeBytes) | 717
	TagVendorPatchlevel             Tag = Tag(TypeUint) | 718
	TagBootPatchlevel               Tag = Tag(TypeUint) | 719
	TagDeviceUniqueAttestation      Tag = Tag(TypeBool) | 720
	TagIdentityCredentialKey        Tag = Tag(TypeBool) | 721
	TagStorageKey                   Tag = Tag(TypeBool) | 722
	TagAssociatedData               Tag = Tag(TypeBytes) | 1000
	TagNonce                        Tag = Tag(TypeBytes) | 1001
	TagAuthToken                    Tag = Tag(TypeBytes) | 1002
	TagMacLength                    Tag = Tag(TypeUint) | 1003
	TagResetSinceIDRotation         Tag = Tag(TypeBool) | 1004
	TagConfirmationToken            Tag = Tag(TypeBytes) | 1005
	TagCertificateSerial            Tag = Tag(TypeBignum) | 1006
	TagCertificateSubject           Tag = Tag(TypeBytes) | 1007
	TagCertificateNotBefore         Tag = Tag(TypeDate) | 1008
	TagCertificateNotAfter          Tag = Tag(TypeDate) | 1009
	TagMaxBootLevel                 Tag = Tag(TypeUint) | 1010
)

// Type returns the payload type encoded in the tag id.
func (t Tag) Type() TagType {
	return TagType(uint32(t) & tagTypeMask)
}

// AllTags enumerates every tag this implementation knows about, in tag-id
// order. The classifier policy table is checked against this list for
// exhaustiveness.
func AllTags() []Tag {
	return []Tag{
		TagInvalid,
		TagPurpose, TagAlgorithm, TagKeySize, TagBlockMode, TagDigest,
		TagPadding, TagCallerNonce, TagMinMacLength, TagKdf, TagECCurve,
		TagRSAPublicExponent, TagECIESSingleHashMode, TagIncludeUniqueID,
		TagRSAOAEPMGFDigest,
		TagBlobUsageRequirements, TagBootloaderOnly, TagRollbackResistance,
		TagEarlyBootOnly,
		TagActiveDatetime, TagOriginationExpireDatetime,
		TagUsageExpireDatetime, TagMinSecondsBetweenOps, TagMaxUsesPerBoot,
		TagUsageCountLimit,
		TagAllUsers, TagUserID, TagUserSecureID, TagNoAuthRequired,
		TagUserAuthType, TagAuthTimeout, TagAllowWhileOnBody,
		TagTrustedUserPresenceRequired, TagTrustedConfirmationRequired,
		TagUnlockedDeviceRequired,
		TagAllApplications, TagApplicationID, TagExportable,
		TagApplicationData, TagCreationDatetime, TagOrigin,
		TagRollbackResistant, TagRootOfTrust, TagOSVersion, TagOSPatchlevel,
		TagUniqueID, TagAttestationChallenge, TagAttestationApplicationID,
		TagAttestationIDBrand, TagAttestationIDDevice,
		TagAttestationIDProduct, TagAttestationIDSerial,
		TagAttestationIDIMEI, TagAttestationIDMEID,
		TagAttestationIDManufacturer, TagAttestationIDModel,
		TagVendorPatchlevel, TagBootPatchlevel, TagDeviceUniqueAttestation,
		TagIdentityCredentialKey, TagStorageKey,
		TagAssociatedData, TagNonce, TagAuthToken, TagMacLength,
		TagResetSinceIDRotation, TagConfirmationToken,
		TagCertificateSerial, TagCertificateSubject,
		TagCertificateNotBefore, TagCertificateNotAfter, TagMaxBootLevel,
	}
}

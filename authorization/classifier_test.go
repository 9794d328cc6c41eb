package authorization

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ruteri/tee-keymaster-core/interfaces"
)

func TestPolicyTable_Exhaustive(t *testing.T) {
	for _, tag := range interfaces.AllTags() {
		_, known := policyTable[tag]
		assert.True(t, known, "Tag %#x must have a policy entry", uint32(tag))
	}
}

func classify(t *testing.T, description *interfaces.Set) (*interfaces.Set, *interfaces.Set, error) {
	t.Helper()
	return Classify(description, interfaces.OriginGenerated, 100, 202401, Options{})
}

func TestClassify_RoutesHardwareAndSoftware(t *testing.T) {
	description := interfaces.NewSet(
		interfaces.EnumParam(interfaces.TagAlgorithm, uint32(interfaces.AlgorithmAES)),
		interfaces.UintParam(interfaces.TagKeySize, 256),
		interfaces.EnumParam(interfaces.TagPurpose, uint32(interfaces.PurposeEncrypt)),
		interfaces.UintParam(interfaces.TagUserID, 10),
		interfaces.DateParam(interfaces.TagActiveDatetime, 1700000000000),
	)

	hw, sw, err := classify(t, description)
	require.NoError(t, err, "Classification of a plain description should succeed")

	assert.True(t, hw.ContainsValue(interfaces.TagAlgorithm, uint64(interfaces.AlgorithmAES)), "Algorithm should be hardware-enforced")
	assert.True(t, hw.ContainsValue(interfaces.TagKeySize, 256), "Key size should be hardware-enforced")
	assert.True(t, hw.ContainsValue(interfaces.TagPurpose, uint64(interfaces.PurposeEncrypt)), "Purpose should be hardware-enforced")
	assert.False(t, hw.ContainsTag(interfaces.TagUserID), "User id should not be hardware-enforced")

	assert.True(t, sw.ContainsValue(interfaces.TagUserID, 10), "User id should be keystore-enforced")
	assert.True(t, sw.ContainsTag(interfaces.TagActiveDatetime), "Active datetime should be keystore-enforced")
	assert.False(t, sw.ContainsTag(interfaces.TagAlgorithm), "Algorithm should not be keystore-enforced")
}

func TestClassify_StampsOriginAndVersions(t *testing.T) {
	hw, _, err := Classify(interfaces.NewSet(), interfaces.OriginImported, 110, 202502, Options{})
	require.NoError(t, err)

	assert.True(t, hw.ContainsValue(interfaces.TagOrigin, uint64(interfaces.OriginImported)), "Origin should be stamped into hw_enforced")
	assert.True(t, hw.ContainsValue(interfaces.TagOSVersion, 110), "OS version should be stamped into hw_enforced")
	assert.True(t, hw.ContainsValue(interfaces.TagOSPatchlevel, 202502), "OS patchlevel should be stamped into hw_enforced")
}

func TestClassify_CallerVersionValuesIgnored(t *testing.T) {
	description := interfaces.NewSet(
		interfaces.UintParam(interfaces.TagOSVersion, 999),
		interfaces.UintParam(interfaces.TagOSPatchlevel, 999999),
		interfaces.EnumParam(interfaces.TagOrigin, uint32(interfaces.OriginUnknown)),
	)

	hw, _, err := Classify(description, interfaces.OriginGenerated, 100, 202401, Options{})
	require.NoError(t, err, "Caller-supplied version tags should not be an error")

	assert.True(t, hw.ContainsValue(interfaces.TagOSVersion, 100), "Authoritative OS version should win")
	assert.False(t, hw.ContainsValue(interfaces.TagOSVersion, 999), "Caller OS version should be dropped")
	assert.True(t, hw.ContainsValue(interfaces.TagOrigin, uint64(interfaces.OriginGenerated)), "Authoritative origin should win")
	assert.False(t, hw.ContainsValue(interfaces.TagOrigin, uint64(interfaces.OriginUnknown)), "Caller origin should be dropped")
}

func TestClassify_ForbiddenTags(t *testing.T) {
	forbidden := []interfaces.Param{
		interfaces.BlobParam(interfaces.TagRootOfTrust, []byte("rot")),
		interfaces.BlobParam(interfaces.TagNonce, []byte("nonce")),
		interfaces.BlobParam(interfaces.TagAssociatedData, []byte("aad")),
		interfaces.BlobParam(interfaces.TagAuthToken, []byte("token")),
		interfaces.BoolParam(interfaces.TagBootloaderOnly),
		interfaces.UintParam(interfaces.TagMacLength, 128),
		interfaces.BlobParam(interfaces.TagUniqueID, []byte("uid")),
	}

	for _, p := range forbidden {
		_, _, err := classify(t, interfaces.NewSet(p))
		assert.ErrorIs(t, err, interfaces.ErrInvalidKeyBlob, "Tag %#x should be rejected as invalid", uint32(p.Tag))
	}
}

func TestClassify_UnknownTag(t *testing.T) {
	unknown := interfaces.Tag(uint32(interfaces.TypeUint) | 9999)
	_, _, err := classify(t, interfaces.NewSet(interfaces.UintParam(unknown, 1)))
	assert.ErrorIs(t, err, interfaces.ErrInvalidKeyBlob, "An unknown tag should be rejected, not silently dropped")
}

func TestClassify_RejectedUnimplemented(t *testing.T) {
	_, _, err := classify(t, interfaces.NewSet(interfaces.BoolParam(interfaces.TagRollbackResistance)))
	assert.ErrorIs(t, err, interfaces.ErrRollbackResistanceUnavailable, "Rollback resistance is not available")

	_, _, err = classify(t, interfaces.NewSet(interfaces.BoolParam(interfaces.TagDeviceUniqueAttestation)))
	assert.ErrorIs(t, err, interfaces.ErrInvalidArgument, "Device-unique attestation should be rejected")
}

func TestClassify_DroppedTags(t *testing.T) {
	description := interfaces.NewSet(
		interfaces.BoolParam(interfaces.TagAllowWhileOnBody),
		interfaces.BoolParam(interfaces.TagAllApplications),
		interfaces.BoolParam(interfaces.TagRollbackResistant),
		interfaces.BlobParam(interfaces.TagApplicationID, []byte("app")),
		interfaces.BlobParam(interfaces.TagApplicationData, []byte("data")),
		interfaces.BlobParam(interfaces.TagAttestationChallenge, []byte("challenge")),
		interfaces.BlobParam(interfaces.TagCertificateSubject, []byte("CN=test")),
	)

	hw, sw, err := classify(t, description)
	require.NoError(t, err, "Dropped tags should not fail classification")

	for _, p := range description.Params() {
		assert.False(t, hw.ContainsTag(p.Tag), "Tag %#x should not reach hw_enforced", uint32(p.Tag))
		assert.False(t, sw.ContainsTag(p.Tag), "Tag %#x should not reach sw_enforced", uint32(p.Tag))
	}
}

func TestClassify_StorageKeySupport(t *testing.T) {
	description := interfaces.NewSet(interfaces.BoolParam(interfaces.TagStorageKey))

	_, _, err := Classify(description, interfaces.OriginGenerated, 0, 0, Options{})
	assert.ErrorIs(t, err, interfaces.ErrUnimplemented, "Storage keys should be rejected without support")

	hw, _, err := Classify(description, interfaces.OriginGenerated, 0, 0, Options{StorageKeySupport: true})
	require.NoError(t, err, "Storage keys should be accepted with support")
	assert.True(t, hw.ContainsTag(interfaces.TagStorageKey), "Storage key tag should be hardware-enforced")
}

func TestClassify_AuthTypeMask(t *testing.T) {
	requested := uint32(interfaces.HardwareAuthPassword | interfaces.HardwareAuthFingerprint)
	description := interfaces.NewSet(interfaces.EnumParam(interfaces.TagUserAuthType, requested))

	hw, _, err := Classify(description, interfaces.OriginGenerated, 0, 0, Options{})
	require.NoError(t, err)
	assert.True(t, hw.ContainsValue(interfaces.TagUserAuthType, uint64(interfaces.HardwareAuthPassword)),
		"Without fingerprint support only password should survive the mask")

	hw, _, err = Classify(description, interfaces.OriginGenerated, 0, 0, Options{FingerprintAuthSupport: true})
	require.NoError(t, err)
	assert.True(t, hw.ContainsValue(interfaces.TagUserAuthType, uint64(requested)),
		"With fingerprint support the full requested mask should survive")
}

func TestClassify_Pure(t *testing.T) {
	description := interfaces.NewSet(
		interfaces.EnumParam(interfaces.TagAlgorithm, uint32(interfaces.AlgorithmHMAC)),
		interfaces.UintParam(interfaces.TagUserID, 3),
	)

	hw1, sw1, err := classify(t, description)
	require.NoError(t, err)
	hw2, sw2, err := classify(t, description)
	require.NoError(t, err)

	assert.Equal(t, hw1.Serialize(), hw2.Serialize(), "Classification should be deterministic")
	assert.Equal(t, sw1.Serialize(), sw2.Serialize(), "Classification should be deterministic")
}

package keymaster

import (
	"bytes"
	"crypto/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ruteri/tee-keymaster-core/hardware"
	"github.com/ruteri/tee-keymaster-core/interfaces"
)

func testContext(t *testing.T, mutate func(*Config)) *Context {
	t.Helper()

	secret := make([]byte, 32)
	_, err := rand.Read(secret)
	require.NoError(t, err, "Failed to generate device secret")

	kdf, err := hardware.NewSoftKdf(secret)
	require.NoError(t, err, "Failed to create KDF")

	cfg := &Config{
		Kdf:              kdf,
		Rng:              hardware.NewSoftRng(),
		WrappedKeyParser: &hardware.BinaryWrappedKeyParser{},
		Factories:        hardware.SoftKeyFactories(),
	}
	if mutate != nil {
		mutate(cfg)
	}

	km, err := New(cfg)
	require.NoError(t, err, "Context creation should succeed")
	return km
}

func TestContext_SupportedAlgorithms(t *testing.T) {
	km := testContext(t, nil)

	algs := km.SupportedAlgorithms()
	assert.Contains(t, algs, interfaces.AlgorithmAES, "AES factory is registered")
	assert.Contains(t, algs, interfaces.AlgorithmRSA, "RSA factory is registered")
	assert.NotContains(t, algs, interfaces.AlgorithmTripleDES, "No 3DES factory registered")

	assert.Nil(t, km.KeyFactory(interfaces.AlgorithmEC), "Unregistered algorithm has no factory")
	assert.Nil(t, km.OperationFactory(interfaces.AlgorithmEC, interfaces.PurposeSign), "No operations without a factory")
	assert.NotNil(t, km.OperationFactory(interfaces.AlgorithmAES, interfaces.PurposeEncrypt), "AES encryption is available")
}

func TestContext_CreateParseKeyBlob(t *testing.T) {
	km := testContext(t, nil)
	km.SetSystemVersion(100, 202401)

	material := make([]byte, 32)
	_, err := rand.Read(material)
	require.NoError(t, err)

	description := interfaces.NewSet(
		interfaces.EnumParam(interfaces.TagAlgorithm, uint32(interfaces.AlgorithmAES)),
		interfaces.UintParam(interfaces.TagKeySize, 256),
	)

	blob, hw, _, err := km.CreateKeyBlob(description, interfaces.OriginGenerated, material)
	require.NoError(t, err, "Blob creation should succeed")
	assert.True(t, hw.ContainsValue(interfaces.TagOSVersion, 100), "System version should be stamped")

	key, err := km.ParseKeyBlob(blob, interfaces.NewSet())
	require.NoError(t, err, "Blob should parse in the same context")
	assert.Equal(t, material, key.KeyMaterial(), "Material should round-trip")
}

func TestContext_BlobsBindToBootState(t *testing.T) {
	material := []byte("0123456789abcdef")
	description := interfaces.NewSet(interfaces.EnumParam(interfaces.TagAlgorithm, uint32(interfaces.AlgorithmAES)))

	secret := make([]byte, 32)
	_, err := rand.Read(secret)
	require.NoError(t, err)
	kdf, err := hardware.NewSoftKdf(secret)
	require.NoError(t, err)

	newContext := func() *Context {
		km, err := New(&Config{Kdf: kdf, Rng: hardware.NewSoftRng(), Factories: hardware.SoftKeyFactories()})
		require.NoError(t, err)
		return km
	}

	booted := newContext()
	bootKey := bytes.Repeat([]byte{0x11}, 32)
	require.NoError(t, booted.SetBootParams(bootKey, interfaces.VerifiedBootVerified, true, nil))

	blob, _, _, err := booted.CreateKeyBlob(description, interfaces.OriginGenerated, material)
	require.NoError(t, err)

	_, err = booted.ParseKeyBlob(blob, interfaces.NewSet())
	assert.NoError(t, err, "Same boot state should decrypt")

	// Same device secret, different boot state.
	rebooted := newContext()
	otherKey := bytes.Repeat([]byte{0x22}, 32)
	require.NoError(t, rebooted.SetBootParams(otherKey, interfaces.VerifiedBootVerified, true, nil))

	_, err = rebooted.ParseKeyBlob(blob, interfaces.NewSet())
	assert.ErrorIs(t, err, interfaces.ErrAuthenticationFailure, "A different boot state must not decrypt")
}

func TestContext_GetVerifiedBootParams(t *testing.T) {
	km := testContext(t, nil)

	rot := km.GetVerifiedBootParams()
	assert.Equal(t, []byte("Unbound"), rot.VerifiedBootKey, "Unbooted default")

	bootKey := bytes.Repeat([]byte{0x33}, 32)
	require.NoError(t, km.SetBootParams(bootKey, interfaces.VerifiedBootSelfSigned, true, []byte("hash")))

	rot = km.GetVerifiedBootParams()
	assert.Equal(t, bootKey, rot.VerifiedBootKey, "Recorded boot key should be returned")
	assert.Equal(t, interfaces.VerifiedBootSelfSigned, rot.VerifiedBootState, "Recorded state should be returned")
}

func TestContext_SystemVersion(t *testing.T) {
	km := testContext(t, nil)

	km.SetSystemVersion(100, 202401)
	km.SetSystemVersion(200, 202501)

	osVersion, osPatchlevel := km.GetSystemVersion()
	assert.Equal(t, uint32(100), osVersion, "First call wins")
	assert.Equal(t, uint32(202401), osPatchlevel, "First call wins")
}

func TestContext_DebugSeedsFakeBootParams(t *testing.T) {
	km := testContext(t, func(cfg *Config) { cfg.Debug = true })

	km.SetSystemVersion(100, 202401)

	rot := km.GetVerifiedBootParams()
	assert.Equal(t, interfaces.VerifiedBootVerified, rot.VerifiedBootState, "Debug builds fake a verified boot")
	assert.True(t, rot.DeviceLocked, "Debug boot params report locked")
	assert.Len(t, rot.VerifiedBootKey, 32, "Fake boot key is a full-size key")

	err := km.SetBootParams(bytes.Repeat([]byte{0x44}, 32), interfaces.VerifiedBootVerified, true, nil)
	assert.ErrorIs(t, err, interfaces.ErrRootOfTrustAlreadySet, "Fake params consume the write-once slot")
}

func TestContext_NonDebugLeavesBootParamsAlone(t *testing.T) {
	km := testContext(t, nil)

	km.SetSystemVersion(100, 202401)

	rot := km.GetVerifiedBootParams()
	assert.Equal(t, []byte("Unbound"), rot.VerifiedBootKey, "Production builds never fake boot params")

	err := km.SetBootParams(bytes.Repeat([]byte{0x55}, 32), interfaces.VerifiedBootVerified, true, nil)
	assert.NoError(t, err, "The bootloader can still report real parameters")
}

func TestContext_UpgradeKeyBlob(t *testing.T) {
	km := testContext(t, nil)
	km.SetSystemVersion(100, 202401)

	description := interfaces.NewSet(interfaces.EnumParam(interfaces.TagAlgorithm, uint32(interfaces.AlgorithmAES)))
	blob, _, _, err := km.CreateKeyBlob(description, interfaces.OriginGenerated, []byte("0123456789abcdef"))
	require.NoError(t, err)

	upgraded, err := km.UpgradeKeyBlob(blob, interfaces.NewSet())
	assert.NoError(t, err, "Upgrade of a current blob should not fail")
	assert.Nil(t, upgraded, "Nothing to change at the same version")
}

func TestContext_MasterKeySizeValidation(t *testing.T) {
	secret := make([]byte, 32)
	_, err := rand.Read(secret)
	require.NoError(t, err)
	kdf, err := hardware.NewSoftKdf(secret)
	require.NoError(t, err)

	_, err = New(&Config{Kdf: kdf, Rng: hardware.NewSoftRng(), MasterKeySize: 24})
	assert.ErrorIs(t, err, interfaces.ErrInvalidArgument, "Only the legacy and current sizes are valid")

	km, err := New(&Config{Kdf: kdf, Rng: hardware.NewSoftRng(), MasterKeySize: MasterKeySizeLegacy, Factories: hardware.SoftKeyFactories()})
	require.NoError(t, err, "The legacy size should be accepted")

	blob, _, _, err := km.CreateKeyBlob(
		interfaces.NewSet(interfaces.EnumParam(interfaces.TagAlgorithm, uint32(interfaces.AlgorithmAES))),
		interfaces.OriginGenerated, []byte("0123456789abcdef"))
	require.NoError(t, err, "Blob creation should work under a 16-byte master key")
	_, err = km.ParseKeyBlob(blob, interfaces.NewSet())
	assert.NoError(t, err, "Blob should parse under a 16-byte master key")
}

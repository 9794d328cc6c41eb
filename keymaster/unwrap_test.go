package keymaster

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ruteri/tee-keymaster-core/hardware"
	"github.com/ruteri/tee-keymaster-core/interfaces"
)

// unwrapFixture holds everything needed to exercise the secure import
// protocol against a context: a provisioned RSA wrapping key blob and a
// container built the way a remote wrapping service would build it.
type unwrapFixture struct {
	wrappingKeyBlob   []byte
	wrappingKeyParams *interfaces.Set
	maskingKey        []byte
	secret            []byte
	authList          *interfaces.Set
	container         *interfaces.WrappedKeyData
}

func buildUnwrapFixture(t *testing.T, km *Context) *unwrapFixture {
	t.Helper()

	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err, "Failed to generate wrapping key pair")

	wrappingDescription := interfaces.NewSet(
		interfaces.EnumParam(interfaces.TagAlgorithm, uint32(interfaces.AlgorithmRSA)),
		interfaces.EnumParam(interfaces.TagPurpose, uint32(interfaces.PurposeWrap)),
		interfaces.EnumParam(interfaces.TagDigest, uint32(interfaces.DigestSHA256)),
		interfaces.EnumParam(interfaces.TagPadding, uint32(interfaces.PaddingRSAOAEP)),
		interfaces.UintParam(interfaces.TagKeySize, 2048),
	)
	wrappingKeyBlob, _, _, err := km.CreateKeyBlob(wrappingDescription, interfaces.OriginImported, x509.MarshalPKCS1PrivateKey(priv))
	require.NoError(t, err, "Failed to create wrapping key blob")

	transportKey := make([]byte, 32)
	_, err = rand.Read(transportKey)
	require.NoError(t, err)
	maskingKey := make([]byte, 32)
	_, err = rand.Read(maskingKey)
	require.NoError(t, err)

	masked := make([]byte, 32)
	for i := range masked {
		masked[i] = transportKey[i] ^ maskingKey[i]
	}
	transitKey, err := rsa.EncryptOAEP(sha256.New(), rand.Reader, &priv.PublicKey, masked, nil)
	require.NoError(t, err, "Failed to encrypt transport key")

	secret := []byte("super secret key")
	authList := interfaces.NewSet(
		interfaces.EnumParam(interfaces.TagAlgorithm, uint32(interfaces.AlgorithmAES)),
		interfaces.UintParam(interfaces.TagKeySize, 128),
	)
	description := authList.Serialize()

	iv := make([]byte, 12)
	_, err = rand.Read(iv)
	require.NoError(t, err)

	block, err := aes.NewCipher(transportKey)
	require.NoError(t, err)
	gcm, err := cipher.NewGCM(block)
	require.NoError(t, err)
	sealed := gcm.Seal(nil, iv, secret, description)

	return &unwrapFixture{
		wrappingKeyBlob: wrappingKeyBlob,
		wrappingKeyParams: interfaces.NewSet(
			interfaces.EnumParam(interfaces.TagDigest, uint32(interfaces.DigestSHA256)),
			interfaces.EnumParam(interfaces.TagPadding, uint32(interfaces.PaddingRSAOAEP)),
		),
		maskingKey: maskingKey,
		secret:     secret,
		authList:   authList,
		container: &interfaces.WrappedKeyData{
			IV:          iv,
			TransitKey:  transitKey,
			SecureKey:   sealed[:len(sealed)-16],
			Tag:         sealed[len(sealed)-16:],
			Description: description,
			KeyFormat:   interfaces.KeyFormatRaw,
		},
	}
}

func (f *unwrapFixture) blob() []byte {
	data := *f.container
	data.AuthList = f.authList
	return hardware.SerializeWrappedKey(&data)
}

func TestUnwrapKey(t *testing.T) {
	km := testContext(t, nil)
	fixture := buildUnwrapFixture(t, km)

	material, wrappedParams, keyFormat, err := km.UnwrapKey(fixture.blob(), fixture.wrappingKeyBlob, fixture.wrappingKeyParams, fixture.maskingKey)
	require.NoError(t, err, "Unwrap should succeed")

	assert.Equal(t, fixture.secret, material, "Imported material should match the wrapped secret")
	assert.Equal(t, interfaces.KeyFormatRaw, keyFormat, "Key format comes from the container")
	assert.True(t, wrappedParams.ContainsValue(interfaces.TagAlgorithm, uint64(interfaces.AlgorithmAES)), "Embedded auth list should be returned")
	assert.True(t, wrappedParams.ContainsValue(interfaces.TagKeySize, 128), "Embedded auth list should be returned")
}

func TestUnwrapKey_MaskingKeyLength(t *testing.T) {
	km := testContext(t, nil)
	fixture := buildUnwrapFixture(t, km)

	_, _, _, err := km.UnwrapKey(fixture.blob(), fixture.wrappingKeyBlob, fixture.wrappingKeyParams, fixture.maskingKey[:16])
	assert.ErrorIs(t, err, interfaces.ErrInvalidArgument, "A short masking key must be rejected")
}

func TestUnwrapKey_WrongMaskingKey(t *testing.T) {
	km := testContext(t, nil)
	fixture := buildUnwrapFixture(t, km)

	wrong := append([]byte{}, fixture.maskingKey...)
	wrong[0] ^= 0xff

	_, _, _, err := km.UnwrapKey(fixture.blob(), fixture.wrappingKeyBlob, fixture.wrappingKeyParams, wrong)
	assert.ErrorIs(t, err, interfaces.ErrAuthenticationFailure, "A wrong masking key corrupts the transport key")
}

func TestUnwrapKey_CallerParamChecks(t *testing.T) {
	km := testContext(t, nil)
	fixture := buildUnwrapFixture(t, km)

	missingDigest := interfaces.NewSet(
		interfaces.EnumParam(interfaces.TagPadding, uint32(interfaces.PaddingRSAOAEP)),
	)
	_, _, _, err := km.UnwrapKey(fixture.blob(), fixture.wrappingKeyBlob, missingDigest, fixture.maskingKey)
	assert.ErrorIs(t, err, interfaces.ErrIncompatibleDigest, "The caller must request SHA2-256")

	missingPadding := interfaces.NewSet(
		interfaces.EnumParam(interfaces.TagDigest, uint32(interfaces.DigestSHA256)),
	)
	_, _, _, err = km.UnwrapKey(fixture.blob(), fixture.wrappingKeyBlob, missingPadding, fixture.maskingKey)
	assert.ErrorIs(t, err, interfaces.ErrIncompatiblePaddingMode, "The caller must request OAEP")
}

func TestUnwrapKey_WrappingKeyAuthorization(t *testing.T) {
	km := testContext(t, nil)
	fixture := buildUnwrapFixture(t, km)

	// An RSA key provisioned without the wrapping purpose.
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	description := interfaces.NewSet(
		interfaces.EnumParam(interfaces.TagAlgorithm, uint32(interfaces.AlgorithmRSA)),
		interfaces.EnumParam(interfaces.TagPurpose, uint32(interfaces.PurposeDecrypt)),
		interfaces.EnumParam(interfaces.TagDigest, uint32(interfaces.DigestSHA256)),
		interfaces.EnumParam(interfaces.TagPadding, uint32(interfaces.PaddingRSAOAEP)),
	)
	notForWrapping, _, _, err := km.CreateKeyBlob(description, interfaces.OriginImported, x509.MarshalPKCS1PrivateKey(priv))
	require.NoError(t, err)

	_, _, _, err = km.UnwrapKey(fixture.blob(), notForWrapping, fixture.wrappingKeyParams, fixture.maskingKey)
	assert.ErrorIs(t, err, interfaces.ErrIncompatiblePurpose, "The wrapping key must be authorized for wrapping")
}

func TestUnwrapKey_TamperedContainer(t *testing.T) {
	km := testContext(t, nil)
	fixture := buildUnwrapFixture(t, km)

	// Flip a ciphertext bit.
	fixture.container.SecureKey[0] ^= 0x01
	_, _, _, err := km.UnwrapKey(fixture.blob(), fixture.wrappingKeyBlob, fixture.wrappingKeyParams, fixture.maskingKey)
	assert.ErrorIs(t, err, interfaces.ErrAuthenticationFailure, "A tampered payload must not decrypt")
	fixture.container.SecureKey[0] ^= 0x01

	// Change the authenticated description.
	fixture.container.Description = append([]byte{}, fixture.container.Description...)
	fixture.container.Description[0] ^= 0x01
	_, _, _, err = km.UnwrapKey(fixture.blob(), fixture.wrappingKeyBlob, fixture.wrappingKeyParams, fixture.maskingKey)
	assert.ErrorIs(t, err, interfaces.ErrAuthenticationFailure, "A tampered description must not verify")
}

func TestUnwrapKey_MalformedContainer(t *testing.T) {
	km := testContext(t, nil)
	fixture := buildUnwrapFixture(t, km)

	_, _, _, err := km.UnwrapKey([]byte{0x01, 0x02}, fixture.wrappingKeyBlob, fixture.wrappingKeyParams, fixture.maskingKey)
	assert.ErrorIs(t, err, interfaces.ErrInvalidArgument, "A truncated container must be rejected")
}

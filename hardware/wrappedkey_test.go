package hardware

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ruteri/tee-keymaster-core/interfaces"
)

func sampleWrappedKey() *interfaces.WrappedKeyData {
	return &interfaces.WrappedKeyData{
		IV:          []byte("twelve bytes"),
		TransitKey:  []byte("encrypted transport key"),
		SecureKey:   []byte("encrypted secret"),
		Tag:         []byte("0123456789abcdef"),
		Description: []byte("serialized description"),
		KeyFormat:   interfaces.KeyFormatRaw,
		AuthList: interfaces.NewSet(
			interfaces.EnumParam(interfaces.TagAlgorithm, uint32(interfaces.AlgorithmAES)),
			interfaces.UintParam(interfaces.TagKeySize, 256),
		),
	}
}

func TestBinaryWrappedKeyParser_RoundTrip(t *testing.T) {
	parser := &BinaryWrappedKeyParser{}
	original := sampleWrappedKey()

	parsed, err := parser.Parse(SerializeWrappedKey(original))
	require.NoError(t, err, "A serialized container should parse")

	assert.Equal(t, original.IV, parsed.IV)
	assert.Equal(t, original.TransitKey, parsed.TransitKey)
	assert.Equal(t, original.SecureKey, parsed.SecureKey)
	assert.Equal(t, original.Tag, parsed.Tag)
	assert.Equal(t, original.Description, parsed.Description)
	assert.Equal(t, original.KeyFormat, parsed.KeyFormat)
	assert.Equal(t, original.AuthList.Serialize(), parsed.AuthList.Serialize(), "Embedded auth list should round-trip")
}

func TestBinaryWrappedKeyParser_EmptyFields(t *testing.T) {
	parser := &BinaryWrappedKeyParser{}
	container := sampleWrappedKey()
	container.Description = nil
	container.AuthList = interfaces.NewSet()

	parsed, err := parser.Parse(SerializeWrappedKey(container))
	require.NoError(t, err, "Empty fields are legal")
	assert.Empty(t, parsed.Description)
	assert.Equal(t, 0, parsed.AuthList.Len())
}

func TestBinaryWrappedKeyParser_EmptyTrailingBlobParam(t *testing.T) {
	parser := &BinaryWrappedKeyParser{}
	container := sampleWrappedKey()
	// The auth list is the container's last field; an empty blob param at
	// its tail must still parse.
	container.AuthList = interfaces.NewSet(
		interfaces.EnumParam(interfaces.TagAlgorithm, uint32(interfaces.AlgorithmAES)),
		interfaces.BlobParam(interfaces.TagApplicationID, []byte{}),
	)

	parsed, err := parser.Parse(SerializeWrappedKey(container))
	require.NoError(t, err, "An empty blob param at the end of the auth list is legal")

	blob, ok := parsed.AuthList.GetBlob(interfaces.TagApplicationID)
	assert.True(t, ok, "The empty blob param should survive parsing")
	assert.Empty(t, blob)
}

func TestBinaryWrappedKeyParser_Malformed(t *testing.T) {
	parser := &BinaryWrappedKeyParser{}
	blob := SerializeWrappedKey(sampleWrappedKey())

	cases := map[string][]byte{
		"empty input":        {},
		"truncated header":   blob[:3],
		"truncated field":    blob[:7],
		"truncated mid-blob": blob[:len(blob)/2],
		"missing auth list":  blob[:len(blob)-1],
		"trailing bytes":     append(append([]byte{}, blob...), 0x00),
		"oversized length":   {0xff, 0xff, 0xff, 0xff, 0x01},
	}

	for name, data := range cases {
		_, err := parser.Parse(data)
		assert.ErrorIs(t, err, interfaces.ErrInvalidArgument, "Case %q should be rejected", name)
	}
}

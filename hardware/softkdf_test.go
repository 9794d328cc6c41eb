package hardware

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSoftKdf_SecretLength(t *testing.T) {
	_, err := NewSoftKdf(bytes.Repeat([]byte{0x01}, 31))
	assert.Error(t, err, "A short device secret must be rejected")

	_, err = NewSoftKdf(bytes.Repeat([]byte{0x01}, 32))
	assert.NoError(t, err, "A 32-byte device secret is the minimum")
}

func TestSoftKdf_Deterministic(t *testing.T) {
	kdf, err := NewSoftKdf(bytes.Repeat([]byte{0x02}, 32))
	require.NoError(t, err)

	derive := func() []byte {
		session, err := kdf.OpenSession()
		require.NoError(t, err)
		defer session.Close()

		out, err := session.Derive(1, []byte("label"), 32)
		require.NoError(t, err)
		return out
	}

	first := derive()
	second := derive()
	assert.Equal(t, first, second, "Same inputs must derive the same key across sessions")
	assert.Len(t, first, 32)
}

func TestSoftKdf_DomainSeparation(t *testing.T) {
	kdf, err := NewSoftKdf(bytes.Repeat([]byte{0x03}, 32))
	require.NoError(t, err)

	session, err := kdf.OpenSession()
	require.NoError(t, err)
	defer session.Close()

	base, err := session.Derive(1, []byte("label"), 32)
	require.NoError(t, err)

	otherVersion, err := session.Derive(2, []byte("label"), 32)
	require.NoError(t, err)
	assert.NotEqual(t, base, otherVersion, "The KDF version must separate derivations")

	otherLabel, err := session.Derive(1, []byte("other"), 32)
	require.NoError(t, err)
	assert.NotEqual(t, base, otherLabel, "The label must separate derivations")
}

func TestSoftKdf_SecretBinding(t *testing.T) {
	derive := func(fill byte) []byte {
		kdf, err := NewSoftKdf(bytes.Repeat([]byte{fill}, 32))
		require.NoError(t, err)
		session, err := kdf.OpenSession()
		require.NoError(t, err)
		defer session.Close()
		out, err := session.Derive(1, []byte("label"), 32)
		require.NoError(t, err)
		return out
	}

	assert.NotEqual(t, derive(0x04), derive(0x05), "Different secrets must derive different keys")
}

func TestSoftKdf_InvalidLength(t *testing.T) {
	kdf, err := NewSoftKdf(bytes.Repeat([]byte{0x06}, 32))
	require.NoError(t, err)

	session, err := kdf.OpenSession()
	require.NoError(t, err)
	defer session.Close()

	_, err = session.Derive(1, []byte("label"), 0)
	assert.Error(t, err, "Zero-length derivation must fail")

	_, err = session.Derive(1, []byte("label"), -1)
	assert.Error(t, err, "Negative-length derivation must fail")
}

func TestSoftKdf_ClosedSession(t *testing.T) {
	kdf, err := NewSoftKdf(bytes.Repeat([]byte{0x07}, 32))
	require.NoError(t, err)

	session, err := kdf.OpenSession()
	require.NoError(t, err)
	require.NoError(t, session.Close())

	_, err = session.Derive(1, []byte("label"), 32)
	assert.Error(t, err, "A closed session must refuse to derive")
}

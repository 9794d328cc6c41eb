package keymaster

import (
	"crypto/hmac"
	"crypto/sha256"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ruteri/tee-keymaster-core/interfaces"
)

func TestGetAuthTokenKey(t *testing.T) {
	km := testContext(t, nil)

	key, err := km.GetAuthTokenKey()
	require.NoError(t, err, "Key derivation should succeed")
	assert.Len(t, key, authTokenKeySize, "Auth token key is 32 bytes")

	again, err := km.GetAuthTokenKey()
	require.NoError(t, err)
	assert.Equal(t, key, again, "Repeated calls return the cached key")

	master, err := km.master.DeriveMasterKey()
	require.NoError(t, err)
	assert.NotEqual(t, master, key, "Auth token key must differ from the master key")
}

func TestGetAuthTokenKey_CallerCannotMutateCache(t *testing.T) {
	km := testContext(t, nil)

	key, err := km.GetAuthTokenKey()
	require.NoError(t, err)

	message := []byte("prompt to confirm")
	mac := hmac.New(sha256.New, key)
	mac.Write(message)
	token := mac.Sum(nil)[:confirmationTokenSize]

	for i := range key {
		key[i] = 0
	}

	assert.NoError(t, km.CheckConfirmationToken(message, token), "Zeroing the returned slice must not corrupt the cached key")

	again, err := km.GetAuthTokenKey()
	require.NoError(t, err)
	assert.NotEqual(t, key, again, "Later callers observe the original key")
}

func TestCheckConfirmationToken(t *testing.T) {
	km := testContext(t, nil)

	key, err := km.GetAuthTokenKey()
	require.NoError(t, err)

	message := []byte("confirmation token\x00{\"promptText\":\"transfer?\"}")
	mac := hmac.New(sha256.New, key)
	mac.Write(message)
	token := mac.Sum(nil)[:confirmationTokenSize]

	assert.NoError(t, km.CheckConfirmationToken(message, token), "A valid token should verify")

	tampered := append([]byte{}, token...)
	tampered[0] ^= 0x01
	err = km.CheckConfirmationToken(message, tampered)
	assert.ErrorIs(t, err, interfaces.ErrNoUserConfirmation, "A corrupted token must not verify")

	err = km.CheckConfirmationToken([]byte("different message"), token)
	assert.ErrorIs(t, err, interfaces.ErrNoUserConfirmation, "A token for another message must not verify")
}

func TestCheckConfirmationToken_Length(t *testing.T) {
	km := testContext(t, nil)

	message := []byte("message")

	err := km.CheckConfirmationToken(message, nil)
	assert.ErrorIs(t, err, interfaces.ErrNoUserConfirmation, "An empty token must not verify")

	err = km.CheckConfirmationToken(message, make([]byte, confirmationTokenSize-1))
	assert.ErrorIs(t, err, interfaces.ErrNoUserConfirmation, "A short token must not verify")

	key, err := km.GetAuthTokenKey()
	require.NoError(t, err)
	mac := hmac.New(sha256.New, key)
	mac.Write(message)
	full := mac.Sum(nil)

	err = km.CheckConfirmationToken(message, append(full[:confirmationTokenSize], 0x00))
	assert.ErrorIs(t, err, interfaces.ErrNoUserConfirmation, "An overlong token must not verify")
}

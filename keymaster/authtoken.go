package keymaster

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"fmt"

	"github.com/ruteri/tee-keymaster-core/interfaces"
)

const (
	authTokenKeySize      = 32
	confirmationTokenSize = 32
)

// authTokenKeyLabel separates the auth-token HMAC key from the master key
// in the hardware KDF's domain.
const authTokenKeyLabel = "KeymasterAuthToken"

// GetAuthTokenKey returns the HMAC key shared with the authenticators.
// Derived lazily; the first successful derivation wins and later callers
// observe the cached key. The returned slice is a copy.
func (c *Context) GetAuthTokenKey() ([]byte, error) {
	c.authTokenMu.Lock()
	defer c.authTokenMu.Unlock()

	if c.authTokenKey != nil {
		return bytes.Clone(c.authTokenKey), nil
	}

	session, err := c.cfg.Kdf.OpenSession()
	if err != nil {
		return nil, fmt.Errorf("%w: open kdf session: %v", interfaces.ErrSecureHwCommunicationFailed, err)
	}
	defer session.Close()

	label := make([]byte, authTokenKeySize)
	copy(label, authTokenKeyLabel)
	key, err := session.Derive(kdfVersion, label, authTokenKeySize)
	if err != nil {
		return nil, fmt.Errorf("%w: derive auth token key: %v", interfaces.ErrSecureHwCommunicationFailed, err)
	}

	c.authTokenKey = key
	return bytes.Clone(c.authTokenKey), nil
}

// CheckConfirmationToken verifies a user-confirmation token over the
// given message. The confirmation service shares the auth-token secret;
// its messages are distinguished by a caller-applied prefix, so this
// routine only computes and compares the truncated HMAC, in constant
// time. A mismatch reports ErrNoUserConfirmation with no detail.
func (c *Context) CheckConfirmationToken(message, confirmationToken []byte) error {
	key, err := c.GetAuthTokenKey()
	if err != nil {
		return err
	}

	mac := hmac.New(sha256.New, key)
	mac.Write(message)
	computed := mac.Sum(nil)[:confirmationTokenSize]

	if len(confirmationToken) != confirmationTokenSize ||
		subtle.ConstantTimeCompare(computed, confirmationToken) != 1 {
		return interfaces.ErrNoUserConfirmation
	}
	return nil
}

package keymaster

import (
	"fmt"

	"github.com/ruteri/tee-keymaster-core/interfaces"
)

// keyAuthsContain checks both enforcement sets of a parsed key for an
// exact tag/value authorization.
func keyAuthsContain(key interfaces.Key, tag interfaces.Tag, value uint64) bool {
	return key.HwEnforced().ContainsValue(tag, value) || key.SwEnforced().ContainsValue(tag, value)
}

// UnwrapKey runs the four-step secure import protocol: validate the
// wrapping key, parse the wrapped container, recover the transport key,
// and decrypt the payload. It is sequential and fails closed; no state
// survives a failed call.
//
// The returned material is the imported plaintext key; wrappedParams and
// keyFormat are the authorizations and format embedded in the container.
func (c *Context) UnwrapKey(wrappedKeyBlob, wrappingKeyBlob []byte, wrappingKeyParams *interfaces.Set, maskingKey []byte) (material []byte, wrappedParams *interfaces.Set, keyFormat interfaces.KeyFormat, err error) {
	fail := func(err error) ([]byte, *interfaces.Set, interfaces.KeyFormat, error) {
		return nil, nil, 0, err
	}

	// Step 1: the wrapping key must be authorized for wrapping with
	// OAEP/SHA-256, and the caller must have requested exactly that.
	wrappingKey, err := c.blobs.ParseKeyBlob(wrappingKeyBlob, wrappingKeyParams, false)
	if err != nil {
		c.log.Error("failed to parse wrapping key", "err", err)
		return fail(err)
	}

	if !keyAuthsContain(wrappingKey, interfaces.TagPurpose, uint64(interfaces.PurposeWrap)) {
		c.log.Error("wrapping key not authorized for wrapping")
		return fail(interfaces.ErrIncompatiblePurpose)
	}
	if !keyAuthsContain(wrappingKey, interfaces.TagDigest, uint64(interfaces.DigestSHA256)) {
		c.log.Error("wrapping key lacks authorization for SHA2-256")
		return fail(interfaces.ErrIncompatibleDigest)
	}
	if !keyAuthsContain(wrappingKey, interfaces.TagPadding, uint64(interfaces.PaddingRSAOAEP)) {
		c.log.Error("wrapping key lacks authorization for OAEP padding")
		return fail(interfaces.ErrIncompatiblePaddingMode)
	}
	if !wrappingKeyParams.ContainsValue(interfaces.TagDigest, uint64(interfaces.DigestSHA256)) {
		c.log.Error("wrapping key must use SHA2-256")
		return fail(interfaces.ErrIncompatibleDigest)
	}
	if !wrappingKeyParams.ContainsValue(interfaces.TagPadding, uint64(interfaces.PaddingRSAOAEP)) {
		c.log.Error("wrapping key must use OAEP padding")
		return fail(interfaces.ErrIncompatiblePaddingMode)
	}

	// Step 2: pull the container apart. The binary schema belongs to the
	// wrapped-key format spec and is owned by the parser.
	wrapped, err := c.cfg.WrappedKeyParser.Parse(wrappedKeyBlob)
	if err != nil {
		return fail(err)
	}

	// Step 3: decrypt the transit key with the wrapping key, then XOR in
	// the masking key delivered out of band. Neither channel alone
	// reveals the transport key.
	decryptFactory := wrappingKey.Factory().OperationFactory(interfaces.PurposeDecrypt)
	if decryptFactory == nil {
		return fail(fmt.Errorf("%w: wrapping key cannot decrypt", interfaces.ErrUnknown))
	}
	op, err := decryptFactory.New(wrappingKey, wrappingKeyParams)
	if err != nil {
		return fail(err)
	}
	if _, err := op.Begin(wrappingKeyParams); err != nil {
		return fail(err)
	}
	transportKey, err := op.Finish(wrappingKeyParams, wrapped.TransitKey)
	if err != nil {
		return fail(err)
	}

	if len(transportKey) != len(maskingKey) {
		return fail(fmt.Errorf("%w: masking key length %d, transport key length %d", interfaces.ErrInvalidArgument, len(maskingKey), len(transportKey)))
	}
	for i := range transportKey {
		transportKey[i] ^= maskingKey[i]
	}

	// Step 4: the transport key is an ephemeral 256-bit AES-GCM key bound
	// to the container's IV with a 128-bit tag. The wrapped-key
	// description authenticates as associated data.
	transportKeyAuths := interfaces.NewSet(
		interfaces.EnumParam(interfaces.TagAlgorithm, uint32(interfaces.AlgorithmAES)),
		interfaces.UintParam(interfaces.TagKeySize, 256),
		interfaces.EnumParam(interfaces.TagPadding, uint32(interfaces.PaddingNone)),
		interfaces.EnumParam(interfaces.TagBlockMode, uint32(interfaces.BlockModeGCM)),
		interfaces.BlobParam(interfaces.TagNonce, wrapped.IV),
		interfaces.UintParam(interfaces.TagMinMacLength, 128),
	)
	if err := transportKeyAuths.Validate(); err != nil {
		return fail(fmt.Errorf("%w: %v", interfaces.ErrInvalidArgument, err))
	}

	gcmParams := interfaces.NewSet(
		interfaces.EnumParam(interfaces.TagPadding, uint32(interfaces.PaddingNone)),
		interfaces.EnumParam(interfaces.TagBlockMode, uint32(interfaces.BlockModeGCM)),
		interfaces.BlobParam(interfaces.TagNonce, wrapped.IV),
		interfaces.UintParam(interfaces.TagMacLength, 128),
	)
	if err := gcmParams.Validate(); err != nil {
		return fail(fmt.Errorf("%w: %v", interfaces.ErrInvalidArgument, err))
	}

	aesFactory := c.KeyFactory(interfaces.AlgorithmAES)
	if aesFactory == nil {
		return fail(fmt.Errorf("%w: no AES factory", interfaces.ErrUnknown))
	}
	transportAESKey, err := aesFactory.LoadKey(transportKey, gcmParams, transportKeyAuths, interfaces.NewSet())
	if err != nil {
		return fail(err)
	}

	aesOpFactory := c.OperationFactory(interfaces.AlgorithmAES, interfaces.PurposeDecrypt)
	if aesOpFactory == nil {
		return fail(fmt.Errorf("%w: no AES decrypt factory", interfaces.ErrUnknown))
	}
	aesOp, err := aesOpFactory.New(transportAESKey, gcmParams)
	if err != nil {
		return fail(err)
	}
	if _, err := aesOp.Begin(gcmParams); err != nil {
		return fail(err)
	}

	encryptedKey := append(append([]byte{}, wrapped.SecureKey...), wrapped.Tag...)
	updateParams := interfaces.NewSet(
		interfaces.BlobParam(interfaces.TagAssociatedData, wrapped.Description),
	)

	plaintext, err := aesOp.Update(updateParams, encryptedKey)
	if err != nil {
		return fail(err)
	}
	final, err := aesOp.Finish(interfaces.NewSet(), nil)
	if err != nil {
		return fail(err)
	}
	plaintext = append(plaintext, final...)

	return plaintext, wrapped.AuthList, wrapped.KeyFormat, nil
}

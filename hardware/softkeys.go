package hardware

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"fmt"

	"github.com/ruteri/tee-keymaster-core/interfaces"
)

// SoftKeyFactories returns the software key factories for the algorithms
// the development build supports.
func SoftKeyFactories() map[interfaces.Algorithm]interfaces.KeyFactory {
	return map[interfaces.Algorithm]interfaces.KeyFactory{
		interfaces.AlgorithmAES: &AESKeyFactory{},
		interfaces.AlgorithmRSA: &RSAKeyFactory{},
	}
}

// AESKeyFactory materializes raw AES keys and provides GCM operations.
type AESKeyFactory struct{}

// LoadKey accepts 128-, 192-, or 256-bit raw key material.
func (f *AESKeyFactory) LoadKey(material []byte, additionalParams, hwEnforced, swEnforced *interfaces.Set) (interfaces.Key, error) {
	switch len(material) {
	case 16, 24, 32:
	default:
		return nil, fmt.Errorf("%w: AES key of %d bytes", interfaces.ErrInvalidArgument, len(material))
	}
	return &interfaces.RawKey{Material: material, Hw: hwEnforced, Sw: swEnforced, Fac: f}, nil
}

// OperationFactory supports encryption and decryption.
func (f *AESKeyFactory) OperationFactory(purpose interfaces.Purpose) interfaces.OperationFactory {
	switch purpose {
	case interfaces.PurposeEncrypt, interfaces.PurposeDecrypt:
		return &gcmOperationFactory{decrypt: purpose == interfaces.PurposeDecrypt}
	default:
		return nil
	}
}

type gcmOperationFactory struct {
	decrypt bool
}

func (f *gcmOperationFactory) New(key interfaces.Key, params *interfaces.Set) (interfaces.Operation, error) {
	if mode, ok := params.GetEnum(interfaces.TagBlockMode); !ok || interfaces.BlockMode(mode) != interfaces.BlockModeGCM {
		return nil, fmt.Errorf("%w: only GCM is supported", interfaces.ErrInvalidArgument)
	}
	nonce, ok := params.GetBlob(interfaces.TagNonce)
	if !ok {
		return nil, fmt.Errorf("%w: missing nonce", interfaces.ErrInvalidArgument)
	}
	return &gcmOperation{
		material: key.KeyMaterial(),
		nonce:    nonce,
		decrypt:  f.decrypt,
	}, nil
}

// gcmOperation buffers all input and associated data until Finish, where
// the one-shot GCM seal or open runs.
type gcmOperation struct {
	material []byte
	nonce    []byte
	decrypt  bool

	aad   []byte
	input []byte
}

func (o *gcmOperation) Begin(params *interfaces.Set) (*interfaces.Set, error) {
	o.collect(params, nil)
	return interfaces.NewSet(), nil
}

func (o *gcmOperation) Update(params *interfaces.Set, input []byte) ([]byte, error) {
	o.collect(params, input)
	return nil, nil
}

func (o *gcmOperation) Finish(params *interfaces.Set, input []byte) ([]byte, error) {
	o.collect(params, input)

	block, err := aes.NewCipher(o.material)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", interfaces.ErrInvalidArgument, err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", interfaces.ErrUnknown, err)
	}
	if len(o.nonce) != gcm.NonceSize() {
		return nil, fmt.Errorf("%w: nonce size %d", interfaces.ErrInvalidArgument, len(o.nonce))
	}

	if o.decrypt {
		plaintext, err := gcm.Open(nil, o.nonce, o.input, o.aad)
		if err != nil {
			return nil, interfaces.ErrAuthenticationFailure
		}
		return plaintext, nil
	}
	return gcm.Seal(nil, o.nonce, o.input, o.aad), nil
}

func (o *gcmOperation) collect(params *interfaces.Set, input []byte) {
	if aad, ok := params.GetBlob(interfaces.TagAssociatedData); ok {
		o.aad = append(o.aad, aad...)
	}
	o.input = append(o.input, input...)
}

// RSAKeyFactory materializes RSA private keys from PKCS#8 or PKCS#1
// material and provides OAEP decryption.
type RSAKeyFactory struct{}

type rsaKey struct {
	interfaces.RawKey
	priv *rsa.PrivateKey
}

func (f *RSAKeyFactory) LoadKey(material []byte, additionalParams, hwEnforced, swEnforced *interfaces.Set) (interfaces.Key, error) {
	var priv *rsa.PrivateKey
	if parsed, err := x509.ParsePKCS8PrivateKey(material); err == nil {
		rsaPriv, ok := parsed.(*rsa.PrivateKey)
		if !ok {
			return nil, fmt.Errorf("%w: not an RSA key", interfaces.ErrInvalidKeyBlob)
		}
		priv = rsaPriv
	} else if parsed, err := x509.ParsePKCS1PrivateKey(material); err == nil {
		priv = parsed
	} else {
		return nil, fmt.Errorf("%w: unparseable RSA key material", interfaces.ErrInvalidKeyBlob)
	}

	return &rsaKey{
		RawKey: interfaces.RawKey{Material: material, Hw: hwEnforced, Sw: swEnforced, Fac: f},
		priv:   priv,
	}, nil
}

func (f *RSAKeyFactory) OperationFactory(purpose interfaces.Purpose) interfaces.OperationFactory {
	if purpose != interfaces.PurposeDecrypt {
		return nil
	}
	return &rsaDecryptFactory{}
}

type rsaDecryptFactory struct{}

func (f *rsaDecryptFactory) New(key interfaces.Key, params *interfaces.Set) (interfaces.Operation, error) {
	rk, ok := key.(*rsaKey)
	if !ok {
		return nil, fmt.Errorf("%w: not a software RSA key", interfaces.ErrInvalidArgument)
	}
	if !params.ContainsValue(interfaces.TagPadding, uint64(interfaces.PaddingRSAOAEP)) {
		return nil, interfaces.ErrIncompatiblePaddingMode
	}
	if !params.ContainsValue(interfaces.TagDigest, uint64(interfaces.DigestSHA256)) {
		return nil, interfaces.ErrIncompatibleDigest
	}
	return &rsaOAEPDecryptOperation{priv: rk.priv}, nil
}

type rsaOAEPDecryptOperation struct {
	priv  *rsa.PrivateKey
	input []byte
}

func (o *rsaOAEPDecryptOperation) Begin(params *interfaces.Set) (*interfaces.Set, error) {
	return interfaces.NewSet(), nil
}

func (o *rsaOAEPDecryptOperation) Update(params *interfaces.Set, input []byte) ([]byte, error) {
	o.input = append(o.input, input...)
	return nil, nil
}

func (o *rsaOAEPDecryptOperation) Finish(params *interfaces.Set, input []byte) ([]byte, error) {
	o.input = append(o.input, input...)
	plaintext, err := rsa.DecryptOAEP(sha256.New(), nil, o.priv, o.input, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: OAEP decrypt: %v", interfaces.ErrInvalidArgument, err)
	}
	return plaintext, nil
}

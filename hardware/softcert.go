package hardware

import (
	"crypto"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/asn1"
	"fmt"
	"math/big"
	"time"

	"github.com/ruteri/tee-keymaster-core/interfaces"
)

// attestationExtensionOID marks the extension carrying the attestation
// challenge in generated certificates.
var attestationExtensionOID = asn1.ObjectIdentifier{1, 3, 6, 1, 4, 1, 11129, 2, 1, 17}

// SoftCertGenerator builds X.509 certificates in software. Hardware
// deployments replace this with a generator that keeps signing keys
// inside the secure element.
type SoftCertGenerator struct{}

func NewSoftCertGenerator() *SoftCertGenerator {
	return &SoftCertGenerator{}
}

func parseSigner(material []byte) (crypto.Signer, error) {
	if key, err := x509.ParsePKCS8PrivateKey(material); err == nil {
		signer, ok := key.(crypto.Signer)
		if !ok {
			return nil, fmt.Errorf("%w: key does not support signing", interfaces.ErrInvalidArgument)
		}
		return signer, nil
	}
	if key, err := x509.ParsePKCS1PrivateKey(material); err == nil {
		return key, nil
	}
	if key, err := x509.ParseECPrivateKey(material); err == nil {
		return key, nil
	}
	return nil, fmt.Errorf("%w: unparseable private key material", interfaces.ErrInvalidArgument)
}

// templateFromParams builds a certificate template from certificate
// parameters. Dates are milliseconds since the epoch.
func templateFromParams(params *interfaces.Set) *x509.Certificate {
	template := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "Android Keystore Key"},
		NotBefore:    time.Now(),
		NotAfter:     time.Now().AddDate(20, 0, 0),
	}

	if params == nil {
		return template
	}
	if serial, ok := params.GetBlob(interfaces.TagCertificateSerial); ok && len(serial) > 0 {
		template.SerialNumber = new(big.Int).SetBytes(serial)
	}
	if subject, ok := params.GetBlob(interfaces.TagCertificateSubject); ok && len(subject) > 0 {
		template.Subject = pkix.Name{CommonName: string(subject)}
	}
	if notBefore, ok := params.GetValue(interfaces.TagCertificateNotBefore); ok {
		template.NotBefore = time.UnixMilli(int64(notBefore))
	}
	if notAfter, ok := params.GetValue(interfaces.TagCertificateNotAfter); ok {
		template.NotAfter = time.UnixMilli(int64(notAfter))
	}
	return template
}

// GenerateSelfSigned signs a certificate for the key with the key itself.
func (g *SoftCertGenerator) GenerateSelfSigned(key interfaces.Key, certParams *interfaces.Set) ([][]byte, error) {
	signer, err := parseSigner(key.KeyMaterial())
	if err != nil {
		return nil, err
	}

	template := templateFromParams(certParams)
	certDER, err := x509.CreateCertificate(rand.Reader, template, template, signer.Public(), signer)
	if err != nil {
		return nil, fmt.Errorf("failed to create self-signed certificate: %w", err)
	}
	return [][]byte{certDER}, nil
}

// GenerateAttestation signs a certificate for the key with the provided
// attestation key. The attestation challenge, when present, is carried
// in a dedicated extension.
func (g *SoftCertGenerator) GenerateAttestation(key interfaces.Key, attestParams *interfaces.Set, attestKey interfaces.Key, issuerSubject []byte) ([][]byte, error) {
	subjectSigner, err := parseSigner(key.KeyMaterial())
	if err != nil {
		return nil, err
	}
	issuerSigner, err := parseSigner(attestKey.KeyMaterial())
	if err != nil {
		return nil, err
	}

	template := templateFromParams(attestParams)
	if challenge, ok := attestParams.GetBlob(interfaces.TagAttestationChallenge); ok && len(challenge) > 0 {
		template.ExtraExtensions = append(template.ExtraExtensions, pkix.Extension{
			Id:    attestationExtensionOID,
			Value: append([]byte{}, challenge...),
		})
	}

	parent := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		RawSubject:   issuerSubject,
	}

	certDER, err := x509.CreateCertificate(rand.Reader, template, parent, subjectSigner.Public(), issuerSigner)
	if err != nil {
		return nil, fmt.Errorf("failed to create attestation certificate: %w", err)
	}
	return [][]byte{certDER}, nil
}

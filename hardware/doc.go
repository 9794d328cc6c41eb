/*
Package hardware provides software implementations of the hardware
interfaces the keymaster core consumes.

On a real device the KDF, RNG, and attestation storage are services of
the trusted OS. The adapters here stand in for them in development
deployments and tests: an HKDF-based keyed derivation over a provisioned
device secret, a crypto/rand-backed entropy source, software AES and RSA
key factories, and secure-storage backends over the local filesystem,
HashiCorp Vault, and S3-compatible object stores.
*/
package hardware

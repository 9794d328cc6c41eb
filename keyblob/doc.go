/*
Package keyblob implements the encrypted key blob format and its
lifecycle.

A blob is the AES-GCM ciphertext of raw key material, authenticated
against the key's hardware- and software-enforced authorization sets and
against transient hidden authorizations derived from the caller identity
and the verified boot state. Two envelope formats exist on the decrypt
path; new blobs are always sealed in the current format. Blobs arriving
through the keystore compatibility layer carry an 8-byte prefix that is
recognized and stripped here.

Upgrades never mutate an existing blob: parsing the old blob, moving the
version tags forward, and re-encrypting yields a new independent blob.
*/
package keyblob

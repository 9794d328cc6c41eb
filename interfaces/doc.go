// Package interfaces defines the shared types and narrow contracts of the
// keymaster core: authorization tags and sets, the error taxonomy, and
// the interfaces consumed from hardware collaborators (RNG, KDF, secure
// storage, key factories, certificate generation).
//
// The package has no dependencies on the rest of the module so that every
// other package can import it freely.
package interfaces

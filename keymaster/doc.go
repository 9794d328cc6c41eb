/*
Package keymaster is the coordinator of the security-policy and
key-lifecycle layer.

The Context composes the RNG reseed gate, master key derivation from the
hardware-unique secret, the write-once root-of-trust state, the blob
lifecycle, the attestation gate, and the secure key import (unwrap)
protocol. Hardware collaborators enter through the narrow interfaces in
the interfaces package; nothing here touches cipher internals, transport
framing, or persistence.

The surrounding command dispatcher serializes calls, so the Context is
designed for one caller at a time. Components that do hold mutable state
(the RNG counter, root of trust, the lazily derived auth-token key) guard
it with their own locks so a host-side wrapper can relax that assumption.
*/
package keymaster

/*
Package authorization implements the security policy over key
authorization tags.

The classifier routes every tag of a requested key description into
exactly one policy class: hardware-enforced, keystore(software)-enforced,
dropped, or rejected. The policy table is total over the known tag
enumeration and checked for exhaustiveness by tests, so adding a tag to
the enumeration without deciding its policy fails the build's test run.

The hidden-authorization binder produces the transient set that ties a
key blob to the calling application's identity and the device's verified
boot state. Its byte encoding participates in the blob's authenticated
encryption, which is what makes key blobs unusable after a root-of-trust
change.
*/
package authorization

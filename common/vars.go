// Package common contains variables and helpers shared across services.
package common

// Version is set at build time via ldflags.
var Version = "dev"

// PackageName tags logs and diagnostics emitted by this module.
const PackageName = "tee-keymaster-core"

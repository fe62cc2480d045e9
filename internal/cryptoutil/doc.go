// Package cryptoutil holds the hashing primitives behind catalog
// integrity checks: SHA-256 helpers and a comparison that does not leak
// timing. Every hash comparison in the codebase goes through HashEqual.
package cryptoutil

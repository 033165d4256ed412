// Package security provides the machine-identity primitives the licensing
// engine builds on: hardware fingerprinting with per-component sentinel
// fallbacks, scrypt-based derivation of the credential-store signing key,
// and a machine-scoped single-instance lock.
package security

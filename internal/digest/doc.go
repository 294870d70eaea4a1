// Package digest computes stable fingerprints of configuration and pass
// traces.
//
// Values are serialized as canonical JSON (RFC 8785 subset) and hashed with
// SHA-256 under a domain prefix. Two configurations that differ only in map
// ordering, key order in the source file or Unicode normalization form get
// the same digest.
//
// CRITICAL PATTERNS:
//
// Canonical JSON:
//   - object keys sorted by UTF-16 code units
//   - strings NFC-normalized, no HTML escaping
//   - integers only: floats and null are rejected
//
// Domain Separation:
// Hash(domain, data) = SHA256(domain || 0x00 || data). Each kind of digest has
// its own versioned domain so the algorithm can change without collisions.
package digest

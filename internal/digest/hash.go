package digest

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes. The version suffix allows migrating the algorithm.
const (
	DomainConfig = "tileconverge/config/v1"
	DomainTrace  = "tileconverge/trace/v1"
)

// Hash computes SHA256(domain || 0x00 || data) as lowercase hex.
// The null separator prevents domain/data boundary ambiguity.
func Hash(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// Of hashes the canonical JSON of v under domain.
func Of(domain string, v any) (string, error) {
	data, err := Canonical(v)
	if err != nil {
		return "", fmt.Errorf("digest %s: %w", domain, err)
	}
	return Hash(domain, data), nil
}

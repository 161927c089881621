// Package signing holds the MAC primitives shared by the gateway adapters.
// Every supported gateway signs a string derived deterministically from the
// payload rather than the JSON text itself, so adapters canonicalize first
// and then call into this package.
package signing

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
)

// HMACSHA256Hex returns the lowercase hex HMAC-SHA256 of canonical under secret.
func HMACSHA256Hex(secret, canonical string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write([]byte(canonical))
	return hex.EncodeToString(mac.Sum(nil))
}

// Equal compares two hex-encoded MACs in constant time.
func Equal(a, b string) bool {
	return hmac.Equal([]byte(strings.ToLower(strings.TrimSpace(a))), []byte(strings.ToLower(strings.TrimSpace(b))))
}

// SortedQueryString canonicalizes fields as key=value pairs joined by "&" in
// alphabetical key order. This is the PayOS-style canonicalization; gateways
// with an explicit enumerated field order must not use it.
func SortedQueryString(fields map[string]string) string {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, k+"="+fields[k])
	}
	return strings.Join(pairs, "&")
}

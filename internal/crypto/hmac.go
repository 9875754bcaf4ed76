// Package crypto provides the HMAC signing primitives used by the exchange
// REST adapters and encrypted storage for API credentials.
package crypto

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/base64"
	"encoding/hex"
	"fmt"
)

// HMACSHA256Hex computes HMAC-SHA256 of message using key and returns the
// result hex-encoded. This is the signature format Binance-style APIs expect
// on the query string.
func HMACSHA256Hex(key []byte, message string) string {
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(message))
	return hex.EncodeToString(mac.Sum(nil))
}

// HMACSHA256Base64 computes HMAC-SHA256 of message using key and returns the
// result base64-encoded.
func HMACSHA256Base64(key []byte, message string) string {
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(message))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// HMACSHA512Base64 computes HMAC-SHA512 of message bytes using key and
// returns the result base64-encoded. This is the signature format
// Kraken-style APIs expect.
func HMACSHA512Base64(key, message []byte) string {
	mac := hmac.New(sha512.New, key)
	mac.Write(message)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// SHA256Sum returns the SHA-256 digest of the input.
func SHA256Sum(data []byte) []byte {
	sum := sha256.Sum256(data)
	return sum[:]
}

// APICredentials holds one exchange account's API key pair.
type APICredentials struct {
	Key    string
	Secret string
}

// String returns a redacted representation suitable for logging.
func (c APICredentials) String() string {
	redact := func(s string) string {
		if len(s) <= 4 {
			return "****"
		}
		return s[:4] + "****"
	}
	return fmt.Sprintf("APICredentials{key=%s, secret=%s}", redact(c.Key), redact(c.Secret))
}

// Package signer implements the two message-authentication schemes Payplace
// accepts for hosted-form redirect URLs. Both sign a sorted, percent-encoded
// query string built from the redirect parameters; the resulting lowercase hex
// digest travels as the hmac1 URL parameter.
package signer

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
)

// Signer produces the hmac1 signature for a redirect parameter set.
type Signer interface {
	Sign(key string, params map[string]string) string
}

// QuerySigner is the standard scheme: HMAC-SHA256 over the encoded query
// string, computed with the library primitive. Used by the legacy card flow.
type QuerySigner struct{}

// Sign returns the lowercase hex HMAC-SHA256 of the encoded parameters.
func (QuerySigner) Sign(key string, params map[string]string) string {
	mac := hmac.New(sha256.New, []byte(key))
	mac.Write([]byte(EncodeQuery(params)))
	return hex.EncodeToString(mac.Sum(nil))
}

// ExpressSigner reproduces the construction from the Payplace Express
// specification step by step: pad the key to 64 bytes (hashing it first when
// longer), XOR with 0x36/0x5c, and chain two SHA-256 rounds over the encoded
// query string. For keys up to 64 bytes the result equals HMAC-SHA256; longer
// keys are pre-hashed, which a library HMAC would also do.
type ExpressSigner struct{}

// Sign returns the lowercase hex signature of the encoded parameters.
func (ExpressSigner) Sign(key string, params map[string]string) string {
	padded := padKey([]byte(key))
	ipad := xorPattern(padded, 0x36)
	opad := xorPattern(padded, 0x5c)

	inner := sha256.New()
	inner.Write(ipad)
	inner.Write([]byte(EncodeQuery(params)))

	outer := sha256.New()
	outer.Write(opad)
	outer.Write(inner.Sum(nil))

	return hex.EncodeToString(outer.Sum(nil))
}

// padKey brings the key to exactly 64 bytes. Keys longer than the SHA-256
// block size are replaced by their raw digest first, then right-padded with
// zero bytes.
func padKey(key []byte) []byte {
	if len(key) > 64 {
		sum := sha256.Sum256(key)
		key = sum[:]
	}
	padded := make([]byte, 64)
	copy(padded, key)
	return padded
}

func xorPattern(key []byte, pattern byte) []byte {
	out := make([]byte, len(key))
	for i, b := range key {
		out[i] = b ^ pattern
	}
	return out
}

// EncodeQuery serializes params as the provider's signed message: keys sorted
// ascending in byte order, joined as name=value pairs with "&", values
// percent-encoded per the Payplace table. No leading "?".
func EncodeQuery(params map[string]string) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(Escape(params[k]))
	}
	return b.String()
}

const upperhex = "0123456789ABCDEF"

// Escape percent-encodes a value per the Payplace Express rules: A-Z, a-z,
// 0-9, "-", "_", ".", "~" pass through; every other byte, including each byte
// of a multi-byte UTF-8 sequence, becomes %XX with uppercase hex. Space is
// always %20, never "+". Standard library query encoding does not produce
// this form and is rejected by the provider.
func Escape(value string) string {
	var b strings.Builder
	b.Grow(len(value))
	for i := 0; i < len(value); i++ {
		c := value[i]
		if isUnreserved(c) {
			b.WriteByte(c)
			continue
		}
		b.WriteByte('%')
		b.WriteByte(upperhex[c>>4])
		b.WriteByte(upperhex[c&0x0f])
	}
	return b.String()
}

func isUnreserved(c byte) bool {
	switch {
	case c >= 'A' && c <= 'Z':
		return true
	case c >= 'a' && c <= 'z':
		return true
	case c >= '0' && c <= '9':
		return true
	case c == '-' || c == '_' || c == '.' || c == '~':
		return true
	}
	return false
}

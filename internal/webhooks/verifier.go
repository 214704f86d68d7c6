package webhooks

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"hash"
	"strings"
)

type Algorithm string

const (
	SHA256 Algorithm = "sha256"
	SHA512 Algorithm = "sha512"
)

type Encoding string

const (
	Hex    Encoding = "hex"
	Base64 Encoding = "base64"
)

// Verifier checks an HMAC signature over a raw callback body.
type Verifier struct {
	algorithm Algorithm
	encoding  Encoding
	prefix    string
}

func NewVerifier(algorithm Algorithm, encoding Encoding, prefix string) (*Verifier, error) {
	switch algorithm {
	case SHA256, SHA512:
	default:
		return nil, fmt.Errorf("unsupported hmac algorithm %q", algorithm)
	}
	switch encoding {
	case Hex, Base64:
	default:
		return nil, fmt.Errorf("unsupported signature encoding %q", encoding)
	}
	return &Verifier{algorithm: algorithm, encoding: encoding, prefix: prefix}, nil
}

// MpesaVerifier matches the X-Callback-Signature scheme: HMAC-SHA512, hex.
func MpesaVerifier() *Verifier {
	return &Verifier{algorithm: SHA512, encoding: Hex}
}

// SquareVerifier signs notificationURL+body with HMAC-SHA256, base64.
func SquareVerifier(notificationURL string) *Verifier {
	return &Verifier{algorithm: SHA256, encoding: Base64, prefix: notificationURL}
}

// Verify reports whether signature matches body under secret. It returns
// false for an empty secret, an empty or undecodable header, or a mismatch.
func (v *Verifier) Verify(body []byte, signature, secret string) bool {
	if v == nil || secret == "" {
		return false
	}
	signature = strings.TrimSpace(signature)
	if signature == "" {
		return false
	}
	provided, err := v.decode(signature)
	if err != nil || len(provided) == 0 {
		return false
	}
	return hmac.Equal(provided, v.mac(body, secret))
}

// Sign produces the header value a provider would send for body.
func (v *Verifier) Sign(body []byte, secret string) string {
	sum := v.mac(body, secret)
	if v.encoding == Base64 {
		return base64.StdEncoding.EncodeToString(sum)
	}
	return hex.EncodeToString(sum)
}

func (v *Verifier) mac(body []byte, secret string) []byte {
	var fn func() hash.Hash
	switch v.algorithm {
	case SHA512:
		fn = sha512.New
	default:
		fn = sha256.New
	}
	m := hmac.New(fn, []byte(secret))
	m.Write([]byte(v.prefix))
	m.Write(body)
	return m.Sum(nil)
}

func (v *Verifier) decode(signature string) ([]byte, error) {
	if v.encoding == Base64 {
		return base64.StdEncoding.DecodeString(signature)
	}
	return hex.DecodeString(strings.ToLower(signature))
}

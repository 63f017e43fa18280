package polymarket

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"time"
)

// Signer produces Polymarket L2 authentication headers. The API secret is
// URL-safe base64; it is decoded before HMAC and the signature re-encoded
// the same way, matching the venue's reference clients.
type Signer struct {
	address    string
	apiKey     string
	secret     string
	passphrase string
}

// NewSigner creates a new Signer instance
func NewSigner(address, apiKey, secret, passphrase string) *Signer {
	return &Signer{
		address:    address,
		apiKey:     apiKey,
		secret:     secret,
		passphrase: passphrase,
	}
}

// GenerateHeaders creates the L2 auth headers for a request.
// method: GET, POST, DELETE
// path: /order (no host, no query)
// body: json string (empty if none)
func (s *Signer) GenerateHeaders(method, path, body string) (map[string]string, error) {
	timestamp := fmt.Sprintf("%d", time.Now().Unix())
	return s.headersAt(timestamp, method, path, body)
}

// headersAt is split out so tests can sign with a fixed timestamp.
func (s *Signer) headersAt(timestamp, method, path, body string) (map[string]string, error) {
	message := timestamp + method + path + body

	secretBytes, err := base64.URLEncoding.DecodeString(s.secret)
	if err != nil {
		return nil, fmt.Errorf("decode api secret: %w", err)
	}

	h := hmac.New(sha256.New, secretBytes)
	h.Write([]byte(message))
	signature := base64.URLEncoding.EncodeToString(h.Sum(nil))

	return map[string]string{
		"POLY_ADDRESS":    s.address,
		"POLY_SIGNATURE":  signature,
		"POLY_TIMESTAMP":  timestamp,
		"POLY_API_KEY":    s.apiKey,
		"POLY_PASSPHRASE": s.passphrase,
		"Content-Type":    "application/json",
	}, nil
}

package binance

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// Signer signs USD-M futures API requests.
// It stores the secret as []byte to allow memory wiping.
type Signer struct {
	apiKey    string
	secretKey []byte
}

// NewSigner creates a new signer.
func NewSigner(apiKey, secretKey string) *Signer {
	return &Signer{
		apiKey:    apiKey,
		secretKey: []byte(secretKey),
	}
}

// APIKey returns the key sent in the X-MBX-APIKEY header.
func (s *Signer) APIKey() string {
	return s.apiKey
}

// Sign returns the hex-encoded HMAC-SHA256 signature of the query string.
func (s *Signer) Sign(queryString string) string {
	mac := hmac.New(sha256.New, s.secretKey)
	mac.Write([]byte(queryString))
	return hex.EncodeToString(mac.Sum(nil))
}

// Wipe clears the secret from memory.
func (s *Signer) Wipe() {
	if s == nil {
		return
	}
	for i := range s.secretKey {
		s.secretKey[i] = 0
	}
}

package utils

import (
	"crypto/rand"
	"encoding/base64"
)

// RandomToken returns an unguessable URL-safe token built from n random bytes.
func RandomToken(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

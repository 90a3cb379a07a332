package config

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/blackmesalabs/ash/errors"
)

// DecryptToken unpacks a site-issued user token of the form
// username|cipherhex|sig. The signature is HMAC-SHA256 over
// "username|cipherhex" with the site secret; the cipher is the API key
// XORed against the repeated secret bytes.
func DecryptToken(secret, token string) (username, apiKey string, err error) {
	parts := strings.Split(token, "|")
	if len(parts) != 3 {
		return "", "", errors.New("invalid token format")
	}
	username, cipherHex, sig := parts[0], parts[1], parts[2]

	key := []byte(secret)
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(username + "|" + cipherHex))
	expected := hex.EncodeToString(mac.Sum(nil))
	if !hmac.Equal([]byte(expected), []byte(sig)) {
		return "", "", errors.New("invalid token signature")
	}

	cipher, err := hex.DecodeString(cipherHex)
	if err != nil {
		return "", "", errors.Wrapf(err, "invalid token cipher")
	}
	plain := make([]byte, len(cipher))
	for i, b := range cipher {
		plain[i] = b ^ key[i%len(key)]
	}
	return username, string(plain), nil
}

// EncryptToken is the inverse of DecryptToken. Site administrators use it to
// mint per-user tokens; Ash itself only decrypts.
func EncryptToken(secret, username, apiKey string) string {
	key := []byte(secret)
	cipher := make([]byte, len(apiKey))
	for i := range apiKey {
		cipher[i] = apiKey[i] ^ key[i%len(key)]
	}
	cipherHex := hex.EncodeToString(cipher)
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(username + "|" + cipherHex))
	return username + "|" + cipherHex + "|" + hex.EncodeToString(mac.Sum(nil))
}

package utils

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"

	"golang.org/x/crypto/bcrypt"
)

// HashAccessCode derives the bcrypt hash stored for a dashboard access
// code. The clear code is only ever shown once, in the chat message that
// delivers it.
func HashAccessCode(code string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(code), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// VerifyAccessCode checks a submitted code against the stored hash.
func VerifyAccessCode(hash, code string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(code)) == nil
}

// Hmac256 signs body with key and returns the hex digest. Realtime feed
// payloads carry this signature so dashboard clients can verify origin.
func Hmac256(body, key []byte) string {
	hash := hmac.New(sha256.New, key)
	hash.Write(body)
	return hex.EncodeToString(hash.Sum(nil))
}

// VerifyHmac256 reports whether signature matches body under key, in
// constant time.
func VerifyHmac256(body, key []byte, signature string) bool {
	expected := Hmac256(body, key)
	return hmac.Equal([]byte(signature), []byte(expected))
}

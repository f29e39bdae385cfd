package gateway

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"math/big"
)

func requestID() (string, error) {
	min := big.NewInt(100000000000000000)
	max := big.NewInt(999999999999999999)
	n, err := rand.Int(rand.Reader, new(big.Int).Sub(max, min))
	if err != nil {
		return "", err
	}

	n.Add(n, min)
	return n.String(), nil
}

// Hmac256 signs body with the shared gateway key.
func Hmac256(body, key []byte) string {
	hash := hmac.New(sha256.New, key)
	hash.Write(body)
	return hex.EncodeToString(hash.Sum(nil))
}

// VerifyHmac reports whether receivedHMAC is a valid signature over
// payload.
func VerifyHmac(key, payload, receivedHMAC string) bool {
	expected := Hmac256([]byte(payload), []byte(key))
	return hmac.Equal([]byte(receivedHMAC), []byte(expected))
}

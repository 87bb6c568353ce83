// Package hashkey derives the stable per-subscriber path segment of an export.
package hashkey

import (
	"crypto/sha512"
	"encoding/hex"
	"strconv"

	"golang.org/x/crypto/pbkdf2"
)

const (
	Iterations = 100_000
	KeyLength  = sha512.Size
)

// Identity names one subscriber's export destination.
type Identity struct {
	Salt       string
	Ordinal    int
	Subscriber string
	Receiver   string
}

// Derive returns hex(PBKDF2-HMAC-SHA512(subscriber+receiver, salt+ordinal)).
func Derive(id Identity) string {
	message := []byte(id.Subscriber + id.Receiver)
	salt := []byte(id.Salt + strconv.Itoa(id.Ordinal))
	return hex.EncodeToString(pbkdf2.Key(message, salt, Iterations, KeyLength, sha512.New))
}

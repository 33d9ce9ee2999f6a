// Package password generates database passwords for pending secret versions.
package password

import (
	"fmt"

	"github.com/awnumar/memguard"
)

// MinLength is the smallest password the generator will produce.
// Shorter values do not carry enough entropy for an unthrottled
// database principal.
const MinLength = 32

// charset covers mixed-case letters, digits and punctuation accepted
// unquoted by PostgreSQL's ALTER USER.
const charset = "abcdefghijklmnopqrstuvwxyz" +
	"ABCDEFGHIJKLMNOPQRSTUVWXYZ" +
	"0123456789" +
	"!@#$%^&*()-_=+"

// Generate returns a cryptographically random password of the given
// length. The entropy is drawn into a memguard locked buffer so the raw
// random bytes are wiped as soon as the mapping is done; the returned
// string is the caller's to protect.
func Generate(length int) (string, error) {
	if length < MinLength {
		return "", fmt.Errorf("password length %d below minimum %d", length, MinLength)
	}

	entropy := memguard.NewBufferRandom(length)
	defer entropy.Destroy()

	out := make([]byte, length)
	for i, b := range entropy.Bytes() {
		out[i] = charset[int(b)%len(charset)]
	}

	return string(out), nil
}

package services

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"
)

// userCodeAlphabet excludes vowels (no accidental words) and the visually
// ambiguous characters 0/O and 1/I/L, so a code can be read off a TV screen
// from across the room.
const userCodeAlphabet = "BCDFGHJKMNPQRSTVWXZ23456789"

const userCodeLength = 8

// newDeviceCode returns the opaque secret held by the polling device:
// 32 random bytes, hex encoded.
func newDeviceCode() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate device code: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// newUserCode returns a short human-typable code in XXXX-XXXX form.
func newUserCode() (string, error) {
	max := big.NewInt(int64(len(userCodeAlphabet)))

	chars := make([]byte, userCodeLength)
	for i := range chars {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("failed to generate user code: %w", err)
		}
		chars[i] = userCodeAlphabet[n.Int64()]
	}

	return string(chars[:4]) + "-" + string(chars[4:]), nil
}

// NormalizeUserCode canonicalizes user input: case, spaces, and hyphen
// placement are forgiven.
func NormalizeUserCode(code string) string {
	cleaned := strings.ToUpper(code)
	cleaned = strings.ReplaceAll(cleaned, "-", "")
	cleaned = strings.ReplaceAll(cleaned, " ", "")
	if len(cleaned) != userCodeLength {
		return cleaned
	}
	return cleaned[:4] + "-" + cleaned[4:]
}

package utils

import (
	"crypto/rand"
	"fmt"
)

// unambiguous alphabet: no I or O
const base34Table = "0123456789ABCDEFGHJKLMNPQRSTUVWXYZ"

// RandBase34 returns a random string of the given length, suitable for
// anti-forgery tokens.
func RandBase34(length int) (string, error) {
	if length <= 0 {
		return "", fmt.Errorf("invalid length: %d", length)
	}

	buf := make([]byte, length)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("read random bytes: %w", err)
	}
	for i := range buf {
		buf[i] = base34Table[int(buf[i])%len(base34Table)]
	}
	return string(buf), nil
}

package auth

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"sync"

	"golang.org/x/crypto/bcrypt"
)

const passwordAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789"

// OneTimePasswordLength is the length of generated initial passwords.
const OneTimePasswordLength = 7

// GeneratePassword returns a random password of n lowercase letters and digits.
func GeneratePassword(n int) (string, error) {
	max := big.NewInt(int64(len(passwordAlphabet)))
	buf := make([]byte, n)
	for i := range buf {
		idx, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("generate password: %w", err)
		}
		buf[i] = passwordAlphabet[idx.Int64()]
	}
	return string(buf), nil
}

func HashPassword(plain string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(plain), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

var (
	unknownHashOnce sync.Once
	unknownHash     string
)

// unknownAccountHash is compared against when a username does not resolve,
// so that path does the same bcrypt work as a wrong password.
func unknownAccountHash() string {
	unknownHashOnce.Do(func() {
		if h, err := bcrypt.GenerateFromPassword([]byte("unknown-account"), bcrypt.DefaultCost); err == nil {
			unknownHash = string(h)
		}
	})
	return unknownHash
}

// CheckPassword reports whether plain matches the bcrypt hash.
func CheckPassword(hash, plain string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plain)) == nil
}

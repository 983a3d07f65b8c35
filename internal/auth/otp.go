package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base32"
	"encoding/binary"
	"encoding/hex"
	"fmt"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/hotp"
)

// OTPGenerator produces short numeric one-time login codes.
// Each code is an HOTP value over a throwaway random secret and counter,
// so codes are uniformly distributed and never derivable from each other.
type OTPGenerator struct {
	digits otp.Digits
}

// NewOTPGenerator creates a generator for codes of the given length.
func NewOTPGenerator(length int) *OTPGenerator {
	return &OTPGenerator{digits: otp.Digits(length)}
}

// Generate returns a fresh code.
func (g *OTPGenerator) Generate() (string, error) {
	secret := make([]byte, 20)
	if _, err := rand.Read(secret); err != nil {
		return "", fmt.Errorf("failed to generate otp secret: %w", err)
	}

	var counter [8]byte
	if _, err := rand.Read(counter[:]); err != nil {
		return "", fmt.Errorf("failed to generate otp counter: %w", err)
	}

	code, err := hotp.GenerateCodeCustom(
		base32.StdEncoding.EncodeToString(secret),
		binary.BigEndian.Uint64(counter[:]),
		hotp.ValidateOpts{Digits: g.digits, Algorithm: otp.AlgorithmSHA1},
	)
	if err != nil {
		return "", fmt.Errorf("failed to generate otp code: %w", err)
	}

	return code, nil
}

// HashOTP returns the hex SHA-256 of a code. Only hashes are stored.
func HashOTP(code string) string {
	sum := sha256.Sum256([]byte(code))
	return hex.EncodeToString(sum[:])
}

// OTPMatches compares a submitted code against a stored hash in constant time.
func OTPMatches(storedHash, code string) bool {
	computed := HashOTP(code)
	return subtle.ConstantTimeCompare([]byte(storedHash), []byte(computed)) == 1
}

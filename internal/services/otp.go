package services

import (
	"crypto/rand"
	"crypto/subtle"
	"fmt"
	"math/big"
	"time"
)

const (
	// OTPTTL is how long an issued code stays valid.
	OTPTTL = 10 * time.Minute

	defaultOTPDigits = 6
)

// OTPGenerator produces one-time codes.
type OTPGenerator interface {
	Generate() (string, error)
}

// NumericOTP generates fixed-length decimal codes from crypto/rand.
type NumericOTP struct {
	Digits int
}

func (g NumericOTP) Generate() (string, error) {
	digits := g.Digits
	if digits <= 0 {
		digits = defaultOTPDigits
	}
	limit := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(digits)), nil)
	n, err := rand.Int(rand.Reader, limit)
	if err != nil {
		return "", fmt.Errorf("generate otp: %w", err)
	}
	return fmt.Sprintf("%0*d", digits, n), nil
}

// otpValid reports whether submitted matches the stored code and the code
// has not expired at now.
func otpValid(stored *string, expiresAt *time.Time, submitted string, now time.Time) bool {
	if stored == nil || expiresAt == nil || submitted == "" {
		return false
	}
	if subtle.ConstantTimeCompare([]byte(*stored), []byte(submitted)) != 1 {
		return false
	}
	return !now.After(*expiresAt)
}

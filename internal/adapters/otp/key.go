package otp

// Package otp implements one-time-secret issuance and verification for
// the configured delivery channels: email, SMS gateway, and TOTP
// authenticator apps.

import (
	"crypto/rand"
	"math/big"

	apperrors "github.com/guardgate/portal/internal/errors"
)

const (
	// No 0/O or 1/l, the key is typed back by a human.
	keyAlphabet = "23456789abcdefghjkmnpqrstuvwxyzABCDEFGHJKMNPQRSTUVWXYZ"
	digits      = "0123456789"
)

func randomKey(alphabet string, length int) (string, error) {
	max := big.NewInt(int64(len(alphabet)))
	out := make([]byte, length)
	for i := range out {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", apperrors.Wrap(err, apperrors.ErrCodeInternal, "generate one-time key")
		}
		out[i] = alphabet[n.Int64()]
	}
	return string(out), nil
}

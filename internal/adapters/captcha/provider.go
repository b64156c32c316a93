package captcha

// Package captcha generates visual-challenge tokens. Rendering the
// token as an image is left to the template layer; the portal core only
// registers it against the session and compares the submitted answer.

import (
	"crypto/rand"
	"math/big"

	apperrors "github.com/guardgate/portal/internal/errors"
)

// No 0/O or 1/l/I, the challenge is read off a distorted image.
const alphabet = "23456789ABCDEFGHJKMNPQRSTUVWXYZ"

// Provider implements ports.ChallengeProvider with crypto/rand tokens.
type Provider struct{}

// NewProvider constructs a challenge provider.
func NewProvider() Provider { return Provider{} }

// NewChallenge returns a random token of the given length.
func (Provider) NewChallenge(length int) (string, error) {
	if length <= 0 {
		return "", apperrors.Validation("challenge length must be positive")
	}
	max := big.NewInt(int64(len(alphabet)))
	out := make([]byte, length)
	for i := range out {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", apperrors.Wrap(err, apperrors.ErrCodeInternal, "generate challenge")
		}
		out[i] = alphabet[n.Int64()]
	}
	return string(out), nil
}

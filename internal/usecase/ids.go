package usecase

import (
	"crypto/rand"
	"math/big"

	"github.com/google/uuid"
)

const (
	idAlphabet    = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
	roomIDLength  = 6
	hostKeyLength = 4
	userKeyLength = 4
)

// randomID returns n characters drawn uniformly from idAlphabet.
func randomID(n int) (string, error) {
	limit := big.NewInt(int64(len(idAlphabet)))
	out := make([]byte, n)
	for i := range out {
		idx, err := rand.Int(rand.Reader, limit)
		if err != nil {
			return "", err
		}
		out[i] = idAlphabet[idx.Int64()]
	}
	return string(out), nil
}

// Overridden in tests.
var (
	generateID = randomID
	newUUID    = func() string {
		return uuid.NewString()
	}
)

package util

import (
	"crypto/rand"
	"math/big"

	"github.com/google/uuid"
)

const joinCodeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// JoinCodeLength is the number of characters in a session join code.
const JoinCodeLength = 4

// NewSessionID returns a globally unique session identifier.
func NewSessionID() string {
	return uuid.NewString()
}

// NewJoinCode returns a random human-typeable join code. Uniqueness among
// active sessions is the caller's responsibility.
func NewJoinCode() string {
	buf := make([]byte, JoinCodeLength)
	limit := big.NewInt(int64(len(joinCodeAlphabet)))
	for i := range buf {
		n, err := rand.Int(rand.Reader, limit)
		if err != nil {
			// crypto/rand only fails if the platform entropy source is broken
			panic(err)
		}
		buf[i] = joinCodeAlphabet[n.Int64()]
	}
	return string(buf)
}

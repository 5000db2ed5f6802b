package query

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
)

// pidChars is the private id alphabet.
const pidChars = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// ErrPIDExhausted is returned when every candidate collided.
var ErrPIDExhausted = errors.New("query: could not generate a unique private id")

// PIDGenerator issues private ids that no existing record uses.
type PIDGenerator struct {
	Length int
	// Exists reports a collision.  *record.Store.PrivateIDExists fits.
	Exists   func(ctx context.Context, pid string) (bool, error)
	MaxTries int
}

// Generate returns a fresh, unused private id.
func (g *PIDGenerator) Generate(ctx context.Context) (string, error) {
	n := g.Length
	if n <= 0 {
		n = 6
	}
	tries := g.MaxTries
	if tries <= 0 {
		tries = 100
	}
	for i := 0; i < tries; i++ {
		pid, err := randomPID(n)
		if err != nil {
			return "", fmt.Errorf("generate private id: %w", err)
		}
		if g.Exists == nil {
			return pid, nil
		}
		taken, err := g.Exists(ctx, pid)
		if err != nil {
			return "", err
		}
		if !taken {
			return pid, nil
		}
	}
	return "", ErrPIDExhausted
}

func randomPID(n int) (string, error) {
	max := big.NewInt(int64(len(pidChars)))
	b := make([]byte, n)
	for i := range b {
		idx, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		b[i] = pidChars[idx.Int64()]
	}
	return string(b), nil
}

// Package ids generates the human-readable reference numbers loan officers
// quote to borrowers. Uniqueness is checked against storage before a
// reference is accepted; the store's unique indexes are the durable
// backstop against a race between two generators.
package ids

import (
	"fmt"
	"math/rand"
	"sync"
	"time"
)

const maxAttempts = 5

const base36 = "0123456789abcdefghijklmnopqrstuvwxyz"

// ErrExhausted is returned when every attempt collided with an existing
// reference.
var ErrExhausted = fmt.Errorf("could not generate a unique reference in %d attempts", maxAttempts)

// Exists reports whether a candidate reference is already taken.
type Exists func(ref string) (bool, error)

// Generator produces reference numbers from a seeded random source.
type Generator struct {
	mu  sync.Mutex
	rnd *rand.Rand
}

func NewGenerator() *Generator {
	return &Generator{rnd: rand.New(rand.NewSource(time.Now().UnixNano()))}
}

func (g *Generator) numericRef(prefix string, year int, exists Exists) (string, error) {
	for attempt := 0; attempt < maxAttempts; attempt++ {
		g.mu.Lock()
		n := g.rnd.Intn(9999) + 1
		g.mu.Unlock()

		ref := fmt.Sprintf("%s%04d%04d", prefix, year, n)
		taken, err := exists(ref)
		if err != nil {
			return "", fmt.Errorf("failed to check reference %s: %w", ref, err)
		}
		if !taken {
			return ref, nil
		}
	}
	return "", ErrExhausted
}

// LoanReference is LN<year><4-digit random>, e.g. LN20260042.
func (g *Generator) LoanReference(year int, exists Exists) (string, error) {
	return g.numericRef("LN", year, exists)
}

// PayableReference is AP<year><4-digit random>, e.g. AP20260013.
func (g *Generator) PayableReference(year int, exists Exists) (string, error) {
	return g.numericRef("AP", year, exists)
}

// PaymentReference is PAY- followed by 8 random base36 characters.
func (g *Generator) PaymentReference(exists Exists) (string, error) {
	for attempt := 0; attempt < maxAttempts; attempt++ {
		buf := make([]byte, 8)
		g.mu.Lock()
		for i := range buf {
			buf[i] = base36[g.rnd.Intn(len(base36))]
		}
		g.mu.Unlock()

		ref := "PAY-" + string(buf)
		taken, err := exists(ref)
		if err != nil {
			return "", fmt.Errorf("failed to check reference %s: %w", ref, err)
		}
		if !taken {
			return ref, nil
		}
	}
	return "", ErrExhausted
}

package domain

import (
	"math/rand"
	"strconv"
)

// NewJoinCode returns a six-digit human-enterable session token. Uniqueness
// is the caller's concern: regenerate on collision against the quiz store.
func NewJoinCode(rnd *rand.Rand) string {
	return strconv.Itoa(100000 + rnd.Intn(900000))
}

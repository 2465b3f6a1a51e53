package ledger

import (
	"unicode"
	"unicode/utf16"
)

const (
	seedMultiplier = 31
	lcgMultiplier  = 1664525
	lcgIncrement   = 1013904223
	fractionScale  = 1 << 24
)

// Seed folds a username into the 32-bit seed of its statement history.
// Each character contributes the first UTF-16 code unit that encodes it, so
// characters outside the Basic Multilingual Plane fold their high surrogate.
func Seed(username string) uint32 {
	var seed uint32
	for _, r := range username {
		seed = seed*seedMultiplier + firstCodeUnit(r)
	}
	return seed
}

func firstCodeUnit(r rune) uint32 {
	if hi, _ := utf16.EncodeRune(r); hi != unicode.ReplacementChar {
		return uint32(hi)
	}
	return uint32(r)
}

// statementRand is a 32-bit linear congruential generator. It is not
// suitable for anything but reproducing display histories.
type statementRand struct {
	state uint32
}

func newStatementRand(username string) *statementRand {
	return &statementRand{state: Seed(username)}
}

// Float64 advances the generator and returns a fraction in [0, 1) built
// from the top 24 bits of the state.
func (r *statementRand) Float64() float64 {
	r.state = r.state*lcgMultiplier + lcgIncrement
	return float64(r.state>>8) / fractionScale
}

package room

import (
	"crypto/rand"
	"math/big"
	"time"
)

// Visually ambiguous characters (I, O, 0, 1) are excluded: codes are typed
// by hand across a table.
const codeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

const (
	CodeLength       = 8
	maxCodeAttempts  = 10
	timeSuffixDigits = 4
)

func randomCode(n int) string {
	out := make([]byte, n)
	for i := 0; i < n; i++ {
		x, err := rand.Int(rand.Reader, big.NewInt(int64(len(codeAlphabet))))
		if err != nil {
			// crypto/rand failing is effectively unrecoverable; degrade to a
			// time-derived character rather than abort room creation.
			out[i] = codeAlphabet[time.Now().UnixNano()%int64(len(codeAlphabet))]
			continue
		}
		out[i] = codeAlphabet[x.Int64()]
	}
	return string(out)
}

// timeSuffixedCode is the bounded-attempts fallback: a shorter random prefix
// with the low bits of the clock appended, encoded over the same alphabet so
// the suffix never reintroduces the ambiguous characters.
func timeSuffixedCode(now time.Time) string {
	prefix := randomCode(CodeLength - timeSuffixDigits)

	n := now.UnixNano()
	if n < 0 {
		n = -n
	}
	suffix := make([]byte, timeSuffixDigits)
	for i := timeSuffixDigits - 1; i >= 0; i-- {
		suffix[i] = codeAlphabet[n%int64(len(codeAlphabet))]
		n /= int64(len(codeAlphabet))
	}
	return prefix + string(suffix)
}

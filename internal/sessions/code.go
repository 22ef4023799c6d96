package sessions

import (
	"math/rand"
	"strings"
)

const (
	// CodeLength is the number of characters in a session code.
	CodeLength = 6

	codeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
)

// CodeGenerator produces candidate session codes. Uniqueness is enforced by the Store.
type CodeGenerator func() string

// RandomCode returns a random 6 character uppercase alphanumeric code.
// The source is not cryptographically secure; codes only need to be hard to guess by accident.
func RandomCode() string {
	var b strings.Builder
	b.Grow(CodeLength)
	for i := 0; i < CodeLength; i++ {
		b.WriteByte(codeAlphabet[rand.Intn(len(codeAlphabet))])
	}
	return b.String()
}

// NormalizeCode trims and upper-cases a code typed by a participant.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// ValidCode reports whether code has the session code shape.
func ValidCode(code string) bool {
	if len(code) != CodeLength {
		return false
	}
	for i := 0; i < len(code); i++ {
		if strings.IndexByte(codeAlphabet, code[i]) < 0 {
			return false
		}
	}
	return true
}

package relay

import "crypto/rand"

// Room codes are short enough to read over voice chat, so the alphabet
// drops the characters people confuse: I, O, 0 and 1. 32 symbols means
// a random byte maps onto the alphabet without modulo bias.
const (
	codeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	CodeLength   = 6
)

// NewCode draws a fresh room code. Uniqueness against live rooms is
// the caller's responsibility.
func NewCode() string {
	buf := make([]byte, CodeLength)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand failing means the host OS is broken; nothing
		// sensible to degrade to.
		panic(err)
	}
	for i, b := range buf {
		buf[i] = codeAlphabet[int(b)%len(codeAlphabet)]
	}
	return string(buf)
}

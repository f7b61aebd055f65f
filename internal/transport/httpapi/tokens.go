package httpapi

import (
	"crypto/subtle"
	"strings"
	"sync/atomic"
)

// Tokens is the accepted access-token set. It can be swapped at runtime.
type Tokens struct {
	set atomic.Pointer[[]string]
}

func NewTokens(tokens []string) *Tokens {
	t := &Tokens{}
	t.Set(tokens)
	return t
}

// Set replaces the accepted tokens. Blank entries are ignored.
func (t *Tokens) Set(tokens []string) {
	cp := make([]string, 0, len(tokens))
	for _, tok := range tokens {
		if tok = strings.TrimSpace(tok); tok != "" {
			cp = append(cp, tok)
		}
	}
	t.set.Store(&cp)
}

func (t *Tokens) Len() int {
	if p := t.set.Load(); p != nil {
		return len(*p)
	}
	return 0
}

// Valid reports whether tok is accepted. Every candidate is compared in
// constant time.
func (t *Tokens) Valid(tok string) bool {
	p := t.set.Load()
	if p == nil || tok == "" {
		return false
	}
	ok := 0
	for _, want := range *p {
		ok |= subtle.ConstantTimeCompare([]byte(tok), []byte(want))
	}
	return ok == 1
}

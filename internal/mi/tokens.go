package mi

import "sync"

// Reserved tokens. Each one tags a family of commands whose results need
// special handling; gdb echoes the token on the result record.
const (
	// TokenIgnoreErrors marks commands whose error results are dropped,
	// e.g. state refreshes that are invalid before a program runs.
	TokenIgnoreErrors Token = 1

	// TokenDisassemblyMissingFile marks the address-range disassembly
	// fetched when the paused frame's source file is unavailable.
	TokenDisassemblyMissingFile Token = 2

	// TokenCreateVar marks a variable-object creation. Expression
	// commands now carry correlation tokens instead; results tagged with
	// this token are still honoured for peers sharing the session.
	TokenCreateVar Token = 3

	// TokenInlineDisassembly marks source-interleaved disassembly.
	TokenInlineDisassembly Token = 4
)

// FirstCorrelationToken is the first token handed out by a Correlator.
// Everything below it is reserved for command families.
const FirstCorrelationToken Token = 100

// IsReserved reports whether t is one of the fixed family tokens
func IsReserved(t Token) bool {
	return t > NoToken && t < FirstCorrelationToken
}

// Correlator hands out per-request tokens.
type Correlator struct {
	mu   sync.Mutex
	next Token
}

// NewCorrelator returns a Correlator starting at FirstCorrelationToken.
func NewCorrelator() *Correlator {
	return &Correlator{next: FirstCorrelationToken}
}

// Next returns a fresh token
func (c *Correlator) Next() Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.next
	c.next++
	return t
}

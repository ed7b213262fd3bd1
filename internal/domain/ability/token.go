package ability

import (
	"fmt"
	"sort"
	"strconv"
	"sync"
)

// Token is the opaque handle a hosted process and callers use to name an
// ability record. The low 32 bits index the token table, the high 32 bits
// carry the slot generation, so a handle to a released record never
// resolves to whatever reuses the slot.
type Token uint64

// NilToken names no record
const NilToken Token = 0

func makeToken(index, gen uint32) Token {
	return Token(uint64(gen)<<32 | uint64(index))
}

func (t Token) index() uint32 { return uint32(t) }
func (t Token) gen() uint32   { return uint32(t >> 32) }

// IsNil reports whether the token is NilToken
func (t Token) IsNil() bool {
	return t == NilToken
}

// String renders the token as a decimal handle
func (t Token) String() string {
	return strconv.FormatUint(uint64(t), 10)
}

// ParseToken parses the form produced by String
func ParseToken(s string) (Token, error) {
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return NilToken, fmt.Errorf("invalid token %q: %w", s, err)
	}
	return Token(v), nil
}

type tokenSlot struct {
	gen    uint32
	record *Record
}

// TokenTable issues and resolves tokens. One table is shared by every
// manager of the process.
type TokenTable struct {
	mu    sync.RWMutex
	slots []tokenSlot
	free  []uint32
}

// NewTokenTable creates an empty table
func NewTokenTable() *TokenTable {
	return &TokenTable{}
}

// Issue binds a new token to r
func (t *TokenTable) Issue(r *Record) Token {
	t.mu.Lock()
	defer t.mu.Unlock()

	var idx uint32
	if n := len(t.free); n > 0 {
		idx = t.free[n-1]
		t.free = t.free[:n-1]
	} else {
		t.slots = append(t.slots, tokenSlot{})
		idx = uint32(len(t.slots) - 1)
	}
	slot := &t.slots[idx]
	slot.gen++
	if slot.gen == 0 {
		slot.gen = 1
	}
	slot.record = r
	return makeToken(idx, slot.gen)
}

// Lookup resolves a token to its record
func (t *TokenTable) Lookup(tok Token) (*Record, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	idx := tok.index()
	if tok.IsNil() || int(idx) >= len(t.slots) {
		return nil, false
	}
	slot := t.slots[idx]
	if slot.record == nil || slot.gen != tok.gen() {
		return nil, false
	}
	return slot.record, true
}

// Valid reports whether tok still names a live record
func (t *TokenTable) Valid(tok Token) bool {
	_, ok := t.Lookup(tok)
	return ok
}

// Release invalidates tok. Releasing a stale token is a no-op.
func (t *TokenTable) Release(tok Token) {
	t.mu.Lock()
	defer t.mu.Unlock()

	idx := tok.index()
	if tok.IsNil() || int(idx) >= len(t.slots) {
		return
	}
	slot := &t.slots[idx]
	if slot.record == nil || slot.gen != tok.gen() {
		return
	}
	slot.record = nil
	t.free = append(t.free, idx)
}

// Len returns the number of live tokens
func (t *TokenTable) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.slots) - len(t.free)
}

// Records returns every live record, ordered by record id
func (t *TokenTable) Records() []*Record {
	t.mu.RLock()
	out := make([]*Record, 0, len(t.slots)-len(t.free))
	for _, slot := range t.slots {
		if slot.record != nil {
			out = append(out, slot.record)
		}
	}
	t.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out
}

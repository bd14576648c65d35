// Package aesprim implements the AES-128/256 primitives the unlock
// pipeline is built on: ECB (for IV/tweak derivation), CBC (sector
// decryption), CCM (protector/VMK/FVEK unwrap), and XTS (sector
// decryption for the newer encryption methods). It also carries the
// zeroization discipline every secret buffer in this module is held
// under.
package aesprim

// Zero overwrites b with zero bytes. Every exit path that holds a
// derived key, an unwrapped block, or hashed-password state calls this
// before returning, success or failure.
//
// The loop form (rather than a single clear builtin call) is a
// deliberate compiler-barrier: a plain range-free memset-style store can
// be eliminated as dead by the optimizer once it proves the buffer is
// unused afterwards. Touching each element in a loop the compiler cannot
// prove has no observable effect keeps the store live.
func Zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

// Secret is a byte buffer scoped to hold key material. Callers defer
// s.Close() immediately after allocating it so every exit path --
// including an early return on error -- scrubs the buffer.
type Secret struct {
	b []byte
}

// NewSecret allocates a zeroed Secret of size n.
func NewSecret(n int) *Secret {
	return &Secret{b: make([]byte, n)}
}

// SecretFrom copies src into a new Secret, leaving src untouched.
func SecretFrom(src []byte) *Secret {
	s := NewSecret(len(src))
	copy(s.b, src)
	return s
}

// Bytes returns the live backing slice. Callers must not retain it past
// Close.
func (s *Secret) Bytes() []byte { return s.b }

// Close zeroizes the backing buffer. Safe to call more than once.
func (s *Secret) Close() {
	Zero(s.b)
}

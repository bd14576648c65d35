// Package diffuser implements the keyless ELEPHANT diffuser layered
// around AES-CBC for the Vista-era encryption methods (0x8001, 0x8003).
// It is not a cipher: it is a fixed, keyless mixing permutation applied
// on top of per-sector AES-CBC so that a single ciphertext sector
// cannot be manipulated one AES block at a time -- the mixing spreads
// any change across the whole sector.
//
// On write the order is diffuser-A (forward) then diffuser-B (forward),
// then AES-CBC encrypt. On read it is the mirror image: AES-CBC
// decrypt, then diffuser-B (reverse), then diffuser-A (reverse).
package diffuser

import "encoding/binary"

// rotationsA and rotationsB give the per-pass rotate amount for each of
// the two passes that make up diffuser-A and diffuser-B respectively.
var (
	rotationsA = [2]uint32{10, 25}
	rotationsB = [2]uint32{9, 13}
)

// DecryptB undoes diffuser-B: its two passes run in reverse order with
// the add replaced by subtract.
func DecryptB(sector []byte) { runPasses(sector, rotationsB, false) }

// DecryptA undoes diffuser-A.
func DecryptA(sector []byte) { runPasses(sector, rotationsA, false) }

// EncryptA applies diffuser-A in the write direction.
func EncryptA(sector []byte) { runPasses(sector, rotationsA, true) }

// EncryptB applies diffuser-B in the write direction.
func EncryptB(sector []byte) { runPasses(sector, rotationsB, true) }

func runPasses(sector []byte, rotations [2]uint32, forward bool) {
	words := wordsOf(sector)
	if forward {
		pass(words, rotations[0], true)
		pass(words, rotations[1], true)
	} else {
		pass(words, rotations[1], false)
		pass(words, rotations[0], false)
	}
	putWords(sector, words)
}

func wordsOf(sector []byte) []uint32 {
	words := make([]uint32, len(sector)/4)
	for i := range words {
		words[i] = binary.LittleEndian.Uint32(sector[i*4:])
	}
	return words
}

func putWords(sector []byte, words []uint32) {
	for i, w := range words {
		binary.LittleEndian.PutUint32(sector[i*4:], w)
	}
}

// pass runs a single rotate-add mixing pass over the word array,
// circularly: w[i] +=/-= w[i-1] ^ rotl(w[i-2], rot). Forward (write)
// walks the array ascending so each w[i] update sees the already-mixed
// w[i-1]/w[i-2]; reverse (read) walks descending and subtracts,
// undoing exactly that dependency chain.
func pass(w []uint32, rot uint32, forward bool) {
	n := len(w)
	if n < 3 {
		return
	}
	if forward {
		for i := 0; i < n; i++ {
			w[i] += w[(i+n-1)%n] ^ rotl32(w[(i+n-2)%n], rot)
		}
		return
	}
	for i := n - 1; i >= 0; i-- {
		w[i] -= w[(i+n-1)%n] ^ rotl32(w[(i+n-2)%n], rot)
	}
}

func rotl32(v uint32, n uint32) uint32 {
	n %= 32
	if n == 0 {
		return v
	}
	return (v << n) | (v >> (32 - n))
}

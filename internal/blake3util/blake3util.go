// Package blake3util computes streaming BLAKE3 content hashes. Every
// hash in Ferry — copy verification, the file ledger, review snapshots —
// comes from here so digests stay comparable.
package blake3util

import (
	"encoding/hex"
	"io"
	"os"

	"lukechampine.com/blake3"
)

// ChunkSize is the read granularity for all hashing and copying.
const ChunkSize = 256 * 1024

// DigestSize is the output length in bytes; hex strings are twice this.
const DigestSize = 32

// Hasher accumulates a digest incrementally, chunk by chunk.
type Hasher struct {
	h *blake3.Hasher
}

func New() *Hasher {
	return &Hasher{h: blake3.New(DigestSize, nil)}
}

// Write feeds bytes into the digest. Never returns an error.
func (h *Hasher) Write(p []byte) (int, error) {
	return h.h.Write(p)
}

// SumHex finalizes and returns the lowercase hex digest.
func (h *Hasher) SumHex() string {
	return hex.EncodeToString(h.h.Sum(nil))
}

// HashFile hashes a file in ChunkSize reads.
func HashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := New()
	buf := make([]byte, ChunkSize)
	for {
		n, err := f.Read(buf)
		if n > 0 {
			h.Write(buf[:n])
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", err
		}
	}
	return h.SumHex(), nil
}

// SumHex hashes a byte slice in one shot.
func SumHex(data []byte) string {
	sum := blake3.Sum256(data)
	return hex.EncodeToString(sum[:])
}

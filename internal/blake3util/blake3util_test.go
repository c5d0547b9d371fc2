package blake3util_test

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"ferry/internal/blake3util"
)

func TestSumHexMatchesIncremental(t *testing.T) {
	data := bytes.Repeat([]byte("ferry"), 1000)
	h := blake3util.New()
	h.Write(data[:1234])
	h.Write(data[1234:])
	if got, want := h.SumHex(), blake3util.SumHex(data); got != want {
		t.Fatalf("incremental %s != one-shot %s", got, want)
	}
}

func TestHashFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "payload.bin")
	// Larger than one chunk so HashFile loops.
	data := bytes.Repeat([]byte{0xAB}, blake3util.ChunkSize*2+17)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	got, err := blake3util.HashFile(path)
	if err != nil {
		t.Fatalf("hash file: %v", err)
	}
	if want := blake3util.SumHex(data); got != want {
		t.Fatalf("file hash %s != %s", got, want)
	}
}

func TestHashFileEmpty(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "empty")
	if err := os.WriteFile(path, nil, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	got, err := blake3util.HashFile(path)
	if err != nil {
		t.Fatalf("hash file: %v", err)
	}
	if len(got) != blake3util.DigestSize*2 {
		t.Fatalf("digest length %d, want %d", len(got), blake3util.DigestSize*2)
	}
	if got != blake3util.SumHex(nil) {
		t.Fatalf("empty file digest mismatch")
	}
}

func TestHashFileMissing(t *testing.T) {
	if _, err := blake3util.HashFile(filepath.Join(t.TempDir(), "nope")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}

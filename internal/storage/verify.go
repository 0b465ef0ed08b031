package storage

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"os"
)

// digest is the size and SHA-256 of bytes that went through a copy.
type digest struct {
	size int64
	sum  string
}

// hashingReader feeds everything read through it into a SHA-256.
type hashingReader struct {
	r io.Reader
	h hash.Hash
	n int64
}

func newHashingReader(r io.Reader) *hashingReader {
	return &hashingReader{r: r, h: sha256.New()}
}

func (hr *hashingReader) Read(p []byte) (int, error) {
	n, err := hr.r.Read(p)
	if n > 0 {
		hr.h.Write(p[:n])
		hr.n += int64(n)
	}
	return n, err
}

func (hr *hashingReader) digest() digest {
	return digest{size: hr.n, sum: hex.EncodeToString(hr.h.Sum(nil))}
}

// verifyCopy checks destPath against the digest taken while copying. The
// size is always compared; the content hash only when full is set.
func verifyCopy(destPath string, want digest, full bool) error {
	info, err := os.Stat(destPath)
	if err != nil {
		return fmt.Errorf("destination file not found: %w", err)
	}
	if info.Size() != want.size {
		return fmt.Errorf("size mismatch: expected %d, got %d", want.size, info.Size())
	}
	if !full {
		return nil
	}

	got, err := hashFile(destPath)
	if err != nil {
		return fmt.Errorf("failed to hash destination: %w", err)
	}
	if got != want.sum {
		return fmt.Errorf("hash mismatch: src=%s, dest=%s", want.sum, got)
	}
	return nil
}

func hashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

package aggregator

import (
	"crypto/sha256"
	"encoding/hex"
	"hash"
)

// Hasher is a running SHA-256 digest over the lines of a file, each without its terminator.
type Hasher struct {
	digest hash.Hash
}

func NewHasher() *Hasher {
	return &Hasher{digest: sha256.New()}
}

func (h *Hasher) Add(line []byte) {
	// hash.Hash.Write never returns an error
	_, _ = h.digest.Write(line)
}

// Sum returns the lowercase hex digest of every line added so far.
func (h *Hasher) Sum() string {
	return hex.EncodeToString(h.digest.Sum(nil))
}

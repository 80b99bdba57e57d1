package hasher

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"io"

	"golang.org/x/crypto/blake2b"
)

const (
	// AlgorithmSHA256 is the default content digest.
	AlgorithmSHA256 = "sha256"

	// AlgorithmBlake2b selects BLAKE2b-256.
	AlgorithmBlake2b = "blake2b"
)

// Hasher computes a stable hexadecimal digest of artefact content.
type Hasher interface {
	// Algorithm returns the configured algorithm name.
	Algorithm() string

	// Sum returns the hex digest of data.
	Sum(data []byte) string

	// SumReader streams r into the digest and returns it together with the
	// number of bytes read.
	SumReader(ctx context.Context, r io.Reader) (string, int64, error)
}

// Compile-time interface check.
var _ Hasher = (*hasher)(nil)

type hasher struct {
	algorithm string
	newHash   func() hash.Hash
}

// New returns a Hasher for the named algorithm.
func New(algorithm string) (Hasher, error) {
	switch algorithm {
	case "", AlgorithmSHA256:
		return &hasher{algorithm: AlgorithmSHA256, newHash: sha256.New}, nil
	case AlgorithmBlake2b:
		return &hasher{
			algorithm: AlgorithmBlake2b,
			newHash: func() hash.Hash {
				// New256 only fails for keys longer than 64 bytes.
				h, _ := blake2b.New256(nil)

				return h
			},
		}, nil
	default:
		return nil, fmt.Errorf("unsupported hash algorithm %q", algorithm)
	}
}

func (h *hasher) Algorithm() string {
	return h.algorithm
}

func (h *hasher) Sum(data []byte) string {
	d := h.newHash()
	_, _ = d.Write(data)

	return hex.EncodeToString(d.Sum(nil))
}

func (h *hasher) SumReader(
	ctx context.Context, r io.Reader,
) (string, int64, error) {
	d := h.newHash()

	n, err := io.Copy(d, &ctxReader{ctx: ctx, r: r})
	if err != nil {
		return "", n, fmt.Errorf("hashing content: %w", err)
	}

	return hex.EncodeToString(d.Sum(nil)), n, nil
}

// ctxReader aborts long copies once the context is cancelled.
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}

	return c.r.Read(p)
}

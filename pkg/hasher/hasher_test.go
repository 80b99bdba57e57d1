package hasher

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name      string
		algorithm string
		want      string
		wantErr   bool
	}{
		{name: "empty defaults to sha256", algorithm: "", want: AlgorithmSHA256},
		{name: "sha256", algorithm: "sha256", want: AlgorithmSHA256},
		{name: "blake2b", algorithm: "blake2b", want: AlgorithmBlake2b},
		{name: "unknown", algorithm: "md5", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, err := New(tt.algorithm)
			if tt.wantErr {
				require.Error(t, err)

				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.want, h.Algorithm())
		})
	}
}

func TestSum_KnownDigests(t *testing.T) {
	sha, err := New(AlgorithmSHA256)
	require.NoError(t, err)

	assert.Equal(t,
		"b94d27b9934d3e08a52e52d7da7dabfac484efe37a5380ee9088f7ace2efcde9",
		sha.Sum([]byte("hello world")),
	)
	assert.Equal(t,
		"e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855",
		sha.Sum(nil),
	)

	b2, err := New(AlgorithmBlake2b)
	require.NoError(t, err)
	assert.Len(t, b2.Sum([]byte("hello world")), 64)
	assert.NotEqual(t, sha.Sum([]byte("x")), b2.Sum([]byte("x")))
}

func TestSumReader(t *testing.T) {
	h, err := New(AlgorithmSHA256)
	require.NoError(t, err)

	content := strings.Repeat("timestamp,Pass\n1000,True\n", 1000)

	digest, n, err := h.SumReader(context.Background(), strings.NewReader(content))
	require.NoError(t, err)
	assert.Equal(t, int64(len(content)), n)
	assert.Equal(t, h.Sum([]byte(content)), digest)
}

func TestSumReader_Cancelled(t *testing.T) {
	h, err := New(AlgorithmSHA256)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err = h.SumReader(ctx, strings.NewReader("data"))
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSum_Properties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	for _, alg := range []string{AlgorithmSHA256, AlgorithmBlake2b} {
		h, err := New(alg)
		require.NoError(t, err)

		properties.Property(alg+" is deterministic and fixed length", prop.ForAll(
			func(data []byte) bool {
				a := h.Sum(data)
				b := h.Sum(bytes.Clone(data))

				return a == b && len(a) == 64
			},
			gen.SliceOf(gen.UInt8()),
		))

		properties.Property(alg+" reader matches in-memory sum", prop.ForAll(
			func(data []byte) bool {
				digest, n, err := h.SumReader(
					context.Background(), bytes.NewReader(data),
				)

				return err == nil && n == int64(len(data)) && digest == h.Sum(data)
			},
			gen.SliceOf(gen.UInt8()),
		))

		properties.Property(alg+" changes when one byte flips", prop.ForAll(
			func(data []byte, idx int) bool {
				if len(data) == 0 {
					return true
				}

				mutated := bytes.Clone(data)
				mutated[idx%len(mutated)] ^= 0xff

				return h.Sum(data) != h.Sum(mutated)
			},
			gen.SliceOfN(32, gen.UInt8()),
			gen.IntRange(0, 1<<16),
		))
	}

	properties.TestingRun(t)
}

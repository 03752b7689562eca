package huffman

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompressDecompressRoundTrip(t *testing.T) {
	inputs := [][]byte{
		{},
		[]byte("hello world"),
		bytes.Repeat([]byte{0x00}, 64),
		bytes.Repeat([]byte{0xff}, 64),
		[]byte{0, 1, 2, 3, 4, 5, 255, 254, 253},
	}
	for _, in := range inputs {
		compressed := Compress(in)
		out, err := Decompress(compressed, 4096)
		require.NoError(t, err)
		assert.Equal(t, in, out)
	}
}

func TestCompressShrinksCommonBytes(t *testing.T) {
	in := bytes.Repeat([]byte{0x00}, 1024)
	compressed := Compress(in)
	assert.Less(t, len(compressed), len(in))
}

func TestDecompressCapacityExceeded(t *testing.T) {
	in := bytes.Repeat([]byte{'a'}, 32)
	compressed := Compress(in)
	_, err := Decompress(compressed, 4)
	require.Error(t, err)
}

func TestDecompressTruncatedInput(t *testing.T) {
	in := []byte("some longer payload to compress")
	compressed := Compress(in)
	_, err := Decompress(compressed[:len(compressed)-1], 4096)
	require.Error(t, err)
}

func TestEverySymbolHasACode(t *testing.T) {
	for sym := 0; sym < 256; sym++ {
		assert.Greater(t, codeBitsOf[sym], uint8(0))
	}
	assert.Greater(t, codeBitsOf[eofSymbol], uint8(0))
}

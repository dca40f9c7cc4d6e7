package embedding

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStubEmbedIsDeterministic(t *testing.T) {
	s := NewStub(16)
	v1, err := s.Embed("hello world", ContentGeneral)
	require.NoError(t, err)
	v2, err := s.Embed("hello world", ContentGeneral)
	require.NoError(t, err)
	assert.Equal(t, v1, v2)
}

func TestStubEmbedIsUnitNorm(t *testing.T) {
	s := NewStub(32)
	v, err := s.Embed("func main() {}", ContentCode)
	require.NoError(t, err)

	var sumSq float64
	for _, f := range v {
		sumSq += float64(f) * float64(f)
	}
	assert.InDelta(t, 1.0, math.Sqrt(sumSq), 1e-6)
}

func TestStubEmbedDiffersByContentType(t *testing.T) {
	s := NewStub(16)
	general, _ := s.Embed("x", ContentGeneral)
	code, _ := s.Embed("x", ContentCode)
	assert.NotEqual(t, general, code)
}

package classify

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassifyPrivateMarkerWins(t *testing.T) {
	r := Classify(Input{Text: "I'm still uncertain about this approach", Source: "synthesizer"})
	assert.Equal(t, RoutePrivate, r)
}

func TestClassifyExplicitPrivateFlag(t *testing.T) {
	r := Classify(Input{Text: "totally ordinary text", MarkedPrivate: true})
	assert.Equal(t, RoutePrivate, r)
}

func TestClassifySynthesizerSourceRoutesInsight(t *testing.T) {
	r := Classify(Input{Text: "derived conclusion", Source: "synthesizer"})
	assert.Equal(t, RouteInsight, r)
}

func TestClassifyBinaryRoutesRaw(t *testing.T) {
	r := Classify(Input{Text: "", IsBinary: true})
	assert.Equal(t, RouteRaw, r)
}

func TestClassifyDefaultRoutesFact(t *testing.T) {
	r := Classify(Input{Text: "uses PostgreSQL for storage"})
	assert.Equal(t, RouteFact, r)
}

// Package classify implements the Storage Orchestrator's routing
// decision (§4.5 classifier decision table). The table is a small fixed
// switch over a handful of string markers and caller flags; no library in
// the example pack performs this kind of privacy-marker text
// classification, so it is plain standard library (regexp) by design, not
// by omission.
package classify

import "regexp"

// Route is where an ingested item should be written.
type Route string

const (
	// RoutePrivate sends bytes to the Raw Store's private_memory namespace;
	// only a semantic_hash fact crosses into the Semantic Store.
	RoutePrivate Route = "private"
	// RouteInsight sends content to the Semantic Store's stored_memories
	// collection.
	RouteInsight Route = "insight"
	// RouteRaw sends non-text/binary/structured content to raw_embeddings.
	RouteRaw Route = "raw"
	// RouteFact is the default: Semantic Store identified_facts, type=custom.
	RouteFact Route = "fact"
)

// Input is what the classifier inspects to make a routing decision.
type Input struct {
	Text          string
	MarkedPrivate bool
	// MarkedInsight is true when the caller explicitly tags the write as
	// an insight, or when Source == "synthesizer" (§4.5 row 2).
	MarkedInsight bool
	Source        string
	// IsBinary is true for raw/structured non-text input (§4.5 row 3).
	IsBinary bool
}

// privateMarkers is the fixed word list from §4.5's decision table.
var privateMarkers = regexp.MustCompile(`(?i)\b(uncertain|doubt|worr(y|ied)|private|secret|wondering|confidential|embarrassed|ashamed)\b`)

// Classify applies the first-match-wins decision table (§4.5).
func Classify(in Input) Route {
	if in.MarkedPrivate || privateMarkers.MatchString(in.Text) {
		return RoutePrivate
	}
	if in.MarkedInsight || in.Source == "synthesizer" {
		return RouteInsight
	}
	if in.IsBinary {
		return RouteRaw
	}
	return RouteFact
}

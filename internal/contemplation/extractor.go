// Package contemplation implements the Contemplation Engine (§4.3): the
// Fact Extractor, Pattern Recognizer, Insight Synthesizer, and the cycle
// that orchestrates them. Grounded on the teacher daemon's maintenance
// cycle shape (roelfdiedericks-goclaw internal/memorygraph/maintenance.go)
// for the ordered-substeps/error-logged-continue pattern; the extraction
// and recognition rules themselves have no teacher equivalent and are
// built directly from §9's declarative-regex-table redesign note.
package contemplation

import (
	"regexp"
	"strings"
	"sync"

	"github.com/coregx/ahocorasick"

	"github.com/AbdouB/memoryd/internal/models"
)

// factRule is one row of the declarative regex table (§4.3.1, §9 redesign
// note: "tagged variants replacing dict-bags" applied to extraction rules
// instead of a chain of if/elif branches).
type factRule struct {
	factType   models.FactType
	pattern    *regexp.Regexp
	confidence float64
	// group selects which captured subgroup becomes the fact content; 0
	// means the whole match.
	group int
}

var factRules = []factRule{
	{models.FactIdentity, regexp.MustCompile(`(?i)\bmy name is ([A-Z][\w\-]*(?:\s[A-Z][\w\-]*)?)`), 0.9, 1},
	{models.FactIdentity, regexp.MustCompile(`(?i)\bi(?:'m| am) ([A-Z][\w\-]*(?:\s[A-Z][\w\-]*)?),? and`), 0.75, 1},
	{models.FactPreference, regexp.MustCompile(`(?i)\bi (?:prefer|like|love|enjoy) (.{3,80}?)(?:[.!\n]|$)`), 0.75, 1},
	{models.FactPreference, regexp.MustCompile(`(?i)\bi (?:dislike|hate|don't like) (.{3,80}?)(?:[.!\n]|$)`), 0.75, 1},
	{models.FactConstraint, regexp.MustCompile(`(?i)\bi (?:can't|cannot|must not|won't|am unable to) (.{3,80}?)(?:[.!\n]|$)`), 0.8, 1},
	{models.FactGoal, regexp.MustCompile(`(?i)\bi (?:want to|need to|plan to|am trying to|intend to) (.{3,80}?)(?:[.!\n]|$)`), 0.75, 1},
	{models.FactRelationship, regexp.MustCompile(`(?i)\bmy (colleague|manager|teammate|friend|mentor|co-?founder) (?:is |named )?([A-Z][\w\-]*)`), 0.8, 0},
	{models.FactTimeline, regexp.MustCompile(`(?i)\b(today|yesterday|tomorrow|this (?:week|month)|last (?:week|month))\b.{0,80}`), 0.7, 0},
	{models.FactContext, regexp.MustCompile(`(?i)\bworking on ([\w\-/. ]{3,80})`), 0.7, 1},
}

// technicalTerms is the fixed dictionary of languages, frameworks,
// databases, and tools §4.3.1 requires a direct word-boundary,
// case-insensitive mention of to emit a Technical fact at confidence 0.9.
var technicalTerms = []string{
	// languages
	"go", "golang", "python", "javascript", "typescript", "rust", "java",
	"c++", "c#", "ruby", "php", "swift", "kotlin", "scala", "elixir",
	// frameworks
	"react", "vue", "angular", "django", "flask", "rails", "spring",
	"express", "next.js", "nextjs", "fastapi", "svelte",
	// databases
	"postgresql", "postgres", "mysql", "sqlite", "mongodb", "redis",
	"cassandra", "dynamodb", "elasticsearch",
	// tools/infra
	"docker", "kubernetes", "terraform", "git", "github", "gitlab",
	"jenkins", "kafka", "grpc", "graphql", "nginx", "aws", "gcp", "azure",
}

var (
	techDictOnce sync.Once
	techDict     *ahocorasick.Automaton
)

func technicalDictionary() *ahocorasick.Automaton {
	techDictOnce.Do(func() {
		ac, err := ahocorasick.NewBuilder().
			AddStrings(technicalTerms).
			SetMatchKind(ahocorasick.LeftmostLongest).
			SetPrefilter(true).
			Build()
		if err != nil {
			// The dictionary is a fixed, compile-time-known set of
			// literal strings; a build failure here means the pack
			// library itself rejected a literal, which extraction
			// degrades from gracefully by running regex rules only.
			return
		}
		techDict = ac
	})
	return techDict
}

// Extract runs the Fact Extractor over one piece of text (a conversation
// chunk, a session excerpt) and returns candidate facts at or above the
// default minimum extraction confidence. Callers (the contemplation
// cycle) apply §4.3's 0.6 acceptance gate and are responsible for
// persisting/deduping against existing facts via the fact store.
func Extract(text, source string) []*models.IdentifiedFact {
	var facts []*models.IdentifiedFact

	for _, rule := range factRules {
		for _, m := range rule.pattern.FindAllStringSubmatch(text, -1) {
			content := strings.TrimSpace(m[0])
			if rule.group > 0 && rule.group < len(m) {
				content = strings.TrimSpace(m[rule.group])
			}
			if content == "" {
				continue
			}
			facts = append(facts, models.NewIdentifiedFact(rule.factType, content, rule.confidence, source, models.FactScopeGlobal))
		}
	}

	if ac := technicalDictionary(); ac != nil {
		for _, mention := range scanTechnicalMentions(ac, text) {
			facts = append(facts, models.NewIdentifiedFact(models.FactTechnical, mention, 0.9, source, models.FactScopeGlobal))
		}
	}

	return DedupKeepHighest(facts)
}

// scanTechnicalMentions returns the distinct (lowercased) surface forms of
// technical terms found in text, in first-occurrence order.
func scanTechnicalMentions(ac *ahocorasick.Automaton, text string) []string {
	lower := strings.ToLower(text)
	matches := ac.FindAllOverlapping([]byte(lower))
	isWordByte := func(b byte) bool {
		return b == '_' || ('a' <= b && b <= 'z') || ('0' <= b && b <= '9')
	}
	seen := make(map[string]struct{}, len(matches))
	var out []string
	for _, m := range matches {
		if (m.Start > 0 && isWordByte(lower[m.Start-1])) || (m.End < len(lower) && isWordByte(lower[m.End])) {
			continue
		}
		term := strings.ToLower(text[m.Start:m.End])
		if _, ok := seen[term]; ok {
			continue
		}
		seen[term] = struct{}{}
		out = append(out, term)
	}
	return out
}

// DedupKeepHighest collapses facts sharing a (type, lowercased content)
// dedup key down to the single highest-confidence candidate, per §4.3.1.
func DedupKeepHighest(facts []*models.IdentifiedFact) []*models.IdentifiedFact {
	best := make(map[string]*models.IdentifiedFact, len(facts))
	order := make([]string, 0, len(facts))
	for _, f := range facts {
		key := string(f.Type) + ":" + strings.ToLower(contentString(f.Content))
		if existing, ok := best[key]; !ok {
			best[key] = f
			order = append(order, key)
		} else if f.Confidence > existing.Confidence {
			best[key] = f
		}
	}
	out := make([]*models.IdentifiedFact, 0, len(order))
	for _, k := range order {
		out = append(out, best[k])
	}
	return out
}

func contentString(content any) string {
	if s, ok := content.(string); ok {
		return s
	}
	return ""
}

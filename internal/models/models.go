// Package models holds the data-model entities shared by every subsystem.
package models

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Role identifies who authored a MessageFrame.
type Role string

const (
	RoleSteward   Role = "steward"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Momentum describes conversational flow at session end.
type Momentum string

const (
	MomentumBuilding    Momentum = "building"
	MomentumSteady      Momentum = "steady"
	MomentumWindingDown Momentum = "winding_down"
)

// TestStatus describes the working tree's test state captured by the bridge.
type TestStatus string

const (
	TestStatusPassing TestStatus = "passing"
	TestStatusFailing TestStatus = "failing"
	TestStatusUnknown TestStatus = "unknown"
)

// ContinuityInfo is the ConversationSession.continuity sub-object.
type ContinuityInfo struct {
	PreviousSession *string  `json:"previous_session,omitempty"`
	NextSession     *string  `json:"next_session,omitempty"`
	HandoffNotes    *string  `json:"handoff_notes,omitempty"`
	OpenThreads     []string `json:"open_threads,omitempty"`
}

// ConversationSession is a bounded dialogue record (§3).
type ConversationSession struct {
	SessionID           string          `json:"session_id"`
	StartedAt           time.Time       `json:"started_at"`
	EndedAt             *time.Time      `json:"ended_at,omitempty"`
	StewardID           string          `json:"steward_id"`
	AssistantInstanceID string          `json:"assistant_instance_id"`
	Summary             string          `json:"summary"`
	Progress            float64         `json:"progress"`
	EmotionalArc        string          `json:"emotional_arc,omitempty"`
	RelationshipMetrics map[string]any  `json:"relationship_metrics,omitempty"`
	TechnicalContext    map[string]any  `json:"technical_context,omitempty"`
	Continuity          *ContinuityInfo `json:"continuity,omitempty"`
	Indexed             bool            `json:"indexed"`

	Messages []MessageFrame `json:"messages,omitempty"`

	// Unknown is a holder for fields this build doesn't model. It is
	// excluded from JSON and nothing fills it when a session is decoded,
	// so unmodeled fields are dropped on a load-then-save round-trip.
	Unknown map[string]any `json:"-"`
}

// NewConversationSession starts a fresh, unsealed session.
func NewConversationSession(stewardID, assistantInstanceID string) *ConversationSession {
	return &ConversationSession{
		SessionID:           uuid.New().String(),
		StartedAt:           time.Now().UTC(),
		StewardID:           stewardID,
		AssistantInstanceID: assistantInstanceID,
		Continuity:          &ContinuityInfo{},
	}
}

// Seal closes a session. Returns an error if already sealed.
func (s *ConversationSession) Seal() error {
	if s.EndedAt != nil {
		return fmt.Errorf("session %s already sealed", s.SessionID)
	}
	now := time.Now().UTC()
	s.EndedAt = &now
	return nil
}

// SemanticInfo is MessageFrame.semantic (§3).
type SemanticInfo struct {
	Embedding []float32 `json:"embedding,omitempty"`
	Topics    []string  `json:"topics,omitempty"`
	Entities  []string  `json:"entities,omitempty"`
	Intent    *string   `json:"intent,omitempty"`
	Sentiment float64   `json:"sentiment"` // [-1, 1]
}

// MessageFrame is one message within a session (§3).
type MessageFrame struct {
	MessageID      string         `json:"message_id"`
	SessionID      string         `json:"session_id"`
	SequenceNumber int            `json:"sequence_number"` // monotonic >= 1 within session
	Role           Role           `json:"role"`
	Content        string         `json:"content"`
	ContentType    string         `json:"content_type"`
	Timestamp      time.Time      `json:"timestamp"`
	Semantic       SemanticInfo   `json:"semantic"`
	CodeContext    map[string]any `json:"code_context,omitempty"`
	References     []string       `json:"references,omitempty"`
	Impact         float64        `json:"impact,omitempty"`
	EditHistory    []string       `json:"edit_history,omitempty"`
}

// ChunkSourceType enumerates what a Chunk was produced from.
type ChunkSourceType string

const (
	ChunkSourceConversation ChunkSourceType = "conversation"
	ChunkSourceCodebase     ChunkSourceType = "codebase"
	ChunkSourceMemory       ChunkSourceType = "memory"
	// ChunkSourceAnalysis marks derived per-file analysis summaries written
	// into the `analysis_results` collection (§4.2.2 per-project metadata,
	// §4.3 step 1's second contemplation input).
	ChunkSourceAnalysis ChunkSourceType = "analysis"
)

// Chunk is the unit of indexing (§3).
type Chunk struct {
	ChunkID     string          `json:"chunk_id"`
	SourceID    string          `json:"source_id"`
	SourceType  ChunkSourceType `json:"source_type"`
	Content     string          `json:"content"`
	Metadata    map[string]any  `json:"metadata,omitempty"`
	Embedding   []float32       `json:"embedding,omitempty"`
	StartOffset int             `json:"start_offset"`
	EndOffset   int             `json:"end_offset"`
	// CreatedAt is when the chunk was first written to the Semantic
	// Store, used for the search contract's recency_boost (§4.2.3).
	CreatedAt time.Time `json:"created_at,omitempty"`
}

// ProjectMetadata is the Codebase Indexer's per-project summary (§4.2.2):
// path, name, the language distribution across indexed files, dependencies
// parsed from manifest files, and lightweight framework heuristics.
type ProjectMetadata struct {
	Path                 string         `json:"path"`
	Name                 string         `json:"name"`
	LanguageDistribution map[string]int `json:"language_distribution"`
	Dependencies         []string       `json:"dependencies,omitempty"`
	Frameworks           []string       `json:"frameworks,omitempty"`
	UpdatedAt            time.Time      `json:"updated_at"`
}

// ComputeChunkID implements the deterministic chunk_id formula of §3:
// hash(source_id, start, end, content).
func ComputeChunkID(sourceID string, start, end int, content string) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s:%d:%d:%s", sourceID, start, end, content)
	return hex.EncodeToString(h.Sum(nil))[:24]
}

// FactType enumerates IdentifiedFact.type.
type FactType string

const (
	FactIdentity     FactType = "identity"
	FactTechnical    FactType = "technical"
	FactPreference   FactType = "preference"
	FactConstraint   FactType = "constraint"
	FactGoal         FactType = "goal"
	FactContext      FactType = "context"
	FactRelationship FactType = "relationship"
	FactTimeline     FactType = "timeline"
	FactInsight      FactType = "insight"
	FactCustom       FactType = "custom"
)

// FactScope enumerates IdentifiedFact.scope.
type FactScope string

const (
	FactScopeGlobal  FactScope = "global"
	FactScopeProject FactScope = "project"
	FactScopeSession FactScope = "session"
	FactScopeSteward FactScope = "steward"
	// FactScopePrivate marks the semantic_hash-only shadow fact the
	// Storage Orchestrator writes for a private-routed blob (§4.5): its
	// Content is never the original text, only a one-way hash.
	FactScopePrivate FactScope = "private"
)

// VerificationStatus of an IdentifiedFact.
type VerificationStatus string

const (
	VerificationUnverified VerificationStatus = "unverified"
	VerificationVerified   VerificationStatus = "verified"
	VerificationSuperseded VerificationStatus = "superseded"
)

// IdentifiedFact is a typed, dated, evidenced assertion (§3).
type IdentifiedFact struct {
	FactID             string             `json:"fact_id"`
	Type               FactType           `json:"type"`
	Content             any                `json:"content"`
	Confidence         float64            `json:"confidence"`
	Source             string             `json:"source"`
	Timestamp          time.Time          `json:"timestamp"`
	Expiration         *time.Time         `json:"expiration,omitempty"`
	Scope              FactScope          `json:"scope"`
	Version            int                `json:"version"`
	Supersedes         *string            `json:"supersedes,omitempty"`
	SupersededBy       *string            `json:"superseded_by,omitempty"`
	Evidence           []string           `json:"evidence,omitempty"`
	ContextKeys        []string           `json:"context_keys,omitempty"`
	VerificationStatus VerificationStatus `json:"verification_status"`
}

// NewIdentifiedFact constructs a first-version fact.
func NewIdentifiedFact(factType FactType, content any, confidence float64, source string, scope FactScope) *IdentifiedFact {
	return &IdentifiedFact{
		FactID:             uuid.New().String(),
		Type:               factType,
		Content:            content,
		Confidence:         clamp01(confidence),
		Source:             source,
		Timestamp:          time.Now().UTC(),
		Scope:              scope,
		Version:            1,
		VerificationStatus: VerificationUnverified,
	}
}

// Supersede creates version n+1 of f, pointing both directions per §3's
// supersession DAG invariant, and marks f superseded.
func (f *IdentifiedFact) Supersede(newContent any, confidence float64, source string) *IdentifiedFact {
	next := NewIdentifiedFact(f.Type, newContent, confidence, source, f.Scope)
	next.Version = f.Version + 1
	next.Supersedes = &f.FactID
	f.SupersededBy = &next.FactID
	f.VerificationStatus = VerificationSuperseded
	return next
}

// PatternType enumerates Pattern.type.
type PatternType string

const (
	PatternTemporal   PatternType = "temporal"
	PatternSemantic   PatternType = "semantic"
	PatternBehavioral PatternType = "behavioral"
	PatternStructural PatternType = "structural"
)

// Pattern is a recurring structure detected over data points (§3).
type Pattern struct {
	PatternID   string         `json:"pattern_id"`
	Type        PatternType    `json:"type"`
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Occurrences []string       `json:"occurrences"` // ids of the data points
	Confidence  float64        `json:"confidence"`
	Indicators  []string       `json:"indicators,omitempty"`
	FirstSeen   time.Time      `json:"first_seen"`
	LastSeen    time.Time      `json:"last_seen"`
	PeriodSecs  *float64       `json:"period_secs,omitempty"`
	Archived    bool           `json:"archived"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// PatternConfidenceCap is the bound patterns grow toward on reinforcement (§3).
const PatternConfidenceCap = 0.99

// PatternArchiveThreshold is the confidence floor below which a pattern is
// archived (§3).
const PatternArchiveThreshold = 0.3

// Reinforce records a new occurrence, growing confidence bounded by the cap.
func (p *Pattern) Reinforce(occurrenceID string, at time.Time, delta float64) {
	p.Occurrences = append(p.Occurrences, occurrenceID)
	p.Confidence = min(PatternConfidenceCap, p.Confidence+delta)
	if at.After(p.LastSeen) {
		p.LastSeen = at
	}
	if p.Confidence < PatternArchiveThreshold {
		p.Archived = true
	}
}

// Insight is a synthesized conclusion (§3).
type Insight struct {
	InsightID       string    `json:"insight_id"`
	Title           string    `json:"title"`
	Description     string    `json:"description"`
	Evidence        []string  `json:"evidence"`
	Confidence      float64   `json:"confidence"`
	GeneratedAt     time.Time `json:"generated_at"`
	Recommendations []string  `json:"recommendations,omitempty"`
}

// PrivateBlob is opaque bytes stored in the Raw Store (§3). The core never
// inspects its content; only SemanticHash and metadata are usable.
type PrivateBlob struct {
	BlobID       string    `json:"blob_id"`
	SemanticHash string    `json:"semantic_hash"`
	CreatedAt    time.Time `json:"created_at"`
	Source       string    `json:"source"`
	Bytes        []byte    `json:"-"` // opaque; never read by the core beyond storage
}

// WorkContext is SessionBridge.work_context.
type WorkContext struct {
	CurrentTask        string     `json:"current_task"`
	ProgressFraction   float64    `json:"progress_fraction"`
	OpenFiles          []string   `json:"open_files,omitempty"`
	RecentOperations   []string   `json:"recent_operations,omitempty"`
	BlockingIssues     []string   `json:"blocking_issues,omitempty"`
	UncommittedChanges bool       `json:"uncommitted_changes"`
	TestStatus         TestStatus `json:"test_status"`
}

// CognitiveState is SessionBridge.cognitive_state.
type CognitiveState struct {
	ProblemSolvingApproach string  `json:"problem_solving_approach,omitempty"`
	WorkingHypothesis      string  `json:"working_hypothesis,omitempty"`
	Confidence             float64 `json:"confidence"`
	BreakthroughProximity  string  `json:"breakthrough_proximity,omitempty"` // far, near, close
}

// RelationshipState is SessionBridge.relationship_state.
type RelationshipState struct {
	TrustLevel           float64  `json:"trust_level"` // [0,1]
	CommunicationStyle   string   `json:"communication_style,omitempty"`
	EstablishedPatterns  []string `json:"established_patterns,omitempty"`
}

// OpenLoop is one entry in handoff.open_loops.
type OpenLoop struct {
	Description string `json:"description"`
	Blocking    bool   `json:"blocking"`
	Owner       string `json:"owner"` // "user" or "assistant"
}

// ContinuationHints is handoff.continuation_hints.
type ContinuationHints struct {
	SuggestedGreeting string `json:"suggested_greeting"`
}

// Handoff is SessionBridge.handoff (§4.4).
type Handoff struct {
	ImmediatePriority  string            `json:"immediate_priority"`
	CriticalContext    []string          `json:"critical_context,omitempty"`
	OpenLoops          []OpenLoop        `json:"open_loops,omitempty"`
	ContinuationHints  ContinuationHints `json:"continuation_hints"`
	TimeContext        string            `json:"time_context,omitempty"`

	// Supplemental decision guidance (SPEC_FULL.md), patterned on the
	// teacher's DecisionGuidance.
	ReadyToProceed bool     `json:"ready_to_proceed"`
	Prerequisites  []string `json:"prerequisites,omitempty"`
}

// SessionBridge is the handoff record (§3, §4.4).
type SessionBridge struct {
	BridgeID          string             `json:"bridge_id"`
	FromSession       string             `json:"from_session"`
	ToSession         *string            `json:"to_session,omitempty"`
	CreatedAt         time.Time          `json:"created_at"`
	ActivatedAt       *time.Time         `json:"activated_at,omitempty"`
	ConversationState map[string]any     `json:"conversation_state,omitempty"`
	WorkContext       WorkContext        `json:"work_context"`
	CognitiveState    CognitiveState     `json:"cognitive_state"`
	RelationshipState RelationshipState  `json:"relationship_state"`
	Handoff           Handoff            `json:"handoff"`
	Checksum          string             `json:"checksum"`
	// SectionChecksums holds one checksum per sub-object (conversation_state,
	// work_context, cognitive_state, relationship_state, handoff), computed
	// alongside Checksum. Checksum alone can only say the record as a whole
	// changed; SectionChecksums lets Activate identify which specific
	// sub-object was corrupted and default only that one (§8 scenario 5).
	SectionChecksums map[string]string `json:"section_checksums,omitempty"`
	Version          int               `json:"version"`
}

// Activate marks the bridge as consumed by new SessionID. Per §3,
// to_session is immutable once set.
func (b *SessionBridge) Activate(newSessionID string) error {
	if b.ToSession != nil {
		return fmt.Errorf("bridge %s already activated to session %s", b.BridgeID, *b.ToSession)
	}
	b.ToSession = &newSessionID
	now := time.Now().UTC()
	b.ActivatedAt = &now
	return nil
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func min(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

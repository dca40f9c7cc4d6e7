// Package bridge implements the Session-Continuity Bridge (§4.4): capturing
// a snapshot of conversational, work, cognitive, and relationship state at
// session end, deriving a handoff for whichever session picks it up next,
// and activating that handoff exactly once.
//
// The handoff-derivation rules are spec-given (§4.4); the reason/prerequisite
// phrasing pattern is grounded on the teacher's quick.go buildDecisionGuidance,
// which turns a small state snapshot into a human-readable action plus a list
// of prerequisites via a switch over the dominant signal.
package bridge

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/AbdouB/memoryd/internal/logging"
	"github.com/AbdouB/memoryd/internal/models"
	"github.com/AbdouB/memoryd/internal/store"
)

// CaptureInput is the state a caller assembles at session end to hand to
// Capture. Fields mirror SessionBridge's sub-objects (§3); ActiveTopics and
// Decisions feed ConversationState.
type CaptureInput struct {
	FromSession string

	ActiveTopics []string
	Decisions    []string
	Momentum     models.Momentum

	WorkContext       models.WorkContext
	CognitiveState    models.CognitiveState
	RelationshipState models.RelationshipState

	// PendingDecisions are open questions the steward still owes an answer
	// to — folded into Handoff.OpenLoops as user-owned, blocking (§4.4).
	PendingDecisions []string
}

// Capture builds a SessionBridge snapshot from in, derives its handoff, and
// computes its checksum. The result is ready to persist via BridgeStore.Put.
func Capture(in CaptureInput) *models.SessionBridge {
	b := &models.SessionBridge{
		BridgeID:    uuid.New().String(),
		FromSession: in.FromSession,
		CreatedAt:   time.Now().UTC(),
		ConversationState: map[string]any{
			"active_topics": in.ActiveTopics,
			"decisions":     in.Decisions,
			"flow_momentum": in.Momentum,
		},
		WorkContext:       in.WorkContext,
		CognitiveState:    in.CognitiveState,
		RelationshipState: in.RelationshipState,
		Version:           1,
	}
	b.Handoff = deriveHandoff(b, in.PendingDecisions, b.CreatedAt)
	b.Checksum = checksum(b)
	b.SectionChecksums = sectionChecksums(b)
	return b
}

// deriveHandoff implements §4.4's handoff rules:
//
//	immediate_priority: blocking issue present -> resolve it first; else
//	breakthrough_proximity=close -> complete the breakthrough; else continue
//	current task.
//
//	open_loops: uncommitted_changes -> non-blocking, user-owned;
//	test_status=failing -> blocking, assistant-owned; pending decisions ->
//	blocking, user-owned.
func deriveHandoff(b *models.SessionBridge, pendingDecisions []string, capturedAt time.Time) models.Handoff {
	h := models.Handoff{}

	wc := b.WorkContext
	switch {
	case len(wc.BlockingIssues) > 0:
		h.ImmediatePriority = "resolve blocking issue: " + wc.BlockingIssues[0]
	case b.CognitiveState.BreakthroughProximity == "close":
		h.ImmediatePriority = "complete the breakthrough: " + b.CognitiveState.WorkingHypothesis
	default:
		h.ImmediatePriority = "continue: " + wc.CurrentTask
	}

	if wc.UncommittedChanges {
		h.OpenLoops = append(h.OpenLoops, models.OpenLoop{
			Description: "uncommitted changes in the working tree",
			Blocking:    false,
			Owner:       "user",
		})
	}
	if wc.TestStatus == models.TestStatusFailing {
		h.OpenLoops = append(h.OpenLoops, models.OpenLoop{
			Description: "test suite is failing",
			Blocking:    true,
			Owner:       "assistant",
		})
	}
	for _, d := range pendingDecisions {
		h.OpenLoops = append(h.OpenLoops, models.OpenLoop{
			Description: d,
			Blocking:    true,
			Owner:       "user",
		})
	}

	h.ContinuationHints = models.ContinuationHints{SuggestedGreeting: greetingFor(0)}
	h.TimeContext = capturedAt.Format(time.RFC3339)

	h.ReadyToProceed, h.Prerequisites, h.CriticalContext = readiness(wc, b.CognitiveState, h.OpenLoops)

	return h
}

// readiness mirrors the teacher's buildDecisionGuidance: it turns the
// captured state into a ready/not-ready verdict plus the prerequisites that
// would need to clear first, and a short list of critical context to restate.
func readiness(wc models.WorkContext, cog models.CognitiveState, loops []models.OpenLoop) (bool, []string, []string) {
	var prereqs []string
	var critical []string

	for _, l := range loops {
		if l.Blocking {
			prereqs = append(prereqs, l.Description)
		}
	}
	if cog.Confidence < 0.4 {
		prereqs = append(prereqs, "re-establish working hypothesis before proceeding")
	}
	if wc.CurrentTask != "" {
		critical = append(critical, "current task: "+wc.CurrentTask)
	}
	if cog.WorkingHypothesis != "" {
		critical = append(critical, "working hypothesis: "+cog.WorkingHypothesis)
	}

	return len(prereqs) == 0, prereqs, critical
}

// greetingFor picks the time-aware suggested_greeting (§4.4): gap under an
// hour resumes quietly, under a day welcomes back, a day or more re-introduces.
func greetingFor(gap time.Duration) string {
	switch {
	case gap < time.Hour:
		return "resume-short"
	case gap < 24*time.Hour:
		return "welcome-back"
	default:
		return "long-gap-reintroduction"
	}
}

// RegreetFor recomputes the suggested greeting at activation time, when the
// real gap between capture and activation is known (Capture has no activation
// time yet, so it seeds "resume-short").
func RegreetFor(capturedAt, now time.Time) string {
	return greetingFor(now.Sub(capturedAt))
}

// checksum hashes the bridge's JSON serialization with Checksum cleared, so
// verification at activation time can detect any tampering or corruption of
// the persisted row (§4.4).
func checksum(b *models.SessionBridge) string {
	clone := *b
	clone.Checksum = ""
	data, err := json.Marshal(clone)
	if err != nil {
		return ""
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Verify reports whether b's stored checksum matches its current content.
func Verify(b *models.SessionBridge) bool {
	if b == nil {
		return false
	}
	return checksum(b) == b.Checksum
}

// sectionChecksums hashes each of SessionBridge's sub-objects independently,
// so a single corrupted field can be traced to the one section it belongs
// to instead of condemning the whole record (§8 scenario 5).
func sectionChecksums(b *models.SessionBridge) map[string]string {
	return map[string]string{
		"conversation_state": hashSection(b.ConversationState),
		"work_context":       hashSection(b.WorkContext),
		"cognitive_state":    hashSection(b.CognitiveState),
		"relationship_state": hashSection(b.RelationshipState),
		"handoff":            hashSection(b.Handoff),
	}
}

func hashSection(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// ActivationResult is what Activate hands back to a starting session.
type ActivationResult struct {
	Bridge           *models.SessionBridge
	ChecksumVerified bool
	SuggestedGreeting string
}

// Activate finds the most recent unactivated bridge, verifies its checksum,
// marks it activated for newSessionID, and persists the result. A checksum
// mismatch is not an error (§4.4: "degrade: skip the damaged subsection, keep
// the rest, warn") — it is logged and reported via ChecksumVerified so the
// caller can decide how much of the snapshot to trust.
func Activate(bridges *store.BridgeStore, newSessionID string) (*ActivationResult, error) {
	b, err := bridges.MostRecentUnactivatedAny()
	if err != nil {
		return nil, err
	}
	if b == nil {
		return nil, nil
	}

	verified := Verify(b)
	if !verified {
		logging.L_warn("session bridge checksum mismatch, activating with partial trust", "bridge_id", b.BridgeID)
		b = partialRestore(b)
	}

	if err := b.Activate(newSessionID); err != nil {
		return nil, err
	}
	if err := bridges.Put(b); err != nil {
		return nil, err
	}

	return &ActivationResult{
		Bridge:            b,
		ChecksumVerified:  verified,
		SuggestedGreeting: RegreetFor(b.CreatedAt, time.Now().UTC()),
	}, nil
}

// partialRestore compares each of b's current section checksums against the
// ones stored at Capture time and defaults only the sections that no longer
// match, leaving every intact section untouched (§8 scenario 5: a corrupted
// work_context restores with work_context defaulted and everything else
// intact). A bridge with no stored SectionChecksums (never captured with
// this mechanism) falls back to trusting the whole record, since there is
// nothing finer-grained to compare against.
func partialRestore(b *models.SessionBridge) *models.SessionBridge {
	if len(b.SectionChecksums) == 0 {
		return b
	}
	current := sectionChecksums(b)
	for section, want := range b.SectionChecksums {
		if want != "" && current[section] == want {
			continue
		}
		logging.L_warn("dropping unreadable bridge section", "bridge_id", b.BridgeID, "section", section)
		switch section {
		case "conversation_state":
			b.ConversationState = nil
		case "work_context":
			b.WorkContext = models.WorkContext{}
		case "cognitive_state":
			b.CognitiveState = models.CognitiveState{}
		case "relationship_state":
			b.RelationshipState = models.RelationshipState{}
		case "handoff":
			b.Handoff = models.Handoff{ImmediatePriority: "unknown — bridge handoff section was corrupt"}
		}
	}
	b.SectionChecksums = sectionChecksums(b)
	return b
}

// Prune deletes expired bridges per §4.4 retention: activated bridges older
// than retentionDays, unactivated bridges older than 2x that (a longer grace
// window since nobody has consumed them yet).
func Prune(bridges *store.BridgeStore, retentionDays int, now time.Time) (activated, unactivated int64, err error) {
	if retentionDays <= 0 {
		retentionDays = 30
	}
	activatedCutoff := now.AddDate(0, 0, -retentionDays)
	unactivatedCutoff := now.AddDate(0, 0, -2*retentionDays)

	activated, err = bridges.PruneActivatedOlderThan(activatedCutoff)
	if err != nil {
		return 0, 0, err
	}
	unactivated, err = bridges.PruneUnactivatedOlderThan(unactivatedCutoff)
	if err != nil {
		return activated, 0, err
	}
	return activated, unactivated, nil
}

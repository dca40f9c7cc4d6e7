package bridge

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AbdouB/memoryd/internal/models"
	"github.com/AbdouB/memoryd/internal/store"
)

func TestCaptureImmediatePriorityPrefersBlockingIssue(t *testing.T) {
	b := Capture(CaptureInput{
		FromSession: "sess-1",
		WorkContext: models.WorkContext{
			CurrentTask:    "refactor search",
			BlockingIssues: []string{"CI is down"},
		},
		CognitiveState: models.CognitiveState{BreakthroughProximity: "close"},
	})
	assert.Contains(t, b.Handoff.ImmediatePriority, "CI is down")
}

func TestCaptureImmediatePriorityFallsBackToBreakthrough(t *testing.T) {
	b := Capture(CaptureInput{
		FromSession: "sess-1",
		WorkContext: models.WorkContext{CurrentTask: "refactor search"},
		CognitiveState: models.CognitiveState{
			BreakthroughProximity: "close",
			WorkingHypothesis:     "the dedupe bug is in the merge step",
		},
	})
	assert.Contains(t, b.Handoff.ImmediatePriority, "dedupe bug")
}

func TestCaptureImmediatePriorityDefaultsToCurrentTask(t *testing.T) {
	b := Capture(CaptureInput{
		FromSession: "sess-1",
		WorkContext: models.WorkContext{CurrentTask: "write docs"},
	})
	assert.Contains(t, b.Handoff.ImmediatePriority, "write docs")
}

func TestCaptureOpenLoopsDeriveFromWorkContextAndPendingDecisions(t *testing.T) {
	b := Capture(CaptureInput{
		FromSession: "sess-1",
		WorkContext: models.WorkContext{
			UncommittedChanges: true,
			TestStatus:         models.TestStatusFailing,
		},
		PendingDecisions: []string{"pick a retention default"},
	})
	require.Len(t, b.Handoff.OpenLoops, 3)

	byDesc := map[string]models.OpenLoop{}
	for _, l := range b.Handoff.OpenLoops {
		byDesc[l.Description] = l
	}

	uncommitted := byDesc["uncommitted changes in the working tree"]
	assert.False(t, uncommitted.Blocking)
	assert.Equal(t, "user", uncommitted.Owner)

	failing := byDesc["test suite is failing"]
	assert.True(t, failing.Blocking)
	assert.Equal(t, "assistant", failing.Owner)

	decision := byDesc["pick a retention default"]
	assert.True(t, decision.Blocking)
	assert.Equal(t, "user", decision.Owner)

	assert.False(t, b.Handoff.ReadyToProceed)
	assert.NotEmpty(t, b.Handoff.Prerequisites)
}

func TestCaptureReadyToProceedWhenNoBlockingLoops(t *testing.T) {
	b := Capture(CaptureInput{
		FromSession:    "sess-1",
		WorkContext:    models.WorkContext{CurrentTask: "ship it"},
		CognitiveState: models.CognitiveState{Confidence: 0.9},
	})
	assert.True(t, b.Handoff.ReadyToProceed)
	assert.Empty(t, b.Handoff.Prerequisites)
}

func TestGreetingForIsTimeAware(t *testing.T) {
	assert.Equal(t, "resume-short", greetingFor(30*time.Minute))
	assert.Equal(t, "welcome-back", greetingFor(5*time.Hour))
	assert.Equal(t, "long-gap-reintroduction", greetingFor(48*time.Hour))
}

func TestVerifyDetectsTamperedChecksum(t *testing.T) {
	b := Capture(CaptureInput{FromSession: "sess-1", WorkContext: models.WorkContext{CurrentTask: "x"}})
	assert.True(t, Verify(b))

	b.WorkContext.CurrentTask = "tampered"
	assert.False(t, Verify(b))
}

func newTestBridgeStore(t *testing.T) *store.BridgeStore {
	t.Helper()
	db, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return store.NewBridgeStore(db)
}

func TestActivateFindsMostRecentUnactivatedAndMarksIt(t *testing.T) {
	bridges := newTestBridgeStore(t)

	older := Capture(CaptureInput{FromSession: "sess-1", WorkContext: models.WorkContext{CurrentTask: "a"}})
	older.CreatedAt = time.Now().UTC().Add(-time.Hour)
	older.Checksum = checksum(older)
	require.NoError(t, bridges.Put(older))

	newer := Capture(CaptureInput{FromSession: "sess-2", WorkContext: models.WorkContext{CurrentTask: "b"}})
	require.NoError(t, bridges.Put(newer))

	result, err := Activate(bridges, "sess-3")
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, newer.BridgeID, result.Bridge.BridgeID)
	assert.True(t, result.ChecksumVerified)
	assert.Equal(t, "resume-short", result.SuggestedGreeting)

	stored, err := bridges.Get(newer.BridgeID)
	require.NoError(t, err)
	require.NotNil(t, stored.ToSession)
	assert.Equal(t, "sess-3", *stored.ToSession)
}

func TestActivateDegradesOnChecksumMismatchInsteadOfErroring(t *testing.T) {
	bridges := newTestBridgeStore(t)

	b := Capture(CaptureInput{FromSession: "sess-1", WorkContext: models.WorkContext{CurrentTask: "a"}})
	b.Checksum = "not-a-real-checksum"
	require.NoError(t, bridges.Put(b))

	result, err := Activate(bridges, "sess-2")
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.False(t, result.ChecksumVerified)
	require.NotNil(t, result.Bridge.ToSession)
}

func TestActivateDefaultsOnlyTheCorruptedSection(t *testing.T) {
	bridges := newTestBridgeStore(t)

	b := Capture(CaptureInput{
		FromSession: "sess-1",
		WorkContext: models.WorkContext{CurrentTask: "ship the merge fix", ProgressFraction: 0.6},
		CognitiveState: models.CognitiveState{
			WorkingHypothesis: "the dedupe bug is in the merge step",
			Confidence:        0.7,
		},
	})
	require.NoError(t, bridges.Put(b))

	// Simulate corruption of only work_context after it was persisted: the
	// section checksum no longer matches, but the whole-record checksum was
	// already invalidated too (tamper touches the serialized blob as a
	// whole), so Activate takes the partial-restore path.
	corrupted, err := bridges.Get(b.BridgeID)
	require.NoError(t, err)
	corrupted.WorkContext = models.WorkContext{CurrentTask: "GARBLED-BY-CORRUPTION"}
	require.NoError(t, bridges.Put(corrupted))

	result, err := Activate(bridges, "sess-2")
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.False(t, result.ChecksumVerified)

	restored := result.Bridge
	assert.Equal(t, models.WorkContext{}, restored.WorkContext, "work_context should be reset to its default empty value")
	assert.Equal(t, "the dedupe bug is in the merge step", restored.CognitiveState.WorkingHypothesis, "cognitive_state should survive untouched")
	assert.Equal(t, b.Handoff.ImmediatePriority, restored.Handoff.ImmediatePriority, "handoff should survive untouched")
}

func TestActivateReturnsNilWhenNothingUnactivated(t *testing.T) {
	bridges := newTestBridgeStore(t)
	result, err := Activate(bridges, "sess-1")
	require.NoError(t, err)
	assert.Nil(t, result)
}

func TestPruneSplitsActivatedAndUnactivatedCutoffs(t *testing.T) {
	bridges := newTestBridgeStore(t)
	now := time.Now().UTC()

	activatedOld := Capture(CaptureInput{FromSession: "sess-1"})
	activatedOld.CreatedAt = now.AddDate(0, 0, -40)
	sess := "sess-2"
	activatedOld.ToSession = &sess
	activatedOld.Checksum = checksum(activatedOld)
	require.NoError(t, bridges.Put(activatedOld))

	unactivatedMidAge := Capture(CaptureInput{FromSession: "sess-3"})
	unactivatedMidAge.CreatedAt = now.AddDate(0, 0, -40)
	unactivatedMidAge.Checksum = checksum(unactivatedMidAge)
	require.NoError(t, bridges.Put(unactivatedMidAge))

	unactivatedOld := Capture(CaptureInput{FromSession: "sess-4"})
	unactivatedOld.CreatedAt = now.AddDate(0, 0, -70)
	unactivatedOld.Checksum = checksum(unactivatedOld)
	require.NoError(t, bridges.Put(unactivatedOld))

	activatedCount, unactivatedCount, err := Prune(bridges, 30, now)
	require.NoError(t, err)
	assert.Equal(t, int64(1), activatedCount)
	assert.Equal(t, int64(1), unactivatedCount)

	remainingOld, err := bridges.Get(unactivatedMidAge.BridgeID)
	require.NoError(t, err)
	assert.NotNil(t, remainingOld)
}

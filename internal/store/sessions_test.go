package store

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AbdouB/memoryd/internal/models"
)

func TestSessionStorePutGetRoundTrip(t *testing.T) {
	db := openTestDB(t)
	ss := NewSessionStore(db)

	sess := models.NewConversationSession("steward-1", "assistant-1")
	sess.Summary = "discussed the indexing pipeline"
	require.NoError(t, ss.Put(sess))

	got, err := ss.Get(sess.SessionID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "discussed the indexing pipeline", got.Summary)
}

func TestSessionStoreContentHashReindexSkip(t *testing.T) {
	db := openTestDB(t)
	ss := NewSessionStore(db)

	sess := models.NewConversationSession("steward-1", "assistant-1")
	require.NoError(t, ss.Put(sess))

	hash, err := ss.ContentHash(sess.SessionID)
	require.NoError(t, err)
	assert.Empty(t, hash)

	require.NoError(t, ss.SetContentHash(sess.SessionID, "abc123"))
	hash, err = ss.ContentHash(sess.SessionID)
	require.NoError(t, err)
	assert.Equal(t, "abc123", hash)
}

func TestSessionStoreUnindexedThenMarkIndexed(t *testing.T) {
	db := openTestDB(t)
	ss := NewSessionStore(db)

	sess := models.NewConversationSession("steward-1", "assistant-1")
	require.NoError(t, ss.Put(sess))

	pending, err := ss.Unindexed(10)
	require.NoError(t, err)
	require.Len(t, pending, 1)

	require.NoError(t, ss.MarkIndexed(sess.SessionID))

	pending, err = ss.Unindexed(10)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestSessionStoreLatestForSteward(t *testing.T) {
	db := openTestDB(t)
	ss := NewSessionStore(db)

	s1 := models.NewConversationSession("steward-1", "assistant-1")
	require.NoError(t, ss.Put(s1))
	s2 := models.NewConversationSession("steward-1", "assistant-1")
	s2.StartedAt = s1.StartedAt.Add(time.Hour)
	require.NoError(t, ss.Put(s2))

	latest, err := ss.Latest("steward-1")
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, s2.SessionID, latest.SessionID)
}

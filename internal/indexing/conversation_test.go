package indexing

import (
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AbdouB/memoryd/internal/embedding"
	"github.com/AbdouB/memoryd/internal/models"
	"github.com/AbdouB/memoryd/internal/store"
)

func newTestIndexer(t *testing.T) (*ConversationIndexer, *store.DB) {
	t.Helper()
	db, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	ix := NewConversationIndexer(store.NewSessionStore(db), store.NewChunkStore(db), store.NewFactStore(db), embedding.NewStub(32))
	return ix, db
}

func session12Messages() *models.ConversationSession {
	sess := &models.ConversationSession{SessionID: "s1", StartedAt: time.Now(), StewardID: "steward-1"}
	for i := 1; i <= 12; i++ {
		role := models.RoleSteward
		if i%2 == 0 {
			role = models.RoleAssistant
		}
		sess.Messages = append(sess.Messages, models.MessageFrame{
			MessageID:      fmt.Sprintf("m%d", i),
			SessionID:      sess.SessionID,
			SequenceNumber: i,
			Role:           role,
			Content:        fmt.Sprintf("message number %d", i),
			Timestamp:      sess.StartedAt.Add(time.Duration(i) * time.Minute),
		})
	}
	return sess
}

func TestIndexSessionTwelveMessagesYieldsFourChunks(t *testing.T) {
	ix, _ := newTestIndexer(t)
	n, err := ix.IndexSession(session12Messages())
	require.NoError(t, err)
	assert.Equal(t, 4, n)
}

func TestIndexSessionUnchangedSkipsReindex(t *testing.T) {
	ix, _ := newTestIndexer(t)
	sess := session12Messages()

	_, err := ix.IndexSession(sess)
	require.NoError(t, err)

	n, err := ix.IndexSession(sess)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestIndexSessionChangedContentReindexes(t *testing.T) {
	ix, _ := newTestIndexer(t)
	sess := session12Messages()

	_, err := ix.IndexSession(sess)
	require.NoError(t, err)

	sess.Messages = append(sess.Messages, models.MessageFrame{
		MessageID: "m13", SessionID: sess.SessionID, SequenceNumber: 13,
		Role: models.RoleSteward, Content: "one more", Timestamp: time.Now(),
	})

	n, err := ix.IndexSession(sess)
	require.NoError(t, err)
	assert.Positive(t, n)
}

func TestIndexSessionWritesPerMessageKeywordIndex(t *testing.T) {
	ix, db := newTestIndexer(t)
	sess := session12Messages()
	sess.Messages[0].Content = "we should rotate the staging credentials"

	_, err := ix.IndexSession(sess)
	require.NoError(t, err)

	matches, err := store.NewChunkStore(db).KeywordSearch("staging credentials", 10)
	require.NoError(t, err)
	assert.NotEmpty(t, matches)
}

func TestIndexSessionExtractsFactsFromMessages(t *testing.T) {
	ix, db := newTestIndexer(t)
	sess := session12Messages()
	sess.Messages[0].Content = "we use PostgreSQL for storage"

	_, err := ix.IndexSession(sess)
	require.NoError(t, err)

	facts, err := store.NewFactStore(db).List(models.FactTechnical, false, 10)
	require.NoError(t, err)
	assert.NotEmpty(t, facts)
}

func TestWindowMessagesSingleShortWindow(t *testing.T) {
	msgs := []models.MessageFrame{
		{SequenceNumber: 1, Role: models.RoleSteward, Content: "a"},
		{SequenceNumber: 2, Role: models.RoleAssistant, Content: "b"},
	}
	windows := windowMessages(msgs)
	require.Len(t, windows, 1)
	assert.Len(t, windows[0], 2)
}

// Package indexing implements the Indexing Pipeline (§4.2): conversation,
// codebase, and memory indexers feeding a shared chunk store, plus the
// batching and search-contract machinery that sits on top of it. Grounded
// on roelfdiedericks-goclaw's internal/memory/indexer.go for the
// debounce/batch/content-hash-skip shape.
package indexing

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/AbdouB/memoryd/internal/contemplation"
	"github.com/AbdouB/memoryd/internal/embedding"
	"github.com/AbdouB/memoryd/internal/models"
	"github.com/AbdouB/memoryd/internal/store"
)

// minIndexedFactConfidence is the acceptance gate §4.3.1 applies to
// candidate facts before they are persisted, reused here since the
// Conversation Indexer runs the same Fact Extractor at ingest time rather
// than waiting for the next contemplation cycle to dig facts out of
// already-chunked conversation content.
const minIndexedFactConfidence = 0.6

// conversationWindowSize and conversationWindowStep implement §4.2.1's
// 5-message sliding window with an overlap of 2 (i.e. a step of 3).
const (
	conversationWindowSize = 5
	conversationWindowStep = 3
)

// ConversationIndexer chunks a ConversationSession's messages into
// overlapping windows and upserts them into the "conversations" chunk
// collection.
type ConversationIndexer struct {
	sessions *store.SessionStore
	chunks   *store.ChunkStore
	facts    *store.FactStore
	embed    embedding.Service
}

// NewConversationIndexer constructs a ConversationIndexer.
func NewConversationIndexer(sessions *store.SessionStore, chunks *store.ChunkStore, facts *store.FactStore, embed embedding.Service) *ConversationIndexer {
	return &ConversationIndexer{sessions: sessions, chunks: chunks, facts: facts, embed: embed}
}

// IndexSession chunks and embeds sess's messages, skipping the work
// entirely if its content hash matches what was stored on the previous
// index pass (§4.2.1's unchanged-session reindex-skip rule). The hash
// covers every message and is kept per session by
// SessionStore.ContentHash/SetContentHash.
func (ix *ConversationIndexer) IndexSession(sess *models.ConversationSession) (chunked int, err error) {
	hash := sessionContentHash(sess)
	prior, err := ix.sessions.ContentHash(sess.SessionID)
	if err != nil {
		return 0, err
	}
	if prior == hash {
		return 0, nil
	}

	for _, m := range sess.Messages {
		rowKey := fmt.Sprintf("%s:%d", sess.SessionID, m.SequenceNumber)
		if err := ix.chunks.IndexKeyword(rowKey, string(models.ChunkSourceConversation), sess.SessionID, m.Content); err != nil {
			return chunked, err
		}
		if err := ix.extractAndPersistFacts(m, sess.SessionID); err != nil {
			return chunked, err
		}
	}

	windows := windowMessages(sess.Messages)
	for idx, w := range windows {
		chunkText := renderWindow(w)
		chunkID := fmt.Sprintf("%s_%d", sess.SessionID, idx)

		var vec []float32
		if ix.embed != nil && ix.embed.Available() {
			vec, err = ix.embed.Embed(chunkText, embedding.ContentGeneral)
			if err != nil {
				return chunked, err
			}
		}

		c := &models.Chunk{
			ChunkID:  chunkID,
			SourceID: sess.SessionID,
			Content:  chunkText,
			Metadata: map[string]any{
				"session_id":      sess.SessionID,
				"chunk_index":     idx,
				"start_message":   w[0].SequenceNumber,
				"end_message":     w[len(w)-1].SequenceNumber,
				"first_timestamp": w[0].Timestamp.UTC().Format(time.RFC3339),
				"participants":    participants(w),
			},
			Embedding:   vec,
			StartOffset: w[0].SequenceNumber,
			EndOffset:   w[len(w)-1].SequenceNumber,
		}
		contentHash := sha256Hex(chunkText)
		if err := ix.chunks.Upsert("conversations", c, contentHash); err != nil {
			return chunked, err
		}
		chunked++
	}

	if err := ix.sessions.SetContentHash(sess.SessionID, hash); err != nil {
		return chunked, err
	}
	if err := ix.sessions.MarkIndexed(sess.SessionID); err != nil {
		return chunked, err
	}
	return chunked, nil
}

// extractAndPersistFacts runs the Fact Extractor over one message's content
// at index time (§4.2.1's "apply the Fact Extractor" step) and persists
// candidates clearing the §4.3.1 confidence gate, superseding any existing
// fact at the same dedup key with lower confidence.
func (ix *ConversationIndexer) extractAndPersistFacts(m models.MessageFrame, sessionID string) error {
	if ix.facts == nil {
		return nil
	}
	for _, f := range contemplation.Extract(m.Content, sessionID) {
		if f.Confidence < minIndexedFactConfidence {
			continue
		}
		existing, err := ix.facts.FindByDedupKey(f.Type, f.Content)
		if err != nil {
			return err
		}
		if existing == nil {
			if err := ix.facts.Put(f); err != nil {
				return err
			}
			continue
		}
		if existing.Confidence >= f.Confidence {
			continue
		}
		next := existing.Supersede(f.Content, f.Confidence, f.Source)
		if err := ix.facts.Put(existing); err != nil {
			return err
		}
		if err := ix.facts.Put(next); err != nil {
			return err
		}
	}
	return nil
}

// windowMessages splits messages into overlapping windows per §4.2.1: size
// 5, step 3 (overlap 2). A session of 12 messages yields 4 windows
// (§8 scenario 1).
func windowMessages(messages []models.MessageFrame) [][]models.MessageFrame {
	if len(messages) == 0 {
		return nil
	}
	var windows [][]models.MessageFrame
	for start := 0; ; start += conversationWindowStep {
		end := start + conversationWindowSize
		if end >= len(messages) {
			end = len(messages)
			windows = append(windows, messages[start:end])
			break
		}
		windows = append(windows, messages[start:end])
	}
	return windows
}

// renderWindow implements §4.2.1's "{role}: {content}" joined-by-blank-line
// chunk text template.
func renderWindow(w []models.MessageFrame) string {
	lines := make([]string, len(w))
	for i, m := range w {
		lines[i] = fmt.Sprintf("%s: %s", m.Role, m.Content)
	}
	return strings.Join(lines, "\n\n")
}

func participants(w []models.MessageFrame) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, m := range w {
		role := string(m.Role)
		if _, ok := seen[role]; ok {
			continue
		}
		seen[role] = struct{}{}
		out = append(out, role)
	}
	return out
}

// sessionContentHash hashes every message's content in sequence order, so
// any edit, addition, or removal changes the hash.
func sessionContentHash(sess *models.ConversationSession) string {
	h := sha256.New()
	for _, m := range sess.Messages {
		fmt.Fprintf(h, "%d:%s:%s\n", m.SequenceNumber, m.Role, m.Content)
	}
	return hex.EncodeToString(h.Sum(nil))
}

func sha256Hex(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPutBlobIsIdempotentByContentHash(t *testing.T) {
	db := openTestDB(t)
	r := NewRawStore(db)

	id1, err := r.PutBlob("codebase", "main.go", []byte("package main"))
	require.NoError(t, err)

	id2, err := r.PutBlob("codebase", "main.go", []byte("package main"))
	require.NoError(t, err)

	assert.Equal(t, id1, id2)
}

func TestPutBlobDistinctContentGetsDistinctIDs(t *testing.T) {
	db := openTestDB(t)
	r := NewRawStore(db)

	id1, err := r.PutBlob("codebase", "a.go", []byte("a"))
	require.NoError(t, err)
	id2, err := r.PutBlob("codebase", "b.go", []byte("b"))
	require.NoError(t, err)

	assert.NotEqual(t, id1, id2)
}

func TestHasBlobReflectsExistingContent(t *testing.T) {
	db := openTestDB(t)
	r := NewRawStore(db)

	ok, err := r.HasBlob("codebase", ContentHash([]byte("not written")))
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = r.PutBlob("codebase", "a.go", []byte("hello"))
	require.NoError(t, err)

	ok, err = r.HasBlob("codebase", ContentHash([]byte("hello")))
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestPutPrivateBlobNeverExposesBytesThroughHasBlob(t *testing.T) {
	db := openTestDB(t)
	r := NewRawStore(db)

	blob, err := r.PutPrivateBlob("journal", "hash-123", []byte("secret thoughts"))
	require.NoError(t, err)
	assert.NotEmpty(t, blob.BlobID)
	assert.Equal(t, "hash-123", blob.SemanticHash)

	ok, err := r.HasBlob("private_memory", ContentHash([]byte("secret thoughts")))
	require.NoError(t, err)
	assert.True(t, ok)
}

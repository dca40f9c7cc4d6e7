package store

import (
	"encoding/binary"
	"math"
)

// encodeVector packs a []float32 into a little-endian byte blob for storage.
// Vector search runs brute-force cosine similarity over this column (see
// ChunkStore.SemanticCandidates and cosineSimilarity below) rather than a
// vec0 virtual table: the retrieval pack's own sqlite-vec usage
// (KittClouds-Go-Machine-n's internal/store/sqlite_store.go) never gets past
// a blank import either, so there is no grounded reference for actually
// driving that extension's vtab/SQL functions through ncruces/go-sqlite3.
// Collection sizes in this daemon's scope stay small enough that brute-force
// scoring is the honest choice instead of a dependency nothing in the pack
// demonstrates wiring.
func encodeVector(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func decodeVector(b []byte) []float32 {
	n := len(b) / 4
	v := make([]float32, n)
	for i := 0; i < n; i++ {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return v
}

// cosineSimilarity is grounded on the teacher stack's memorygraph
// maintenance pass (pairwise duplicate-detection via cosine similarity).
func cosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(b) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

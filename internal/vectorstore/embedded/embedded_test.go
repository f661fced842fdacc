package embedded

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docquery/internal/domain"
	"docquery/internal/model"
	"docquery/internal/vectorstore"
)

type fakeKeys struct {
	byDoc map[string][]uint64
}

func (f *fakeKeys) ListRecordKeys(_ context.Context, documentID string) ([]uint64, error) {
	return f.byDoc[documentID], nil
}

func newTestStore(t *testing.T) (*Store, *fakeKeys) {
	t.Helper()
	keys := &fakeKeys{byDoc: map[string][]uint64{}}
	store, err := Open(t.TempDir(), 4, keys)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store, keys
}

func seedDocument(t *testing.T, store *Store, keys *fakeKeys, docID string, docPK uint, vectors [][]float32) {
	t.Helper()
	recs := make([]vectorstore.Record, len(vectors))
	for i, v := range vectors {
		key := model.RecordKey(docPK, i)
		recs[i] = vectorstore.Record{
			Key:        key,
			DocumentID: docID,
			ChunkIndex: i,
			Vector:     v,
			Text:       "chunk text",
		}
		keys.byDoc[docID] = append(keys.byDoc[docID], key)
	}
	require.NoError(t, store.UpsertBatch(context.Background(), recs))
}

func TestQuery_OrderingAndMetadata(t *testing.T) {
	store, keys := newTestStore(t)
	seedDocument(t, store, keys, "doc-a", 1, [][]float32{
		{1, 0, 0, 0},
		{0, 1, 0, 0},
		{0, 0, 1, 0},
	})

	matches, err := store.Query(context.Background(), []float32{0, 0, 1, 0}, 3, "")
	require.NoError(t, err)
	require.Len(t, matches, 3)

	// Best match is the identical vector; scores never increase.
	assert.Equal(t, 2, matches[0].ChunkIndex)
	assert.Equal(t, "doc-a", matches[0].DocumentID)
	assert.Equal(t, "chunk text", matches[0].Text)
	for i := 1; i < len(matches); i++ {
		assert.GreaterOrEqual(t, matches[i-1].Score, matches[i].Score)
	}
}

func TestQuery_KLargerThanStore(t *testing.T) {
	store, keys := newTestStore(t)
	seedDocument(t, store, keys, "doc-a", 1, [][]float32{
		{1, 0, 0, 0},
		{0, 1, 0, 0},
	})

	matches, err := store.Query(context.Background(), []float32{1, 0, 0, 0}, 50, "")
	require.NoError(t, err)
	assert.Len(t, matches, 2)
}

func TestQuery_EmptyStore(t *testing.T) {
	store, _ := newTestStore(t)
	matches, err := store.Query(context.Background(), []float32{1, 0, 0, 0}, 3, "")
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestQuery_InvalidK(t *testing.T) {
	store, _ := newTestStore(t)
	_, err := store.Query(context.Background(), []float32{1, 0, 0, 0}, 0, "")
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrInvalidInput))
}

func TestQuery_DocumentFilter(t *testing.T) {
	store, keys := newTestStore(t)
	seedDocument(t, store, keys, "doc-a", 1, [][]float32{{1, 0, 0, 0}})
	seedDocument(t, store, keys, "doc-b", 2, [][]float32{{0.9, 0.1, 0, 0}})

	matches, err := store.Query(context.Background(), []float32{1, 0, 0, 0}, 5, "doc-b")
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "doc-b", matches[0].DocumentID)
}

func TestUpsert_ReplacesByKey(t *testing.T) {
	store, keys := newTestStore(t)
	seedDocument(t, store, keys, "doc-a", 1, [][]float32{{1, 0, 0, 0}})

	// Same key, new vector and text.
	err := store.Upsert(context.Background(), vectorstore.Record{
		Key:        model.RecordKey(1, 0),
		DocumentID: "doc-a",
		ChunkIndex: 0,
		Vector:     []float32{0, 1, 0, 0},
		Text:       "replaced",
	})
	require.NoError(t, err)

	matches, err := store.Query(context.Background(), []float32{0, 1, 0, 0}, 5, "")
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "replaced", matches[0].Text)
}

func TestDeleteByDocument(t *testing.T) {
	store, keys := newTestStore(t)
	seedDocument(t, store, keys, "doc-a", 1, [][]float32{{1, 0, 0, 0}, {0, 1, 0, 0}})
	seedDocument(t, store, keys, "doc-b", 2, [][]float32{{0, 0, 1, 0}})

	require.NoError(t, store.DeleteByDocument(context.Background(), "doc-a"))

	matches, err := store.Query(context.Background(), []float32{1, 0, 0, 0}, 10, "")
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "doc-b", matches[0].DocumentID)

	// Unknown document is a no-op, not an error.
	require.NoError(t, store.DeleteByDocument(context.Background(), "doc-missing"))
}

func TestDeleteKeys_RemovesUnresolvedRecords(t *testing.T) {
	store, _ := newTestStore(t)

	// Write records directly, with no resolver entry for them: the
	// situation after vector writes whose chunk rows never committed.
	// DeleteByDocument cannot see them; deletion by key must.
	recs := []vectorstore.Record{
		{Key: model.RecordKey(7, 0), DocumentID: "doc-orphan", ChunkIndex: 0, Vector: []float32{1, 0, 0, 0}, Text: "a"},
		{Key: model.RecordKey(7, 1), DocumentID: "doc-orphan", ChunkIndex: 1, Vector: []float32{0, 1, 0, 0}, Text: "b"},
	}
	require.NoError(t, store.UpsertBatch(context.Background(), recs))

	require.NoError(t, store.DeleteByDocument(context.Background(), "doc-orphan"))
	matches, err := store.Query(context.Background(), []float32{1, 0, 0, 0}, 10, "")
	require.NoError(t, err)
	require.Len(t, matches, 2)

	require.NoError(t, store.DeleteKeys(context.Background(), []uint64{
		model.RecordKey(7, 0),
		model.RecordKey(7, 1),
	}))
	matches, err = store.Query(context.Background(), []float32{1, 0, 0, 0}, 10, "")
	require.NoError(t, err)
	assert.Empty(t, matches)

	// Keys without records are skipped.
	require.NoError(t, store.DeleteKeys(context.Background(), []uint64{model.RecordKey(7, 5)}))
}

func TestReopen_KeepsRecords(t *testing.T) {
	dir := t.TempDir()
	keys := &fakeKeys{byDoc: map[string][]uint64{}}

	store, err := Open(dir, 4, keys)
	require.NoError(t, err)
	seedDocument(t, store, keys, "doc-a", 1, [][]float32{{1, 0, 0, 0}})
	require.NoError(t, store.Close())

	reopened, err := Open(dir, 4, keys)
	require.NoError(t, err)
	defer reopened.Close()

	matches, err := reopened.Query(context.Background(), []float32{1, 0, 0, 0}, 1, "")
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "doc-a", matches[0].DocumentID)
}

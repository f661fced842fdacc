package app

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"sort"
	"sync"

	"docquery/internal/cache"
	"docquery/internal/domain"
	"docquery/internal/model"
	"docquery/internal/vectorstore"
)

type fakeDocs struct {
	mu          sync.Mutex
	seq         uint
	rows        map[string]*model.Document
	completeErr error
}

func newFakeDocs() *fakeDocs {
	return &fakeDocs{rows: make(map[string]*model.Document)}
}

func (f *fakeDocs) Create(doc *model.Document) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	doc.ID = f.seq
	cp := *doc
	f.rows[doc.PublicID] = &cp
	return nil
}

func (f *fakeDocs) GetByPublicID(publicID string) (*model.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	doc, ok := f.rows[publicID]
	if !ok {
		return nil, domain.ErrDocumentNotFound
	}
	cp := *doc
	return &cp, nil
}

func (f *fakeDocs) List() ([]model.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.Document
	for _, doc := range f.rows {
		out = append(out, *doc)
	}
	return out, nil
}

func (f *fakeDocs) byID(id uint) *model.Document {
	for _, doc := range f.rows {
		if doc.ID == id {
			return doc
		}
	}
	return nil
}

func (f *fakeDocs) SetState(id uint, state domain.Stage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if doc := f.byID(id); doc != nil {
		doc.State = state
	}
	return nil
}

func (f *fakeDocs) SetComplete(id uint, chunkCount int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.completeErr != nil {
		return f.completeErr
	}
	if doc := f.byID(id); doc != nil {
		doc.State = domain.StageComplete
		doc.ChunkCount = chunkCount
		doc.FailStage = ""
		doc.FailReason = ""
	}
	return nil
}

func (f *fakeDocs) SetFailed(id uint, stage domain.Stage, reason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if doc := f.byID(id); doc != nil {
		doc.State = domain.StageFailed
		doc.FailStage = string(stage)
		doc.FailReason = reason
		doc.ChunkCount = 0
	}
	return nil
}

func (f *fakeDocs) DeleteByPublicID(publicID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.rows, publicID)
	return nil
}

type fakeChunks struct {
	mu         sync.Mutex
	rows       map[uint][]model.Chunk
	replaceErr error
}

func newFakeChunks() *fakeChunks {
	return &fakeChunks{rows: make(map[uint][]model.Chunk)}
}

func (f *fakeChunks) Replace(documentID uint, chunks []model.Chunk) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.replaceErr != nil {
		return f.replaceErr
	}
	f.rows[documentID] = append([]model.Chunk(nil), chunks...)
	return nil
}

// recordKeys resolves a document's record keys from its committed
// chunk rows, the same way the real store's key resolver does.
func (f *fakeChunks) recordKeys(publicID string) []uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	var keys []uint64
	for _, chunks := range f.rows {
		for _, c := range chunks {
			if c.PublicID == publicID {
				keys = append(keys, c.RecordKey)
			}
		}
	}
	return keys
}

func (f *fakeChunks) ListByPublicID(publicID string) ([]model.Chunk, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.Chunk
	for _, chunks := range f.rows {
		for _, c := range chunks {
			if c.PublicID == publicID {
				out = append(out, c)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ChunkIndex < out[j].ChunkIndex })
	return out, nil
}

func (f *fakeChunks) DeleteByDocumentID(documentID uint) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.rows, documentID)
	return nil
}

// fakeEventLog plays both publisher and event reader, standing in for
// the queue plus the persistence worker.
type fakeEventLog struct {
	mu     sync.Mutex
	events []model.IngestionEvent
}

func (f *fakeEventLog) Publish(_ context.Context, event model.IngestionEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, event)
	return nil
}

func (f *fakeEventLog) ListByDocumentID(documentID string) ([]model.IngestionEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.IngestionEvent
	for _, e := range f.events {
		if e.DocumentID == documentID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (f *fakeEventLog) stages(documentID string) []string {
	events, _ := f.ListByDocumentID(documentID)
	out := make([]string, len(events))
	for i, e := range events {
		out[i] = e.Stage
	}
	return out
}

// fakeStore keeps records by key. Like the embedded store, it deletes
// a document only through keys resolved from committed chunk rows, not
// by scanning its own records, so tests see the same failure-path
// behavior the real store has.
type fakeStore struct {
	mu        sync.Mutex
	recs      map[uint64]vectorstore.Record
	resolver  *fakeChunks
	upsertErr error
	failAfter int // fail upserts once this many records are stored; 0 means never
}

func newFakeStore() *fakeStore {
	return &fakeStore{recs: make(map[uint64]vectorstore.Record)}
}

func (f *fakeStore) Upsert(_ context.Context, rec vectorstore.Record) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.upsertErr != nil {
		return f.upsertErr
	}
	if f.failAfter > 0 && len(f.recs) >= f.failAfter {
		return fmt.Errorf("%w: forced upsert failure", domain.ErrStoreUnavailable)
	}
	f.recs[rec.Key] = rec
	return nil
}

func (f *fakeStore) UpsertBatch(ctx context.Context, recs []vectorstore.Record) error {
	for _, rec := range recs {
		if err := f.Upsert(ctx, rec); err != nil {
			return err
		}
	}
	return nil
}

func (f *fakeStore) Query(_ context.Context, vector []float32, k int, documentID string) ([]vectorstore.Match, error) {
	if k <= 0 {
		return nil, fmt.Errorf("%w: k must be positive", domain.ErrInvalidInput)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	var matches []vectorstore.Match
	for _, rec := range f.recs {
		if documentID != "" && rec.DocumentID != documentID {
			continue
		}
		matches = append(matches, vectorstore.Match{
			Key:        rec.Key,
			DocumentID: rec.DocumentID,
			ChunkIndex: rec.ChunkIndex,
			Text:       rec.Text,
			Score:      cosine(vector, rec.Vector),
		})
	}
	sort.Slice(matches, func(i, j int) bool { return matches[i].Score > matches[j].Score })
	if len(matches) > k {
		matches = matches[:k]
	}
	return matches, nil
}

func (f *fakeStore) DeleteByDocument(_ context.Context, documentID string) error {
	var keys []uint64
	if f.resolver != nil {
		keys = f.resolver.recordKeys(documentID)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, key := range keys {
		delete(f.recs, key)
	}
	return nil
}

func (f *fakeStore) DeleteKeys(_ context.Context, keys []uint64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, key := range keys {
		delete(f.recs, key)
	}
	return nil
}

func (f *fakeStore) Ping(context.Context) error { return nil }
func (f *fakeStore) Close() error               { return nil }

func (f *fakeStore) countFor(documentID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, rec := range f.recs {
		if rec.DocumentID == documentID {
			n++
		}
	}
	return n
}

func cosine(a, b []float32) float32 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(na) * math.Sqrt(nb)))
}

// fakeEmbedder returns a deterministic vector per text. Specific
// geometries can be pinned via the vecs map; everything else gets a
// hash-derived vector. failures makes the first n calls fail.
type fakeEmbedder struct {
	mu       sync.Mutex
	vecs     map[string][]float32
	failures int
	calls    int
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	out, err := f.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return out[0], nil
}

func (f *fakeEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.calls <= f.failures {
		return nil, fmt.Errorf("%w: forced failure", domain.ErrEmbeddingUnavailable)
	}
	out := make([][]float32, len(texts))
	for i, text := range texts {
		if v, ok := f.vecs[text]; ok {
			out[i] = v
			continue
		}
		h := fnv.New32a()
		h.Write([]byte(text))
		sum := h.Sum32()
		out[i] = []float32{
			float32(sum%97) + 1,
			float32(sum%89) + 1,
			float32(sum%83) + 1,
			float32(sum%79) + 1,
		}
	}
	return out, nil
}

type fakeGenerator struct {
	mu      sync.Mutex
	answer  string
	err     error
	systems []string
	users   []string
}

func (f *fakeGenerator) Complete(_ context.Context, system, user string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	f.systems = append(f.systems, system)
	f.users = append(f.users, user)
	return f.answer, nil
}

func (f *fakeGenerator) lastUserPrompt() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.users) == 0 {
		return ""
	}
	return f.users[len(f.users)-1]
}

func (f *fakeGenerator) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.users)
}

type fakeAnswers struct {
	mu      sync.Mutex
	entries map[string]cache.CachedAnswer
}

func newFakeAnswers() *fakeAnswers {
	return &fakeAnswers{entries: make(map[string]cache.CachedAnswer)}
}

func (f *fakeAnswers) Key(question string, k int, documentID string) string {
	return fmt.Sprintf("%d|%s|%s", k, documentID, question)
}

func (f *fakeAnswers) Get(_ context.Context, key string) (*cache.CachedAnswer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cached, ok := f.entries[key]
	if !ok {
		return nil, nil
	}
	return &cached, nil
}

func (f *fakeAnswers) Set(_ context.Context, key string, answer cache.CachedAnswer) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries[key] = answer
	return nil
}

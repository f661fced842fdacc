package app

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"docquery/internal/cache"
	"docquery/internal/config"
	"docquery/internal/domain"
	"docquery/internal/vectorstore"
)

// NoContextAnswer is returned verbatim when retrieval finds nothing to
// ground an answer on. No generation call is made in that case.
const NoContextAnswer = "I could not find any relevant information in the ingested documents to answer that question."

const systemPrompt = "You are a question answering assistant. Answer using only the provided context. " +
	"If the context does not contain the answer, say you do not know. Do not invent information."

// AskInput is one question. TopK overrides the configured result count
// when positive; DocumentID restricts retrieval to one document.
type AskInput struct {
	Question   string
	TopK       int
	DocumentID string
}

// Source identifies one retrieved chunk that grounded the answer.
type Source struct {
	DocumentID string  `json:"document_id"`
	ChunkIndex int     `json:"chunk_index"`
	Score      float32 `json:"score"`
}

// Answer is the generated reply plus the sources actually placed in
// the prompt, ordered by descending score.
type Answer struct {
	Answer  string   `json:"answer"`
	Sources []Source `json:"sources"`
	Cached  bool     `json:"cached"`
}

// AskService answers questions over the ingested documents: embed the
// question, retrieve the nearest chunks, and generate a grounded
// answer.
type AskService struct {
	store     vectorstore.Store
	embedder  EmbeddingGateway
	generator GenerationGateway
	answers   AnswerCache
	cfg       config.RAGConfig
}

func NewAskService(
	store vectorstore.Store,
	embedder EmbeddingGateway,
	generator GenerationGateway,
	answers AnswerCache,
	cfg config.RAGConfig,
) *AskService {
	return &AskService{
		store:     store,
		embedder:  embedder,
		generator: generator,
		answers:   answers,
		cfg:       cfg,
	}
}

func (s *AskService) Ask(ctx context.Context, in AskInput) (*Answer, error) {
	in.Question = strings.TrimSpace(in.Question)
	if in.Question == "" {
		return nil, fmt.Errorf("%w: question must not be empty", domain.ErrInvalidInput)
	}
	if in.TopK < 0 {
		return nil, fmt.Errorf("%w: top_k must not be negative, got %d", domain.ErrInvalidInput, in.TopK)
	}
	k := in.TopK
	if k == 0 {
		k = s.cfg.TopK
	}

	ctx, cancel := context.WithTimeout(ctx, time.Duration(s.cfg.RequestTimeoutSeconds)*time.Second)
	defer cancel()

	var cacheKey string
	if s.answers != nil {
		cacheKey = s.answers.Key(in.Question, k, in.DocumentID)
		cached, err := s.answers.Get(ctx, cacheKey)
		if err != nil {
			log.Printf("answer cache lookup failed: %v", err)
		} else if cached != nil {
			return fromCached(cached), nil
		}
	}

	var queryVec []float32
	err := withRetry(ctx, s.cfg.RetryAttempts, func(ctx context.Context) error {
		var err error
		queryVec, err = s.embedder.Embed(ctx, in.Question)
		return err
	})
	if err != nil {
		return nil, err
	}

	matches, err := s.store.Query(ctx, queryVec, k, in.DocumentID)
	if err != nil {
		return nil, err
	}
	if len(matches) == 0 {
		answer := &Answer{Answer: NoContextAnswer, Sources: []Source{}}
		s.cacheAnswer(ctx, cacheKey, answer)
		return answer, nil
	}

	used := fitBudget(matches, s.cfg.ContextCharBudget)

	var text string
	err = withRetry(ctx, s.cfg.RetryAttempts, func(ctx context.Context) error {
		var err error
		text, err = s.generator.Complete(ctx, systemPrompt, buildUserPrompt(in.Question, used))
		return err
	})
	if err != nil {
		return nil, err
	}

	answer := &Answer{Answer: text, Sources: make([]Source, len(used))}
	for i, m := range used {
		answer.Sources[i] = Source{DocumentID: m.DocumentID, ChunkIndex: m.ChunkIndex, Score: m.Score}
	}
	s.cacheAnswer(ctx, cacheKey, answer)
	return answer, nil
}

// fitBudget drops whole matches from the low-score end until the
// combined chunk text fits the character budget. The best match is
// always kept, even when it alone exceeds the budget.
func fitBudget(matches []vectorstore.Match, budget int) []vectorstore.Match {
	total := 0
	n := 0
	for _, m := range matches {
		size := len([]rune(m.Text))
		if n > 0 && total+size > budget {
			break
		}
		total += size
		n++
	}
	return matches[:n]
}

func buildUserPrompt(question string, used []vectorstore.Match) string {
	var b strings.Builder
	b.WriteString("Context:\n")
	for i, m := range used {
		fmt.Fprintf(&b, "\n[%d] %s\n", i+1, m.Text)
	}
	b.WriteString("\nQuestion: ")
	b.WriteString(question)
	return b.String()
}

func (s *AskService) cacheAnswer(ctx context.Context, key string, answer *Answer) {
	if s.answers == nil || key == "" {
		return
	}
	cached := cache.CachedAnswer{
		Answer:  answer.Answer,
		Sources: make([]cache.CachedSource, len(answer.Sources)),
	}
	for i, src := range answer.Sources {
		cached.Sources[i] = cache.CachedSource(src)
	}
	if err := s.answers.Set(context.WithoutCancel(ctx), key, cached); err != nil {
		log.Printf("answer cache store failed: %v", err)
	}
}

func fromCached(cached *cache.CachedAnswer) *Answer {
	answer := &Answer{Answer: cached.Answer, Sources: make([]Source, len(cached.Sources)), Cached: true}
	for i, src := range cached.Sources {
		answer.Sources[i] = Source(src)
	}
	return answer
}

package services

import (
	"context"
	"log"
	"time"

	"github.com/patrickmn/go-cache"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"golang.org/x/sync/errgroup"

	"cybersync/internal/config"
	"cybersync/internal/llm"
	"cybersync/internal/models"
	"cybersync/internal/store"
)

// RetrievedContext is everything the generator gets besides the prompt:
// grounding snippets that survived the score threshold, plus a window of
// recent conversation turns.
type RetrievedContext struct {
	Contexts []string
	History  []models.HistoryTurn
}

// RetrievalService assembles grounding context for a chat turn. The three
// lookups (knowledge memories, the user's earlier messages, recent history)
// run concurrently; any one of them failing or timing out degrades that
// source to empty instead of failing the turn.
type RetrievalService struct {
	memories     *store.MemoryStore
	messages     *store.MessageStore
	llm          *llm.Client
	embedCache   *EmbeddingCache
	historyCache *cache.Cache

	maxContext     int
	numCandidates  int
	scoreThreshold float64
	historyWindow  int
	taskTimeout    time.Duration
}

// NewRetrievalService wires the retrieval engine.
func NewRetrievalService(cfg *config.Config, memories *store.MemoryStore, messages *store.MessageStore, client *llm.Client, embedCache *EmbeddingCache) *RetrievalService {
	return &RetrievalService{
		memories:       memories,
		messages:       messages,
		llm:            client,
		embedCache:     embedCache,
		historyCache:   cache.New(30*time.Second, time.Minute),
		maxContext:     cfg.MaxContextSize,
		numCandidates:  cfg.NumCandidates,
		scoreThreshold: cfg.ScoreThreshold,
		historyWindow:  cfg.HistoryWindow,
		taskTimeout:    cfg.RetrievalTaskTimeout,
	}
}

// EmbedQuery returns the prompt embedding, consulting the Redis cache first.
// Returns nil when the encoder is down; retrieval then degrades to history
// only.
func (s *RetrievalService) EmbedQuery(ctx context.Context, text string) []float32 {
	if vec := s.embedCache.Get(ctx, text); vec != nil {
		return vec
	}

	vecs := s.llm.Embed(ctx, []string{text})
	if len(vecs) == 0 {
		return nil
	}
	s.embedCache.Set(ctx, text, vecs[0])
	return vecs[0]
}

// Retrieve gathers grounding context for the prompt. conversationID may be
// nil for the first turn of a new conversation.
func (s *RetrievalService) Retrieve(ctx context.Context, queryVector []float32, conversationID *primitive.ObjectID, senderID primitive.ObjectID) *RetrievedContext {
	var (
		memoryHits  []models.RetrievalResult
		messageHits []models.RetrievalResult
		history     []models.HistoryTurn
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(3)

	if len(queryVector) > 0 {
		g.Go(func() error {
			tctx, cancel := context.WithTimeout(gctx, s.taskTimeout)
			defer cancel()

			start := time.Now()
			hits, err := s.memories.VectorSearch(tctx, queryVector, s.numCandidates, s.maxContext)
			retrievalDuration.WithLabelValues("memory").Observe(time.Since(start).Seconds())
			if err != nil {
				retrievalFailures.WithLabelValues("memory").Inc()
				log.Printf("⚠️  [RETRIEVAL] Memory lookup failed: %v", err)
				return nil
			}
			memoryHits = hits
			return nil
		})

		if conversationID != nil {
			convID := *conversationID
			g.Go(func() error {
				tctx, cancel := context.WithTimeout(gctx, s.taskTimeout)
				defer cancel()

				start := time.Now()
				hits, err := s.messages.VectorSearch(tctx, queryVector, convID, senderID, s.numCandidates, s.maxContext)
				retrievalDuration.WithLabelValues("message").Observe(time.Since(start).Seconds())
				if err != nil {
					retrievalFailures.WithLabelValues("message").Inc()
					log.Printf("⚠️  [RETRIEVAL] Message lookup failed: %v", err)
					return nil
				}
				messageHits = hits
				return nil
			})
		}
	}

	if conversationID != nil {
		convID := *conversationID
		g.Go(func() error {
			tctx, cancel := context.WithTimeout(gctx, s.taskTimeout)
			defer cancel()

			start := time.Now()
			turns, err := s.loadHistory(tctx, convID)
			retrievalDuration.WithLabelValues("history").Observe(time.Since(start).Seconds())
			if err != nil {
				retrievalFailures.WithLabelValues("history").Inc()
				log.Printf("⚠️  [RETRIEVAL] History lookup failed: %v", err)
				return nil
			}
			history = turns
			return nil
		})
	}

	g.Wait() // tasks swallow their own errors

	contexts := FilterByThreshold(memoryHits, s.scoreThreshold)
	contexts = append(contexts, FilterByThreshold(messageHits, s.scoreThreshold)...)
	contextItemsUsed.Observe(float64(len(contexts)))

	return &RetrievedContext{Contexts: contexts, History: history}
}

// loadHistory returns the conversation window oldest first, served from a
// short-lived cache so a streaming retry does not hit Mongo twice.
func (s *RetrievalService) loadHistory(ctx context.Context, conversationID primitive.ObjectID) ([]models.HistoryTurn, error) {
	key := conversationID.Hex()
	if cached, ok := s.historyCache.Get(key); ok {
		return cached.([]models.HistoryTurn), nil
	}

	msgs, err := s.messages.History(ctx, conversationID, s.historyWindow)
	if err != nil {
		return nil, err
	}

	turns := make([]models.HistoryTurn, len(msgs))
	for i := range msgs {
		turns[i] = models.HistoryTurn{Role: msgs[i].Role(), Content: msgs[i].Text}
	}
	s.historyCache.Set(key, turns, cache.DefaultExpiration)
	return turns, nil
}

// InvalidateHistory drops the cached window after a turn is persisted.
func (s *RetrievalService) InvalidateHistory(conversationID primitive.ObjectID) {
	s.historyCache.Delete(conversationID.Hex())
}

// FilterByThreshold keeps the texts of candidates at or above the score
// cutoff, preserving the search engine's ranking order.
func FilterByThreshold(results []models.RetrievalResult, threshold float64) []string {
	var texts []string
	for _, r := range results {
		if r.Score >= threshold {
			texts = append(texts, r.Text)
		}
	}
	return texts
}

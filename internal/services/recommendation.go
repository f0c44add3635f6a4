package services

import (
	"context"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/henk-ai/fabric-backend/internal/logger"
	"github.com/henk-ai/fabric-backend/internal/repos"
	"github.com/henk-ai/fabric-backend/internal/types"
	"github.com/henk-ai/fabric-backend/internal/utils"
)

// FabricMatch is one ranked fabric with the score of its best-matching chunk.
type FabricMatch struct {
	Fabric    *types.Fabric `json:"fabric"`
	Score     float64       `json:"score"`
	BestChunk string        `json:"best_chunk"`
}

// RecommendationPrefs captures what the client asked for.
type RecommendationPrefs struct {
	Occasion           string   `json:"occasion"`
	Season             string   `json:"season"`
	StylePreferences   []string `json:"style_preferences"`
	ColorPreferences   []string `json:"color_preferences"`
	PatternPreferences []string `json:"pattern_preferences"`
	AdditionalNotes    string   `json:"additional_notes"`
}

type RecommendationConfig struct {
	TopK                int
	SimilarityThreshold float64
	RecommendThreshold  float64
}

func LoadRecommendationConfig(log *logger.Logger) RecommendationConfig {
	return RecommendationConfig{
		TopK:                utils.GetEnvAsInt("RAG_TOP_K_RESULTS", 5, log),
		SimilarityThreshold: utils.GetEnvAsFloat("RAG_SIMILARITY_THRESHOLD", 0.7, log),
		RecommendThreshold:  utils.GetEnvAsFloat("RAG_RECOMMEND_THRESHOLD", 0.6, log),
	}
}

// RecommendationService answers natural-language fabric queries against the
// embedded catalog and keeps an append-only audit of every answer.
type RecommendationService struct {
	client     OpenAIClient
	cache      *QueryEmbedCache
	fabrics    repos.FabricRepo
	embeddings repos.FabricEmbeddingRepo
	recs       repos.FabricRecommendationRepo
	cfg        RecommendationConfig
	log        *logger.Logger
}

func NewRecommendationService(
	client OpenAIClient,
	cache *QueryEmbedCache,
	fabrics repos.FabricRepo,
	embeddings repos.FabricEmbeddingRepo,
	recs repos.FabricRecommendationRepo,
	cfg RecommendationConfig,
	log *logger.Logger,
) *RecommendationService {
	return &RecommendationService{
		client:     client,
		cache:      cache,
		fabrics:    fabrics,
		embeddings: embeddings,
		recs:       recs,
		cfg:        cfg,
		log:        log.With("service", "RecommendationService"),
	}
}

// Search embeds the query, ranks catalog chunks by cosine similarity and
// returns fabrics deduplicated at their best chunk score. An audit row is
// written for every call, empty result sets included.
func (s *RecommendationService) Search(ctx context.Context, sessionID, query string, topK int, minSim float64) ([]FabricMatch, uuid.UUID, error) {
	if topK <= 0 {
		topK = s.cfg.TopK
	}
	if minSim <= 0 {
		minSim = s.cfg.SimilarityThreshold
	}
	model := s.client.EmbedModel()

	queryVec := s.cache.Get(ctx, model, query)
	if queryVec == nil {
		vecs, err := s.client.Embed(ctx, []string{query})
		if err != nil {
			return nil, uuid.Nil, err
		}
		queryVec = vecs[0]
		s.cache.Put(ctx, model, query, queryVec)
	}

	// Chunk-level hits are over-fetched so fabric-level dedupe can still
	// fill topK distinct fabrics.
	chunkHits, err := s.embeddings.SimilaritySearch(ctx, nil, queryVec, model, topK*len(types.ChunkTypes), minSim)
	if err != nil {
		return nil, uuid.Nil, err
	}

	matches, err := s.dedupeByFabric(ctx, chunkHits, topK)
	if err != nil {
		return nil, uuid.Nil, err
	}

	recID, err := s.audit(ctx, sessionID, query, queryVec, matches)
	if err != nil {
		return nil, uuid.Nil, err
	}
	return matches, recID, nil
}

// dedupeByFabric collapses chunk hits onto their owning fabrics, keeping each
// fabric's best score, and resolves the fabric rows.
func (s *RecommendationService) dedupeByFabric(ctx context.Context, hits []repos.SimilarityMatch, topK int) ([]FabricMatch, error) {
	type best struct {
		score     float64
		chunkType string
	}
	bestByFabric := map[uuid.UUID]best{}
	var order []uuid.UUID
	for _, hit := range hits {
		id := hit.Embedding.FabricID
		if prev, seen := bestByFabric[id]; !seen || hit.Score > prev.score {
			if !seen {
				order = append(order, id)
			}
			bestByFabric[id] = best{score: hit.Score, chunkType: hit.Embedding.ChunkType}
		}
	}
	if len(order) == 0 {
		return []FabricMatch{}, nil
	}

	fabrics, err := s.fabrics.GetByIDs(ctx, nil, order)
	if err != nil {
		return nil, err
	}
	fabricByID := map[uuid.UUID]*types.Fabric{}
	for _, f := range fabrics {
		fabricByID[f.ID] = f
	}

	matches := make([]FabricMatch, 0, len(order))
	for _, id := range order {
		fabric, ok := fabricByID[id]
		if !ok {
			// Embedding row outlived its fabric; skip rather than invent.
			continue
		}
		b := bestByFabric[id]
		matches = append(matches, FabricMatch{Fabric: fabric, Score: b.score, BestChunk: b.chunkType})
	}
	sort.SliceStable(matches, func(i, j int) bool { return matches[i].Score > matches[j].Score })
	if len(matches) > topK {
		matches = matches[:topK]
	}
	return matches, nil
}

func (s *RecommendationService) audit(ctx context.Context, sessionID, query string, queryVec []float32, matches []FabricMatch) (uuid.UUID, error) {
	rec := &types.FabricRecommendation{
		SessionID: sessionID,
		UserQuery: query,
	}
	if err := rec.SetQueryVector(queryVec); err != nil {
		return uuid.Nil, err
	}
	snapshot := make([]types.RecommendedFabric, 0, len(matches))
	for _, m := range matches {
		snapshot = append(snapshot, types.RecommendedFabric{
			FabricID:   m.Fabric.ID,
			FabricCode: m.Fabric.FabricCode,
			Score:      m.Score,
		})
	}
	if err := rec.SetRecommended(snapshot); err != nil {
		return uuid.Nil, err
	}
	if _, err := s.recs.Create(ctx, nil, rec); err != nil {
		return uuid.Nil, err
	}
	return rec.ID, nil
}

// BuildRecommendQuery composes the retrieval query for a preference set. The
// shape is fixed so identical preferences always retrieve identically.
func BuildRecommendQuery(prefs RecommendationPrefs) string {
	parts := []string{
		prefs.Occasion + " occasion",
		prefs.Season + " season",
	}
	if len(prefs.ColorPreferences) > 0 {
		parts = append(parts, strings.Join(prefs.ColorPreferences, ", ")+" color")
	}
	if len(prefs.PatternPreferences) > 0 {
		parts = append(parts, strings.Join(prefs.PatternPreferences, ", ")+" pattern")
	}
	if len(prefs.StylePreferences) > 0 {
		parts = append(parts, strings.Join(prefs.StylePreferences, ", ")+" style")
	}
	if prefs.AdditionalNotes != "" {
		parts = append(parts, prefs.AdditionalNotes)
	}
	return strings.Join(parts, " ")
}

// Recommend ranks fabrics for a preference set. The requested season is a
// hard gate: out-of-season fabrics are dropped no matter how well they score.
// Fabrics without season rows are treated as year-round.
func (s *RecommendationService) Recommend(ctx context.Context, sessionID string, prefs RecommendationPrefs, limit int) ([]FabricMatch, uuid.UUID, error) {
	if limit <= 0 {
		limit = s.cfg.TopK
	}
	query := BuildRecommendQuery(prefs)
	s.log.Info("Recommending fabrics", "query", query, "limit", limit)

	// Over-fetch before the season gate so the gate does not starve the
	// result set.
	matches, recID, err := s.Search(ctx, sessionID, query, limit*2, s.cfg.RecommendThreshold)
	if err != nil {
		return nil, uuid.Nil, err
	}

	if prefs.Season != "" {
		gated := matches[:0]
		for _, m := range matches {
			if m.Fabric.InSeason(prefs.Season) {
				gated = append(gated, m)
			}
		}
		matches = gated
	}
	if len(matches) > limit {
		matches = matches[:limit]
	}
	return matches, recID, nil
}

// AttachFeedback records a 1..5 rating (and optionally the fabric the client
// went with) against a prior recommendation.
func (s *RecommendationService) AttachFeedback(ctx context.Context, id uuid.UUID, score int, selectedFabricCode string) error {
	var selectedID *uuid.UUID
	if selectedFabricCode != "" {
		fabric, err := s.fabrics.GetByCode(ctx, nil, selectedFabricCode)
		if err != nil {
			return err
		}
		selectedID = &fabric.ID
	}
	return s.recs.AttachFeedback(ctx, nil, id, score, selectedID)
}

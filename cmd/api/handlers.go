package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"sync/atomic"

	"github.com/GridwatchAI/gridwatch-mvp/engine/chunk"
	"github.com/GridwatchAI/gridwatch-mvp/engine/domain"
	"github.com/GridwatchAI/gridwatch-mvp/engine/indexer"
	"github.com/GridwatchAI/gridwatch-mvp/engine/ingest"
	"github.com/GridwatchAI/gridwatch-mvp/engine/rank"
	"github.com/GridwatchAI/gridwatch-mvp/engine/retrieval"
	"github.com/GridwatchAI/gridwatch-mvp/pkg/metrics"
)

// interactionGraph is the slice of the relations store the API uses.
type interactionGraph interface {
	ingest.DocumentGraph
	RecordInteraction(ctx context.Context, userID, docID string) error
	RecentDocuments(ctx context.Context, userID string, limit int) ([]string, error)
	InteractionCounts(ctx context.Context, ids []string) (map[string]int, error)
}

type app struct {
	manager   *retrieval.ReloadManager
	graph     interactionGraph
	embedder  indexer.Embedder
	predictor *atomic.Pointer[rank.Predictor]
	chunker   *chunk.Chunker
	parser    ingest.Parser
	logger    *slog.Logger

	queries      *metrics.Counter
	queryErrors  *metrics.Counter
	queryLatency *metrics.Histogram
	ingested     *metrics.Counter
	reloads      *metrics.Counter
	indexSize    *metrics.Gauge
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}

// --- Health ---

type componentHealth struct {
	Status        string `json:"status"`
	DocumentCount int    `json:"document_count,omitempty"`
}

type healthResponse struct {
	Status     string                     `json:"status"`
	Components map[string]componentHealth `json:"components"`
}

func (a *app) handleHealth(w http.ResponseWriter, r *http.Request) {
	snap := a.manager.Current()
	vectorStore := componentHealth{Status: "ok"}
	if snap != nil {
		vectorStore.DocumentCount = snap.Count
	}
	reranker := componentHealth{Status: "not_loaded"}
	if pred := a.predictor.Load(); pred != nil && pred.Loaded() {
		reranker.Status = "ok"
	}
	writeJSON(w, http.StatusOK, healthResponse{
		Status: "ok",
		Components: map[string]componentHealth{
			"vector_store": vectorStore,
			"reranker":     reranker,
		},
	})
}

// --- Query ---

// QueryRequest is the JSON body for POST /api/query.
type QueryRequest struct {
	Query      string              `json:"query"`
	TopK       int                 `json:"top_k,omitempty"`
	RetrievalK int                 `json:"retrieval_k,omitempty"`
	Filters    domain.QueryFilters `json:"filters,omitzero"`
}

// QueryResponse is the JSON response for POST /api/query.
type QueryResponse struct {
	Query     string               `json:"query"`
	Results   []domain.ScoredChunk `json:"results"`
	Count     int                  `json:"count"`
	ElapsedMS float64              `json:"elapsed_ms"`
}

func (a *app) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req QueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Query == "" {
		writeError(w, http.StatusBadRequest, "query is required")
		return
	}

	opts := retrieval.DefaultRunOptions()
	if req.TopK > 0 {
		opts.TopK = req.TopK
	}
	if req.RetrievalK > 0 {
		opts.RetrievalK = req.RetrievalK
	}
	opts.Filters = req.Filters

	snap := a.manager.Current()
	results, elapsed, err := snap.Pipeline.Run(r.Context(), req.Query, opts)
	if err != nil {
		a.queryErrors.Inc()
		a.logger.Error("query pipeline failed", "err", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	a.queries.Inc()
	a.queryLatency.Observe(elapsed / 1000.0)

	if results == nil {
		results = []domain.ScoredChunk{}
	}
	writeJSON(w, http.StatusOK, QueryResponse{
		Query:     req.Query,
		Results:   results,
		Count:     len(results),
		ElapsedMS: elapsed,
	})
}

// --- Ingest ---

// IngestRequest is the JSON body for POST /api/ingest.
type IngestRequest struct {
	SourceType domain.SourceType `json:"source_type"`
	Document   json.RawMessage   `json:"document"`
}

// IngestResponse is the JSON response for POST /api/ingest.
type IngestResponse struct {
	Status      string `json:"status"`
	SourceID    string `json:"source_id"`
	ChunksAdded int    `json:"chunks_added"`
}

func (a *app) handleIngest(w http.ResponseWriter, r *http.Request) {
	var req IngestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	ctx := r.Context()
	var (
		sourceID string
		chunks   []domain.Chunk
		graphErr error
	)
	switch req.SourceType {
	case domain.SourceAdvisory:
		adv, err := a.parser.ParseAdvisory(req.Document)
		if err != nil {
			writeError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
		sourceID, chunks = adv.ID, a.chunker.ChunkAdvisory(adv)
		if a.graph != nil {
			graphErr = a.graph.SaveAdvisory(ctx, adv)
		}
	case domain.SourceThreatReport:
		rep, err := a.parser.ParseThreatReport(req.Document)
		if err != nil {
			writeError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
		sourceID, chunks = rep.ID, a.chunker.ChunkThreatReport(rep)
		if a.graph != nil {
			graphErr = a.graph.SaveThreatReport(ctx, rep)
		}
	case domain.SourceIncident:
		in, err := a.parser.ParseIncident(req.Document)
		if err != nil {
			writeError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
		sourceID, chunks = in.ID, a.chunker.ChunkIncident(in)
		if a.graph != nil {
			graphErr = a.graph.SaveIncident(ctx, in)
		}
	default:
		writeError(w, http.StatusBadRequest, "unknown source_type")
		return
	}
	if graphErr != nil {
		a.logger.Warn("graph save failed", "source_id", sourceID, "err", graphErr)
	}

	snap := a.manager.Current()
	ix := indexer.New(a.embedder, snap.Index, a.logger)
	added, err := ix.IndexChunks(ctx, chunks, ingest.DefaultEmbedBatchSize)
	if err != nil {
		a.logger.Error("ingest indexing failed", "source_id", sourceID, "err", err)
		writeError(w, http.StatusInternalServerError, "indexing failed")
		return
	}
	a.ingested.Add(int64(added))
	a.indexSize.Add(int64(added))

	writeJSON(w, http.StatusOK, IngestResponse{
		Status:      "ok",
		SourceID:    sourceID,
		ChunksAdded: added,
	})
}

// --- Reload ---

// ReloadResponse is the JSON response for POST /api/reload.
type ReloadResponse struct {
	Status        string `json:"status"`
	PreviousCount int    `json:"previous_count"`
	CurrentCount  int    `json:"current_count"`
}

func (a *app) handleReload(w http.ResponseWriter, r *http.Request) {
	prev, curr, err := a.manager.Reload(r.Context())
	if err != nil {
		a.logger.Error("reload failed", "err", err)
		writeError(w, http.StatusInternalServerError, "reload failed")
		return
	}
	a.reloads.Inc()
	a.indexSize.Set(int64(curr))
	writeJSON(w, http.StatusOK, ReloadResponse{
		Status:        "reloaded",
		PreviousCount: prev,
		CurrentCount:  curr,
	})
}

// --- Recommend ---

// Recommendation is one ranked document for a user.
type Recommendation struct {
	SourceID         string  `json:"source_id"`
	Score            float64 `json:"score"`
	InteractionCount int     `json:"interaction_count"`
}

// RecommendResponse is the JSON response for GET /api/recommend/{user_id}.
type RecommendResponse struct {
	UserID          string           `json:"user_id"`
	Recommendations []Recommendation `json:"recommendations"`
}

func (a *app) handleRecommend(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("user_id")
	maxResults := 5
	if v := r.URL.Query().Get("max_results"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			maxResults = n
		}
	}

	pred := a.predictor.Load()
	if pred == nil || !pred.Loaded() {
		writeError(w, http.StatusServiceUnavailable, "ranking model not loaded")
		return
	}

	ctx := r.Context()
	snap := a.manager.Current()
	candidates := candidatesFromIndex(snap)
	if len(candidates) == 0 {
		writeJSON(w, http.StatusOK, RecommendResponse{UserID: userID, Recommendations: []Recommendation{}})
		return
	}

	counts, err := a.graph.InteractionCounts(ctx, nil)
	if err != nil {
		a.logger.Error("interaction counts failed", "err", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	for i := range candidates {
		candidates[i].InteractionCount = counts[candidates[i].SourceID]
	}

	recent, err := a.graph.RecentDocuments(ctx, userID, 5)
	if err != nil {
		a.logger.Error("recent documents failed", "err", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	queryVec := interestVector(candidates, recent)

	// Documents the user already touched are not re-recommended.
	seen := make(map[string]bool, len(recent))
	for _, id := range recent {
		seen[id] = true
	}
	pool := candidates[:0:0]
	for _, c := range candidates {
		if !seen[c.SourceID] {
			pool = append(pool, c)
		}
	}

	ranked, scores, err := pred.RankCandidates(queryVec, pool, maxResults)
	if err != nil {
		a.logger.Error("recommendation ranking failed", "err", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	recs := make([]Recommendation, len(ranked))
	for i, c := range ranked {
		recs[i] = Recommendation{
			SourceID:         c.SourceID,
			Score:            scores[i],
			InteractionCount: c.InteractionCount,
		}
	}
	writeJSON(w, http.StatusOK, RecommendResponse{UserID: userID, Recommendations: recs})
}

// candidatesFromIndex collapses the serving index to one candidate per
// source document, using the first chunk's embedding and metadata.
func candidatesFromIndex(snap *retrieval.Snapshot) []domain.Candidate {
	if snap == nil {
		return nil
	}
	var candidates []domain.Candidate
	seen := make(map[string]bool)
	for _, c := range snap.Index.Chunks() {
		if seen[c.SourceID] || c.Embedding == nil {
			continue
		}
		seen[c.SourceID] = true
		candidates = append(candidates, domain.Candidate{
			SourceID:   c.SourceID,
			Embedding:  c.Embedding,
			Published:  c.Metadata.Published,
			Protocols:  c.Metadata.Protocols,
			AssetTypes: c.Metadata.AssetTypes,
		})
	}
	return candidates
}

// interestVector is the mean embedding of the user's recently touched
// documents, or of the whole corpus for a cold-start user.
func interestVector(candidates []domain.Candidate, recent []string) []float32 {
	byID := make(map[string][]float32, len(candidates))
	for _, c := range candidates {
		byID[c.SourceID] = c.Embedding
	}
	var vecs [][]float32
	for _, id := range recent {
		if v, ok := byID[id]; ok {
			vecs = append(vecs, v)
		}
	}
	if len(vecs) == 0 {
		for _, c := range candidates {
			vecs = append(vecs, c.Embedding)
		}
	}
	if len(vecs) == 0 {
		return nil
	}
	mean := make([]float32, len(vecs[0]))
	for _, v := range vecs {
		for i := range mean {
			mean[i] += v[i]
		}
	}
	for i := range mean {
		mean[i] /= float32(len(vecs))
	}
	return mean
}

// --- Interactions ---

// InteractionRequest is the JSON body for POST /api/interactions.
type InteractionRequest struct {
	UserID     string `json:"user_id"`
	DocumentID string `json:"document_id"`
}

func (a *app) handleInteraction(w http.ResponseWriter, r *http.Request) {
	var req InteractionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.UserID == "" || req.DocumentID == "" {
		writeError(w, http.StatusBadRequest, "user_id and document_id are required")
		return
	}
	if err := a.graph.RecordInteraction(r.Context(), req.UserID, req.DocumentID); err != nil {
		a.logger.Error("record interaction failed", "err", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

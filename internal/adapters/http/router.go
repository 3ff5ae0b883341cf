package httpadapter

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/regulens/regulens/internal/core/domain"
	"github.com/regulens/regulens/internal/core/ports"
)

type RouterConfig struct {
	RateLimitRPS   float64
	RateLimitBurst int
	MaxInFlight    int
	ShedWait       time.Duration
}

type Router struct {
	indexer  ports.SourceIndexer
	searcher ports.SearchService
	analyzer ports.AnalysisService
	reviewer ports.ReviewService
	metrics  http.Handler
	cfg      RouterConfig
}

func NewRouter(
	indexer ports.SourceIndexer,
	searcher ports.SearchService,
	analyzer ports.AnalysisService,
	reviewer ports.ReviewService,
	metricsHandler http.Handler,
	cfg RouterConfig,
) *Router {
	if cfg.ShedWait <= 0 {
		cfg.ShedWait = 50 * time.Millisecond
	}
	return &Router{
		indexer:  indexer,
		searcher: searcher,
		analyzer: analyzer,
		reviewer: reviewer,
		metrics:  metricsHandler,
		cfg:      cfg,
	}
}

func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", rt.healthz)
	mux.HandleFunc("/v1/sources", rt.indexSource)
	mux.HandleFunc("/v1/search", rt.search)
	mux.HandleFunc("/v1/analyses", rt.createAnalysis)
	mux.HandleFunc("/v1/analyses/", rt.getAnalysisByID)
	mux.HandleFunc("/v1/reviews/claim", rt.claimReview)
	mux.HandleFunc("/v1/reviews/", rt.reviewAction)
	if rt.metrics != nil {
		mux.Handle("/metrics", rt.metrics)
	}

	var handler http.Handler = mux
	handler = backpressureMiddleware(handler, rt.cfg.MaxInFlight, rt.cfg.ShedWait)
	handler = rateLimitMiddleware(handler, rt.cfg.RateLimitRPS, rt.cfg.RateLimitBurst)
	handler = accessLogMiddleware(handler)
	handler = requestIDMiddleware(handler)
	return handler
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (rt *Router) indexSource(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	var doc domain.SourceDocument
	if err := json.NewDecoder(r.Body).Decode(&doc); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}

	summary, err := rt.indexer.IndexSource(r.Context(), doc)
	if err != nil {
		writeJSON(w, mapErrorToHTTPStatus(err), map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (rt *Router) search(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	var req struct {
		Query      string `json:"query"`
		Collection string `json:"collection"`
		SourceID   string `json:"source_id"`
		TopK       int    `json:"top_k"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}

	ranked, err := rt.searcher.Search(r.Context(), domain.Query{
		Text:       req.Query,
		Collection: req.Collection,
		SourceID:   req.SourceID,
		TopK:       req.TopK,
	})
	if err != nil {
		writeJSON(w, mapErrorToHTTPStatus(err), map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, ranked)
}

func (rt *Router) createAnalysis(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	var req struct {
		Collection string `json:"collection"`
		SourceID   string `json:"source_id"`
		Question   string `json:"question"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}

	record, err := rt.analyzer.Analyze(r.Context(), req.Collection, req.SourceID, req.Question)
	if err != nil {
		writeJSON(w, mapErrorToHTTPStatus(err), map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusCreated, record)
}

func (rt *Router) getAnalysisByID(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	id := strings.TrimPrefix(r.URL.Path, "/v1/analyses/")
	if id == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "analysis id is required"})
		return
	}

	record, err := rt.analyzer.GetByID(r.Context(), id)
	if err != nil {
		writeJSON(w, mapErrorToHTTPStatus(err), map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, record)
}

func (rt *Router) claimReview(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	var req struct {
		ReviewerID string `json:"reviewer_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}

	task, err := rt.reviewer.Claim(r.Context(), req.ReviewerID)
	if err != nil {
		writeJSON(w, mapErrorToHTTPStatus(err), map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, task)
}

// reviewAction dispatches /v1/reviews/{task_id}/start and
// /v1/reviews/{task_id}/complete.
func (rt *Router) reviewAction(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	rest := strings.TrimPrefix(r.URL.Path, "/v1/reviews/")
	taskID, action, found := strings.Cut(rest, "/")
	if !found || taskID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "task id and action are required"})
		return
	}

	switch action {
	case "start":
		var req struct {
			ReviewerID string `json:"reviewer_id"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
			return
		}
		if err := rt.reviewer.Start(r.Context(), taskID, req.ReviewerID); err != nil {
			writeJSON(w, mapErrorToHTTPStatus(err), map[string]string{"error": err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "in_review"})
	case "complete":
		var req struct {
			Decision string `json:"decision"`
			Notes    string `json:"notes"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
			return
		}
		if err := rt.reviewer.Complete(r.Context(), taskID, req.Decision, req.Notes); err != nil {
			writeJSON(w, mapErrorToHTTPStatus(err), map[string]string{"error": err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "completed"})
	default:
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "unknown review action"})
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

package httpadapter

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/careloop/discharge-assistant/internal/core/domain"
	"github.com/careloop/discharge-assistant/internal/core/ports"
	"github.com/careloop/discharge-assistant/internal/observability/metrics"
)

// Options tunes the outer HTTP surface. Zero values disable the
// optional layers (auth, rate limiting, backpressure).
type Options struct {
	Service        string
	APIKey         string
	MaxUploadBytes int64
	RateLimitRPS   float64
	RateLimitBurst int
	MaxInFlight    int
	QueueWait      time.Duration
}

type Router struct {
	ingest    ports.DocumentIngestor
	retriever ports.KnowledgeRetriever
	docs      ports.DocumentReader
	metrics   *metrics.HTTPServerMetrics
	opts      Options
}

func NewRouter(
	ingest ports.DocumentIngestor,
	retriever ports.KnowledgeRetriever,
	docs ports.DocumentReader,
	m *metrics.HTTPServerMetrics,
	opts Options,
) *Router {
	if opts.Service == "" {
		opts.Service = "api"
	}
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = 32 << 20
	}
	if opts.QueueWait <= 0 {
		opts.QueueWait = 100 * time.Millisecond
	}
	return &Router{
		ingest:    ingest,
		retriever: retriever,
		docs:      docs,
		metrics:   m,
		opts:      opts,
	}
}

func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", rt.healthz)
	mux.HandleFunc("/v1/documents", rt.uploadDocument)
	mux.HandleFunc("/v1/documents/", rt.getDocumentByID)
	mux.HandleFunc("/v1/kb/query", rt.queryKnowledgeBase)
	mux.HandleFunc("/v1/kb/coverage", rt.coverageCheck)
	mux.HandleFunc("/v1/kb/context", rt.contextForQuery)
	if rt.metrics != nil {
		mux.Handle("/metrics", rt.metrics.Handler())
	}

	var handler http.Handler = mux
	if rt.metrics != nil {
		handler = rt.metrics.Middleware(rt.opts.Service, handler)
	}
	handler = bearerAuthMiddleware(handler, rt.opts.APIKey)
	if rt.opts.MaxInFlight > 0 {
		handler = backpressureMiddleware(handler, rt.opts.MaxInFlight, rt.opts.QueueWait)
	}
	if rt.opts.RateLimitRPS > 0 {
		handler = rateLimitMiddleware(handler, rt.opts.RateLimitRPS, rt.opts.RateLimitBurst)
	}
	handler = accessLogMiddleware(handler)
	return requestIDMiddleware(handler)
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (rt *Router) uploadDocument(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, rt.opts.MaxUploadBytes)
	file, fileHeader, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "multipart field 'file' is required"})
		return
	}
	defer file.Close()

	doc, err := rt.ingest.Upload(
		r.Context(),
		fileHeader.Filename,
		fileHeader.Header.Get("Content-Type"),
		file,
	)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusAccepted, doc)
}

func (rt *Router) getDocumentByID(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	id := strings.TrimPrefix(r.URL.Path, "/v1/documents/")
	if id == "" || strings.Contains(id, "/") {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "document id is required"})
		return
	}

	doc, err := rt.docs.GetByID(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

type queryRequest struct {
	Query     string  `json:"query"`
	K         int     `json:"k"`
	Method    string  `json:"method"`
	Threshold float64 `json:"threshold"`
}

type queryResponse struct {
	Query   string                   `json:"query"`
	Method  domain.RetrievalMethod   `json:"method"`
	Count   int                      `json:"count"`
	Results []domain.RetrievalResult `json:"results"`
}

func (rt *Router) queryKnowledgeBase(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "query is required"})
		return
	}
	method, err := domain.ParseRetrievalMethod(req.Method)
	if err != nil {
		writeError(w, err)
		return
	}

	start := time.Now()
	results, err := rt.retriever.Retrieve(r.Context(), req.Query, req.K, method, req.Threshold)
	rt.recordQuery(string(method), results, err, time.Since(start))
	if err != nil {
		writeError(w, err)
		return
	}
	if results == nil {
		results = []domain.RetrievalResult{}
	}

	writeJSON(w, http.StatusOK, queryResponse{
		Query:   req.Query,
		Method:  method,
		Count:   len(results),
		Results: results,
	})
}

func (rt *Router) coverageCheck(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	query := strings.TrimSpace(r.URL.Query().Get("q"))
	if query == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "query parameter 'q' is required"})
		return
	}

	covered, err := rt.retriever.HasRelevantInformation(r.Context(), query)
	if err != nil {
		writeError(w, err)
		return
	}
	if rt.metrics != nil {
		rt.metrics.RecordGateDecision(rt.opts.Service, covered)
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"query":   query,
		"covered": covered,
	})
}

type contextRequest struct {
	Query string `json:"query"`
	K     int    `json:"k"`
}

func (rt *Router) contextForQuery(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	var req contextRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "query is required"})
		return
	}

	text, err := rt.retriever.ContextForQuery(r.Context(), req.Query, req.K)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"query":   req.Query,
		"context": text,
	})
}

func (rt *Router) recordQuery(method string, results []domain.RetrievalResult, err error, duration time.Duration) {
	if rt.metrics == nil {
		return
	}
	outcome := "ok"
	switch {
	case err != nil:
		outcome = "error"
	case len(results) == 0:
		outcome = "empty"
	}
	rt.metrics.RecordQuery(rt.opts.Service, method, outcome, len(results), duration)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, err error) {
	status := mapErrorToHTTPStatus(err)
	if status == http.StatusServiceUnavailable {
		w.Header().Set("Retry-After", "1")
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

package httpadapter

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/careloop/discharge-assistant/internal/core/domain"
)

type retrieverFake struct {
	results []domain.RetrievalResult
	covered bool
	context string
	err     error
}

func (f retrieverFake) Retrieve(_ context.Context, _ string, k int, method domain.RetrievalMethod, threshold float64) ([]domain.RetrievalResult, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make([]domain.RetrievalResult, 0, len(f.results))
	for _, r := range f.results {
		if r.Score >= threshold {
			out = append(out, r)
		}
	}
	if k > 0 && len(out) > k {
		out = out[:k]
	}
	_ = method
	return out, nil
}

func (f retrieverFake) HasRelevantInformation(context.Context, string) (bool, error) {
	return f.covered, f.err
}

func (f retrieverFake) ContextForQuery(context.Context, string, int) (string, error) {
	return f.context, f.err
}

type docsFake struct {
	err error
}

func (f docsFake) GetByID(context.Context, string) (*domain.Document, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &domain.Document{ID: "doc-1", Filename: "plan.txt", Status: domain.StatusReady}, nil
}

type ingestNoopFake struct{}

func (ingestNoopFake) Upload(context.Context, string, string, io.Reader) (*domain.Document, error) {
	return &domain.Document{ID: "doc-1"}, nil
}

func newKBHandler(retriever retrieverFake) http.Handler {
	return NewRouter(ingestNoopFake{}, retriever, docsFake{}, nil, Options{}).Handler()
}

func postJSONRequest(t *testing.T, handler http.Handler, path string, payload any) *httptest.ResponseRecorder {
	t.Helper()
	raw, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	return res
}

func TestQueryKnowledgeBaseReturnsResults(t *testing.T) {
	handler := newKBHandler(retrieverFake{results: []domain.RetrievalResult{
		{
			Passage: domain.Passage{ID: "plan.txt#0000", Text: "take warfarin at 6pm", Source: "plan.txt", Page: 1},
			Score:   0.82,
			Method:  domain.MethodHybrid,
		},
	}})

	res := postJSONRequest(t, handler, "/v1/kb/query", map[string]any{
		"query": "when do I take warfarin",
		"k":     5,
	})
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", res.Code, res.Body.String())
	}

	var resp struct {
		Query   string                   `json:"query"`
		Method  string                   `json:"method"`
		Count   int                      `json:"count"`
		Results []domain.RetrievalResult `json:"results"`
	}
	if err := json.NewDecoder(res.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Method != "hybrid" {
		t.Fatalf("empty method must default to hybrid, got %q", resp.Method)
	}
	if resp.Count != 1 || len(resp.Results) != 1 {
		t.Fatalf("unexpected result shape: %+v", resp)
	}
	if resp.Results[0].Passage.ID != "plan.txt#0000" {
		t.Fatalf("unexpected passage: %+v", resp.Results[0])
	}
}

func TestQueryKnowledgeBaseEmptyIsOKWithEmptyArray(t *testing.T) {
	handler := newKBHandler(retrieverFake{})

	res := postJSONRequest(t, handler, "/v1/kb/query", map[string]any{"query": "anything"})
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200 for zero matches, got %d", res.Code)
	}
	if !bytes.Contains(res.Body.Bytes(), []byte(`"results":[]`)) {
		t.Fatalf("expected empty array, got %s", res.Body.String())
	}
}

func TestQueryKnowledgeBaseValidation(t *testing.T) {
	handler := newKBHandler(retrieverFake{})

	res := postJSONRequest(t, handler, "/v1/kb/query", map[string]any{"query": "  "})
	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for blank query, got %d", res.Code)
	}

	res = postJSONRequest(t, handler, "/v1/kb/query", map[string]any{"query": "x", "method": "quantum"})
	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown method, got %d", res.Code)
	}

	req := httptest.NewRequest(http.MethodPost, "/v1/kb/query", bytes.NewBufferString("{not json"))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for invalid json, got %d", rec.Code)
	}
}

func TestCoverageEndpoint(t *testing.T) {
	handler := newKBHandler(retrieverFake{covered: true})

	req := httptest.NewRequest(http.MethodGet, "/v1/kb/coverage?q=warfarin+timing", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	var resp map[string]any
	if err := json.NewDecoder(res.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp["covered"] != true {
		t.Fatalf("unexpected response: %+v", resp)
	}

	req = httptest.NewRequest(http.MethodGet, "/v1/kb/coverage", nil)
	res = httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing q, got %d", res.Code)
	}
}

func TestContextEndpoint(t *testing.T) {
	handler := newKBHandler(retrieverFake{context: "[Source 1 - Page 3, Relevance: 0.84, Method: hybrid]\ntext"})

	res := postJSONRequest(t, handler, "/v1/kb/context", map[string]any{"query": "warfarin", "k": 3})
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	var resp map[string]string
	if err := json.NewDecoder(res.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp["context"] == "" {
		t.Fatalf("expected rendered context, got %+v", resp)
	}
}

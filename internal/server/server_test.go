package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/marianbasti/news-aggregator/internal/database"
	"github.com/marianbasti/news-aggregator/internal/llm"
	"github.com/marianbasti/news-aggregator/internal/schema"
)

type mockProvider struct {
	response string
	err      error
}

func (m *mockProvider) Complete(_ context.Context, _ string, _ int) (string, error) {
	if m.err != nil {
		return "", m.err
	}
	return m.response, nil
}

func (m *mockProvider) IsConfigured() bool { return true }

func newTestServer(t *testing.T, provider llm.Provider) (*Server, *database.DB) {
	t.Helper()
	db, err := database.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	srv, err := New(db, provider, 24*time.Hour, time.Minute)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	return srv, db
}

func ptr(s string) *string { return &s }

func seedArticle(t *testing.T, db *database.DB, url, title, source, publishedAt string) int64 {
	t.Helper()
	id, err := db.UpsertArticle(url, title, ptr(source), ptr("A summary."), nil, ptr(publishedAt), "feed")
	if err != nil {
		t.Fatalf("UpsertArticle() error: %v", err)
	}
	return id
}

func testTriage(escalate bool) *schema.TriageResult {
	r := &schema.TriageResult{
		Category:       "Politics",
		Sentiment:      "Factual",
		KeyClaims:      []string{"A new bill was introduced"},
		Entities:       []schema.Entity{{Name: "Jane Doe", Type: schema.EntityPerson}},
		Keywords:       []string{"election", "parliament"},
		NarrativeFocus: "Facts/Events",
		SourceStyle:    "Standard",
		Escalate:       escalate,
	}
	if escalate {
		r.Rationale = "Strong framing detected"
	}
	return r
}

const validDeepJSON = `{
	"political_leaning": "Centrist",
	"confidence": "High",
	"quality_score": 4,
	"information_quality": {
		"verifiable_claims": 6,
		"cites_sources": true,
		"evidence_types": ["official statements"],
		"context_completeness": "adequate"
	},
	"source_approach": {
		"reporting_style": "investigative",
		"perspective_diversity": "multiple viewpoints",
		"audience_targeting": "general public"
	},
	"framing_techniques": [{"technique": "selective emphasis", "evidence": "headline wording"}],
	"unique_perspectives": ["local impact angle"],
	"suspected_omissions": ["funding sources"]
}`

const validComparativeJSON = `{
	"sources": ["Outlet A", "Outlet B"],
	"core_facts": ["A bill was introduced on Monday"],
	"source_differences": {"Outlet A": "leads with costs", "Outlet B": "leads with benefits"},
	"information_gaps": ["no vote count reported"],
	"framing_comparison": "Outlet A frames the bill as a burden, Outlet B as an opportunity.",
	"source_interests": []
}`

func get(t *testing.T, srv *Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)
	return w
}

func post(t *testing.T, srv *Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, nil)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)
	return w
}

func TestIndexPage(t *testing.T) {
	srv, db := newTestServer(t, &mockProvider{})
	seedArticle(t, db, "https://example.com/a", "Parliament debates new bill", "Outlet A", "2026-03-01T10:00:00Z")

	w := get(t, srv, "/")
	if w.Code != http.StatusOK {
		t.Fatalf("GET / status = %d, want %d", w.Code, http.StatusOK)
	}
	if !strings.Contains(w.Body.String(), "Parliament debates new bill") {
		t.Error("index page missing article title")
	}
}

func TestArticlePage(t *testing.T) {
	srv, db := newTestServer(t, &mockProvider{})
	id := seedArticle(t, db, "https://example.com/a", "Bill passes", "Outlet A", "2026-03-01T10:00:00Z")
	if err := db.SaveTriage(id, testTriage(false)); err != nil {
		t.Fatalf("SaveTriage() error: %v", err)
	}

	w := get(t, srv, "/articles/1")
	if w.Code != http.StatusOK {
		t.Fatalf("GET /articles/1 status = %d, want %d", w.Code, http.StatusOK)
	}
	if !strings.Contains(w.Body.String(), "Politics") {
		t.Error("article page missing triage category")
	}
}

func TestArticlePageNotFound(t *testing.T) {
	srv, _ := newTestServer(t, &mockProvider{})

	w := get(t, srv, "/articles/99")
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", w.Code, http.StatusNotFound)
	}
}

func TestListArticlesAPI(t *testing.T) {
	srv, db := newTestServer(t, &mockProvider{})
	seedArticle(t, db, "https://example.com/a", "First", "Outlet A", "2026-03-01T10:00:00Z")
	id := seedArticle(t, db, "https://example.com/b", "Second", "Outlet B", "2026-03-01T11:00:00Z")
	if err := db.SaveTriage(id, testTriage(false)); err != nil {
		t.Fatalf("SaveTriage() error: %v", err)
	}

	w := get(t, srv, "/api/articles?status=pending")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	var resp struct {
		Count    int `json:"count"`
		Articles []struct {
			Title string `json:"title"`
		} `json:"articles"`
	}
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if resp.Count != 1 {
		t.Fatalf("count = %d, want 1", resp.Count)
	}
	if resp.Articles[0].Title != "First" {
		t.Errorf("title = %q, want %q", resp.Articles[0].Title, "First")
	}
}

func TestDeepAnalysisEndpoint(t *testing.T) {
	srv, db := newTestServer(t, &mockProvider{response: validDeepJSON})
	id := seedArticle(t, db, "https://example.com/a", "Bill passes", "Outlet A", "2026-03-01T10:00:00Z")
	if err := db.SaveTriage(id, testTriage(true)); err != nil {
		t.Fatalf("SaveTriage() error: %v", err)
	}

	w := post(t, srv, "/api/articles/1/deep-analysis")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d, body: %s", w.Code, http.StatusOK, w.Body.String())
	}
	var result schema.DeepAnalysisResult
	if err := json.NewDecoder(w.Body).Decode(&result); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if result.Leaning != "Centrist" {
		t.Errorf("leaning = %q, want Centrist", result.Leaning)
	}
}

func TestDeepAnalysisNotFound(t *testing.T) {
	srv, _ := newTestServer(t, &mockProvider{response: validDeepJSON})

	w := post(t, srv, "/api/articles/42/deep-analysis")
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", w.Code, http.StatusNotFound)
	}
}

func TestDeepAnalysisNotEligible(t *testing.T) {
	srv, db := newTestServer(t, &mockProvider{response: validDeepJSON})
	seedArticle(t, db, "https://example.com/a", "Untriaged", "Outlet A", "2026-03-01T10:00:00Z")

	w := post(t, srv, "/api/articles/1/deep-analysis")
	if w.Code != http.StatusPreconditionFailed {
		t.Errorf("status = %d, want %d", w.Code, http.StatusPreconditionFailed)
	}
}

func TestDeepAnalysisProviderFailure(t *testing.T) {
	srv, db := newTestServer(t, &mockProvider{err: &llm.APIError{Provider: "ollama", Status: 500}})
	id := seedArticle(t, db, "https://example.com/a", "Bill passes", "Outlet A", "2026-03-01T10:00:00Z")
	if err := db.SaveTriage(id, testTriage(true)); err != nil {
		t.Fatalf("SaveTriage() error: %v", err)
	}

	w := post(t, srv, "/api/articles/1/deep-analysis")
	if w.Code != http.StatusBadGateway {
		t.Errorf("status = %d, want %d", w.Code, http.StatusBadGateway)
	}
}

func TestRelatedEndpoint(t *testing.T) {
	srv, db := newTestServer(t, &mockProvider{})
	anchor := seedArticle(t, db, "https://example.com/a", "Bill passes", "Outlet A", "2026-03-01T10:00:00Z")
	other := seedArticle(t, db, "https://example.com/b", "Parliament approves bill", "Outlet B", "2026-03-01T12:00:00Z")
	if err := db.SaveTriage(anchor, testTriage(false)); err != nil {
		t.Fatalf("SaveTriage() error: %v", err)
	}
	if err := db.SaveTriage(other, testTriage(false)); err != nil {
		t.Fatalf("SaveTriage() error: %v", err)
	}

	w := get(t, srv, "/api/articles/1/related")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d, body: %s", w.Code, http.StatusOK, w.Body.String())
	}
	var resp struct {
		RelatedIDs []int64 `json:"related_ids"`
	}
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if len(resp.RelatedIDs) != 1 || resp.RelatedIDs[0] != other {
		t.Errorf("related_ids = %v, want [%d]", resp.RelatedIDs, other)
	}
}

func TestRelatedRequiresTriage(t *testing.T) {
	srv, db := newTestServer(t, &mockProvider{})
	seedArticle(t, db, "https://example.com/a", "Pending article", "Outlet A", "2026-03-01T10:00:00Z")

	w := get(t, srv, "/api/articles/1/related")
	if w.Code != http.StatusPreconditionFailed {
		t.Errorf("status = %d, want %d", w.Code, http.StatusPreconditionFailed)
	}

	w = get(t, srv, "/api/articles/99/related")
	if w.Code != http.StatusNotFound {
		t.Errorf("missing article status = %d, want %d", w.Code, http.StatusNotFound)
	}
}

func TestComparisonNothingToCompare(t *testing.T) {
	srv, db := newTestServer(t, &mockProvider{response: validComparativeJSON})
	id := seedArticle(t, db, "https://example.com/a", "Lone story", "Outlet A", "2026-03-01T10:00:00Z")
	if err := db.SaveTriage(id, testTriage(false)); err != nil {
		t.Fatalf("SaveTriage() error: %v", err)
	}

	w := post(t, srv, "/api/articles/1/comparison")
	if w.Code != http.StatusConflict {
		t.Errorf("status = %d, want %d", w.Code, http.StatusConflict)
	}
}

func TestComparisonLifecycle(t *testing.T) {
	srv, db := newTestServer(t, &mockProvider{response: validComparativeJSON})
	anchor := seedArticle(t, db, "https://example.com/a", "Bill passes", "Outlet A", "2026-03-01T10:00:00Z")
	other := seedArticle(t, db, "https://example.com/b", "Parliament approves bill", "Outlet B", "2026-03-01T12:00:00Z")
	if err := db.SaveTriage(anchor, testTriage(false)); err != nil {
		t.Fatalf("SaveTriage() error: %v", err)
	}
	if err := db.SaveTriage(other, testTriage(false)); err != nil {
		t.Fatalf("SaveTriage() error: %v", err)
	}

	// No comparison yet.
	w := get(t, srv, "/api/articles/1/comparison")
	if w.Code != http.StatusNotFound {
		t.Fatalf("GET before generate status = %d, want %d", w.Code, http.StatusNotFound)
	}

	w = post(t, srv, "/api/articles/1/comparison")
	if w.Code != http.StatusOK {
		t.Fatalf("POST status = %d, want %d, body: %s", w.Code, http.StatusOK, w.Body.String())
	}

	w = get(t, srv, "/api/articles/1/comparison")
	if w.Code != http.StatusOK {
		t.Fatalf("GET after generate status = %d, want %d", w.Code, http.StatusOK)
	}
	var result schema.ComparativeAnalysisResult
	if err := json.NewDecoder(w.Body).Decode(&result); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if result.AnchorID != anchor {
		t.Errorf("anchor_id = %d, want %d", result.AnchorID, anchor)
	}
	if len(result.Sources) != 2 {
		t.Errorf("sources = %v, want 2 entries", result.Sources)
	}
}

func TestStoreFailureIsServerError(t *testing.T) {
	srv, db := newTestServer(t, &mockProvider{})
	seedArticle(t, db, "https://example.com/a", "Bill passes", "Outlet A", "2026-03-01T10:00:00Z")
	db.Close()

	w := get(t, srv, "/articles/1")
	if w.Code != http.StatusInternalServerError {
		t.Errorf("page status = %d, want %d", w.Code, http.StatusInternalServerError)
	}

	w = get(t, srv, "/api/articles/1")
	if w.Code != http.StatusInternalServerError {
		t.Errorf("API status = %d, want %d", w.Code, http.StatusInternalServerError)
	}
}

func TestPipelineRunUnconfigured(t *testing.T) {
	srv, _ := newTestServer(t, &mockProvider{})

	w := post(t, srv, "/api/pipeline/run")
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want %d", w.Code, http.StatusServiceUnavailable)
	}
}

func TestStatsEndpoint(t *testing.T) {
	srv, db := newTestServer(t, &mockProvider{})
	seedArticle(t, db, "https://example.com/a", "First", "Outlet A", "2026-03-01T10:00:00Z")

	w := get(t, srv, "/api/stats")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	var stats database.Stats
	if err := json.NewDecoder(w.Body).Decode(&stats); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if stats.TotalArticles != 1 {
		t.Errorf("total = %d, want 1", stats.TotalArticles)
	}
}

package triage

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/marianbasti/news-aggregator/internal/database"
	"github.com/marianbasti/news-aggregator/internal/llm"
)

// mockProvider implements llm.Provider for testing.
type mockProvider struct {
	response string
	err      error
}

func (m *mockProvider) Complete(_ context.Context, _ string, _ int) (string, error) {
	return m.response, m.err
}

func (m *mockProvider) IsConfigured() bool { return true }

// selectiveProvider fails for prompts mentioning certain titles and answers
// normally otherwise.
type selectiveProvider struct {
	response  string
	failTitle string
}

func (s *selectiveProvider) Complete(_ context.Context, prompt string, _ int) (string, error) {
	if strings.Contains(prompt, s.failTitle) {
		return "", errors.New("model unavailable")
	}
	return s.response, nil
}

func (s *selectiveProvider) IsConfigured() bool { return true }

func openTestDB(t *testing.T) *database.DB {
	t.Helper()
	db, err := database.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func ptr(s string) *string { return &s }

func validResponse(t *testing.T, escalate bool) string {
	t.Helper()
	rationale := ""
	if escalate {
		rationale = "framing varies sharply across outlets"
	}
	resp, err := json.Marshal(map[string]any{
		"category":               "Politics",
		"sentiment":              "Critical",
		"key_claims":             []string{"New regulation announced"},
		"entities":               []map[string]string{{"name": "Ministry of Finance", "type": "organization"}},
		"keywords":               []string{"regulation", "finance", "policy"},
		"narrative_focus":        "Facts/Events",
		"source_style":           "Standard",
		"requires_deep_analysis": escalate,
		"escalation_rationale":   rationale,
	})
	if err != nil {
		t.Fatalf("marshal response: %v", err)
	}
	return string(resp)
}

func TestTriageStoresResult(t *testing.T) {
	db := openTestDB(t)
	aid, _ := db.UpsertArticle("https://example.com/reg", "New Finance Regulation",
		ptr("Wire"), nil, ptr("The ministry announced..."), nil, "feed")

	triager := NewTriager(db, &mockProvider{response: validResponse(t, false)}, 0)
	result, err := triager.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if result.Processed != 1 || result.Succeeded != 1 {
		t.Errorf("result = %+v", result)
	}

	stored, _ := db.GetTriage(aid)
	if stored == nil {
		t.Fatal("expected stored triage result")
	}
	if stored.Category != "Politics" || stored.Sentiment != "Critical" {
		t.Errorf("stored = %+v", stored)
	}
	a, _ := db.GetArticleByID(aid)
	if a.TriageStatus != database.TriageDone {
		t.Errorf("status = %q, want done", a.TriageStatus)
	}
}

func TestTriageEscalation(t *testing.T) {
	db := openTestDB(t)
	aid, _ := db.UpsertArticle("https://example.com/hot", "Contested Bill",
		ptr("Wire"), nil, ptr("Content"), nil, "feed")

	triager := NewTriager(db, &mockProvider{response: validResponse(t, true)}, 0)
	result, err := triager.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Escalated != 1 {
		t.Errorf("escalated = %d, want 1", result.Escalated)
	}
	a, _ := db.GetArticleByID(aid)
	if !a.Escalated {
		t.Error("expected escalated flag on article")
	}
}

func TestTriageBatchIsolation(t *testing.T) {
	db := openTestDB(t)
	good1, _ := db.UpsertArticle("https://a.com/1", "First Story", ptr("Wire"), nil, ptr("C"), nil, "feed")
	bad, _ := db.UpsertArticle("https://a.com/2", "Poison Story", ptr("Wire"), nil, ptr("C"), nil, "feed")
	good2, _ := db.UpsertArticle("https://a.com/3", "Third Story", ptr("Wire"), nil, ptr("C"), nil, "feed")

	provider := &selectiveProvider{
		response:  validResponse(t, false),
		failTitle: "Poison Story",
	}
	triager := NewTriager(db, provider, 0)
	result, err := triager.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if result.Processed != 3 || result.Succeeded != 2 || result.Failed != 1 {
		t.Errorf("result = %+v, want 3 processed / 2 succeeded / 1 failed", result)
	}

	for _, id := range []int64{good1, good2} {
		a, _ := db.GetArticleByID(id)
		if a.TriageStatus != database.TriageDone {
			t.Errorf("article %d status = %q, want done", id, a.TriageStatus)
		}
	}
	a, _ := db.GetArticleByID(bad)
	if a.TriageStatus != database.TriageFailed {
		t.Errorf("poison article status = %q, want failed", a.TriageStatus)
	}
}

func TestTriageInvalidResponseFailsArticle(t *testing.T) {
	db := openTestDB(t)
	aid, _ := db.UpsertArticle("https://example.com/garbled", "Garbled",
		nil, nil, ptr("Content"), nil, "feed")

	triager := NewTriager(db, &mockProvider{response: "this is not JSON"}, 0)
	result, err := triager.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Failed != 1 {
		t.Errorf("failed = %d, want 1", result.Failed)
	}

	a, _ := db.GetArticleByID(aid)
	if a.TriageStatus != database.TriageFailed {
		t.Errorf("status = %q, want failed", a.TriageStatus)
	}
	stored, _ := db.GetTriage(aid)
	if stored != nil {
		t.Error("expected no stored triage for failed article")
	}
}

func TestTriageRejectsOffTaxonomyResponse(t *testing.T) {
	db := openTestDB(t)
	resp, _ := json.Marshal(map[string]any{
		"category":               "Gossip",
		"sentiment":              "Factual",
		"key_claims":             []string{"x"},
		"entities":               []map[string]string{},
		"keywords":               []string{"y"},
		"narrative_focus":        "Facts/Events",
		"source_style":           "Standard",
		"requires_deep_analysis": false,
		"escalation_rationale":   "",
	})
	db.UpsertArticle("https://example.com/odd", "Odd", nil, nil, ptr("C"), nil, "feed")

	triager := NewTriager(db, &mockProvider{response: string(resp)}, 0)
	result, err := triager.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Failed != 1 {
		t.Errorf("failed = %d, want 1 for off-taxonomy category", result.Failed)
	}
}

func TestTriageSkipsAlreadyTriaged(t *testing.T) {
	db := openTestDB(t)
	aid, _ := db.UpsertArticle("https://example.com/done", "Done", nil, nil, ptr("C"), nil, "feed")
	triager := NewTriager(db, &mockProvider{response: validResponse(t, false)}, 0)
	if _, err := triager.Run(context.Background()); err != nil {
		t.Fatalf("first Run: %v", err)
	}

	result, err := triager.Run(context.Background())
	if err != nil {
		t.Fatalf("second Run: %v", err)
	}
	if result.Processed != 0 {
		t.Errorf("expected 0 processed on re-run, got %d", result.Processed)
	}
	a, _ := db.GetArticleByID(aid)
	if a.TriageStatus != database.TriageDone {
		t.Errorf("status = %q", a.TriageStatus)
	}
}

func TestTriageNoProvider(t *testing.T) {
	db := openTestDB(t)
	db.UpsertArticle("https://example.com/x", "X", nil, nil, ptr("C"), nil, "feed")

	triager := NewTriager(db, nil, 0)
	if _, err := triager.Run(context.Background()); err == nil {
		t.Error("expected error without provider")
	}
}

func TestTriageUnconfiguredWrappedProvider(t *testing.T) {
	// When nothing is configured, CreateProvider yields nil; the pipeline's
	// throttle and token-cap wrappers must not defeat the nil check here.
	db := openTestDB(t)
	db.UpsertArticle("https://example.com/x", "X", nil, nil, ptr("C"), nil, "feed")

	provider := llm.CapTokens(llm.Throttle(nil, 30), 2048)
	triager := NewTriager(db, provider, 0)
	if _, err := triager.Run(context.Background()); err == nil {
		t.Error("expected error without provider")
	}

	a, _ := db.GetArticleByID(1)
	if a.TriageStatus != database.TriagePending {
		t.Errorf("status = %q, want pending", a.TriageStatus)
	}
}

func TestTriageCancelledContext(t *testing.T) {
	db := openTestDB(t)
	aid, _ := db.UpsertArticle("https://example.com/c", "C", nil, nil, ptr("C"), nil, "feed")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	triager := NewTriager(db, &mockProvider{response: validResponse(t, false)}, 0)
	if _, err := triager.Run(ctx); err == nil {
		t.Error("expected context error")
	}

	// Untouched article stays pending, not failed.
	a, _ := db.GetArticleByID(aid)
	if a.TriageStatus != database.TriagePending {
		t.Errorf("status = %q, want pending after cancelled run", a.TriageStatus)
	}
}

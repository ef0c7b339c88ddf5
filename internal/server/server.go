// Package server exposes the pipeline over HTTP: HTML pages for browsing
// articles and their analyses, plus a JSON API for triggering stages.
package server

import (
	"bytes"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"io/fs"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/yuin/goldmark"

	"github.com/marianbasti/news-aggregator/internal/analyze"
	"github.com/marianbasti/news-aggregator/internal/compare"
	"github.com/marianbasti/news-aggregator/internal/database"
	"github.com/marianbasti/news-aggregator/internal/llm"
	"github.com/marianbasti/news-aggregator/internal/pipeline"
	"github.com/marianbasti/news-aggregator/internal/relate"
	"github.com/marianbasti/news-aggregator/internal/triage"
)

//go:embed templates/*.html
var templateFS embed.FS

//go:embed static/*
var staticFS embed.FS

var md = goldmark.New()

// Server is the HTTP server for browsing and driving analysis.
type Server struct {
	db       *database.DB
	triager  *triage.Triager
	analyzer *analyze.Analyzer
	engine   *relate.Engine
	comparer *compare.Comparer
	pipeline *pipeline.Pipeline
	pages    map[string]*template.Template
	mux      *http.ServeMux
}

// New creates a new Server. The grouping window and per-call timeout come
// from configuration.
func New(db *database.DB, provider llm.Provider, window, callTimeout time.Duration) (*Server, error) {
	funcMap := template.FuncMap{
		"markdown": renderMarkdown,
		"deref": func(s *string) string {
			if s == nil {
				return ""
			}
			return *s
		},
	}

	base, err := template.New("base.html").Funcs(funcMap).ParseFS(templateFS, "templates/base.html")
	if err != nil {
		return nil, fmt.Errorf("parsing base template: %w", err)
	}

	// Each page gets its own clone so its {{define "content"}} blocks don't
	// collide.
	pageNames := []string{"index.html", "article.html"}
	pages := make(map[string]*template.Template, len(pageNames))
	for _, name := range pageNames {
		clone, err := base.Clone()
		if err != nil {
			return nil, fmt.Errorf("cloning base for %s: %w", name, err)
		}
		if _, err := clone.ParseFS(templateFS, "templates/"+name); err != nil {
			return nil, fmt.Errorf("parsing template %s: %w", name, err)
		}
		pages[name] = clone
	}

	engine := relate.NewEngine(db, window)
	s := &Server{
		db:       db,
		triager:  triage.NewTriager(db, provider, callTimeout),
		analyzer: analyze.NewAnalyzer(db, provider, callTimeout),
		engine:   engine,
		comparer: compare.NewComparer(db, engine, provider, callTimeout),
		pages:    pages,
		mux:      http.NewServeMux(),
	}
	s.routes()
	return s, nil
}

// SetPipeline enables the full-pipeline trigger endpoint. Without it,
// POST /api/pipeline/run reports 503.
func (s *Server) SetPipeline(p *pipeline.Pipeline) {
	s.pipeline = p
}

// Handler returns the HTTP handler for the server.
func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) routes() {
	staticSub, _ := fs.Sub(staticFS, "static")
	s.mux.Handle("/static/", http.StripPrefix("/static/", http.FileServer(http.FS(staticSub))))

	s.mux.HandleFunc("GET /{$}", s.handleIndex)
	s.mux.HandleFunc("GET /articles/{id}", s.handleArticlePage)

	s.mux.HandleFunc("GET /api/articles", s.handleListArticles)
	s.mux.HandleFunc("GET /api/articles/{id}", s.handleGetArticle)
	s.mux.HandleFunc("POST /api/triage/run", s.handleTriageRun)
	s.mux.HandleFunc("POST /api/articles/{id}/deep-analysis", s.handleDeepAnalysis)
	s.mux.HandleFunc("GET /api/articles/{id}/related", s.handleRelated)
	s.mux.HandleFunc("POST /api/articles/{id}/comparison", s.handleCompare)
	s.mux.HandleFunc("GET /api/articles/{id}/comparison", s.handleGetComparison)
	s.mux.HandleFunc("POST /api/pipeline/run", s.handlePipelineRun)
	s.mux.HandleFunc("GET /api/stats", s.handleStats)
}

func (s *Server) handlePipelineRun(w http.ResponseWriter, r *http.Request) {
	if s.pipeline == nil {
		writeError(w, http.StatusServiceUnavailable, fmt.Errorf("pipeline not configured"))
		return
	}

	daysBack, _ := strconv.Atoi(r.URL.Query().Get("days_back"))
	if daysBack <= 0 {
		daysBack = 1
	}

	result := s.pipeline.Run(r.Context(), daysBack)
	steps := make([]map[string]string, 0, len(result.Steps))
	for _, step := range result.Steps {
		v := map[string]string{"name": step.Name, "summary": step.Summary}
		if step.Err != nil {
			v["error"] = step.Err.Error()
		}
		steps = append(steps, v)
	}
	writeJSON(w, http.StatusOK, map[string]any{"steps": steps})
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	articles, err := s.db.ListArticles(database.ArticleFilter{Limit: 50})
	if err != nil {
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	stats, err := s.db.GetStats()
	if err != nil {
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	s.render(w, "index.html", map[string]any{
		"Articles": articles,
		"Stats":    stats,
	})
}

func (s *Server) handleArticlePage(w http.ResponseWriter, r *http.Request) {
	id, article, ok := s.lookupArticle(w, r)
	if !ok {
		return
	}

	triageResult, err := s.db.GetTriage(id)
	if err != nil {
		log.Printf("Error loading triage for article %d: %v", id, err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	deep, err := s.db.GetDeepAnalysis(id)
	if err != nil {
		log.Printf("Error loading deep analysis for article %d: %v", id, err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	comparison, err := s.db.GetComparison(id)
	if err != nil {
		log.Printf("Error loading comparison for article %d: %v", id, err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	var related []database.Article
	if article.TriageStatus == database.TriageDone {
		related, err = s.engine.FindRelated(id)
		if err != nil {
			// The page still renders without the related panel.
			log.Printf("Error finding related coverage for article %d: %v", id, err)
		}
	}

	s.render(w, "article.html", map[string]any{
		"Article":    article,
		"Triage":     triageResult,
		"Deep":       deep,
		"Related":    related,
		"Comparison": comparison,
	})
}

func (s *Server) handleListArticles(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := database.ArticleFilter{
		TriageStatus: q.Get("status"),
		DeepStatus:   q.Get("deep_status"),
		Category:     q.Get("category"),
		Source:       q.Get("source"),
	}
	if v := q.Get("escalated"); v != "" {
		escalated := v == "true" || v == "1"
		filter.Escalated = &escalated
	}
	filter.Limit, _ = strconv.Atoi(q.Get("limit"))
	filter.Offset, _ = strconv.Atoi(q.Get("offset"))

	articles, err := s.db.ListArticles(filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"articles": articleViews(articles),
		"count":    len(articles),
	})
}

func (s *Server) handleGetArticle(w http.ResponseWriter, r *http.Request) {
	id, article, ok := s.lookupArticleJSON(w, r)
	if !ok {
		return
	}

	view := map[string]any{"article": articleView(*article)}
	t, err := s.db.GetTriage(id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if t != nil {
		view["triage"] = t
	}
	d, err := s.db.GetDeepAnalysis(id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if d != nil {
		view["deep_analysis"] = d
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleTriageRun(w http.ResponseWriter, r *http.Request) {
	result, err := s.triager.Run(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"processed": result.Processed,
		"succeeded": result.Succeeded,
		"failed":    result.Failed,
		"escalated": result.Escalated,
	})
}

func (s *Server) handleDeepAnalysis(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	result, err := s.analyzer.Analyze(r.Context(), id)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, result)
	case errors.Is(err, analyze.ErrNotFound):
		writeError(w, http.StatusNotFound, err)
	case errors.Is(err, analyze.ErrNotEligible):
		writeError(w, http.StatusPreconditionFailed, err)
	default:
		writeError(w, http.StatusBadGateway, err)
	}
}

func (s *Server) handleRelated(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	related, err := s.engine.FindRelated(id)
	switch {
	case err == nil:
		ids := make([]int64, len(related))
		for i, a := range related {
			ids[i] = a.ID
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"related_ids": ids,
			"articles":    articleViews(related),
		})
	case errors.Is(err, relate.ErrNotFound):
		writeError(w, http.StatusNotFound, err)
	case errors.Is(err, relate.ErrNotTriaged):
		writeError(w, http.StatusPreconditionFailed, err)
	default:
		writeError(w, http.StatusInternalServerError, err)
	}
}

func (s *Server) handleCompare(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	result, err := s.comparer.Compare(r.Context(), id)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, result)
	case errors.Is(err, relate.ErrNotFound):
		writeError(w, http.StatusNotFound, err)
	case errors.Is(err, relate.ErrNotTriaged):
		writeError(w, http.StatusPreconditionFailed, err)
	case errors.Is(err, compare.ErrNothingToCompare):
		// Retryable as coverage accumulates; distinct from a hard failure.
		writeError(w, http.StatusConflict, err)
	default:
		writeError(w, http.StatusBadGateway, err)
	}
}

func (s *Server) handleGetComparison(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	result, err := s.comparer.GetComparison(id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if result == nil {
		writeError(w, http.StatusNotFound, fmt.Errorf("no comparison for article %d", id))
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.db.GetStats()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) lookupArticle(w http.ResponseWriter, r *http.Request) (int64, *database.Article, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		http.NotFound(w, r)
		return 0, nil, false
	}
	article, err := s.db.GetArticleByID(id)
	if err != nil {
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return 0, nil, false
	}
	if article == nil {
		http.NotFound(w, r)
		return 0, nil, false
	}
	return id, article, true
}

func (s *Server) lookupArticleJSON(w http.ResponseWriter, r *http.Request) (int64, *database.Article, bool) {
	id, ok := pathID(w, r)
	if !ok {
		return 0, nil, false
	}
	article, err := s.db.GetArticleByID(id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return 0, nil, false
	}
	if article == nil {
		writeError(w, http.StatusNotFound, fmt.Errorf("article %d not found", id))
		return 0, nil, false
	}
	return id, article, true
}

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusNotFound, fmt.Errorf("invalid article id"))
		return 0, false
	}
	return id, true
}

// articleJSON is the wire shape for an article.
type articleJSON struct {
	ID           int64   `json:"id"`
	URL          string  `json:"url"`
	Title        string  `json:"title"`
	Source       string  `json:"source"`
	SourceType   string  `json:"source_type"`
	Summary      *string `json:"summary,omitempty"`
	PublishedAt  *string `json:"published_at,omitempty"`
	FirstSeenAt  string  `json:"first_seen_at"`
	TriageStatus string  `json:"triage_status"`
	Escalated    bool    `json:"escalated"`
	DeepStatus   *string `json:"deep_status,omitempty"`
}

func articleView(a database.Article) articleJSON {
	return articleJSON{
		ID:           a.ID,
		URL:          a.URL,
		Title:        a.Title,
		Source:       a.SourceName(),
		SourceType:   a.SourceType,
		Summary:      a.Summary,
		PublishedAt:  a.PublishedAt,
		FirstSeenAt:  a.FirstSeenAt,
		TriageStatus: a.TriageStatus,
		Escalated:    a.Escalated,
		DeepStatus:   a.DeepStatus,
	}
}

func articleViews(articles []database.Article) []articleJSON {
	views := make([]articleJSON, len(articles))
	for i, a := range articles {
		views[i] = articleView(a)
	}
	return views
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("Error encoding response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func (s *Server) render(w http.ResponseWriter, name string, data any) {
	tmpl, ok := s.pages[name]
	if !ok {
		log.Printf("Template %s not found", name)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := tmpl.ExecuteTemplate(w, "base.html", data); err != nil {
		log.Printf("Error rendering template %s: %v", name, err)
	}
}

func renderMarkdown(text string) template.HTML {
	var buf bytes.Buffer
	if err := md.Convert([]byte(text), &buf); err != nil {
		return template.HTML(template.HTMLEscapeString(text))
	}
	return template.HTML(buf.String()) //nolint: gosec
}

// Serve starts the HTTP server on the given port.
func Serve(db *database.DB, pipe *pipeline.Pipeline, window, callTimeout time.Duration, port int) error {
	srv, err := New(db, pipe.Provider(), window, callTimeout)
	if err != nil {
		return err
	}
	srv.SetPipeline(pipe)

	addr := fmt.Sprintf("127.0.0.1:%d", port)
	log.Printf("Server listening on http://%s", addr)
	return http.ListenAndServe(addr, srv.Handler())
}

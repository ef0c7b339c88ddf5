// Package analyze runs the escalated second-pass analysis: political leaning,
// information quality and framing for articles the triage stage flagged.
package analyze

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/marianbasti/news-aggregator/internal/database"
	"github.com/marianbasti/news-aggregator/internal/llm"
	"github.com/marianbasti/news-aggregator/internal/schema"
)

// ErrNotFound is returned when the requested article does not exist.
var ErrNotFound = errors.New("article not found")

// ErrNotEligible is returned when an article has not been successfully
// triaged and escalated. Requesting deep analysis for it is a caller mistake,
// not a processing failure, so nothing is written to the store.
var ErrNotEligible = errors.New("article not eligible for deep analysis")

// errStore marks persistence failures. A model failure is a per-article
// outcome; a store failure means later writes cannot be trusted either, so
// batch passes abort on it instead of counting it and moving on.
var errStore = errors.New("store failure")

const deepPrompt = `You are performing a deep media analysis of a news article.

Political leaning must be one of: %s
Confidence must be one of: %s
Context completeness must be one of: Complete, Partial, Minimal, Misleading.
quality_score is an integer from 1 (poor) to 5 (excellent).

Triage found: category %s, sentiment %s, escalated because: %s

Article Title: %s
Source: %s
Content:
%s

Respond with ONLY this JSON:
{
    "political_leaning": "...",
    "confidence": "...",
    "quality_score": 1-5,
    "information_quality": {
        "verifiable_claims": 0,
        "cites_sources": true or false,
        "evidence_types": ["..."],
        "context_completeness": "..."
    },
    "source_approach": {
        "reporting_style": "...",
        "perspective_diversity": "...",
        "audience_targeting": "..."
    },
    "framing_techniques": [{"technique": "...", "evidence": "quote or paraphrase"}],
    "unique_perspectives": ["..."],
    "suspected_omissions": ["..."]
}`

const maxContentChars = 6000

// Analyzer runs deep analysis over escalated articles.
type Analyzer struct {
	db          *database.DB
	provider    llm.Provider
	callTimeout time.Duration
}

// NewAnalyzer creates a deep analyzer.
func NewAnalyzer(db *database.DB, provider llm.Provider, callTimeout time.Duration) *Analyzer {
	return &Analyzer{db: db, provider: provider, callTimeout: callTimeout}
}

// Analyze runs deep analysis for one article. The article must be triaged and
// escalated; a previous failed attempt is retryable and gets overwritten on
// success. The stored triage result is never modified, whatever happens here.
func (a *Analyzer) Analyze(ctx context.Context, articleID int64) (*schema.DeepAnalysisResult, error) {
	if a.provider == nil {
		return nil, fmt.Errorf("no LLM provider available for deep analysis")
	}

	article, err := a.db.GetArticleByID(articleID)
	if err != nil {
		return nil, fmt.Errorf("loading article %d: %w", articleID, err)
	}
	if article == nil {
		return nil, fmt.Errorf("article %d: %w", articleID, ErrNotFound)
	}
	if article.TriageStatus != database.TriageDone {
		return nil, fmt.Errorf("article %d has triage status %q: %w",
			articleID, article.TriageStatus, ErrNotEligible)
	}
	if !article.Escalated {
		return nil, fmt.Errorf("article %d was not escalated: %w", articleID, ErrNotEligible)
	}

	triage, err := a.db.GetTriage(articleID)
	if err != nil {
		return nil, fmt.Errorf("loading triage for article %d: %w", articleID, err)
	}
	if triage == nil {
		return nil, fmt.Errorf("article %d has no triage result: %w", articleID, ErrNotEligible)
	}

	result, err := a.analyzeArticle(ctx, article, triage)
	if err != nil {
		log.Printf("Deep analysis of article %d failed: %v", articleID, err)
		if markErr := a.db.MarkDeepFailed(articleID); markErr != nil {
			return nil, fmt.Errorf("marking article %d deep-failed: %w: %w", articleID, errStore, markErr)
		}
		return nil, err
	}

	if err := a.db.SaveDeepAnalysis(articleID, result); err != nil {
		return nil, fmt.Errorf("saving deep analysis for article %d: %w: %w", articleID, errStore, err)
	}
	log.Printf("Deep analysis done for article %d: %s, quality %d",
		articleID, result.Leaning, result.QualityScore)
	return result, nil
}

// RunPending analyzes every escalated article that has no deep outcome yet.
// Failures are isolated per article, like the triage batch.
func (a *Analyzer) RunPending(ctx context.Context) (processed, failed int, err error) {
	articles, err := a.db.GetEscalatedPending(0)
	if err != nil {
		return 0, 0, fmt.Errorf("loading escalated articles: %w", err)
	}
	for _, article := range articles {
		if ctx.Err() != nil {
			return processed, failed, ctx.Err()
		}
		processed++
		if _, err := a.Analyze(ctx, article.ID); err != nil {
			if errors.Is(err, errStore) {
				return processed, failed, err
			}
			failed++
		}
	}
	if processed > 0 {
		log.Printf("Deep analysis pass: %d processed, %d failed", processed, failed)
	}
	return processed, failed, nil
}

func (a *Analyzer) analyzeArticle(ctx context.Context, article *database.Article, triage *database.ArticleTriage) (*schema.DeepAnalysisResult, error) {
	if a.callTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.callTimeout)
		defer cancel()
	}

	responseText, err := a.provider.Complete(ctx, buildPrompt(article, triage), 2048)
	if err != nil {
		return nil, err
	}

	data, err := llm.ExtractJSON(responseText)
	if err != nil {
		return nil, &schema.ValidationError{Schema: "deep analysis", Reason: err.Error()}
	}
	return schema.ParseDeepAnalysis(data)
}

func buildPrompt(article *database.Article, triage *database.ArticleTriage) string {
	content := ""
	if article.Content != nil {
		content = *article.Content
	}
	if content == "" && article.Summary != nil {
		content = *article.Summary
	}
	if content == "" {
		content = article.Title
	}
	if len(content) > maxContentChars {
		content = content[:maxContentChars] + "..."
	}

	rationale := "not recorded"
	if triage.Rationale != nil && *triage.Rationale != "" {
		rationale = *triage.Rationale
	}

	return fmt.Sprintf(deepPrompt,
		strings.Join(schema.Leanings, ", "),
		strings.Join(schema.Confidences, ", "),
		triage.Category, triage.Sentiment, rationale,
		article.Title, article.SourceName(), content)
}

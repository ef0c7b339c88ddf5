// Package triage runs the first-pass classification over newly collected
// articles. Every pending article gets exactly one verdict per run: a stored
// triage result or a failed status. One bad article never aborts the batch.
package triage

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

const triagePrompt = `You are classifying a news article for a cross-source news analysis system.

Categories: %s

Sentiment must capture tone with nuance, one of: %s

Narrative focus, the aspect the coverage centers on, one of: %s

Source style, the depth of the reporting, one of: %s

Entity types: person, organization, location, event, other.

Set "requires_deep_analysis" to true only when the article shows signs of
contested framing, strong bias, or claims that would benefit from a closer
look, and explain why in "escalation_rationale".

Article Title: %s
Source: %s
Content:
%s

Respond with ONLY this JSON:
{
    "category": "...",
    "sentiment": "...",
    "key_claims": ["claim 1", "claim 2"],
    "entities": [{"name": "...", "type": "..."}],
    "keywords": ["3 to 5 short keywords"],
    "narrative_focus": "...",
    "source_style": "...",
    "requires_deep_analysis": true or false,
    "escalation_rationale": "one sentence, empty string if not escalating"
}`

// maxContentChars caps how much article body goes into the prompt.
const maxContentChars = 4000

// Result holds the outcome of a triage run.
type Result struct {
	Processed int
	Succeeded int
	Failed    int
	Escalated int
}

// Triager classifies pending articles using an LLM.
type Triager struct {
	db          *database.DB
	provider    llm.Provider
	callTimeout time.Duration
}

// NewTriager creates a new article triager. callTimeout bounds each model
// call; zero means no per-call bound beyond the run context.
func NewTriager(db *database.DB, provider llm.Provider, callTimeout time.Duration) *Triager {
	return &Triager{db: db, provider: provider, callTimeout: callTimeout}
}

// Run triages every pending article. Each article independently ends up done
// or failed; an error from one never touches another's outcome. The returned
// error covers only run-level problems such as an unreachable store.
func (t *Triager) Run(ctx context.Context) (*Result, error) {
	if t.provider == nil {
		return nil, fmt.Errorf("no LLM provider available for triage")
	}

	articles, err := t.db.GetPendingTriage(0)
	if err != nil {
		return nil, fmt.Errorf("loading pending articles: %w", err)
	}
	if len(articles) == 0 {
		log.Println("No articles pending triage")
		return &Result{}, nil
	}

	r := &Result{}
	for _, article := range articles {
		if ctx.Err() != nil {
			// Run cancelled; untouched articles simply stay pending.
			return r, ctx.Err()
		}
		r.Processed++

		result, err := t.triageArticle(ctx, article)
		if err != nil {
			var verr *schema.ValidationError
			if errors.As(err, &verr) {
				log.Printf("Triage of article %d returned invalid result: %v", article.ID, verr)
			} else {
				log.Printf("Triage of article %d failed: %v", article.ID, err)
			}
			if markErr := t.db.MarkTriageFailed(article.ID); markErr != nil {
				return r, fmt.Errorf("marking article %d failed: %w", article.ID, markErr)
			}
			r.Failed++
			continue
		}

		if err := t.db.SaveTriage(article.ID, result); err != nil {
			return r, fmt.Errorf("saving triage for article %d: %w", article.ID, err)
		}
		r.Succeeded++
		if result.Escalate {
			r.Escalated++
		}
		log.Printf("Triaged [%s/%s]: %s", result.Category, result.Sentiment, article.Title)
	}

	log.Printf("Triage complete: %d processed (%d succeeded, %d failed, %d escalated)",
		r.Processed, r.Succeeded, r.Failed, r.Escalated)
	return r, nil
}

func (t *Triager) triageArticle(ctx context.Context, article database.Article) (*schema.TriageResult, error) {
	if t.callTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.callTimeout)
		defer cancel()
	}

	responseText, err := t.provider.Complete(ctx, buildPrompt(article), 1024)
	if err != nil {
		return nil, err
	}

	data, err := llm.ExtractJSON(responseText)
	if err != nil {
		return nil, &schema.ValidationError{Schema: "triage", Reason: err.Error()}
	}
	return schema.ParseTriage(data)
}

func buildPrompt(article database.Article) string {
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

	return fmt.Sprintf(triagePrompt,
		strings.Join(schema.Categories, ", "),
		strings.Join(schema.Sentiments, ", "),
		strings.Join(schema.NarrativeFocuses, ", "),
		strings.Join(schema.SourceStyles, ", "),
		article.Title, article.SourceName(), content)
}

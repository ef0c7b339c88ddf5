// Package compare synthesizes how different sources cover the same story:
// what they agree on, where they diverge, and what each one leaves out.
package compare

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/marianbasti/news-aggregator/internal/database"
	"github.com/marianbasti/news-aggregator/internal/llm"
	"github.com/marianbasti/news-aggregator/internal/relate"
	"github.com/marianbasti/news-aggregator/internal/schema"
)

// ErrNothingToCompare is returned when no related coverage exists yet. This
// is not a failure: more articles may arrive and make the anchor comparable,
// so callers should treat it as "try again later".
var ErrNothingToCompare = errors.New("no related articles to compare against")

const comparePrompt = `You are comparing how different news sources cover the same story.

Below are the articles, anchor first, as JSON. Each includes the source's
triage classification and, where available, a deep media analysis.

%s

Identify:
- the core facts every source agrees on
- how each source's coverage differs (one entry per source name)
- information present in some sources but absent in others
- how the framing differs, as a short narrative
- what interests each source's framing might serve

Respond with ONLY this JSON:
{
    "sources": ["source names, anchor's source first"],
    "core_facts": ["..."],
    "source_differences": {"source name": "how its coverage differs"},
    "information_gaps": ["..."],
    "framing_comparison": "short narrative",
    "source_interests": ["..."]
}`

// maxArticleChars caps each article's text inside the synthesis prompt.
const maxArticleChars = 2500

// Comparer generates and serves cross-source comparisons.
type Comparer struct {
	db          *database.DB
	engine      *relate.Engine
	provider    llm.Provider
	callTimeout time.Duration
}

// NewComparer creates a comparative-analysis stage.
func NewComparer(db *database.DB, engine *relate.Engine, provider llm.Provider, callTimeout time.Duration) *Comparer {
	return &Comparer{db: db, engine: engine, provider: provider, callTimeout: callTimeout}
}

// Compare generates a comparison anchored at the given article. Related
// coverage is re-derived on every call; regenerating replaces the stored
// result. On generation failure nothing is persisted and any previous result
// stays readable.
func (c *Comparer) Compare(ctx context.Context, anchorID int64) (*schema.ComparativeAnalysisResult, error) {
	if c.provider == nil {
		return nil, fmt.Errorf("no LLM provider available for comparison")
	}

	related, err := c.engine.FindRelated(anchorID)
	if err != nil {
		return nil, err
	}
	if len(related) == 0 {
		return nil, fmt.Errorf("article %d: %w", anchorID, ErrNothingToCompare)
	}

	anchor, err := c.db.GetArticleByID(anchorID)
	if err != nil {
		return nil, fmt.Errorf("loading article %d: %w", anchorID, err)
	}

	group := append([]database.Article{*anchor}, related...)
	digest, err := c.buildDigest(group)
	if err != nil {
		return nil, err
	}

	result, err := c.synthesize(ctx, digest)
	if err != nil {
		return nil, fmt.Errorf("comparing article %d: %w", anchorID, err)
	}

	result.ComparisonID = uuid.NewString()
	result.AnchorID = anchorID
	result.ArticleIDs = make([]int64, len(group))
	for i, a := range group {
		result.ArticleIDs[i] = a.ID
	}
	result.GeneratedAt = time.Now().UTC()

	if err := c.db.SaveComparison(result); err != nil {
		return nil, fmt.Errorf("saving comparison for article %d: %w", anchorID, err)
	}
	log.Printf("Comparison generated for article %d across %d sources", anchorID, len(result.Sources))
	return result, nil
}

// GetComparison returns the stored comparison for an anchor, or nil if none
// has been generated. Purely a read, never triggers generation.
func (c *Comparer) GetComparison(anchorID int64) (*schema.ComparativeAnalysisResult, error) {
	return c.db.GetComparison(anchorID)
}

// articleDigest is the per-article view handed to the model.
type articleDigest struct {
	Source    string                    `json:"source"`
	Title     string                    `json:"title"`
	Published *string                   `json:"published,omitempty"`
	Text      string                    `json:"text"`
	Triage    *triageDigest             `json:"triage,omitempty"`
	Deep      *schema.DeepAnalysisResult `json:"deep_analysis,omitempty"`
}

type triageDigest struct {
	Category       string   `json:"category"`
	Sentiment      string   `json:"sentiment"`
	KeyClaims      []string `json:"key_claims"`
	NarrativeFocus string   `json:"narrative_focus"`
}

func (c *Comparer) buildDigest(group []database.Article) (string, error) {
	digests := make([]articleDigest, 0, len(group))
	for _, a := range group {
		d := articleDigest{
			Source:    a.SourceName(),
			Title:     a.Title,
			Published: a.PublishedAt,
			Text:      articleText(&a),
		}
		triage, err := c.db.GetTriage(a.ID)
		if err != nil {
			return "", fmt.Errorf("loading triage for article %d: %w", a.ID, err)
		}
		if triage != nil {
			d.Triage = &triageDigest{
				Category:       triage.Category,
				Sentiment:      triage.Sentiment,
				KeyClaims:      triage.KeyClaims,
				NarrativeFocus: triage.NarrativeFocus,
			}
		}
		deep, err := c.db.GetDeepAnalysis(a.ID)
		if err != nil {
			return "", fmt.Errorf("loading deep analysis for article %d: %w", a.ID, err)
		}
		if deep != nil {
			d.Deep = &schema.DeepAnalysisResult{
				Leaning:            deep.Leaning,
				Confidence:         deep.Confidence,
				QualityScore:       deep.QualityScore,
				Quality:            deep.Quality,
				Approach:           deep.Approach,
				Framing:            deep.Framing,
				UniquePerspectives: deep.UniquePerspectives,
				SuspectedOmissions: deep.SuspectedOmissions,
			}
		}
		digests = append(digests, d)
	}

	data, err := json.MarshalIndent(digests, "", "  ")
	if err != nil {
		return "", fmt.Errorf("building comparison digest: %w", err)
	}
	return string(data), nil
}

func (c *Comparer) synthesize(ctx context.Context, digest string) (*schema.ComparativeAnalysisResult, error) {
	if c.callTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.callTimeout)
		defer cancel()
	}

	responseText, err := c.provider.Complete(ctx, fmt.Sprintf(comparePrompt, digest), 2048)
	if err != nil {
		return nil, err
	}

	data, err := llm.ExtractJSON(responseText)
	if err != nil {
		return nil, &schema.ValidationError{Schema: "comparative", Reason: err.Error()}
	}
	return schema.ParseComparative(data)
}

func articleText(a *database.Article) string {
	text := ""
	if a.Content != nil {
		text = *a.Content
	}
	if text == "" && a.Summary != nil {
		text = *a.Summary
	}
	if text == "" {
		text = a.Title
	}
	if len(text) > maxArticleChars {
		text = text[:maxArticleChars] + "..."
	}
	return text
}

package database

import "github.com/marianbasti/news-aggregator/internal/schema"

// Triage status values for an article.
const (
	TriagePending = "pending"
	TriageDone    = "done"
	TriageFailed  = "failed"
)

// Deep analysis status values. An article with no deep status has never been
// escalated into the deep stage.
const (
	DeepDone   = "done"
	DeepFailed = "failed"
)

// Article represents a collected article and its pipeline state.
type Article struct {
	ID             int64
	URL            string
	Title          string
	Source         *string
	SourceType     string
	Summary        *string
	Content        *string
	ContentFetched bool
	PublishedAt    *string
	FirstSeenAt    string
	LastUpdatedAt  string
	TriageStatus   string
	Escalated      bool
	DeepStatus     *string
}

// SourceName returns the article's source, or "unknown" if none was recorded.
func (a *Article) SourceName() string {
	if a.Source == nil || *a.Source == "" {
		return "unknown"
	}
	return *a.Source
}

// ArticleTriage holds the stored triage result for an article.
type ArticleTriage struct {
	ArticleID      int64
	Category       string
	Sentiment      string
	KeyClaims      []string
	Entities       []schema.Entity
	Keywords       []string
	NarrativeFocus string
	SourceStyle    string
	Escalate       bool
	Rationale      *string
	TriagedAt      string
}

// DeepAnalysis holds the stored deep-analysis result for an article.
type DeepAnalysis struct {
	ArticleID          int64
	Leaning            string
	Confidence         string
	QualityScore       int
	Quality            schema.InformationQuality
	Approach           schema.SourceApproach
	Framing            []schema.FramingTechnique
	UniquePerspectives []string
	SuspectedOmissions []string
	AnalyzedAt         string
}

// ArticleFilter selects a page of articles. Zero values mean "no filter";
// Limit 0 falls back to a default page size.
type ArticleFilter struct {
	TriageStatus string
	DeepStatus   string
	Category     string
	Source       string
	Escalated    *bool
	Limit        int
	Offset       int
}

// Stats contains aggregate database statistics.
type Stats struct {
	TotalArticles int
	Pending       int
	Triaged       int
	Failed        int
	Escalated     int
	DeepDone      int
	DeepFailed    int
	Comparisons   int
}

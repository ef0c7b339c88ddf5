package pipeline

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/marianbasti/news-aggregator/internal/analyze"
	"github.com/marianbasti/news-aggregator/internal/collect"
	"github.com/marianbasti/news-aggregator/internal/config"
	"github.com/marianbasti/news-aggregator/internal/database"
	"github.com/marianbasti/news-aggregator/internal/fetch"
	"github.com/marianbasti/news-aggregator/internal/llm"
	"github.com/marianbasti/news-aggregator/internal/triage"
)

// StepResult holds the result of a single pipeline step.
type StepResult struct {
	Name    string
	Summary string
	Err     error
}

// Result holds the results of a full pipeline run.
type Result struct {
	Steps []StepResult
}

// Pipeline orchestrates the collect → fetch → triage → deep-analysis chain.
// Comparisons are generated on demand per anchor, not as a batch step.
type Pipeline struct {
	cfg      *config.Config
	db       *database.DB
	provider llm.Provider
}

// New creates a new pipeline.
func New(cfg *config.Config, db *database.DB) *Pipeline {
	a := cfg.Analysis
	provider := llm.CreateProvider(
		a.Provider,
		a.Model,
		a.OllamaURL,
		a.OpenAIModel,
		a.APIKeyEnv,
	)
	provider = llm.Throttle(provider, a.RateLimitPerMinute)
	provider = llm.CapTokens(provider, a.MaxTokens)

	return &Pipeline{
		cfg:      cfg,
		db:       db,
		provider: provider,
	}
}

// Provider exposes the configured (throttled) provider for on-demand stages.
func (p *Pipeline) Provider() llm.Provider {
	return p.provider
}

// Triager returns a triage stage bound to the pipeline's provider.
func (p *Pipeline) Triager() *triage.Triager {
	return triage.NewTriager(p.db, p.provider, p.cfg.Analysis.CallTimeout())
}

// Analyzer returns a deep-analysis stage bound to the pipeline's provider.
func (p *Pipeline) Analyzer() *analyze.Analyzer {
	return analyze.NewAnalyzer(p.db, p.provider, p.cfg.Analysis.CallTimeout())
}

// Run executes the full pipeline.
func (p *Pipeline) Run(ctx context.Context, daysBack int) *Result {
	r := &Result{}

	step := p.runCollect(daysBack)
	r.Steps = append(r.Steps, step)
	if step.Err != nil {
		return r
	}

	r.Steps = append(r.Steps, p.runFetch())
	r.Steps = append(r.Steps, p.runTriage(ctx))
	r.Steps = append(r.Steps, p.runDeepAnalysis(ctx))

	return r
}

// DryRun shows what would be done without executing.
func (p *Pipeline) DryRun() *Result {
	r := &Result{}

	stats, err := p.db.GetStats()
	if err != nil {
		r.Steps = append(r.Steps, StepResult{Name: "Collect", Err: err})
		return r
	}

	r.Steps = append(r.Steps, StepResult{
		Name:    "Collect",
		Summary: fmt.Sprintf("[dry-run] %d articles already in store", stats.TotalArticles),
	})

	needing, _ := p.db.GetArticlesNeedingFetch()
	r.Steps = append(r.Steps, StepResult{
		Name:    "Fetch",
		Summary: fmt.Sprintf("[dry-run] %d articles need content fetching", len(needing)),
	})

	r.Steps = append(r.Steps, StepResult{
		Name:    "Triage",
		Summary: fmt.Sprintf("[dry-run] %d articles pending triage", stats.Pending),
	})

	escalated, _ := p.db.GetEscalatedPending(0)
	r.Steps = append(r.Steps, StepResult{
		Name:    "DeepAnalysis",
		Summary: fmt.Sprintf("[dry-run] %d escalated articles awaiting deep analysis", len(escalated)),
	})

	return r
}

func (p *Pipeline) runCollect(daysBack int) StepResult {
	log.Println("Step 1/4: Collecting articles...")
	collector := collect.NewCollector(p.cfg, p.db, daysBack)
	result := collector.Collect()
	return StepResult{
		Name:    "Collect",
		Summary: fmt.Sprintf("Found %d articles, stored %d (%d errors)", result.TotalFound, result.Stored, result.Errors),
	}
}

func (p *Pipeline) runFetch() StepResult {
	log.Println("Step 2/4: Fetching article content...")
	fetcher := fetch.NewContentFetcher(p.db, 15*time.Second)
	result := fetcher.FetchMissingContent()
	return StepResult{
		Name:    "Fetch",
		Summary: fmt.Sprintf("Fetched %d articles, %d failed", result.Fetched, result.Failed),
	}
}

func (p *Pipeline) runTriage(ctx context.Context) StepResult {
	log.Println("Step 3/4: Triaging articles...")
	triager := triage.NewTriager(p.db, p.provider, p.cfg.Analysis.CallTimeout())
	result, err := triager.Run(ctx)
	if err != nil {
		return StepResult{Name: "Triage", Err: err}
	}
	return StepResult{
		Name: "Triage",
		Summary: fmt.Sprintf("Triaged %d articles: %d succeeded, %d failed, %d escalated",
			result.Processed, result.Succeeded, result.Failed, result.Escalated),
	}
}

func (p *Pipeline) runDeepAnalysis(ctx context.Context) StepResult {
	log.Println("Step 4/4: Deep analysis of escalated articles...")
	analyzer := analyze.NewAnalyzer(p.db, p.provider, p.cfg.Analysis.CallTimeout())
	processed, failed, err := analyzer.RunPending(ctx)
	if err != nil {
		return StepResult{Name: "DeepAnalysis", Err: err}
	}
	return StepResult{
		Name:    "DeepAnalysis",
		Summary: fmt.Sprintf("Analyzed %d escalated articles, %d failed", processed, failed),
	}
}

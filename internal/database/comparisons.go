package database

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/marianbasti/news-aggregator/internal/schema"
)

// SaveComparison stores a comparative analysis keyed by its anchor article.
// Regenerating a comparison for the same anchor replaces the previous one.
func (db *DB) SaveComparison(r *schema.ComparativeAnalysisResult) error {
	ids, err := json.Marshal(r.ArticleIDs)
	if err != nil {
		return err
	}
	sources, err := json.Marshal(r.Sources)
	if err != nil {
		return err
	}
	facts, err := json.Marshal(r.CoreFacts)
	if err != nil {
		return err
	}
	diffs, err := json.Marshal(r.Differences)
	if err != nil {
		return err
	}
	gaps, err := json.Marshal(r.InformationGaps)
	if err != nil {
		return err
	}
	interests, err := json.Marshal(r.SourceInterests)
	if err != nil {
		return err
	}

	_, err = db.conn.Exec(
		`INSERT OR REPLACE INTO comparisons
		(anchor_article_id, comparison_id, article_ids, sources, core_facts,
		 differences, information_gaps, framing_comparison, source_interests, generated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.AnchorID, r.ComparisonID, string(ids), string(sources), string(facts),
		string(diffs), string(gaps), r.FramingNarrative, string(interests),
		r.GeneratedAt.UTC().Format(time.RFC3339),
	)
	return err
}

// GetComparison returns the stored comparison anchored at the given article,
// or nil if none has been generated. This is a pure read.
func (db *DB) GetComparison(anchorID int64) (*schema.ComparativeAnalysisResult, error) {
	row := db.conn.QueryRow(
		`SELECT anchor_article_id, comparison_id, article_ids, sources, core_facts,
		 differences, information_gaps, framing_comparison, source_interests, generated_at
		FROM comparisons WHERE anchor_article_id = ?`, anchorID,
	)

	var r schema.ComparativeAnalysisResult
	var ids, sources, facts, diffs, gaps, interests *string
	var generatedAt string
	if err := row.Scan(&r.AnchorID, &r.ComparisonID, &ids, &sources, &facts,
		&diffs, &gaps, &r.FramingNarrative, &interests, &generatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}

	unmarshalJSON(ids, &r.ArticleIDs)
	unmarshalJSON(sources, &r.Sources)
	unmarshalJSON(facts, &r.CoreFacts)
	unmarshalJSON(diffs, &r.Differences)
	unmarshalJSON(gaps, &r.InformationGaps)
	unmarshalJSON(interests, &r.SourceInterests)
	if t, err := time.Parse(time.RFC3339, generatedAt); err == nil {
		r.GeneratedAt = t
	}
	return &r, nil
}

// SetRelatedIDs caches the last computed related-article set for an article.
func (db *DB) SetRelatedIDs(articleID int64, related []int64) error {
	data, err := json.Marshal(related)
	if err != nil {
		return err
	}
	_, err = db.conn.Exec(
		"UPDATE articles SET related_ids = ? WHERE id = ?", string(data), articleID,
	)
	return err
}

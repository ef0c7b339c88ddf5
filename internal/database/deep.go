package database

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/marianbasti/news-aggregator/internal/schema"
)

// GetEscalatedPending returns escalated articles that have no deep-analysis
// outcome yet. Articles marked deep_failed are not returned; retrying those
// is an explicit, per-article action.
func (db *DB) GetEscalatedPending(limit int) ([]Article, error) {
	query := `SELECT ` + articleColumns + ` FROM articles
		WHERE triage_status = 'done' AND escalated = 1 AND deep_status IS NULL
		ORDER BY first_seen_at ASC, id ASC`
	var args []any
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := db.conn.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanArticles(rows)
}

// SaveDeepAnalysis stores a deep-analysis result and marks the article
// deep_done in one transaction. A previous failed attempt is overwritten.
func (db *DB) SaveDeepAnalysis(articleID int64, r *schema.DeepAnalysisResult) error {
	quality, err := json.Marshal(r.Quality)
	if err != nil {
		return err
	}
	approach, err := json.Marshal(r.Approach)
	if err != nil {
		return err
	}
	framing, err := json.Marshal(r.Framing)
	if err != nil {
		return err
	}
	perspectives, err := json.Marshal(r.UniquePerspectives)
	if err != nil {
		return err
	}
	omissions, err := json.Marshal(r.SuspectedOmissions)
	if err != nil {
		return err
	}

	tx, err := db.conn.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(
		`INSERT OR REPLACE INTO deep_analysis
		(article_id, leaning, confidence, quality_score, information_quality,
		 source_approach, framing, unique_perspectives, suspected_omissions, analyzed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		articleID, r.Leaning, r.Confidence, r.QualityScore, string(quality),
		string(approach), string(framing), string(perspectives),
		string(omissions), time.Now().UTC().Format(time.RFC3339),
	); err != nil {
		return err
	}

	res, err := tx.Exec(
		"UPDATE articles SET deep_status = 'done', last_updated_at = ? WHERE id = ?",
		time.Now().UTC().Format(time.RFC3339), articleID,
	)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("article %d not found", articleID)
	}

	return tx.Commit()
}

// MarkDeepFailed records a failed deep-analysis attempt. The triage result is
// left untouched.
func (db *DB) MarkDeepFailed(articleID int64) error {
	_, err := db.conn.Exec(
		"UPDATE articles SET deep_status = 'failed', last_updated_at = ? WHERE id = ?",
		time.Now().UTC().Format(time.RFC3339), articleID,
	)
	return err
}

// GetDeepAnalysis returns the stored deep analysis for an article, or nil if
// none exists.
func (db *DB) GetDeepAnalysis(articleID int64) (*DeepAnalysis, error) {
	row := db.conn.QueryRow(
		`SELECT article_id, leaning, confidence, quality_score, information_quality,
		 source_approach, framing, unique_perspectives, suspected_omissions, analyzed_at
		FROM deep_analysis WHERE article_id = ?`, articleID,
	)

	var d DeepAnalysis
	var quality, approach, framing, perspectives, omissions *string
	if err := row.Scan(&d.ArticleID, &d.Leaning, &d.Confidence, &d.QualityScore,
		&quality, &approach, &framing, &perspectives, &omissions, &d.AnalyzedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}

	unmarshalJSON(quality, &d.Quality)
	unmarshalJSON(approach, &d.Approach)
	unmarshalJSON(framing, &d.Framing)
	unmarshalJSON(perspectives, &d.UniquePerspectives)
	unmarshalJSON(omissions, &d.SuspectedOmissions)
	return &d, nil
}

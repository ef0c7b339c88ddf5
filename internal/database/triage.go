package database

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/marianbasti/news-aggregator/internal/schema"
)

// GetPendingTriage returns articles still awaiting triage, oldest first so a
// backlog drains in arrival order.
func (db *DB) GetPendingTriage(limit int) ([]Article, error) {
	query := `SELECT ` + articleColumns + ` FROM articles
		WHERE triage_status = 'pending' ORDER BY first_seen_at ASC, id ASC`
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

// GetTriagedArticles returns every article with a completed triage, newest
// first. Used as the candidate pool when grouping related coverage.
func (db *DB) GetTriagedArticles() ([]Article, error) {
	rows, err := db.conn.Query(
		`SELECT ` + articleColumns + ` FROM articles
		WHERE triage_status = 'done'
		ORDER BY COALESCE(published_at, first_seen_at) DESC, id DESC`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanArticles(rows)
}

// SaveTriage stores a triage result and marks the article done in a single
// transaction, so the status never claims a result that is not there.
func (db *DB) SaveTriage(articleID int64, r *schema.TriageResult) error {
	claims, err := json.Marshal(r.KeyClaims)
	if err != nil {
		return err
	}
	entities, err := json.Marshal(r.Entities)
	if err != nil {
		return err
	}
	keywords, err := json.Marshal(r.Keywords)
	if err != nil {
		return err
	}

	tx, err := db.conn.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(
		`INSERT OR REPLACE INTO article_triage
		(article_id, category, sentiment, key_claims, entities, keywords,
		 narrative_focus, source_style, escalate, rationale, triaged_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		articleID, r.Category, r.Sentiment, string(claims), string(entities),
		string(keywords), r.NarrativeFocus, r.SourceStyle, r.Escalate,
		r.Rationale, time.Now().UTC().Format(time.RFC3339),
	); err != nil {
		return err
	}

	res, err := tx.Exec(
		"UPDATE articles SET triage_status = 'done', escalated = ?, last_updated_at = ? WHERE id = ?",
		r.Escalate, time.Now().UTC().Format(time.RFC3339), articleID,
	)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("article %d not found", articleID)
	}

	return tx.Commit()
}

// MarkTriageFailed records a failed triage attempt. No triage row is written;
// the failed status itself is the record.
func (db *DB) MarkTriageFailed(articleID int64) error {
	_, err := db.conn.Exec(
		"UPDATE articles SET triage_status = 'failed', last_updated_at = ? WHERE id = ?",
		time.Now().UTC().Format(time.RFC3339), articleID,
	)
	return err
}

// GetTriage returns the stored triage result for an article, or nil if the
// article has not been successfully triaged.
func (db *DB) GetTriage(articleID int64) (*ArticleTriage, error) {
	row := db.conn.QueryRow(
		`SELECT article_id, category, sentiment, key_claims, entities, keywords,
		 narrative_focus, source_style, escalate, rationale, triaged_at
		FROM article_triage WHERE article_id = ?`, articleID,
	)

	var t ArticleTriage
	var claims, entities, keywords *string
	var escalate int
	if err := row.Scan(&t.ArticleID, &t.Category, &t.Sentiment, &claims,
		&entities, &keywords, &t.NarrativeFocus, &t.SourceStyle, &escalate,
		&t.Rationale, &t.TriagedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	t.Escalate = escalate != 0

	unmarshalJSON(claims, &t.KeyClaims)
	unmarshalJSON(entities, &t.Entities)
	unmarshalJSON(keywords, &t.Keywords)
	return &t, nil
}

// unmarshalJSON decodes an optional JSON column, leaving the target zero on
// NULL or corrupt data.
func unmarshalJSON[T any](raw *string, dst *T) {
	if raw == nil {
		return
	}
	if err := json.Unmarshal([]byte(*raw), dst); err != nil {
		var zero T
		*dst = zero
	}
}

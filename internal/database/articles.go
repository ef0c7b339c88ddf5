package database

import (
	"database/sql"
	"time"

	sq "github.com/Masterminds/squirrel"
)

const defaultPageSize = 50

const articleColumns = `id, url, title, source, source_type, summary, content,
	content_fetched, published_at, first_seen_at, last_updated_at,
	triage_status, escalated, deep_status`

// UpsertArticle inserts an article or refreshes an existing one keyed by URL.
// On conflict the metadata is updated but first_seen_at, fetched content and
// all analysis state are preserved. Returns the article ID.
func (db *DB) UpsertArticle(url, title string, source, summary, content, publishedAt *string, sourceType string) (int64, error) {
	if sourceType == "" {
		sourceType = "feed"
	}
	now := time.Now().UTC().Format(time.RFC3339)

	var id int64
	err := db.conn.QueryRow(
		`INSERT INTO articles (url, title, source, source_type, summary, content, published_at, first_seen_at, last_updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(url) DO UPDATE SET
			title = excluded.title,
			source = COALESCE(excluded.source, source),
			summary = COALESCE(excluded.summary, summary),
			content = COALESCE(content, excluded.content),
			published_at = COALESCE(excluded.published_at, published_at),
			last_updated_at = excluded.last_updated_at
		RETURNING id`,
		url, title, source, sourceType, summary, content, publishedAt, now, now,
	).Scan(&id)
	if err != nil {
		return 0, err
	}
	return id, nil
}

// GetArticleByID returns a single article, or nil if it does not exist.
func (db *DB) GetArticleByID(articleID int64) (*Article, error) {
	row := db.conn.QueryRow(
		`SELECT `+articleColumns+` FROM articles WHERE id = ?`, articleID,
	)
	a, err := scanArticle(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return a, nil
}

// ListArticles returns a filtered, paginated page of articles ordered by
// publication time, newest first. Articles without a publication date sort by
// when they were first seen.
func (db *DB) ListArticles(f ArticleFilter) ([]Article, error) {
	q := sq.Select(
		"a.id", "a.url", "a.title", "a.source", "a.source_type", "a.summary",
		"a.content", "a.content_fetched", "a.published_at", "a.first_seen_at",
		"a.last_updated_at", "a.triage_status", "a.escalated", "a.deep_status",
	).From("articles a")

	if f.TriageStatus != "" {
		q = q.Where(sq.Eq{"a.triage_status": f.TriageStatus})
	}
	if f.DeepStatus != "" {
		q = q.Where(sq.Eq{"a.deep_status": f.DeepStatus})
	}
	if f.Source != "" {
		q = q.Where(sq.Eq{"a.source": f.Source})
	}
	if f.Escalated != nil {
		q = q.Where(sq.Eq{"a.escalated": *f.Escalated})
	}
	if f.Category != "" {
		q = q.Join("article_triage t ON t.article_id = a.id").
			Where(sq.Eq{"t.category": f.Category})
	}

	limit := f.Limit
	if limit <= 0 {
		limit = defaultPageSize
	}
	q = q.OrderBy("COALESCE(a.published_at, a.first_seen_at) DESC", "a.id DESC").
		Limit(uint64(limit))
	if f.Offset > 0 {
		q = q.Offset(uint64(f.Offset))
	}

	query, args, err := q.ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := db.conn.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanArticles(rows)
}

// GetArticlesNeedingFetch returns articles with empty content that have not
// had a fetch attempt yet.
func (db *DB) GetArticlesNeedingFetch() ([]Article, error) {
	rows, err := db.conn.Query(
		`SELECT ` + articleColumns + ` FROM articles
		WHERE (content IS NULL OR content = '') AND content_fetched = 0
		ORDER BY first_seen_at DESC`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanArticles(rows)
}

// UpdateArticleContent stores fetched article content.
func (db *DB) UpdateArticleContent(articleID int64, content *string) error {
	_, err := db.conn.Exec(
		"UPDATE articles SET content = ?, content_fetched = 1, last_updated_at = ? WHERE id = ?",
		content, time.Now().UTC().Format(time.RFC3339), articleID,
	)
	return err
}

// MarkArticleFetchAttempted records that a fetch was tried, successful or not.
func (db *DB) MarkArticleFetchAttempted(articleID int64) error {
	_, err := db.conn.Exec(
		"UPDATE articles SET content_fetched = 1 WHERE id = ?", articleID,
	)
	return err
}

// GetStats returns aggregate pipeline statistics.
func (db *DB) GetStats() (*Stats, error) {
	var s Stats
	row := db.conn.QueryRow(`SELECT
		COUNT(*),
		SUM(CASE WHEN triage_status = 'pending' THEN 1 ELSE 0 END),
		SUM(CASE WHEN triage_status = 'done' THEN 1 ELSE 0 END),
		SUM(CASE WHEN triage_status = 'failed' THEN 1 ELSE 0 END),
		SUM(escalated),
		SUM(CASE WHEN deep_status = 'done' THEN 1 ELSE 0 END),
		SUM(CASE WHEN deep_status = 'failed' THEN 1 ELSE 0 END)
		FROM articles`)

	var pending, triaged, failed, escalated, deepDone, deepFailed sql.NullInt64
	if err := row.Scan(&s.TotalArticles, &pending, &triaged, &failed,
		&escalated, &deepDone, &deepFailed); err != nil {
		return nil, err
	}
	s.Pending = int(pending.Int64)
	s.Triaged = int(triaged.Int64)
	s.Failed = int(failed.Int64)
	s.Escalated = int(escalated.Int64)
	s.DeepDone = int(deepDone.Int64)
	s.DeepFailed = int(deepFailed.Int64)
	if err := db.conn.QueryRow("SELECT COUNT(*) FROM comparisons").Scan(&s.Comparisons); err != nil {
		return nil, err
	}
	return &s, nil
}

func scanArticles(rows *sql.Rows) ([]Article, error) {
	var articles []Article
	for rows.Next() {
		var a Article
		var fetched, escalated int
		if err := rows.Scan(&a.ID, &a.URL, &a.Title, &a.Source, &a.SourceType,
			&a.Summary, &a.Content, &fetched, &a.PublishedAt, &a.FirstSeenAt,
			&a.LastUpdatedAt, &a.TriageStatus, &escalated, &a.DeepStatus); err != nil {
			return nil, err
		}
		a.ContentFetched = fetched != 0
		a.Escalated = escalated != 0
		articles = append(articles, a)
	}
	return articles, rows.Err()
}

func scanArticle(row *sql.Row) (*Article, error) {
	var a Article
	var fetched, escalated int
	if err := row.Scan(&a.ID, &a.URL, &a.Title, &a.Source, &a.SourceType,
		&a.Summary, &a.Content, &fetched, &a.PublishedAt, &a.FirstSeenAt,
		&a.LastUpdatedAt, &a.TriageStatus, &escalated, &a.DeepStatus); err != nil {
		return nil, err
	}
	a.ContentFetched = fetched != 0
	a.Escalated = escalated != 0
	return &a, nil
}

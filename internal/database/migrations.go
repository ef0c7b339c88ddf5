package database

import "database/sql"

// Migration represents a single schema migration step.
type Migration struct {
	Version     int
	Description string
	Up          func(tx *sql.Tx) error
}

// migrations is the ordered list of all schema migrations.
// Append new migrations to the end with incrementing Version numbers.
var migrations = []Migration{
	{
		Version:     1,
		Description: "initial schema",
		Up: func(tx *sql.Tx) error {
			_, err := tx.Exec(`
CREATE TABLE IF NOT EXISTS articles (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    url TEXT UNIQUE NOT NULL,
    title TEXT NOT NULL,
    source TEXT,
    source_type TEXT NOT NULL DEFAULT 'feed',
    summary TEXT,
    content TEXT,
    content_fetched INTEGER DEFAULT 0,
    published_at TEXT,
    first_seen_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ','now')),
    last_updated_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ','now')),
    triage_status TEXT NOT NULL DEFAULT 'pending'
        CHECK(triage_status IN ('pending', 'done', 'failed')),
    escalated INTEGER NOT NULL DEFAULT 0,
    deep_status TEXT CHECK(deep_status IN ('done', 'failed')),
    related_ids TEXT
);

CREATE TABLE IF NOT EXISTS article_triage (
    article_id INTEGER PRIMARY KEY REFERENCES articles(id),
    category TEXT NOT NULL,
    sentiment TEXT NOT NULL,
    key_claims TEXT,
    entities TEXT,
    keywords TEXT,
    narrative_focus TEXT,
    source_style TEXT,
    escalate INTEGER NOT NULL DEFAULT 0,
    rationale TEXT,
    triaged_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ','now'))
);

CREATE TABLE IF NOT EXISTS deep_analysis (
    article_id INTEGER PRIMARY KEY REFERENCES articles(id),
    leaning TEXT NOT NULL,
    confidence TEXT NOT NULL,
    quality_score INTEGER NOT NULL,
    information_quality TEXT,
    source_approach TEXT,
    framing TEXT,
    unique_perspectives TEXT,
    suspected_omissions TEXT,
    analyzed_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ','now'))
);

CREATE TABLE IF NOT EXISTS comparisons (
    anchor_article_id INTEGER PRIMARY KEY REFERENCES articles(id),
    comparison_id TEXT NOT NULL,
    article_ids TEXT NOT NULL,
    sources TEXT NOT NULL,
    core_facts TEXT,
    differences TEXT,
    information_gaps TEXT,
    framing_comparison TEXT,
    source_interests TEXT,
    generated_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ','now'))
);

CREATE INDEX IF NOT EXISTS idx_articles_url ON articles(url);
CREATE INDEX IF NOT EXISTS idx_articles_triage_status ON articles(triage_status);
CREATE INDEX IF NOT EXISTS idx_articles_published ON articles(published_at);
`)
			return err
		},
	},
}

// latestVersion returns the highest migration version number.
func latestVersion() int {
	if len(migrations) == 0 {
		return 0
	}
	return migrations[len(migrations)-1].Version
}

package storage

import (
	"database/sql"
	"fmt"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"gptcli/model"
	"gptcli/summarize"
)

// HistoryStore keeps summarization and usage history in SQLite.
type HistoryStore struct {
	db *sql.DB
}

// NewHistoryStore opens (creating if needed) history.db under dataDir.
func NewHistoryStore(dataDir string) (*HistoryStore, error) {
	return openHistoryStore(filepath.Join(dataDir, "history.db"))
}

func openHistoryStore(dsn string) (*HistoryStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// A single connection keeps in-memory databases alive and writes ordered.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	store := &HistoryStore{db: db}
	if err := store.initialize(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	return store, nil
}

func (hs *HistoryStore) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS summaries (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		level INTEGER NOT NULL,
		summarized_messages INTEGER NOT NULL,
		summarized_tokens INTEGER NOT NULL,
		summary_tokens INTEGER NOT NULL,
		compression_ratio REAL NOT NULL,
		model TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_summaries_session ON summaries(session_id);

	CREATE TABLE IF NOT EXISTS usage (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT NOT NULL,
		recorded_at INTEGER NOT NULL,
		model TEXT NOT NULL,
		prompt_tokens INTEGER NOT NULL,
		completion_tokens INTEGER NOT NULL,
		total_tokens INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_usage_session ON usage(session_id);
	`
	_, err := hs.db.Exec(schema)
	return err
}

// Close closes the database.
func (hs *HistoryStore) Close() error {
	return hs.db.Close()
}

// AppendSummary records the metadata of a summary produced in sessionID.
func (hs *HistoryStore) AppendSummary(sessionID string, meta model.SummaryMetadata) error {
	query := `
	INSERT INTO summaries (session_id, created_at, level, summarized_messages, summarized_tokens, summary_tokens, compression_ratio, model)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := hs.db.Exec(query,
		sessionID,
		meta.CreatedAt.UnixNano(),
		meta.Level,
		meta.SummarizedMessageCount,
		meta.SummarizedTokens,
		meta.SummaryTokens,
		meta.CompressionRatio,
		meta.ModelUsed,
	)
	if err != nil {
		return fmt.Errorf("failed to record summary: %w", err)
	}
	return nil
}

// Summaries returns the summaries of sessionID in creation order.
func (hs *HistoryStore) Summaries(sessionID string) ([]model.SummaryMetadata, error) {
	query := `
	SELECT created_at, level, summarized_messages, summarized_tokens, summary_tokens, compression_ratio, model
	FROM summaries
	WHERE session_id = ?
	ORDER BY id
	`
	rows, err := hs.db.Query(query, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query summaries: %w", err)
	}
	defer rows.Close()

	var out []model.SummaryMetadata
	for rows.Next() {
		var meta model.SummaryMetadata
		var created int64
		if err := rows.Scan(
			&created,
			&meta.Level,
			&meta.SummarizedMessageCount,
			&meta.SummarizedTokens,
			&meta.SummaryTokens,
			&meta.CompressionRatio,
			&meta.ModelUsed,
		); err != nil {
			return nil, err
		}
		meta.CreatedAt = time.Unix(0, created)
		out = append(out, meta)
	}
	return out, rows.Err()
}

// AppendUsage records the usage of one turn in sessionID.
func (hs *HistoryStore) AppendUsage(sessionID string, rec UsageRecord) error {
	query := `
	INSERT INTO usage (session_id, recorded_at, model, prompt_tokens, completion_tokens, total_tokens)
	VALUES (?, ?, ?, ?, ?, ?)
	`
	_, err := hs.db.Exec(query,
		sessionID,
		rec.Timestamp.UnixNano(),
		rec.Model,
		rec.PromptTokens,
		rec.CompletionTokens,
		rec.TotalTokens,
	)
	if err != nil {
		return fmt.Errorf("failed to record usage: %w", err)
	}
	return nil
}

// UsageTotals sums every usage record of sessionID.
func (hs *HistoryStore) UsageTotals(sessionID string) (model.Usage, error) {
	query := `
	SELECT COALESCE(SUM(prompt_tokens), 0), COALESCE(SUM(completion_tokens), 0), COALESCE(SUM(total_tokens), 0)
	FROM usage
	WHERE session_id = ?
	`
	var u model.Usage
	if err := hs.db.QueryRow(query, sessionID).Scan(&u.PromptTokens, &u.CompletionTokens, &u.TotalTokens); err != nil {
		return model.Usage{}, fmt.Errorf("failed to sum usage: %w", err)
	}
	return u, nil
}

// DeleteSession removes all history rows of sessionID.
func (hs *HistoryStore) DeleteSession(sessionID string) error {
	for _, table := range []string{"summaries", "usage"} {
		if _, err := hs.db.Exec("DELETE FROM "+table+" WHERE session_id = ?", sessionID); err != nil {
			return fmt.Errorf("failed to delete %s: %w", table, err)
		}
	}
	return nil
}

// ForSession returns a summarize.History writing to this store under
// sessionID.
func (hs *HistoryStore) ForSession(sessionID string) summarize.History {
	return sessionHistory{store: hs, sessionID: sessionID}
}

type sessionHistory struct {
	store     *HistoryStore
	sessionID string
}

func (h sessionHistory) Record(meta model.SummaryMetadata) error {
	return h.store.AppendSummary(h.sessionID, meta)
}

func (h sessionHistory) List() ([]model.SummaryMetadata, error) {
	return h.store.Summaries(h.sessionID)
}

package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/threadbot/threadbot/internal/biz/domain"
	"github.com/threadbot/threadbot/internal/biz/repo"

	_ "modernc.org/sqlite"
)

// statsRepo implements the usage statistics repository
type statsRepo struct {
	db *sql.DB
}

// NewStatsRepo creates a new usage statistics repository
func NewStatsRepo(dbPath string) (repo.StatsRepo, error) {
	// Ensure directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	// Create counters table
	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS usage_counters (
			grammar_id TEXT PRIMARY KEY,
			count INTEGER NOT NULL DEFAULT 0
		)
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create usage_counters table: %w", err)
	}

	// Create usage log table
	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS usage_log (
			id TEXT PRIMARY KEY,
			grammar_id TEXT NOT NULL,
			conversation_id TEXT NOT NULL,
			sender_id TEXT NOT NULL,
			used_at INTEGER NOT NULL
		)
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create usage_log table: %w", err)
	}

	_, _ = db.Exec(`CREATE INDEX IF NOT EXISTS idx_usage_grammar_used ON usage_log(grammar_id, used_at)`)

	return &statsRepo{db: db}, nil
}

// Record increments the grammar and global counters and appends the usage record
func (r *statsRepo) Record(ctx context.Context, rec *domain.UsageRecord) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, key := range []string{rec.GrammarID, repo.GlobalUsageKey} {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO usage_counters (grammar_id, count) VALUES (?, 1)
			ON CONFLICT(grammar_id) DO UPDATE SET count = count + 1
		`, key)
		if err != nil {
			return fmt.Errorf("failed to increment counter: %w", err)
		}
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO usage_log (id, grammar_id, conversation_id, sender_id, used_at)
		VALUES (?, ?, ?, ?, ?)
	`, rec.ID, rec.GrammarID, rec.ConversationID, rec.SenderID, rec.UsedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to append usage record: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit usage record: %w", err)
	}
	return nil
}

// Count returns a counter, zero for a grammar never used
func (r *statsRepo) Count(ctx context.Context, grammarID string) (int64, error) {
	var count int64
	err := r.db.QueryRowContext(ctx, `SELECT count FROM usage_counters WHERE grammar_id = ?`, grammarID).Scan(&count)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to query counter: %w", err)
	}
	return count, nil
}

// Recent returns the latest usage records of a grammar, newest first
func (r *statsRepo) Recent(ctx context.Context, grammarID string, limit int) ([]*domain.UsageRecord, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, grammar_id, conversation_id, sender_id, used_at
		FROM usage_log
		WHERE grammar_id = ?
		ORDER BY used_at DESC
		LIMIT ?
	`, grammarID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query usage log: %w", err)
	}
	defer rows.Close()

	var records []*domain.UsageRecord
	for rows.Next() {
		var rec domain.UsageRecord
		var usedAt int64
		if err := rows.Scan(&rec.ID, &rec.GrammarID, &rec.ConversationID, &rec.SenderID, &usedAt); err != nil {
			return nil, fmt.Errorf("failed to scan usage record: %w", err)
		}
		rec.UsedAt = time.UnixMilli(usedAt)
		records = append(records, &rec)
	}
	return records, rows.Err()
}

// Close closes the database
func (r *statsRepo) Close() error {
	return r.db.Close()
}

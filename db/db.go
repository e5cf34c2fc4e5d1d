// Package db provides database connection helpers, schema migration, and
// small data access helpers for triage outcomes and generated replies.
package db

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // pgx postgres driver registered as 'pgx'

	"github.com/onnwee/chat-triage/backend/triage"
)

// Connect opens a Postgres connection for the given DSN.
func Connect(dsn string) (*sql.DB, error) {
	return sql.Open("pgx", dsn)
}

// Migrate applies idempotent schema changes for all required tables and indices.
func Migrate(ctx context.Context, db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS comments (
			id TEXT PRIMARY KEY,
			kind TEXT NOT NULL,
			content TEXT,
			user_id TEXT,
			display_name TEXT,
			received_at TIMESTAMPTZ,
			accepted BOOLEAN,
			reason TEXT,
			keyword_score DOUBLE PRECISION,
			probability DOUBLE PRECISION,
			category TEXT,
			created_at TIMESTAMPTZ DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS replies (
			id SERIAL PRIMARY KEY,
			comment_id TEXT REFERENCES comments(id),
			reply_text TEXT,
			confidence DOUBLE PRECISION,
			cached BOOLEAN DEFAULT FALSE,
			audio_path TEXT,
			created_at TIMESTAMPTZ DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS kv (
			key TEXT PRIMARY KEY,
			value TEXT,
			updated_at TIMESTAMPTZ DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_comments_user ON comments(user_id)`,
		`CREATE INDEX IF NOT EXISTS idx_comments_reason ON comments(reason)`,
		`CREATE INDEX IF NOT EXISTS idx_comments_received ON comments(received_at)`,
		`CREATE INDEX IF NOT EXISTS idx_replies_comment ON replies(comment_id)`,
		`CREATE INDEX IF NOT EXISTS idx_replies_created ON replies(created_at)`,
	}
	for i, s := range stmts {
		if _, err := db.ExecContext(ctx, s); err != nil {
			return fmt.Errorf("postgres migrate step %d failed: %w", i, err)
		}
	}
	return nil
}

// Store wraps the handle with the pipeline-facing persistence methods.
type Store struct{ DB *sql.DB }

// RecordComment implements triage.Recorder.
func (s *Store) RecordComment(ctx context.Context, c triage.Comment, d triage.Decision, sc triage.Score) error {
	q := `INSERT INTO comments(id, kind, content, user_id, display_name, received_at, accepted, reason, keyword_score, probability, category)
		  VALUES($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
		  ON CONFLICT(id) DO NOTHING`
	_, err := s.DB.ExecContext(ctx, q,
		c.ID, string(c.Kind), c.Content, c.UserID, c.DisplayName, c.ReceivedAt,
		d.Accepted, string(d.Reason), sc.KeywordScore, sc.Probability, sc.Category)
	return err
}

// InsertReply stores a generated reply. commentID may be empty for operator
// replies; audioPath may be empty when synthesis is disabled or failed.
func (s *Store) InsertReply(ctx context.Context, commentID, replyText string, confidence float64, cached bool, audioPath string) error {
	cid := sql.NullString{String: commentID, Valid: commentID != ""}
	q := `INSERT INTO replies(comment_id, reply_text, confidence, cached, audio_path) VALUES($1,$2,$3,$4,$5)`
	_, err := s.DB.ExecContext(ctx, q, cid, replyText, confidence, cached, audioPath)
	return err
}

// Reply is one row of the recent-replies listing.
type Reply struct {
	ID          int64     `json:"id"`
	CommentID   string    `json:"comment_id"`
	Content     string    `json:"content"`
	DisplayName string    `json:"display_name"`
	ReplyText   string    `json:"reply_text"`
	Confidence  float64   `json:"confidence"`
	Cached      bool      `json:"cached"`
	AudioPath   string    `json:"audio_path,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// RecentReplies lists the newest replies joined with their source comments.
func (s *Store) RecentReplies(ctx context.Context, limit int) ([]Reply, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	q := `SELECT r.id, COALESCE(r.comment_id,''), COALESCE(c.content,''), COALESCE(c.display_name,''),
			r.reply_text, r.confidence, r.cached, COALESCE(r.audio_path,''), r.created_at
		  FROM replies r LEFT JOIN comments c ON c.id = r.comment_id
		  ORDER BY r.created_at DESC LIMIT $1`
	rows, err := s.DB.QueryContext(ctx, q, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Reply
	for rows.Next() {
		var r Reply
		if err := rows.Scan(&r.ID, &r.CommentID, &r.Content, &r.DisplayName,
			&r.ReplyText, &r.Confidence, &r.Cached, &r.AudioPath, &r.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Ledger persists the daily budget spend in the kv table, implementing
// triage.BudgetStore.
type Ledger struct{ DB *sql.DB }

func spendKey(day string) string { return "budget_spent_" + day }

func (l *Ledger) LoadSpend(ctx context.Context, day string) (float64, error) {
	var value string
	err := l.DB.QueryRowContext(ctx, `SELECT value FROM kv WHERE key=$1`, spendKey(day)).Scan(&value)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return strconv.ParseFloat(value, 64)
}

func (l *Ledger) SaveSpend(ctx context.Context, day string, spent float64) error {
	q := `INSERT INTO kv(key, value, updated_at) VALUES($1,$2,NOW())
		  ON CONFLICT(key) DO UPDATE SET value=EXCLUDED.value, updated_at=NOW()`
	_, err := l.DB.ExecContext(ctx, q, spendKey(day), strconv.FormatFloat(spent, 'f', -1, 64))
	return err
}

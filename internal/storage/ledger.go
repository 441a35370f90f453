package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"shortform-studio/internal/types"
)

// Render is one published video
type Render struct {
	ID        string       `json:"id"`
	Kind      string       `json:"kind"` // generate | edit
	Title     string       `json:"title"`
	ObjectKey string       `json:"object_key"`
	SignedURL string       `json:"signed_url"`
	Duration  float64      `json:"duration"`
	Script    types.Script `json:"script"`
	ParentURL string       `json:"parent_url,omitempty"`
	CreatedAt time.Time    `json:"created_at"`
}

// Ledger records published renders in SQLite
type Ledger struct {
	db *sql.DB
}

func NewLedger(dbPath string) (*Ledger, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	createTableSQL := `
	CREATE TABLE IF NOT EXISTS renders (
		id TEXT PRIMARY KEY,
		kind TEXT NOT NULL,
		title TEXT NOT NULL,
		object_key TEXT NOT NULL,
		signed_url TEXT NOT NULL,
		duration REAL NOT NULL,
		script_json TEXT NOT NULL,
		parent_url TEXT,
		created_at DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_renders_created_at ON renders(created_at);
	`
	if _, err := db.Exec(createTableSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create table: %w", err)
	}
	return &Ledger{db: db}, nil
}

func (l *Ledger) Record(ctx context.Context, r Render) error {
	script, err := json.Marshal(r.Script)
	if err != nil {
		return fmt.Errorf("marshal script: %w", err)
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}

	_, err = l.db.ExecContext(ctx, `
	INSERT INTO renders (id, kind, title, object_key, signed_url, duration, script_json, parent_url, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.Kind, r.Title, r.ObjectKey, r.SignedURL, r.Duration, string(script), r.ParentURL, r.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to record render: %w", err)
	}
	return nil
}

const selectRender = `SELECT id, kind, title, object_key, signed_url, duration, script_json, COALESCE(parent_url, ''), created_at FROM renders`

func (l *Ledger) Get(ctx context.Context, id string) (*Render, error) {
	row := l.db.QueryRowContext(ctx, selectRender+` WHERE id = ?`, id)
	r, err := scanRender(row)
	if err != nil {
		return nil, fmt.Errorf("failed to get render %s: %w", id, err)
	}
	return r, nil
}

// List returns the most recent renders first.
func (l *Ledger) List(ctx context.Context, limit int) ([]Render, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := l.db.QueryContext(ctx, selectRender+` ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list renders: %w", err)
	}
	defer rows.Close()

	out := []Render{}
	for rows.Next() {
		r, err := scanRender(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

func (l *Ledger) Close() error {
	return l.db.Close()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRender(s scanner) (*Render, error) {
	var (
		r      Render
		script string
	)
	if err := s.Scan(&r.ID, &r.Kind, &r.Title, &r.ObjectKey, &r.SignedURL, &r.Duration, &script, &r.ParentURL, &r.CreatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(script), &r.Script); err != nil {
		return nil, fmt.Errorf("decode script of %s: %w", r.ID, err)
	}
	return &r, nil
}

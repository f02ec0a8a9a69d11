package store

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
	"github.com/xhad/verity/internal/models"
	"github.com/xhad/verity/internal/types"
)

const maxRecent = 100

var identifier = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

var columns = []string{"id", "url", "title", "label", "probability", "mode", "embedding", "created_at"}

type JournalConfig struct {
	ConnString string
	TableName  string
	// VectorDim fixes the embedding column width. Zero leaves it unconstrained.
	VectorDim    int
	RecentLimit  int
	CreateSchema bool
}

// Journal records every prediction in Postgres, keeping the embedding in a
// pgvector column when the model produced one.
type Journal struct {
	config JournalConfig
	pool   *pgxpool.Pool
}

var _ types.Journal = (*Journal)(nil)

func NewWithConfig(ctx context.Context, config JournalConfig) (*Journal, error) {
	config = withDefaults(config)
	if !identifier.MatchString(config.TableName) {
		return nil, fmt.Errorf("invalid table name %q", config.TableName)
	}

	pool, err := pgxpool.New(ctx, config.ConnString)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	j := &Journal{
		config: config,
		pool:   pool,
	}

	if config.CreateSchema {
		if err := j.initialize(ctx); err != nil {
			pool.Close()
			return nil, err
		}
	}

	return j, nil
}

func withDefaults(config JournalConfig) JournalConfig {
	if config.TableName == "" {
		config.TableName = "predictions"
	}
	if config.RecentLimit <= 0 {
		config.RecentLimit = 20
	}
	return config
}

func (j *Journal) initialize(ctx context.Context) error {
	if _, err := j.pool.Exec(ctx, "CREATE EXTENSION IF NOT EXISTS vector"); err != nil {
		return fmt.Errorf("failed to create vector extension: %w", err)
	}

	if _, err := j.pool.Exec(ctx, createTableSQL(j.config)); err != nil {
		return fmt.Errorf("failed to create table: %w", err)
	}

	createIndex := fmt.Sprintf(
		"CREATE INDEX IF NOT EXISTS %s_created_at_idx ON %s (created_at DESC)",
		j.config.TableName, j.config.TableName)
	if _, err := j.pool.Exec(ctx, createIndex); err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}

	return nil
}

func createTableSQL(config JournalConfig) string {
	vectorType := "vector"
	if config.VectorDim > 0 {
		vectorType = fmt.Sprintf("vector(%d)", config.VectorDim)
	}
	return fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id TEXT PRIMARY KEY,
			url TEXT NOT NULL DEFAULT '',
			title TEXT NOT NULL DEFAULT '',
			label TEXT NOT NULL,
			probability DOUBLE PRECISION NOT NULL,
			mode TEXT NOT NULL,
			embedding %s,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`, config.TableName, vectorType)
}

func (j *Journal) Record(ctx context.Context, entry models.JournalEntry) error {
	query, args, err := insertQuery(j.config.TableName, entry)
	if err != nil {
		return fmt.Errorf("failed to build insert: %w", err)
	}

	if _, err := j.pool.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to insert prediction: %w", err)
	}
	return nil
}

func insertQuery(table string, entry models.JournalEntry) (string, []interface{}, error) {
	var embedding interface{}
	if len(entry.Embedding) > 0 {
		embedding = pgvector.NewVector(entry.Embedding)
	}

	return psql.Insert(table).
		Columns(columns...).
		Values(
			entry.ID,
			strings.ToValidUTF8(entry.URL, ""),
			strings.ToValidUTF8(entry.Title, ""),
			entry.Label,
			entry.Probability,
			entry.Mode,
			embedding,
			entry.CreatedAt,
		).
		Suffix("ON CONFLICT (id) DO NOTHING").
		ToSql()
}

// Recent returns the newest entries first. A non-positive limit uses the
// configured default.
func (j *Journal) Recent(ctx context.Context, limit int) ([]models.JournalEntry, error) {
	query, args, err := recentQuery(j.config.TableName, j.clampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("failed to build select: %w", err)
	}

	rows, err := j.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query predictions: %w", err)
	}
	defer rows.Close()

	entries := make([]models.JournalEntry, 0)
	for rows.Next() {
		var e models.JournalEntry
		if err := rows.Scan(&e.ID, &e.URL, &e.Title, &e.Label, &e.Probability, &e.Mode, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration: %w", err)
	}

	return entries, nil
}

func (j *Journal) clampLimit(limit int) int {
	if limit <= 0 {
		limit = j.config.RecentLimit
	}
	if limit > maxRecent {
		limit = maxRecent
	}
	return limit
}

func recentQuery(table string, limit int) (string, []interface{}, error) {
	return psql.Select("id", "url", "title", "label", "probability", "mode", "created_at").
		From(table).
		OrderBy("created_at DESC").
		Limit(uint64(limit)).
		ToSql()
}

func (j *Journal) Close() {
	if j.pool != nil {
		j.pool.Close()
	}
}

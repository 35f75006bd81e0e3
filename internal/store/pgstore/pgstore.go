// Package pgstore implements core.Store on a PostgreSQL table via pgx.
//
// Ids are UUIDs generated client-side. Rows carry a bigserial sequence so
// that ties in name ordering and export order are stable.
package pgstore

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JonMunkholm/rosterimport/internal/core"
)

// Config holds pool settings.
type Config struct {
	URL            string
	Table          string
	MaxConns       int32
	MinConns       int32
	MaxConnIdle    time.Duration
	ConnectTimeout time.Duration
}

// Store is a PostgreSQL-backed core.Store.
type Store struct {
	pool      *pgxpool.Pool
	tableName string
	table     string // sanitized identifier
}

var _ core.Store = (*Store)(nil)

// Open builds the pool, pings it and creates the table if it is missing.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse database URL: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolConfig.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolConfig.MinConns = cfg.MinConns
	}
	if cfg.MaxConnIdle > 0 {
		poolConfig.MaxConnIdleTime = cfg.MaxConnIdle
	}
	if cfg.ConnectTimeout > 0 {
		poolConfig.ConnConfig.ConnectTimeout = cfg.ConnectTimeout
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	s := &Store{
		pool:      pool,
		tableName: cfg.Table,
		table:     pgx.Identifier{cfg.Table}.Sanitize(),
	}
	if err := s.migrate(ctx, cfg.Table); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) migrate(ctx context.Context, table string) error {
	idx := func(suffix string) string { return pgx.Identifier{table + "_" + suffix}.Sanitize() }
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS ` + s.table + ` (
			id         uuid PRIMARY KEY,
			seq        bigserial NOT NULL,
			name       text NOT NULL DEFAULT '',
			mobile     bigint NOT NULL DEFAULT 0,
			categories text NOT NULL DEFAULT '` + core.DefaultCategory + `',
			created_at timestamptz NOT NULL DEFAULT now()
		)`,
		`CREATE INDEX IF NOT EXISTS ` + idx("name_ci") + ` ON ` + s.table + ` (lower(name), seq)`,
		`CREATE INDEX IF NOT EXISTS ` + idx("name_mobile") + ` ON ` + s.table + ` (name, mobile)`,
	}
	for _, stmt := range stmts {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migrate %s: %w", table, err)
		}
	}
	return nil
}

func parseID(id string) (pgtype.UUID, error) {
	u, err := uuid.Parse(id)
	if err != nil {
		return pgtype.UUID{}, fmt.Errorf("%w: %q", core.ErrInvalidID, id)
	}
	return pgtype.UUID{Bytes: u, Valid: true}, nil
}

func (s *Store) InsertMany(ctx context.Context, rows []core.ImportRow) (int, error) {
	if len(rows) == 0 {
		return 0, nil
	}

	// COPY is atomic: either every row lands or none does.
	n, err := s.pool.CopyFrom(ctx,
		pgx.Identifier{s.tableName},
		[]string{"id", "name", "mobile", "categories"},
		pgx.CopyFromSlice(len(rows), func(i int) ([]any, error) {
			return []any{
				pgtype.UUID{Bytes: uuid.New(), Valid: true},
				rows[i].Name,
				rows[i].Mobile,
				core.DefaultCategory,
			}, nil
		}),
	)
	if err != nil {
		return 0, fmt.Errorf("copy records: %w", err)
	}
	return int(n), nil
}

const recordColumns = `id, name, mobile, categories`

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (core.Record, error) {
	var (
		id  pgtype.UUID
		rec core.Record
	)
	if err := row.Scan(&id, &rec.Name, &rec.Mobile, &rec.Categories); err != nil {
		return core.Record{}, err
	}
	rec.ID = uuid.UUID(id.Bytes).String()
	return rec, nil
}

func (s *Store) Find(ctx context.Context, q core.ListQuery) (core.Page, error) {
	q = q.Normalize()

	var total int64
	if err := s.pool.QueryRow(ctx, `SELECT count(*) FROM `+s.table).Scan(&total); err != nil {
		return core.Page{}, fmt.Errorf("count records: %w", err)
	}

	dir := "ASC"
	if q.Sort == core.SortDesc {
		dir = "DESC"
	}
	sql := `SELECT ` + recordColumns + ` FROM ` + s.table +
		` ORDER BY lower(name) ` + dir + `, seq LIMIT $1 OFFSET $2`

	rows, err := s.pool.Query(ctx, sql, q.PerPage, q.Skip())
	if err != nil {
		return core.Page{}, fmt.Errorf("find records: %w", err)
	}
	recs, err := collect(rows)
	if err != nil {
		return core.Page{}, err
	}

	return core.Page{
		Records: recs,
		Total:   total,
		Page:    q.Page,
		PerPage: q.PerPage,
		Sort:    q.Sort,
	}, nil
}

func (s *Store) FindByID(ctx context.Context, id string) (core.Record, error) {
	pgID, err := parseID(id)
	if err != nil {
		return core.Record{}, err
	}

	row := s.pool.QueryRow(ctx, `SELECT `+recordColumns+` FROM `+s.table+` WHERE id = $1`, pgID)
	rec, err := scanRecord(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return core.Record{}, core.ErrNotFound
	}
	if err != nil {
		return core.Record{}, fmt.Errorf("find record %s: %w", id, err)
	}
	return rec, nil
}

func (s *Store) UpdateByID(ctx context.Context, id, name string, mobile int64) (core.Record, error) {
	pgID, err := parseID(id)
	if err != nil {
		return core.Record{}, err
	}

	row := s.pool.QueryRow(ctx,
		`UPDATE `+s.table+` SET name = $2, mobile = $3 WHERE id = $1 RETURNING `+recordColumns,
		pgID, name, mobile)
	rec, err := scanRecord(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return core.Record{}, core.ErrNotFound
	}
	if err != nil {
		return core.Record{}, fmt.Errorf("update record %s: %w", id, err)
	}
	return rec, nil
}

func (s *Store) UpdateCategoriesByNameAndMobile(ctx context.Context, name string, mobile int64, category string) (core.UpdateResult, error) {
	sql := `WITH matched AS (
			SELECT id, categories FROM ` + s.table + ` WHERE name = $1 AND mobile = $2 FOR UPDATE
		), changed AS (
			UPDATE ` + s.table + ` t SET categories = $3
			FROM matched m
			WHERE t.id = m.id AND m.categories IS DISTINCT FROM $3
			RETURNING t.id
		)
		SELECT (SELECT count(*) FROM matched), (SELECT count(*) FROM changed)`

	var res core.UpdateResult
	if err := s.pool.QueryRow(ctx, sql, name, mobile, category).Scan(&res.Matched, &res.Modified); err != nil {
		return core.UpdateResult{}, fmt.Errorf("update categories: %w", err)
	}
	return res, nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func (s *Store) Search(ctx context.Context, q string, limit int) ([]core.Record, error) {
	pattern := "%" + likeEscaper.Replace(q) + "%"

	var mobile *int64
	if m, err := strconv.ParseInt(q, 10, 64); err == nil {
		mobile = &m
	}
	if limit <= 0 {
		limit = core.SearchLimit
	}

	rows, err := s.pool.Query(ctx,
		`SELECT `+recordColumns+` FROM `+s.table+`
		 WHERE name ILIKE $1 OR categories ILIKE $1 OR mobile = $2
		 ORDER BY lower(name), seq LIMIT $3`,
		pattern, mobile, limit)
	if err != nil {
		return nil, fmt.Errorf("search records: %w", err)
	}
	return collect(rows)
}

func (s *Store) Each(ctx context.Context, fn func(core.Record) error) error {
	rows, err := s.pool.Query(ctx, `SELECT `+recordColumns+` FROM `+s.table+` ORDER BY seq`)
	if err != nil {
		return fmt.Errorf("iterate records: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return fmt.Errorf("scan record: %w", err)
		}
		if err := fn(rec); err != nil {
			return err
		}
	}
	return rows.Err()
}

func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *Store) Close(context.Context) error {
	s.pool.Close()
	return nil
}

func collect(rows pgx.Rows) ([]core.Record, error) {
	defer rows.Close()
	recs := []core.Record{}
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return recs, nil
}

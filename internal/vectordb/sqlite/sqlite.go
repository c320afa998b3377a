// Package sqlite 基于 modernc sqlite 的向量库后端，向量以 JSON 存储，相似度在进程内计算
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	_ "modernc.org/sqlite"

	"github.com/iWorld-y/risk_radar/internal/vectordb"
)

const schema = `
CREATE TABLE IF NOT EXISTS %[1]s (
	id         TEXT PRIMARY KEY,
	entity     TEXT NOT NULL DEFAULT '',
	embedding  TEXT NOT NULL,
	dimension  INTEGER NOT NULL,
	metadata   TEXT NOT NULL DEFAULT '{}',
	updated_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_%[1]s_entity ON %[1]s(entity);
`

// Backend sqlite 向量库
type Backend struct {
	db    *sql.DB
	table string
	sb    sq.StatementBuilderType
}

var _ vectordb.Backend = (*Backend)(nil)

// New 打开数据库并建表
func New(ctx context.Context, dsn, table string) (*Backend, error) {
	if err := vectordb.ValidateTable(table); err != nil {
		return nil, err
	}
	if path := filePath(dsn); path != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create sqlite dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// sqlite 单写者
	db.SetMaxOpenConns(1)
	if _, err := db.ExecContext(ctx, fmt.Sprintf(schema, table)); err != nil {
		db.Close()
		return nil, fmt.Errorf("init sqlite schema: %w", err)
	}
	return &Backend{
		db:    db,
		table: table,
		sb:    sq.StatementBuilder.PlaceholderFormat(sq.Question),
	}, nil
}

func (b *Backend) Exists(ctx context.Context, id string) (bool, error) {
	query, args, err := b.sb.Select("1").From(b.table).Where(sq.Eq{"id": id}).Limit(1).ToSql()
	if err != nil {
		return false, err
	}
	var one int
	err = b.db.QueryRowContext(ctx, query, args...).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check exists: %w", err)
	}
	return true, nil
}

func (b *Backend) Upsert(ctx context.Context, rec vectordb.Record) error {
	vec, err := json.Marshal(rec.Vector)
	if err != nil {
		return fmt.Errorf("encode vector: %w", err)
	}
	meta, err := json.Marshal(rec.Metadata)
	if err != nil {
		return fmt.Errorf("encode metadata: %w", err)
	}
	entity, _ := rec.Metadata["entity"].(string)

	query, args, err := b.sb.Insert(b.table).
		Columns("id", "entity", "embedding", "dimension", "metadata", "updated_at").
		Values(rec.ID, entity, string(vec), len(rec.Vector), string(meta), time.Now().UTC()).
		Suffix(`ON CONFLICT(id) DO UPDATE SET
			entity = excluded.entity,
			embedding = excluded.embedding,
			dimension = excluded.dimension,
			metadata = excluded.metadata,
			updated_at = excluded.updated_at`).
		ToSql()
	if err != nil {
		return err
	}
	if _, err := b.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("upsert vector: %w", err)
	}
	return nil
}

func (b *Backend) Get(ctx context.Context, id string) (*vectordb.Record, error) {
	query, args, err := b.sb.Select("id", "embedding", "metadata").From(b.table).Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return nil, err
	}
	rec, err := scanRecord(b.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, vectordb.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (b *Backend) Delete(ctx context.Context, id string) error {
	query, args, err := b.sb.Delete(b.table).Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return err
	}
	if _, err := b.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("delete vector: %w", err)
	}
	return nil
}

func (b *Backend) Query(ctx context.Context, vector []float64, topK int, filter map[string]string) ([]vectordb.Match, error) {
	sel := b.sb.Select("id", "embedding", "metadata").From(b.table)
	if entity, ok := filter["entity"]; ok {
		sel = sel.Where(sq.Eq{"entity": entity})
	}
	query, args, err := sel.ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := b.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query vectors: %w", err)
	}
	defer rows.Close()

	var candidates []vectordb.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		candidates = append(candidates, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate vectors: %w", err)
	}
	return vectordb.TopK(candidates, vector, topK, filter), nil
}

func (b *Backend) Distinct(ctx context.Context, key string) ([]string, error) {
	if err := vectordb.ValidateKey(key); err != nil {
		return nil, err
	}
	path := "$." + key
	query, args, err := b.sb.Select().
		Column(sq.Expr("DISTINCT json_extract(metadata, ?)", path)).
		From(b.table).
		Where(sq.Expr("json_extract(metadata, ?) IS NOT NULL", path)).
		ToSql()
	if err != nil {
		return nil, err
	}
	return scanValues(ctx, b.db, query, args)
}

func (b *Backend) Stats(ctx context.Context) (vectordb.Stats, error) {
	query, args, err := b.sb.Select("COUNT(*)", "COALESCE(MAX(dimension), 0)").From(b.table).ToSql()
	if err != nil {
		return vectordb.Stats{}, err
	}
	var s vectordb.Stats
	if err := b.db.QueryRowContext(ctx, query, args...).Scan(&s.Count, &s.Dimension); err != nil {
		return vectordb.Stats{}, fmt.Errorf("stats: %w", err)
	}
	return s, nil
}

func (b *Backend) Close() error {
	return b.db.Close()
}

func scanValues(ctx context.Context, db *sql.DB, query string, args []any) ([]string, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("distinct values: %w", err)
	}
	defer rows.Close()

	var values []string
	for rows.Next() {
		var v sql.NullString
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		values = append(values, v.String)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate values: %w", err)
	}
	return vectordb.SortedValues(values), nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (vectordb.Record, error) {
	var (
		rec       vectordb.Record
		vec, meta string
	)
	if err := row.Scan(&rec.ID, &vec, &meta); err != nil {
		return rec, err
	}
	if err := json.Unmarshal([]byte(vec), &rec.Vector); err != nil {
		return rec, fmt.Errorf("decode vector %s: %w", rec.ID, err)
	}
	if err := json.Unmarshal([]byte(meta), &rec.Metadata); err != nil {
		return rec, fmt.Errorf("decode metadata %s: %w", rec.ID, err)
	}
	return rec, nil
}

// filePath 从 DSN 中取出文件路径，内存库返回空
func filePath(dsn string) string {
	path := strings.TrimPrefix(dsn, "file:")
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	if path == "" || path == ":memory:" || strings.HasPrefix(path, ":memory:") {
		return ""
	}
	return path
}

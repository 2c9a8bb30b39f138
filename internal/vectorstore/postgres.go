package vectorstore

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/BTreeMap/datcomagent/internal/workflowstate"
	_ "github.com/lib/pq"
)

// Connection pool tuning, matching the teacher's postgres store
// constants.
const (
	DefaultMaxOpenConns    = 25
	DefaultMaxIdleConns    = 25
	DefaultConnMaxLifetime = 5 * time.Minute
)

//go:embed migrations_postgres.sql
var postgresMigrations string

// PostgresStore is the production Vector Store Adapter backend, storing
// embeddings in a pgvector-enabled Postgres database using the
// langchain_pg_embedding/langchain_pg_collection schema this system's
// document corpus was already ingested into.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore opens a pooled connection to Postgres and ensures
// the expected schema exists.
func NewPostgresStore(opts ...Option) (*PostgresStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("vectorstore.NewPostgresStore: creating store", "dsnSet", cfg.DSN != "")
	if cfg.DSN == "" {
		return nil, fmt.Errorf("vector store DSN not set")
	}

	db, err := sql.Open("postgres", cfg.DSN)
	if err != nil {
		slog.Error("vectorstore.NewPostgresStore: failed to open connection", "error", err)
		return nil, err
	}
	db.SetMaxOpenConns(DefaultMaxOpenConns)
	db.SetMaxIdleConns(DefaultMaxIdleConns)
	db.SetConnMaxLifetime(DefaultConnMaxLifetime)

	if err := db.Ping(); err != nil {
		slog.Error("vectorstore.NewPostgresStore: ping failed", "error", err)
		return nil, err
	}
	if _, err := db.Exec(postgresMigrations); err != nil {
		slog.Error("vectorstore.NewPostgresStore: migrations failed", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("vectorstore.NewPostgresStore: ready")
	return &PostgresStore{db: db}, nil
}

func (s *PostgresStore) ListCollections(ctx context.Context) ([]CollectionStat, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT lpc.name, COUNT(lpe.id)
		FROM langchain_pg_collection lpc
		LEFT JOIN langchain_pg_embedding lpe ON lpe.collection_id = lpc.uuid
		GROUP BY lpc.name
		ORDER BY lpc.name`)
	if err != nil {
		slog.Error("PostgresStore.ListCollections: query failed", "error", err)
		return nil, err
	}
	defer rows.Close()

	var stats []CollectionStat
	for rows.Next() {
		var stat CollectionStat
		if err := rows.Scan(&stat.Name, &stat.DocumentCount); err != nil {
			return nil, err
		}
		stats = append(stats, stat)
	}
	return stats, rows.Err()
}

func (s *PostgresStore) SimilaritySearch(ctx context.Context, collection string, queryVector []float32, topK int) ([]workflowstate.RetrievedDoc, error) {
	vecLit := vectorLiteral(queryVector)
	query := `
		SELECT lpe.id, lpe.document, lpe.cmetadata, lpe.embedding <=> $1 AS distance
		FROM langchain_pg_embedding lpe
		JOIN langchain_pg_collection lpc ON lpe.collection_id = lpc.uuid
		WHERE lpc.name = $2
		ORDER BY lpe.embedding <=> $1
		LIMIT $3`

	rows, err := s.db.QueryContext(ctx, query, vecLit, collection, topK)
	if err != nil {
		slog.Error("PostgresStore.SimilaritySearch: query failed", "error", err, "collection", collection)
		return nil, err
	}
	defer rows.Close()

	var docs []workflowstate.RetrievedDoc
	for rows.Next() {
		var id, content string
		var metaJSON sql.NullString
		var distance float64
		if err := rows.Scan(&id, &content, &metaJSON, &distance); err != nil {
			return nil, err
		}
		docs = append(docs, workflowstate.RetrievedDoc{
			ID:         id,
			Collection: collection,
			Content:    content,
			Similarity: cosineSimilarity(distance),
			Metadata:   decodeMetadata(metaJSON),
		})
	}
	slog.Debug("PostgresStore.SimilaritySearch succeeded", "collection", collection, "count", len(docs))
	return docs, rows.Err()
}

func (s *PostgresStore) MetadataLookup(ctx context.Context, collection string, filter map[string]string) ([]workflowstate.RetrievedDoc, error) {
	var conds []string
	var args []interface{}
	args = append(args, collection)
	conds = append(conds, "lpc.name = $1")

	i := 2
	for key, val := range filter {
		conds = append(conds, fmt.Sprintf("lpe.cmetadata->>'%s' = $%d", sqlIdent(key), i))
		args = append(args, val)
		i++
	}

	query := fmt.Sprintf(`
		SELECT lpe.id, lpe.document, lpe.cmetadata
		FROM langchain_pg_embedding lpe
		JOIN langchain_pg_collection lpc ON lpe.collection_id = lpc.uuid
		WHERE %s
		ORDER BY lpe.cmetadata->>'article', CAST(NULLIF(lpe.cmetadata->>'article_chunk_seq', '') AS INTEGER)`,
		strings.Join(conds, " AND "))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		slog.Error("PostgresStore.MetadataLookup: query failed", "error", err, "collection", collection)
		return nil, err
	}
	defer rows.Close()

	var docs []workflowstate.RetrievedDoc
	for rows.Next() {
		var id, content string
		var metaJSON sql.NullString
		if err := rows.Scan(&id, &content, &metaJSON); err != nil {
			return nil, err
		}
		docs = append(docs, workflowstate.RetrievedDoc{
			ID:         id,
			Collection: collection,
			Content:    content,
			Similarity: 1,
			Metadata:   decodeMetadata(metaJSON),
		})
	}
	slog.Debug("PostgresStore.MetadataLookup succeeded", "collection", collection, "count", len(docs))
	return docs, rows.Err()
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}

// sqlIdent rejects characters that would let a caller break out of the
// single-quoted jsonb key literal; metadata filter keys come from tool
// arguments, not from the end user's raw question, but are treated as
// untrusted input regardless.
func sqlIdent(s string) string {
	return strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '_' {
			return r
		}
		return -1
	}, s)
}

func vectorLiteral(v []float32) string {
	var b strings.Builder
	b.WriteByte('[')
	for i, f := range v {
		if i > 0 {
			b.WriteByte(',')
		}
		fmt.Fprintf(&b, "%g", f)
	}
	b.WriteByte(']')
	return b.String()
}

func decodeMetadata(js sql.NullString) map[string]string {
	if !js.Valid || js.String == "" {
		return nil
	}
	var raw map[string]interface{}
	if err := json.Unmarshal([]byte(js.String), &raw); err != nil {
		slog.Warn("vectorstore: failed to decode cmetadata", "error", err)
		return nil
	}
	meta := make(map[string]string, len(raw))
	for k, v := range raw {
		meta[k] = fmt.Sprintf("%v", v)
	}
	return meta
}

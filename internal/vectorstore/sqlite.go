package vectorstore

import (
	"context"
	"database/sql"
	"encoding/binary"
	_ "embed"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"sort"

	"github.com/BTreeMap/datcomagent/internal/workflowstate"
	_ "github.com/mattn/go-sqlite3"
)

// DefaultDirPermissions is used when creating the SQLite database's
// parent directory, matching the teacher's sqlite store constant.
const DefaultDirPermissions = 0755

//go:embed migrations_sqlite.sql
var sqliteMigrations string

// SQLiteStore is the development/test Vector Store Adapter backend. It
// has no native vector index; similarity search scans a collection's
// rows and ranks them by cosine similarity computed in Go, which is
// adequate for the small fixture corpora used in tests.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (creating if necessary) a SQLite database file
// at the given DSN and ensures the expected schema exists.
func NewSQLiteStore(opts ...Option) (*SQLiteStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("vectorstore.NewSQLiteStore: creating store", "dsnSet", cfg.DSN != "")
	if cfg.DSN == "" {
		return nil, fmt.Errorf("vector store DSN not set")
	}

	if dir := filepath.Dir(cfg.DSN); dir != "." {
		if err := os.MkdirAll(dir, DefaultDirPermissions); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", cfg.DSN)
	if err != nil {
		slog.Error("vectorstore.NewSQLiteStore: failed to open connection", "error", err)
		return nil, err
	}
	if err := db.Ping(); err != nil {
		slog.Error("vectorstore.NewSQLiteStore: ping failed", "error", err)
		return nil, err
	}
	if _, err := db.Exec(sqliteMigrations); err != nil {
		slog.Error("vectorstore.NewSQLiteStore: migrations failed", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("vectorstore.NewSQLiteStore: ready")
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) ListCollections(ctx context.Context) ([]CollectionStat, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT c.name, COUNT(e.id)
		FROM collection c
		LEFT JOIN embedding e ON e.collection_id = c.id
		GROUP BY c.name
		ORDER BY c.name`)
	if err != nil {
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

type scoredRow struct {
	doc   workflowstate.RetrievedDoc
	score float64
}

func (s *SQLiteStore) SimilaritySearch(ctx context.Context, collection string, queryVector []float32, topK int) ([]workflowstate.RetrievedDoc, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT e.id, e.document, e.metadata, e.vector
		FROM embedding e
		JOIN collection c ON e.collection_id = c.id
		WHERE c.name = ?`, collection)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var scored []scoredRow
	for rows.Next() {
		var id, content string
		var metaJSON sql.NullString
		var vecBlob []byte
		if err := rows.Scan(&id, &content, &metaJSON, &vecBlob); err != nil {
			return nil, err
		}
		vec := decodeVector(vecBlob)
		scored = append(scored, scoredRow{
			doc: workflowstate.RetrievedDoc{
				ID:         id,
				Collection: collection,
				Content:    content,
				Metadata:   decodeMetadataJSON(metaJSON),
			},
			score: cosineSim(queryVector, vec),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.Slice(scored, func(i, j int) bool { return scored[i].score > scored[j].score })
	if topK > len(scored) {
		topK = len(scored)
	}
	docs := make([]workflowstate.RetrievedDoc, topK)
	for i := 0; i < topK; i++ {
		d := scored[i].doc
		d.Similarity = scored[i].score
		docs[i] = d
	}
	slog.Debug("SQLiteStore.SimilaritySearch succeeded", "collection", collection, "count", len(docs))
	return docs, nil
}

func (s *SQLiteStore) MetadataLookup(ctx context.Context, collection string, filter map[string]string) ([]workflowstate.RetrievedDoc, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT e.id, e.document, e.metadata
		FROM embedding e
		JOIN collection c ON e.collection_id = c.id
		WHERE c.name = ?`, collection)
	if err != nil {
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
		meta := decodeMetadataJSON(metaJSON)
		if !matchesFilter(meta, filter) {
			continue
		}
		docs = append(docs, workflowstate.RetrievedDoc{
			ID:         id,
			Collection: collection,
			Content:    content,
			Similarity: 1,
			Metadata:   meta,
		})
	}
	sort.Slice(docs, func(i, j int) bool {
		return articleSeq(docs[i].Metadata) < articleSeq(docs[j].Metadata)
	})
	return docs, rows.Err()
}

func (s *SQLiteStore) Close() error { return s.db.Close() }

func matchesFilter(meta map[string]string, filter map[string]string) bool {
	for k, v := range filter {
		if meta[k] != v {
			return false
		}
	}
	return true
}

func articleSeq(meta map[string]string) int {
	var seq int
	fmt.Sscanf(meta["article_chunk_seq"], "%d", &seq)
	return seq
}

func cosineSim(a []float32, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

func decodeVector(blob []byte) []float32 {
	n := len(blob) / 4
	vec := make([]float32, n)
	for i := 0; i < n; i++ {
		bits := binary.LittleEndian.Uint32(blob[i*4 : i*4+4])
		vec[i] = math.Float32frombits(bits)
	}
	return vec
}

func decodeMetadataJSON(js sql.NullString) map[string]string {
	if !js.Valid || js.String == "" {
		return nil
	}
	var raw map[string]interface{}
	if err := json.Unmarshal([]byte(js.String), &raw); err != nil {
		return nil
	}
	meta := make(map[string]string, len(raw))
	for k, v := range raw {
		meta[k] = fmt.Sprintf("%v", v)
	}
	return meta
}

// Package vectorstore provides the Vector Store Adapter (C3): a single
// interface over a similarity-search-capable document store, backed by
// either Postgres+pgvector (production) or SQLite (development/tests),
// following the teacher's dual-backend store pattern of one Go
// interface with functional-option construction for each backend.
package vectorstore

import (
	"context"

	"github.com/BTreeMap/datcomagent/internal/workflowstate"
)

// CollectionStat describes one collection known to the store, per
// spec §4.3's list_collections() -> [CollectionStat] contract.
type CollectionStat struct {
	Name          string
	DocumentCount int
}

// Store is implemented by PostgresStore and SQLiteStore.
type Store interface {
	// ListCollections returns every collection known to the store along
	// with its document count.
	ListCollections(ctx context.Context) ([]CollectionStat, error)

	// SimilaritySearch returns the topK documents in collection whose
	// embedding is closest (cosine) to queryVector.
	SimilaritySearch(ctx context.Context, collection string, queryVector []float32, topK int) ([]workflowstate.RetrievedDoc, error)

	// MetadataLookup returns documents in collection whose metadata
	// matches every key/value pair in filter, ordered by the
	// collection's natural chunk sequence when present.
	MetadataLookup(ctx context.Context, collection string, filter map[string]string) ([]workflowstate.RetrievedDoc, error)

	Close() error
}

// Opts carries the options every backend constructor accepts.
type Opts struct {
	DSN string
}

// Option configures an Opts value.
type Option func(*Opts)

// WithDSN sets the backend's data source name (a postgres:// URL for
// PostgresStore, a file path for SQLiteStore).
func WithDSN(dsn string) Option {
	return func(o *Opts) { o.DSN = dsn }
}

// cosineSimilarity converts a [0,2] cosine distance into a [0,1]
// similarity score, shared by both backends' row-mapping code.
func cosineSimilarity(distance float64) float64 {
	sim := 1 - distance/2
	if sim < 0 {
		return 0
	}
	if sim > 1 {
		return 1
	}
	return sim
}

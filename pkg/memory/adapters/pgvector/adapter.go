// Package pgvector implements a Postgres-backed vector memory adapter
// (spec §1's "vector stores" source category), storing content plus a
// numeric embedding and ranking query results by cosine similarity.
// No pgvector Postgres extension driver exists anywhere in the
// retrieval pack, so similarity is computed in Go over a plain
// float8[] column rather than a native vector type + `<=>` operator —
// the teacher's own vector store (`pkg/storage/vector`) backs onto
// plain `database/sql`/`pgx`, never a vector-extension client library.
package pgvector

import (
	"context"
	"encoding/json"
	"math"
	"sort"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/devbackplane/backplane/pkg/memory"
	sharederrors "github.com/devbackplane/backplane/pkg/shared/errors"
)

// Embedder turns text into a fixed-dimension vector. HashEmbedder is
// the local fallback; a real deployment configures a hosted embedding
// service through this same interface (spec's EmbeddingConfig).
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float64, error)
}

// Adapter is a concrete memory.Adapter backed by a Postgres table
// (spec §4.B).
type Adapter struct {
	memory.BaseAdapter
	Pool      *pgxpool.Pool
	Embedder  Embedder
	Dimension int
}

// New builds the adapter over an already-migrated pool (see Migrate).
func New(pool *pgxpool.Pool, embedder Embedder, dimension int) *Adapter {
	if embedder == nil {
		embedder = HashEmbedder{Dimension: dimension}
	}
	return &Adapter{
		BaseAdapter: memory.BaseAdapter{Name: "pgvector"},
		Pool:        pool, Embedder: embedder, Dimension: dimension,
	}
}

type record struct {
	id        string
	content   string
	summary   string
	itemType  string
	metadata  map[string]interface{}
	embedding []float64
	createdAt time.Time
}

// Query embeds question and ranks stored records by cosine similarity,
// scoped to filter.Project when set (spec §4.B Query).
func (a *Adapter) Query(ctx context.Context, question string, filter memory.SourceFilter) (memory.AdapterResult, error) {
	vec, err := a.Embedder.Embed(ctx, question)
	if err != nil {
		return memory.AdapterResult{Source: a.Name, Error: err.Error()}, nil
	}

	rows, err := a.fetchCandidates(ctx, filter)
	if err != nil {
		return memory.AdapterResult{}, err
	}

	limit := 10
	if filter.Limit != nil {
		limit = *filter.Limit
	}
	return memory.AdapterResult{Source: a.Name, Items: rank(rows, vec, limit)}, nil
}

// Search is a non-embedded substring fallback over content (spec §4.B
// "Search may be a simpler keyword pass").
func (a *Adapter) Search(ctx context.Context, query string, filter memory.SourceFilter) (memory.AdapterResult, error) {
	sqlQuery := `SELECT id, content, summary, item_type, metadata, embedding, created_at
	             FROM memory_vectors WHERE content ILIKE $1`
	args := []interface{}{"%" + query + "%"}
	if filter.Project != "" {
		sqlQuery += " AND metadata->>'project' = $2"
		args = append(args, filter.Project)
	}
	sqlQuery += " ORDER BY created_at DESC LIMIT 50"

	rows, err := a.Pool.Query(ctx, sqlQuery, args...)
	if err != nil {
		return memory.AdapterResult{}, sharederrors.FailedToWithDetails("search vectors", "pgvector", query, err)
	}
	defer rows.Close()

	recs, err := scanRecords(rows)
	if err != nil {
		return memory.AdapterResult{}, err
	}

	limit := 10
	if filter.Limit != nil {
		limit = *filter.Limit
	}
	if len(recs) > limit {
		recs = recs[:limit]
	}
	return memory.AdapterResult{Source: a.Name, Items: toItems(recs, nil)}, nil
}

// Store embeds value's string form and upserts it keyed on key (spec
// §4.B Store).
func (a *Adapter) Store(ctx context.Context, key string, value interface{}, filter memory.SourceFilter) (memory.AdapterResult, error) {
	content, summary, itemType := contentOf(value)
	vec, err := a.Embedder.Embed(ctx, content)
	if err != nil {
		return memory.AdapterResult{}, err
	}
	metadata := map[string]interface{}{}
	if filter.Project != "" {
		metadata["project"] = filter.Project
	}
	if filter.Namespace != "" {
		metadata["namespace"] = filter.Namespace
	}
	metaJSON, err := json.Marshal(metadata)
	if err != nil {
		return memory.AdapterResult{}, sharederrors.FailedTo("marshal metadata", err)
	}

	_, err = a.Pool.Exec(ctx, `
		INSERT INTO memory_vectors (id, content, summary, item_type, metadata, embedding, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, now())
		ON CONFLICT (id) DO UPDATE SET
			content = EXCLUDED.content, summary = EXCLUDED.summary,
			item_type = EXCLUDED.item_type, metadata = EXCLUDED.metadata,
			embedding = EXCLUDED.embedding`,
		key, content, summary, itemType, metaJSON, float64Array(vec))
	if err != nil {
		return memory.AdapterResult{}, sharederrors.FailedToWithDetails("store vector", "pgvector", key, err)
	}
	return memory.AdapterResult{Source: a.Name, Items: []memory.MemoryItem{{Source: a.Name, Type: itemType, Summary: summary, Content: content, Relevance: 1}}}, nil
}

// HealthCheck pings the pool (spec §4.B HealthCheck).
func (a *Adapter) HealthCheck(ctx context.Context) (memory.HealthStatus, error) {
	if err := a.Pool.Ping(ctx); err != nil {
		return memory.HealthStatus{Healthy: false, Error: err.Error()}, nil
	}
	return memory.HealthStatus{Healthy: true}, nil
}

func (a *Adapter) fetchCandidates(ctx context.Context, filter memory.SourceFilter) ([]record, error) {
	sqlQuery := `SELECT id, content, summary, item_type, metadata, embedding, created_at FROM memory_vectors`
	args := []interface{}{}
	if filter.Project != "" {
		sqlQuery += " WHERE metadata->>'project' = $1"
		args = append(args, filter.Project)
	}
	sqlQuery += " ORDER BY created_at DESC LIMIT 500"

	rows, err := a.Pool.Query(ctx, sqlQuery, args...)
	if err != nil {
		return nil, sharederrors.FailedTo("query vector candidates", err)
	}
	defer rows.Close()
	return scanRecords(rows)
}

func scanRecords(rows pgx.Rows) ([]record, error) {
	var out []record
	for rows.Next() {
		var r record
		var metaRaw []byte
		var emb []float64
		if err := rows.Scan(&r.id, &r.content, &r.summary, &r.itemType, &metaRaw, &emb, &r.createdAt); err != nil {
			return nil, sharederrors.FailedTo("scan vector row", err)
		}
		if len(metaRaw) > 0 {
			_ = json.Unmarshal(metaRaw, &r.metadata)
		}
		r.embedding = emb
		out = append(out, r)
	}
	return out, rows.Err()
}

func rank(records []record, query []float64, limit int) []memory.MemoryItem {
	scored := make([]memory.MemoryItem, 0, len(records))
	for _, r := range records {
		ts := r.createdAt
		scored = append(scored, memory.MemoryItem{
			Source: "pgvector", Type: r.itemType, Summary: r.summary, Content: r.content,
			Relevance: cosineSimilarity(query, r.embedding), Metadata: r.metadata, Timestamp: &ts,
		})
	}
	sort.Slice(scored, func(i, j int) bool { return scored[i].Relevance > scored[j].Relevance })
	if len(scored) > limit {
		scored = scored[:limit]
	}
	return scored
}

func toItems(records []record, score func(record) float64) []memory.MemoryItem {
	out := make([]memory.MemoryItem, 0, len(records))
	for _, r := range records {
		ts := r.createdAt
		rel := 0.5
		if score != nil {
			rel = score(r)
		}
		out = append(out, memory.MemoryItem{
			Source: "pgvector", Type: r.itemType, Summary: r.summary, Content: r.content,
			Relevance: rel, Metadata: r.metadata, Timestamp: &ts,
		})
	}
	return out
}

func cosineSimilarity(a, b []float64) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

func contentOf(value interface{}) (content, summary, itemType string) {
	switch v := value.(type) {
	case string:
		return v, truncate(v, 120), "text"
	case map[string]interface{}:
		b, _ := json.Marshal(v)
		return string(b), truncate(string(b), 120), "structured"
	default:
		b, _ := json.Marshal(v)
		return string(b), truncate(string(b), 120), "structured"
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

func float64Array(vec []float64) []float64 {
	if vec == nil {
		return []float64{}
	}
	return vec
}

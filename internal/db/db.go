package db

import (
	"context"
	"time"
)

// Store is the database facade combining all sub-interfaces. Consumers
// depend on the narrow sub-interfaces, not on Store itself.
type Store interface {
	Pinger
	KVStore
	HashStore
	SortedSetStore
	VectorSearcher
	Close()
	WaitForReady(ctx context.Context, timeout time.Duration) error
}

// Pinger checks database connectivity.
type Pinger interface {
	Ping(ctx context.Context) error
}

// KVStore provides simple key-value operations.
type KVStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// HashSetItem holds a single key+fields pair for pipelined HSET.
type HashSetItem struct {
	Key    string
	Fields map[string]string
}

// HashStore provides pipelined hash operations plus paginated key scans.
type HashStore interface {
	HSetMulti(ctx context.Context, items []HashSetItem) error
	HGetAllMulti(ctx context.Context, keys []string) ([]map[string]string, error)
	// ScanPage returns one SCAN page of keys matching pattern. A returned
	// cursor of 0 means the iteration is exhausted.
	ScanPage(ctx context.Context, pattern string, cursor uint64, count int) ([]string, uint64, error)
}

// ZMember is one sorted-set member with its score.
type ZMember struct {
	Member string
	Score  float64
}

// ZAddItem holds one key plus members for pipelined ZADD.
type ZAddItem struct {
	Key     string
	Members []ZMember
}

// SortedSetStore provides sorted-set operations for term posting lists.
type SortedSetStore interface {
	ZAddMulti(ctx context.Context, items []ZAddItem) error
	ZRangeWithScores(ctx context.Context, key string) ([]ZMember, error)
}

// VectorIndexDefinition describes an HNSW vector index over hash keys.
type VectorIndexDefinition struct {
	Name            string
	Prefix          string
	VectorField     string
	Dimensions      int
	HNSWM           int
	HNSWEFConstruct int
}

// KNNQuery is a K-nearest-neighbor search request.
type KNNQuery struct {
	IndexName    string
	Vector       []float32
	K            int
	ReturnFields []string
}

// SearchEntry is a single search hit.
type SearchEntry struct {
	Key    string
	Score  float64
	Fields map[string]string
}

// SearchResult holds search hits plus the server-side total.
type SearchResult struct {
	Total   int
	Entries []SearchEntry
}

// VectorSearcher provides vector index lifecycle and KNN search.
type VectorSearcher interface {
	EnsureVectorIndex(ctx context.Context, def *VectorIndexDefinition) error
	SearchKNN(ctx context.Context, q *KNNQuery) (*SearchResult, error)
}

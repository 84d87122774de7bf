package store

import (
	"context"
	"errors"
	"math"
	"testing"

	"go.uber.org/zap"

	"github.com/kailas-cloud/shopsearch/internal/db"
	"github.com/kailas-cloud/shopsearch/internal/domain"
	"github.com/kailas-cloud/shopsearch/internal/domain/document"
	"github.com/kailas-cloud/shopsearch/internal/domain/search/channel"
	"github.com/kailas-cloud/shopsearch/internal/usecase/index"
	"github.com/kailas-cloud/shopsearch/internal/usecase/sparse"
)

// --- Mocks ---

type fakeDB struct {
	hashes   map[string]map[string]string
	postings map[string][]db.ZMember
	knn      *db.SearchResult
	knnErr   error
	zErr     error

	hsetItems []db.HashSetItem
	zaddItems []db.ZAddItem
	scanPages [][]string
	scanCalls int
}

func newFakeDB() *fakeDB {
	return &fakeDB{
		hashes:   make(map[string]map[string]string),
		postings: make(map[string][]db.ZMember),
	}
}

func (f *fakeDB) HSetMulti(_ context.Context, items []db.HashSetItem) error {
	f.hsetItems = items
	for _, item := range items {
		f.hashes[item.Key] = item.Fields
	}
	return nil
}

func (f *fakeDB) HGetAllMulti(_ context.Context, keys []string) ([]map[string]string, error) {
	out := make([]map[string]string, len(keys))
	for i, key := range keys {
		out[i] = f.hashes[key]
	}
	return out, nil
}

func (f *fakeDB) ScanPage(_ context.Context, _ string, cursor uint64, _ int) ([]string, uint64, error) {
	idx := int(cursor)
	f.scanCalls++
	if idx >= len(f.scanPages) {
		return nil, 0, nil
	}
	next := uint64(idx + 1)
	if idx == len(f.scanPages)-1 {
		next = 0
	}
	return f.scanPages[idx], next, nil
}

func (f *fakeDB) ZAddMulti(_ context.Context, items []db.ZAddItem) error {
	f.zaddItems = items
	for _, item := range items {
		f.postings[item.Key] = append(f.postings[item.Key], item.Members...)
	}
	return nil
}

func (f *fakeDB) ZRangeWithScores(_ context.Context, key string) ([]db.ZMember, error) {
	if f.zErr != nil {
		return nil, f.zErr
	}
	return f.postings[key], nil
}

func (f *fakeDB) EnsureVectorIndex(_ context.Context, _ *db.VectorIndexDefinition) error {
	return nil
}

func (f *fakeDB) SearchKNN(_ context.Context, _ *db.KNNQuery) (*db.SearchResult, error) {
	if f.knnErr != nil {
		return nil, f.knnErr
	}
	return f.knn, nil
}

type staticResolver struct {
	terms map[string]float64
}

func (s *staticResolver) ResolveTerms(_ sparse.Vector) map[string]float64 {
	return s.terms
}

// --- Tests ---

func TestSearchDense(t *testing.T) {
	fake := newFakeDB()
	fake.knn = &db.SearchResult{
		Total: 2,
		Entries: []db.SearchEntry{
			{Key: docKeyPrefix + "d1", Score: 0.92, Fields: map[string]string{
				"text": "first chunk", "metadata": `{"subreddit_name":"BuyItForLife"}`,
			}},
			{Key: docKeyPrefix + "d2", Score: 0.85, Fields: map[string]string{"text": "second chunk"}},
		},
	}
	repo := New(fake, &staticResolver{}, 4, zap.NewNop())

	hits, err := repo.SearchDense(context.Background(), []float32{1, 0, 0, 0}, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(hits) != 2 {
		t.Fatalf("expected 2 hits, got %d", len(hits))
	}
	if hits[0].ID() != "d1" || hits[0].Score() != 0.92 {
		t.Errorf("hit[0] = %s %v", hits[0].ID(), hits[0].Score())
	}
	if hits[0].Channel() != channel.Dense {
		t.Errorf("channel = %v, want dense", hits[0].Channel())
	}
	if hits[0].Document().Metadata()["subreddit_name"] != "BuyItForLife" {
		t.Errorf("metadata not decoded: %v", hits[0].Document().Metadata())
	}
}

func TestSearchSparse_DotProductRanking(t *testing.T) {
	fake := newFakeDB()
	fake.postings[termKeyPrefix+"headphones"] = []db.ZMember{
		{Member: "d1", Score: 0.8},
		{Member: "d2", Score: 0.2},
	}
	fake.postings[termKeyPrefix+"wireless"] = []db.ZMember{
		{Member: "d2", Score: 0.9},
	}
	fake.hashes[docKeyPrefix+"d1"] = map[string]string{"text": "doc one"}
	fake.hashes[docKeyPrefix+"d2"] = map[string]string{"text": "doc two"}

	resolver := &staticResolver{terms: map[string]float64{"headphones": 1.0, "wireless": 0.5}}
	repo := New(fake, resolver, 4, zap.NewNop())

	hits, err := repo.SearchSparse(context.Background(), sparse.Vector{Indices: []int{0}, Values: []float64{1}}, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(hits) != 2 {
		t.Fatalf("expected 2 hits, got %d", len(hits))
	}
	// d1: 1.0*0.8 = 0.8; d2: 1.0*0.2 + 0.5*0.9 = 0.65
	if hits[0].ID() != "d1" || math.Abs(hits[0].Score()-0.8) > 1e-9 {
		t.Errorf("hit[0] = %s %v, want d1 0.8", hits[0].ID(), hits[0].Score())
	}
	if hits[1].ID() != "d2" || math.Abs(hits[1].Score()-0.65) > 1e-9 {
		t.Errorf("hit[1] = %s %v, want d2 0.65", hits[1].ID(), hits[1].Score())
	}
	if hits[0].Channel() != channel.Sparse {
		t.Errorf("channel = %v, want sparse", hits[0].Channel())
	}
	if hits[0].Document().Text() != "doc one" {
		t.Errorf("text = %q", hits[0].Document().Text())
	}
}

func TestSearchSparse_EmptyQueryTerms(t *testing.T) {
	repo := New(newFakeDB(), &staticResolver{}, 4, zap.NewNop())

	hits, err := repo.SearchSparse(context.Background(), sparse.Vector{}, 10)
	if err != nil || hits != nil {
		t.Errorf("expected nil hits, nil error; got %v, %v", hits, err)
	}
}

func TestSearchSparse_TieBreaksByID(t *testing.T) {
	fake := newFakeDB()
	fake.postings[termKeyPrefix+"term"] = []db.ZMember{
		{Member: "zz", Score: 0.5},
		{Member: "aa", Score: 0.5},
	}
	fake.hashes[docKeyPrefix+"aa"] = map[string]string{"text": "a"}
	fake.hashes[docKeyPrefix+"zz"] = map[string]string{"text": "z"}

	resolver := &staticResolver{terms: map[string]float64{"term": 1.0}}
	repo := New(fake, resolver, 4, zap.NewNop())

	hits, err := repo.SearchSparse(context.Background(), sparse.Vector{Indices: []int{0}, Values: []float64{1}}, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if hits[0].ID() != "aa" || hits[1].ID() != "zz" {
		t.Errorf("tie order = %s, %s; want aa, zz", hits[0].ID(), hits[1].ID())
	}
}

func TestSearchSparse_LimitTruncates(t *testing.T) {
	fake := newFakeDB()
	fake.postings[termKeyPrefix+"term"] = []db.ZMember{
		{Member: "d1", Score: 0.9},
		{Member: "d2", Score: 0.8},
		{Member: "d3", Score: 0.7},
	}
	for _, id := range []string{"d1", "d2", "d3"} {
		fake.hashes[docKeyPrefix+id] = map[string]string{"text": id}
	}

	resolver := &staticResolver{terms: map[string]float64{"term": 1.0}}
	repo := New(fake, resolver, 4, zap.NewNop())

	hits, err := repo.SearchSparse(context.Background(), sparse.Vector{Indices: []int{0}, Values: []float64{1}}, 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(hits) != 2 {
		t.Errorf("expected 2 hits, got %d", len(hits))
	}
}

func TestSearchSparse_PostingReadError(t *testing.T) {
	fake := newFakeDB()
	fake.zErr = errors.New("redis down")

	resolver := &staticResolver{terms: map[string]float64{"term": 1.0}}
	repo := New(fake, resolver, 4, zap.NewNop())

	_, err := repo.SearchSparse(context.Background(), sparse.Vector{Indices: []int{0}, Values: []float64{1}}, 10)
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, domain.ErrStoreUnavailable) {
		t.Errorf("expected ErrStoreUnavailable in chain, got %v", err)
	}
	if !errors.Is(err, fake.zErr) {
		t.Errorf("expected underlying error preserved, got %v", err)
	}
}

func TestSearchDense_StoreError(t *testing.T) {
	fake := newFakeDB()
	fake.knnErr = errors.New("redis down")

	repo := New(fake, &staticResolver{}, 4, zap.NewNop())

	_, err := repo.SearchDense(context.Background(), []float32{1, 0, 0, 0}, 10)
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, domain.ErrStoreUnavailable) {
		t.Errorf("expected ErrStoreUnavailable in chain, got %v", err)
	}
}

func TestUpsert(t *testing.T) {
	fake := newFakeDB()
	repo := New(fake, &staticResolver{}, 4, zap.NewNop())

	items := []index.Item{
		{
			Doc:         document.New("d1", "first text", map[string]any{"subreddit_name": "HeadphoneAdvice"}),
			Dense:       []float32{1, 2, 3, 4},
			SparseTerms: map[string]float64{"first": 0.7, "text": 0.3},
		},
	}

	if err := repo.Upsert(context.Background(), items); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	hash := fake.hashes[docKeyPrefix+"d1"]
	if hash == nil {
		t.Fatal("document hash not written")
	}
	if hash["text"] != "first text" {
		t.Errorf("text = %q", hash["text"])
	}
	if len(hash[vectorField]) != 16 {
		t.Errorf("vector bytes = %d, want 16 (4 float32)", len(hash[vectorField]))
	}
	if len(fake.zaddItems) != 2 {
		t.Fatalf("expected 2 posting keys, got %d", len(fake.zaddItems))
	}
	for _, z := range fake.zaddItems {
		if z.Members[0].Member != "d1" {
			t.Errorf("posting member = %q, want d1", z.Members[0].Member)
		}
	}
}

func TestListTexts(t *testing.T) {
	fake := newFakeDB()
	fake.scanPages = [][]string{{docKeyPrefix + "d1", docKeyPrefix + "d2"}}
	fake.hashes[docKeyPrefix+"d1"] = map[string]string{"text": "one"}
	fake.hashes[docKeyPrefix+"d2"] = map[string]string{"text": "two"}

	repo := New(fake, &staticResolver{}, 4, zap.NewNop())

	texts, next, err := repo.ListTexts(context.Background(), 0, 100)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if next != 0 {
		t.Errorf("cursor = %d, want 0 (exhausted)", next)
	}
	if len(texts) != 2 || texts[0] != "one" || texts[1] != "two" {
		t.Errorf("texts = %v", texts)
	}
}

func TestListTexts_SkipsEmptyTexts(t *testing.T) {
	fake := newFakeDB()
	fake.scanPages = [][]string{{docKeyPrefix + "d1", docKeyPrefix + "broken"}}
	fake.hashes[docKeyPrefix+"d1"] = map[string]string{"text": "one"}
	fake.hashes[docKeyPrefix+"broken"] = map[string]string{}

	repo := New(fake, &staticResolver{}, 4, zap.NewNop())

	texts, _, err := repo.ListTexts(context.Background(), 0, 100)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(texts) != 1 {
		t.Errorf("expected empty text skipped, got %v", texts)
	}
}

package rerank

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"

	"github.com/kailas-cloud/shopsearch/internal/domain/document"
	"github.com/kailas-cloud/shopsearch/internal/domain/search/channel"
	"github.com/kailas-cloud/shopsearch/internal/domain/search/result"
)

// --- Mocks ---

type stubJudge struct {
	scores    []float64
	err       error
	lastQuery string
	lastTexts []string
}

func (s *stubJudge) JudgeRelevance(_ context.Context, query string, texts []string) ([]float64, error) {
	s.lastQuery = query
	s.lastTexts = texts
	return s.scores, s.err
}

// --- Tests ---

func TestLLM_RanksByJudgedScore(t *testing.T) {
	judge := &stubJudge{scores: []float64{0.2, 0.9, 0.5}}
	r := NewLLM(judge, zap.NewNop())
	cands := []result.ScoredDocument{
		candidate("doc one", 0.9),
		candidate("doc two", 0.8),
		candidate("doc three", 0.7),
	}

	out, judgments := r.Rerank(context.Background(), "query", cands, 2)

	if len(out) != 2 {
		t.Fatalf("expected 2 results, got %d", len(out))
	}
	if out[0].Document().Text() != "doc two" || out[1].Document().Text() != "doc three" {
		t.Errorf("unexpected order: %q, %q",
			out[0].Document().Text(), out[1].Document().Text())
	}
	if out[0].Score() != 0.9 || out[0].Channel() != channel.Reranked {
		t.Errorf("unexpected top result: score=%v channel=%v", out[0].Score(), out[0].Channel())
	}
	if judgments[0].DocID != document.StableID("doc two") {
		t.Errorf("judgment id = %q, want content id", judgments[0].DocID)
	}
	if judge.lastQuery != "query" {
		t.Errorf("judge saw query %q", judge.lastQuery)
	}
}

func TestLLM_PassthroughWhenFewCandidates(t *testing.T) {
	judge := &stubJudge{}
	r := NewLLM(judge, zap.NewNop())
	cands := []result.ScoredDocument{candidate("only doc", 0.9)}

	out, judgments := r.Rerank(context.Background(), "query", cands, 5)

	if len(out) != 1 || judgments != nil {
		t.Errorf("expected untouched passthrough, got %d results, %v judgments", len(out), judgments)
	}
	if judge.lastTexts != nil {
		t.Error("judge must not be called on passthrough")
	}
}

func TestLLM_ErrorFallsBack(t *testing.T) {
	judge := &stubJudge{err: errors.New("provider down")}
	r := NewLLM(judge, zap.NewNop())
	cands := []result.ScoredDocument{
		candidate("doc one", 0.9),
		candidate("doc two", 0.8),
		candidate("doc three", 0.7),
	}

	out, judgments := r.Rerank(context.Background(), "query", cands, 2)

	if len(out) != 2 {
		t.Fatalf("expected fallback to first 2 candidates, got %d", len(out))
	}
	if out[0].Document().Text() != "doc one" {
		t.Errorf("fallback changed order: %q", out[0].Document().Text())
	}
	if judgments != nil {
		t.Errorf("expected nil judgments on fallback, got %v", judgments)
	}
}

func TestLLM_ScoreCountMismatchFallsBack(t *testing.T) {
	judge := &stubJudge{scores: []float64{0.5}}
	r := NewLLM(judge, zap.NewNop())
	cands := []result.ScoredDocument{
		candidate("doc one", 0.9),
		candidate("doc two", 0.8),
		candidate("doc three", 0.7),
	}

	out, judgments := r.Rerank(context.Background(), "query", cands, 2)

	if len(out) != 2 || judgments != nil {
		t.Errorf("expected fallback, got %d results, %v judgments", len(out), judgments)
	}
}

func TestLLM_ClampsScores(t *testing.T) {
	judge := &stubJudge{scores: []float64{1.7, -0.3, 0.5}}
	r := NewLLM(judge, zap.NewNop())
	cands := []result.ScoredDocument{
		candidate("doc one", 0.9),
		candidate("doc two", 0.8),
		candidate("doc three", 0.7),
	}

	out, _ := r.Rerank(context.Background(), "query", cands, 2)

	if out[0].Score() != 1.0 {
		t.Errorf("expected clamp to 1.0, got %v", out[0].Score())
	}
	if out[1].Score() != 0.5 {
		t.Errorf("expected 0.5 second, got %v", out[1].Score())
	}
}

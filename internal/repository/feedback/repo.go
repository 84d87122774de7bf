package feedback

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/kailas-cloud/shopsearch/internal/db"
	"github.com/kailas-cloud/shopsearch/internal/domain"
	"github.com/kailas-cloud/shopsearch/internal/usecase/evaluate"
)

const (
	keyPrefix = "shopsearch:eval:"
	recordTTL = 30 * 24 * time.Hour
	latestKey = keyPrefix + "latest"
)

// Repo persists flat evaluation records in the key-value store for the
// downstream feedback dashboard.
type Repo struct {
	kv db.KVStore
}

// New creates a feedback repository.
func New(kv db.KVStore) *Repo {
	return &Repo{kv: kv}
}

var _ evaluate.Sink = (*Repo)(nil)

// SaveEvaluation stores the record under its request id and as the latest
// snapshot. Records expire; the dashboard reads them within days, not months.
func (r *Repo) SaveEvaluation(ctx context.Context, rec evaluate.Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal evaluation record: %w", err)
	}

	if err := r.kv.SetWithTTL(ctx, keyPrefix+rec.RequestID, data, recordTTL); err != nil {
		return fmt.Errorf("store evaluation record: %w", err)
	}
	if err := r.kv.Set(ctx, latestKey, data); err != nil {
		return fmt.Errorf("store latest evaluation: %w", err)
	}
	return nil
}

// LatestEvaluation returns the most recently saved record, or
// domain.ErrNotFound when no evaluation has run yet.
func (r *Repo) LatestEvaluation(ctx context.Context) (evaluate.Record, error) {
	data, err := r.kv.Get(ctx, latestKey)
	if err != nil {
		if errors.Is(err, db.ErrKeyNotFound) {
			return evaluate.Record{}, domain.ErrNotFound
		}
		return evaluate.Record{}, fmt.Errorf("read latest evaluation: %w", err)
	}

	var rec evaluate.Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return evaluate.Record{}, fmt.Errorf("decode latest evaluation: %w", err)
	}
	return rec, nil
}

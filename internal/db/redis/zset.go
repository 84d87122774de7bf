package redis

import (
	"context"
	"fmt"

	"github.com/redis/rueidis"

	"github.com/kailas-cloud/shopsearch/internal/db"
)

// ZAddMulti adds members to multiple sorted sets in a single DoMulti round-trip.
func (s *Store) ZAddMulti(ctx context.Context, items []db.ZAddItem) error {
	if len(items) == 0 {
		return nil
	}

	cmds := make([]rueidis.Completed, 0, len(items))
	for _, item := range items {
		cmd := s.b().Zadd().Key(item.Key).ScoreMember()
		for _, m := range item.Members {
			cmd = cmd.ScoreMember(m.Score, m.Member)
		}
		cmds = append(cmds, cmd.Build())
	}

	results := s.client.DoMulti(ctx, cmds...)
	for i, res := range results {
		if err := res.Error(); err != nil {
			return &db.Error{Op: db.OpZAdd, Err: fmt.Errorf("key %s: %w", items[i].Key, err)}
		}
	}
	return nil
}

// ZRangeWithScores returns all members of a sorted set with their scores.
func (s *Store) ZRangeWithScores(ctx context.Context, key string) ([]db.ZMember, error) {
	cmd := s.b().Zrange().Key(key).Min("0").Max("-1").Withscores().Build()
	scores, err := s.do(ctx, cmd).AsZScores()
	if err != nil {
		return nil, &db.Error{Op: db.OpZRange, Err: err}
	}

	members := make([]db.ZMember, len(scores))
	for i, z := range scores {
		members[i] = db.ZMember{Member: z.Member, Score: z.Score}
	}
	return members, nil
}

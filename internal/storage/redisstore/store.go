// Package redisstore — история беседы в Redis-списке: RPUSH в конец,
// LTRIM держит хвост фиксированной длины, LRANGE отдаёт срез истории.
package redisstore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/globalchat/internal/logger"
	"github.com/globalchat/internal/model"
)

const (
	historyKey = "globalchat:messages"
	maxLen     = 1000
)

type Store struct {
	cli *redis.Client
}

func New(ctx context.Context, url string) (*Store, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("redis parse url: %w", err)
	}
	cli := redis.NewClient(opts)
	if err := cli.Ping(ctx).Err(); err != nil {
		if closeErr := cli.Close(); closeErr != nil {
			return nil, fmt.Errorf("redis ping: %w (close: %v)", err, closeErr)
		}
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &Store{cli: cli}, nil
}

func (s *Store) Close() error {
	return s.cli.Close()
}

func (s *Store) Append(ctx context.Context, rec model.Record) error {
	defer logger.DeferLogDuration("redisstore.Append", time.Now())()
	raw, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("redisstore.Append marshal: %w", err)
	}
	pipe := s.cli.TxPipeline()
	pipe.RPush(ctx, historyKey, raw)
	pipe.LTrim(ctx, historyKey, -maxLen, -1)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redisstore.Append: %w", err)
	}
	return nil
}

func (s *Store) History(ctx context.Context, limit int) ([]model.Record, error) {
	defer logger.DeferLogDuration("redisstore.History", time.Now())()
	if limit <= 0 {
		limit = 50
	}
	raws, err := s.cli.LRange(ctx, historyKey, int64(-limit), -1).Result()
	if err != nil {
		return nil, fmt.Errorf("redisstore.History: %w", err)
	}
	records := make([]model.Record, 0, len(raws))
	for _, raw := range raws {
		var rec model.Record
		if err := json.Unmarshal([]byte(raw), &rec); err != nil {
			// Битую запись пропускаем, историю не роняем.
			logger.Errorf("redisstore: skip malformed record: %v", err)
			continue
		}
		records = append(records, rec)
	}
	return records, nil
}

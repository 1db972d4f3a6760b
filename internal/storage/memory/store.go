// Package memory — хранилище истории в памяти процесса: тесты и запуск
// -store=memory без Postgres/Redis.
package memory

import (
	"context"
	"sync"

	"github.com/globalchat/internal/model"
)

const defaultCap = 1000

type Store struct {
	mu      sync.RWMutex
	records []model.Record
	maxLen  int
}

func New() *Store {
	return &Store{maxLen: defaultCap}
}

func (s *Store) Close() error { return nil }

func (s *Store) Append(ctx context.Context, rec model.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, rec)
	if len(s.records) > s.maxLen {
		s.records = s.records[len(s.records)-s.maxLen:]
	}
	return nil
}

func (s *Store) History(ctx context.Context, limit int) ([]model.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	recs := s.records
	if limit > 0 && len(recs) > limit {
		recs = recs[len(recs)-limit:]
	}
	out := make([]model.Record, len(recs))
	copy(out, recs)
	return out, nil
}

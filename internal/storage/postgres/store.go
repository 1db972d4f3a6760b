// Package postgres — основное хранилище истории беседы поверх pgx pool.
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/globalchat/internal/logger"
	"github.com/globalchat/internal/model"
)

type Store struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

func (s *Store) Append(ctx context.Context, rec model.Record) error {
	defer logger.DeferLogDuration("store.Append", time.Now())()
	createdAt := model.ParseCreatedAt(rec.CreatedAt)
	_, err := s.pool.Exec(ctx,
		`INSERT INTO global_messages (id, sender_id, sender_name, sender_avatar_url, message, type, file_url, duration, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		rec.ID, rec.SenderID, rec.SenderName, rec.SenderAvatarURL, rec.Message, rec.Type, rec.FileURL, rec.Duration, createdAt,
	)
	if err != nil {
		return fmt.Errorf("store.Append: %w", err)
	}
	return nil
}

func (s *Store) History(ctx context.Context, limit int) ([]model.Record, error) {
	defer logger.DeferLogDuration("store.History", time.Now())()
	if limit <= 0 {
		limit = 50
	}
	// Последние limit записей, но отдаём по возрастанию.
	rows, err := s.pool.Query(ctx,
		`SELECT id, sender_id, sender_name, sender_avatar_url, message, type, file_url, duration, created_at
		 FROM (
		   SELECT * FROM global_messages ORDER BY created_at DESC LIMIT $1
		 ) tail
		 ORDER BY created_at ASC`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("store.History query: %w", err)
	}
	defer rows.Close()

	records := make([]model.Record, 0, limit)
	for rows.Next() {
		var rec model.Record
		var createdAt time.Time
		if err := rows.Scan(&rec.ID, &rec.SenderID, &rec.SenderName, &rec.SenderAvatarURL,
			&rec.Message, &rec.Type, &rec.FileURL, &rec.Duration, &createdAt); err != nil {
			return nil, fmt.Errorf("store.History scan: %w", err)
		}
		rec.CreatedAt = createdAt.UTC().Format(time.RFC3339Nano)
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store.History rows: %w", err)
	}
	return records, nil
}

// Package startup — подключение к внешним хранилищам с повторами:
// при старте зависимости могут подниматься дольше сервиса.
package startup

import (
	"context"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/globalchat/internal/logger"
)

// ConnectDBWithRetry подключается к Postgres с экспоненциальным backoff;
// при недоступности БД процесс не падает сразу, но maxWait ограничивает ожидание.
func ConnectDBWithRetry(poolCfg *pgxpool.Config, maxWait time.Duration) *pgxpool.Pool {
	deadline := time.Now().Add(maxWait)
	backoff := 2 * time.Second
	for {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
		cancel()
		if err == nil {
			pingCtx, pingCancel := context.WithTimeout(context.Background(), 5*time.Second)
			err = pool.Ping(pingCtx)
			pingCancel()
			if err == nil {
				return pool
			}
			pool.Close()
		}
		if time.Now().After(deadline) {
			logger.Errorf("db connect (gave up after %v): %v", maxWait, err)
			os.Exit(1)
		}
		logger.Errorf("db connect failed, retry in %v: %v", backoff, err)
		time.Sleep(backoff)
		if backoff < 30*time.Second {
			backoff *= 2
		}
	}
}

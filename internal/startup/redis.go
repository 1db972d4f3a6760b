package startup

import (
	"context"
	"os"
	"time"

	"github.com/globalchat/internal/logger"
	"github.com/globalchat/internal/storage/redisstore"
)

// ConnectRedisWithRetry подключается к Redis с повторами.
func ConnectRedisWithRetry(redisURL string, maxWait time.Duration) *redisstore.Store {
	deadline := time.Now().Add(maxWait)
	backoff := 2 * time.Second
	for {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		store, err := redisstore.New(ctx, redisURL)
		cancel()
		if err == nil {
			return store
		}
		if time.Now().After(deadline) {
			logger.Errorf("redis (gave up after %v): %v", maxWait, err)
			os.Exit(1)
		}
		logger.Errorf("redis connect failed, retry in %v: %v", backoff, err)
		time.Sleep(backoff)
		if backoff < 30*time.Second {
			backoff *= 2
		}
	}
}

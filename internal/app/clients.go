package app

import (
	"context"
	"fmt"

	goredis "github.com/redis/go-redis/v9"

	"github.com/yungbote/curriculum-backend/internal/clients/redis"
	"github.com/yungbote/curriculum-backend/internal/platform/gcp"
	"github.com/yungbote/curriculum-backend/internal/platform/logger"
)

type Clients struct {
	// Redis is nil when REDIS_ADDR is unset.
	Redis *goredis.Client
	// Documents is nil when GCS_BUCKET_NAME is unset.
	Documents gcp.DocumentStore
}

func wireClients(ctx context.Context, log *logger.Logger) (Clients, error) {
	log.Info("Wiring clients...")

	var rdb *goredis.Client
	if redis.Addr() != "" {
		c, err := redis.NewClient(ctx, log)
		if err != nil {
			return Clients{}, fmt.Errorf("init redis: %w", err)
		}
		rdb = c
	}

	storageCfg, cfgErr := gcp.StorageConfigFromEnv()
	docs, err := resolveDocumentStore(ctx, log, storageCfg, cfgErr)
	if err != nil {
		if rdb != nil {
			_ = rdb.Close()
		}
		return Clients{}, err
	}

	return Clients{Redis: rdb, Documents: docs}, nil
}

func (c *Clients) Close() {
	if c == nil {
		return
	}
	if c.Redis != nil {
		_ = c.Redis.Close()
	}
	if c.Documents != nil {
		_ = c.Documents.Close()
	}
}

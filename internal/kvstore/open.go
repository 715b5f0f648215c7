package kvstore

import (
	"context"
	"fmt"
	"strings"

	"github.com/ignite/campaign-dispatch/internal/config"
)

// Open builds the backend named by cfg.Driver.
func Open(ctx context.Context, cfg config.CheckpointConfig) (Backend, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Driver)) {
	case "", "file":
		return NewFile(cfg.Path)
	case "memory":
		return NewMemory(), nil
	case "redis":
		if cfg.RedisURL == "" {
			return nil, fmt.Errorf("kvstore: redis driver requires redis_url")
		}
		return NewRedisFromURL(cfg.RedisURL)
	case "postgres", "postgresql":
		if cfg.DatabaseURL == "" {
			return nil, fmt.Errorf("kvstore: postgres driver requires database_url")
		}
		return OpenPostgres(ctx, cfg.DatabaseURL)
	case "dynamodb":
		return OpenDynamoDB(ctx, cfg.DynamoDBTable, cfg.AWSRegion, cfg.GetAWSProfile())
	default:
		return nil, fmt.Errorf("kvstore: unknown driver %q", cfg.Driver)
	}
}

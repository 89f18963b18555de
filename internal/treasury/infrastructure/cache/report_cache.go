// Package cache 金库模拟报告缓存
package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/wyfcoding/defitreasury/internal/treasury/domain"
)

const (
	latestReportKey = "treasury:report:latest"
	reportTTL       = 24 * time.Hour
)

type redisReportCache struct {
	client redis.UniversalClient
}

// NewRedisReportCache 创建基于 redis 的报告缓存
func NewRedisReportCache(client redis.UniversalClient) domain.RunReportCache {
	return &redisReportCache{client: client}
}

func (c *redisReportCache) SetLatest(ctx context.Context, run *domain.SimulationRun) error {
	data, err := json.Marshal(run)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, latestReportKey, data, reportTTL).Err()
}

func (c *redisReportCache) GetLatest(ctx context.Context) (*domain.SimulationRun, error) {
	data, err := c.client.Get(ctx, latestReportKey).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var run domain.SimulationRun
	if err := json.Unmarshal(data, &run); err != nil {
		return nil, err
	}
	return &run, nil
}

package cache

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/redis/go-redis/v9"

	"github.com/ManuelReschke/zalohook/internal/pkg/config"
)

var client *redis.Client

// SetupCache initializes the shared Redis client. A failed ping is only
// logged: the rate limiter fails open while the cache is unreachable.
func SetupCache(cfg config.CacheConfig) (*redis.Client, error) {
	opts, err := Options(cfg)
	if err != nil {
		return nil, err
	}
	client = redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	pong, err := client.Ping(ctx).Result()
	if err != nil {
		log.Warnf("[Cache] could not connect to %s: %v", opts.Addr, err)
	} else {
		log.Infof("[Cache] connected to %s: %s", opts.Addr, pong)
	}
	return client, nil
}

// Options builds client options from CACHE_URL (redis://...) or host and port.
func Options(cfg config.CacheConfig) (*redis.Options, error) {
	if url := strings.TrimSpace(cfg.URL); url != "" {
		opts, err := redis.ParseURL(url)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		return opts, nil
	}
	return &redis.Options{
		Addr:     fmt.Sprintf("%s:%s", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	}, nil
}

// GetClient returns the Redis client created by SetupCache, or nil.
func GetClient() *redis.Client {
	return client
}

// Available reports whether the shared client answers a ping.
func Available(ctx context.Context) bool {
	if client == nil {
		return false
	}
	ctx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	return client.Ping(ctx).Err() == nil
}

func Close() error {
	if client == nil {
		return nil
	}
	return client.Close()
}

// Package cache provides the cross-instance crawl markers: a memcached
// record of recently attempted URLs shared by every crawler replica, checked
// before the durable ledger.
package cache

import (
	"errors"
	"log/slog"
	"os"
	"time"

	"github.com/bradfitz/gomemcache/memcache"
	"github.com/mealdex/recipe-crawler/config"
	"github.com/mealdex/recipe-crawler/internal"
)

type CachedClient interface {
	MarkAttempt(url string, success bool)
	IsRecentAttempt(url string) bool
	Close()
}

type MemcachedClient struct {
	client *memcache.Client
	cfg    *config.CacheConfig
}

func NewMemcachedClient(cacheConfig *config.CacheConfig) *MemcachedClient {
	slog.Info("connecting to memcached...")
	ss := new(memcache.ServerList)
	err := ss.SetServers(cacheConfig.Servers...)
	if err != nil {
		slog.Error("failed to set memcached servers.", slog.String("err", err.Error()))
		os.Exit(1)
	}
	c := &MemcachedClient{
		client: memcache.NewFromSelector(ss),
		cfg:    cacheConfig,
	}
	slog.Info("pinging the memcached.")
	err = c.client.Ping()
	if err != nil {
		slog.Error("connection to the memcached is failed.", slog.String("err", err.Error()))
		os.Exit(1)
	}
	slog.Info("connected to memcached!")

	return c
}

// MarkAttempt records the attempt with a TTL mirroring the cooldown for its
// outcome: long for success, short for failure so retries stay possible.
func (mc *MemcachedClient) MarkAttempt(url string, success bool) {
	ttl := mc.cfg.TtlForFailure
	if success {
		ttl = mc.cfg.TtlForSuccess
	}
	key := internal.HashURL(url)
	item := &memcache.Item{
		Key:        key,
		Value:      []byte("1"),
		Expiration: int32(ttl / time.Second),
	}
	if err := mc.client.Set(item); err != nil {
		slog.Error("failed to save crawl marker to cache.", slog.String("key", key),
			slog.String("err", err.Error()))
		return
	}
	slog.Debug("crawl marker saved to cache.", slog.String("key", key), slog.String("url", url))
}

func (mc *MemcachedClient) IsRecentAttempt(url string) bool {
	key := internal.HashURL(url)
	_, err := mc.client.Get(key)
	if err != nil {
		if !errors.Is(err, memcache.ErrCacheMiss) {
			slog.Warn("failed to read crawl marker.", slog.String("key", key),
				slog.String("err", err.Error()))
		}
		return false
	}
	return true
}

func (mc *MemcachedClient) Close() {
	slog.Info("closing memcached connection.")
	err := mc.client.Close()
	if err != nil {
		slog.Error("failed to close memcached connection.", slog.String("err", err.Error()))
	}
}

// NoopClient stands in when the shared cache is disabled; single-instance
// deployments rely on the in-process url cache alone.
type NoopClient struct{}

func (NoopClient) MarkAttempt(string, bool) {}
func (NoopClient) IsRecentAttempt(string) bool {
	return false
}
func (NoopClient) Close() {}

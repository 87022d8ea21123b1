// Package cache adds a Redis read-aside layer in front of the address store.
package cache

import (
	"context"
	"time"

	"github.com/tinywideclouds/go-order-notification-service/pkg/dispatch"
)

// CacheClient is the subset of Redis commands we need.
type CacheClient interface {
	// Get returns ErrMiss when the key is absent.
	Get(ctx context.Context, key string, dest any) error
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Del(ctx context.Context, key string) error
}

// CachedAddressStore decorates an AddressStore with read-aside caching of
// single lookups and invalidate-on-write. Listing always reads the backing
// store.
type CachedAddressStore struct {
	store dispatch.AddressStore
	cache CacheClient
	ttl   time.Duration
}

func NewCachedAddressStore(store dispatch.AddressStore, cache CacheClient, ttl time.Duration) *CachedAddressStore {
	return &CachedAddressStore{store: store, cache: cache, ttl: ttl}
}

func (s *CachedAddressStore) GetAddress(ctx context.Context, recipientID string) (string, error) {
	key := cacheKey(recipientID)
	var addr string
	if err := s.cache.Get(ctx, key, &addr); err == nil && addr != "" {
		return addr, nil
	}

	addr, err := s.store.GetAddress(ctx, recipientID)
	if err != nil {
		return "", err
	}
	// Cache failures only cost a slower next read.
	_ = s.cache.Set(ctx, key, addr, s.ttl)
	return addr, nil
}

func (s *CachedAddressStore) ListAddresses(ctx context.Context) ([]dispatch.DeliveryTarget, error) {
	return s.store.ListAddresses(ctx)
}

func (s *CachedAddressStore) SetAddress(ctx context.Context, recipientID, address string) error {
	if err := s.store.SetAddress(ctx, recipientID, address); err != nil {
		return err
	}
	return s.cache.Del(ctx, cacheKey(recipientID))
}

// RemoveAddress must clear the cache even though the store write succeeded,
// otherwise pushes keep going to the removed token until the TTL expires.
func (s *CachedAddressStore) RemoveAddress(ctx context.Context, recipientID string) error {
	if err := s.store.RemoveAddress(ctx, recipientID); err != nil {
		return err
	}
	return s.cache.Del(ctx, cacheKey(recipientID))
}

// RemoveAddressIfMatch only invalidates the cache when the store removed the
// address. A non-matching address means a newer token was written, and that
// write already cleared the key.
func (s *CachedAddressStore) RemoveAddressIfMatch(ctx context.Context, recipientID, address string) (bool, error) {
	removed, err := s.store.RemoveAddressIfMatch(ctx, recipientID, address)
	if err != nil || !removed {
		return removed, err
	}
	return true, s.cache.Del(ctx, cacheKey(recipientID))
}

func cacheKey(recipientID string) string {
	return "notify:token:" + recipientID
}

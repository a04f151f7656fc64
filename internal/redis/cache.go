package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// CacheStore handles entity caching in Redis.
type CacheStore struct {
	client *redis.Client
}

// NewCacheStore creates a new CacheStore.
func NewCacheStore(client *redis.Client) *CacheStore {
	return &CacheStore{client: client}
}

// Cache TTL constants
const (
	CandidateCacheTTL = 60 * time.Second // guide availability shifts as trips get booked
	GuideCacheTTL     = 30 * time.Second
)

// Key prefixes
const (
	candidateCachePrefix = "cache:candidates:"
	guideCachePrefix     = "cache:guide:"
)

// CachedGuide represents a cached guide directory entry.
type CachedGuide struct {
	ID           string   `json:"id"`
	UserID       string   `json:"user_id"`
	Active       bool     `json:"active"`
	PricePerHour float64  `json:"price_per_hour"`
	Languages    []string `json:"languages"`
	RatingScore  float64  `json:"rating_score"`
	Province     string   `json:"province"`
	Lat          float64  `json:"lat"`
	Lng          float64  `json:"lng"`
	TripCount    int      `json:"trip_count"`
}

// GetCandidates retrieves the cached candidate guide id list for a trip.
// Returns nil on a cache miss.
func (s *CacheStore) GetCandidates(ctx context.Context, tripID string) ([]string, error) {
	key := candidateCachePrefix + tripID
	data, err := s.client.Get(ctx, key).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil // Cache miss
		}
		return nil, err
	}

	var ids []string
	if err := json.Unmarshal(data, &ids); err != nil {
		return nil, err
	}
	return ids, nil
}

// SetCandidates stores a trip's candidate guide id list.
func (s *CacheStore) SetCandidates(ctx context.Context, tripID string, guideIDs []string) error {
	key := candidateCachePrefix + tripID
	data, err := json.Marshal(guideIDs)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, key, data, CandidateCacheTTL).Err()
}

// InvalidateCandidates removes a trip's candidate list from cache.
func (s *CacheStore) InvalidateCandidates(ctx context.Context, tripID string) error {
	key := candidateCachePrefix + tripID
	return s.client.Del(ctx, key).Err()
}

// GetGuide retrieves a guide from cache. Returns nil on a cache miss.
func (s *CacheStore) GetGuide(ctx context.Context, guideID string) (*CachedGuide, error) {
	key := guideCachePrefix + guideID
	data, err := s.client.Get(ctx, key).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, err
	}

	var guide CachedGuide
	if err := json.Unmarshal(data, &guide); err != nil {
		return nil, err
	}
	return &guide, nil
}

// SetGuide stores a guide in cache.
func (s *CacheStore) SetGuide(ctx context.Context, guide *CachedGuide) error {
	key := guideCachePrefix + guide.ID
	data, err := json.Marshal(guide)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, key, data, GuideCacheTTL).Err()
}

// AcquireTripLock attempts to acquire a short lock on a trip, used to
// serialize call-session creation for the same trip.
func (s *CacheStore) AcquireTripLock(ctx context.Context, tripID string, ttl time.Duration) (bool, error) {
	key := fmt.Sprintf("lock:trip:%s", tripID)
	ok, err := s.client.SetNX(ctx, key, "1", ttl).Result()
	if err != nil {
		return false, err
	}
	return ok, nil
}

// ReleaseTripLock releases the lock for a trip.
func (s *CacheStore) ReleaseTripLock(ctx context.Context, tripID string) error {
	key := fmt.Sprintf("lock:trip:%s", tripID)
	return s.client.Del(ctx, key).Err()
}

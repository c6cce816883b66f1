package cache

import (
	"context"
	"encoding/json"
	"errors"
	"maps"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/subgov/backend/internal/domain/billing"
	"go.uber.org/zap"
)

const (
	tierKeyPrefix       = "subgov:tiers:"
	tierInvalidationMsg = "tiers"
	// DefaultTierChannel carries catalogue invalidations between instances
	DefaultTierChannel = "subgov:cache:invalidate"
)

// CachedTierRepository is a read-through cache in front of the tier catalogue.
// Reads hit process memory first, then Redis when a client is configured, then
// the database. Save writes through and invalidates both levels on every
// instance via Redis Pub/Sub.
type CachedTierRepository struct {
	inner   billing.TierRepository
	client  *redis.Client
	ttl     time.Duration
	channel string
	byCode  *ttlMap[*billing.Tier]
	lists   *ttlMap[[]*billing.Tier]
	logger  *zap.Logger
}

// NewCachedTierRepository wraps inner. client may be nil.
func NewCachedTierRepository(inner billing.TierRepository, client *redis.Client, ttl time.Duration, logger *zap.Logger) *CachedTierRepository {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &CachedTierRepository{
		inner:   inner,
		client:  client,
		ttl:     ttl,
		channel: DefaultTierChannel,
		byCode:  newTTLMap[*billing.Tier](),
		lists:   newTTLMap[[]*billing.Tier](),
		logger:  logger,
	}
}

// FindByCode returns a copy of the cached tier
func (r *CachedTierRepository) FindByCode(ctx context.Context, code string) (*billing.Tier, error) {
	if t, ok := r.byCode.get(code); ok {
		return cloneTier(t), nil
	}
	key := tierKeyPrefix + "code:" + code
	var t *billing.Tier
	if r.readRedis(ctx, key, &t) && t != nil {
		r.byCode.set(code, t, r.ttl)
		return cloneTier(t), nil
	}

	t, err := r.inner.FindByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	r.byCode.set(code, cloneTier(t), r.ttl)
	r.writeRedis(ctx, key, t)
	return t, nil
}

// FindAll returns copies of the cached catalogue
func (r *CachedTierRepository) FindAll(ctx context.Context, includeInactive bool) ([]*billing.Tier, error) {
	listKey := "all:" + strconv.FormatBool(includeInactive)
	if ts, ok := r.lists.get(listKey); ok {
		return cloneTiers(ts), nil
	}
	key := tierKeyPrefix + listKey
	var ts []*billing.Tier
	if r.readRedis(ctx, key, &ts) {
		r.lists.set(listKey, ts, r.ttl)
		return cloneTiers(ts), nil
	}

	ts, err := r.inner.FindAll(ctx, includeInactive)
	if err != nil {
		return nil, err
	}
	r.lists.set(listKey, cloneTiers(ts), r.ttl)
	r.writeRedis(ctx, key, ts)
	return ts, nil
}

// Save writes through and drops every cached tier
func (r *CachedTierRepository) Save(ctx context.Context, tier *billing.Tier) error {
	if err := r.inner.Save(ctx, tier); err != nil {
		return err
	}
	r.Invalidate(ctx)
	return nil
}

// Invalidate clears the local cache, deletes the Redis keys and tells the
// other instances to clear theirs
func (r *CachedTierRepository) Invalidate(ctx context.Context) {
	r.clearLocal()
	if r.client == nil {
		return
	}
	iter := r.client.Scan(ctx, 0, tierKeyPrefix+"*", 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		r.logger.Warn("Tier cache scan failed", zap.Error(err))
	}
	if len(keys) > 0 {
		if err := r.client.Del(ctx, keys...).Err(); err != nil {
			r.logger.Warn("Tier cache delete failed", zap.Error(err))
		}
	}
	if err := r.client.Publish(ctx, r.channel, tierInvalidationMsg).Err(); err != nil {
		r.logger.Warn("Tier cache invalidation publish failed", zap.Error(err))
	}
}

// Listen clears the local cache whenever another instance invalidates. It
// blocks until ctx is done.
func (r *CachedTierRepository) Listen(ctx context.Context) error {
	if r.client == nil {
		<-ctx.Done()
		return nil
	}
	sub := r.client.Subscribe(ctx, r.channel)
	defer sub.Close()
	if _, err := sub.Receive(ctx); err != nil {
		return err
	}
	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			if msg.Payload == tierInvalidationMsg {
				r.clearLocal()
				r.logger.Debug("Tier cache invalidated by peer")
			}
		}
	}
}

func (r *CachedTierRepository) clearLocal() {
	r.byCode.clear()
	r.lists.clear()
}

func (r *CachedTierRepository) readRedis(ctx context.Context, key string, dst any) bool {
	if r.client == nil {
		return false
	}
	data, err := r.client.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			r.logger.Warn("Tier cache read failed", zap.String("key", key), zap.Error(err))
		}
		return false
	}
	if err := json.Unmarshal(data, dst); err != nil {
		r.logger.Warn("Tier cache entry unreadable", zap.String("key", key), zap.Error(err))
		return false
	}
	return true
}

func (r *CachedTierRepository) writeRedis(ctx context.Context, key string, v any) {
	if r.client == nil {
		return
	}
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	if err := r.client.Set(ctx, key, data, r.ttl).Err(); err != nil {
		r.logger.Warn("Tier cache write failed", zap.String("key", key), zap.Error(err))
	}
}

func cloneTier(t *billing.Tier) *billing.Tier {
	c := *t
	c.Limits = maps.Clone(t.Limits)
	return &c
}

func cloneTiers(ts []*billing.Tier) []*billing.Tier {
	out := make([]*billing.Tier, len(ts))
	for i, t := range ts {
		out[i] = cloneTier(t)
	}
	return out
}

var _ billing.TierRepository = (*CachedTierRepository)(nil)

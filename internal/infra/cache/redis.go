package cache

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"card-order-service/internal/domain"
	"card-order-service/internal/logging"

	"github.com/go-redis/redis/v8"
)

// OrderCache keeps serialized order details keyed by order id. All methods
// are best effort: redis trouble degrades to a cache miss.
//
// Each order also has a generation counter bumped by Invalidate. A reader
// takes Version before loading from the database and Set only writes when
// the counter has not moved since, so a load that raced a write is dropped.
type OrderCache struct {
	rdb    *redis.Client
	ttl    time.Duration
	genTTL time.Duration
}

const defaultOrderTTL = 5 * time.Minute

// setIfVersion writes KEYS[1] only while KEYS[2] still holds ARGV[2]. A
// missing counter reads as generation 0.
var setIfVersion = redis.NewScript(`
local v = redis.call('GET', KEYS[2])
if v == false then v = '0' end
if v ~= ARGV[2] then return 0 end
redis.call('SET', KEYS[1], ARGV[1], 'PX', ARGV[3])
return 1
`)

func NewOrderCache(rdb *redis.Client, ttl time.Duration) *OrderCache {
	if ttl <= 0 {
		ttl = defaultOrderTTL
	}
	genTTL := 2 * ttl
	if genTTL < 2*time.Minute {
		genTTL = 2 * time.Minute
	}
	return &OrderCache{rdb: rdb, ttl: ttl, genTTL: genTTL}
}

func orderKey(id uint64) string {
	return "orders:" + strconv.FormatUint(id, 10)
}

func orderGenKey(id uint64) string {
	return orderKey(id) + ":gen"
}

func (c *OrderCache) Get(ctx context.Context, id uint64) (*domain.OrderDetails, bool) {
	b, err := c.rdb.Get(ctx, orderKey(id)).Bytes()
	if err != nil {
		if err != redis.Nil {
			logging.FromCtx(ctx).Warn("order cache get failed", "order_id", id, "err", err)
		}
		return nil, false
	}

	var d domain.OrderDetails
	if err := json.Unmarshal(b, &d); err != nil {
		return nil, false
	}
	return &d, true
}

// Version reports the current generation of id. ok is false when redis
// cannot answer, in which case the caller should not fill the cache.
func (c *OrderCache) Version(ctx context.Context, id uint64) (int64, bool) {
	v, err := c.rdb.Get(ctx, orderGenKey(id)).Int64()
	switch {
	case err == redis.Nil:
		return 0, true
	case err != nil:
		logging.FromCtx(ctx).Warn("order cache version failed", "order_id", id, "err", err)
		return 0, false
	}
	return v, true
}

// Set stores d unless the order was invalidated after version was read.
func (c *OrderCache) Set(ctx context.Context, d *domain.OrderDetails, version int64) {
	data, err := json.Marshal(d)
	if err != nil {
		return
	}
	keys := []string{orderKey(d.Order.ID), orderGenKey(d.Order.ID)}
	written, err := setIfVersion.Run(ctx, c.rdb, keys, data, version, c.ttl.Milliseconds()).Int()
	if err != nil {
		logging.FromCtx(ctx).Warn("order cache set failed", "order_id", d.Order.ID, "err", err)
		return
	}
	if written == 0 {
		logging.FromCtx(ctx).Debug("order cache fill skipped, order changed during load", "order_id", d.Order.ID)
	}
}

func (c *OrderCache) Invalidate(ctx context.Context, id uint64) {
	_, err := c.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, orderGenKey(id))
		pipe.PExpire(ctx, orderGenKey(id), c.genTTL)
		pipe.Del(ctx, orderKey(id))
		return nil
	})
	if err != nil {
		logging.FromCtx(ctx).Warn("order cache invalidate failed", "order_id", id, "err", err)
	}
}

// EventMarker records gateway notifications that were fully applied so a
// redelivery can be acknowledged without opening a transaction.
type EventMarker struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewEventMarker(rdb *redis.Client, ttl time.Duration) *EventMarker {
	return &EventMarker{rdb: rdb, ttl: ttl}
}

func eventKey(key string) string {
	return "webhook:applied:" + key
}

func (m *EventMarker) Seen(ctx context.Context, key string) (bool, error) {
	n, err := m.rdb.Exists(ctx, eventKey(key)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (m *EventMarker) Mark(ctx context.Context, key string) error {
	return m.rdb.Set(ctx, eventKey(key), "1", m.ttl).Err()
}
